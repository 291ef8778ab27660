package consensus

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/clearfile/credit-cli/internal/report"
)

func resultWith(name string, conf float64, rep *report.Report) AnalysisResult {
	return AnalysisResult{ModelName: name, Confidence: conf, Report: rep}
}

func reportWith(name string, scores map[string]int, accounts int) *report.Report {
	rep := &report.Report{PersonalInfo: report.PersonalInfo{Name: name}}
	if len(scores) > 0 {
		rep.Scores = make(map[string]report.ScoreEntry, len(scores))
		for bureau, v := range scores {
			rep.Scores[bureau] = report.ScoreEntry{Value: v}
		}
	}
	for i := 0; i < accounts; i++ {
		rep.Accounts = append(rep.Accounts, report.Account{
			CreditorName:  "Creditor",
			AccountNumber: string(rune('a' + i)),
		})
	}
	return rep
}

func TestAgreementSingleSuccess(t *testing.T) {
	results := []AnalysisResult{
		resultWith("a", 80, reportWith("John Doe", map[string]int{"experian": 720}, 2)),
	}
	assert.Equal(t, 1.0, AgreementScore(results))
}

func TestAgreementIgnoresFailedResults(t *testing.T) {
	results := []AnalysisResult{
		resultWith("a", 80, reportWith("John Doe", map[string]int{"experian": 720}, 2)),
		resultWith("b", 0, nil),
	}
	assert.Equal(t, 1.0, AgreementScore(results))
}

func TestAgreementPerfect(t *testing.T) {
	rep := func() *report.Report {
		return reportWith("John Doe", map[string]int{"experian": 720}, 3)
	}
	results := []AnalysisResult{
		resultWith("a", 90, rep()),
		resultWith("b", 85, rep()),
		resultWith("c", 88, rep()),
	}
	assert.InDelta(t, 1.0, AgreementScore(results), 0.001)
}

func TestAgreementCaseInsensitiveNames(t *testing.T) {
	results := []AnalysisResult{
		resultWith("a", 90, reportWith("John Doe", nil, 0)),
		resultWith("b", 85, reportWith("JOHN DOE", nil, 0)),
	}
	// Names agree (case-insensitive); scores dimension is skipped (none
	// extracted); account counts are both zero.
	assert.InDelta(t, 1.0, AgreementScore(results), 0.001)
}

func TestAgreementDivergentNames(t *testing.T) {
	results := []AnalysisResult{
		resultWith("a", 90, reportWith("John Doe", nil, 0)),
		resultWith("b", 85, reportWith("Jane Roe", nil, 0)),
	}
	// Name dimension 0, account-count dimension 1 → mean 0.5.
	assert.InDelta(t, 0.5, AgreementScore(results), 0.001)
}

func TestAgreementScoreVariance(t *testing.T) {
	near := []AnalysisResult{
		resultWith("a", 90, reportWith("John Doe", map[string]int{"experian": 720}, 1)),
		resultWith("b", 85, reportWith("John Doe", map[string]int{"experian": 725}, 1)),
	}
	wide := []AnalysisResult{
		resultWith("a", 90, reportWith("John Doe", map[string]int{"experian": 720}, 1)),
		resultWith("b", 85, reportWith("John Doe", map[string]int{"experian": 840}, 1)),
	}
	assert.Greater(t, AgreementScore(near), AgreementScore(wide))
}

func TestAgreementIdenticalMultiBureau(t *testing.T) {
	rep := func() *report.Report {
		return reportWith("John Doe", map[string]int{"experian": 720, "equifax": 650}, 2)
	}
	results := []AnalysisResult{
		resultWith("a", 90, rep()),
		resultWith("b", 85, rep()),
	}
	// Byte-identical extractions: the experian/equifax spread is
	// between-bureau, not between-model, and must not dent agreement.
	assert.Equal(t, 1.0, AgreementScore(results))
}

func TestAgreementSkipsSingleContributorBureau(t *testing.T) {
	results := []AnalysisResult{
		resultWith("a", 90, reportWith("John Doe", map[string]int{"experian": 720, "equifax": 650}, 1)),
		resultWith("b", 85, reportWith("John Doe", map[string]int{"experian": 720}, 1)),
	}
	// equifax has one contributor and is skipped; experian matches exactly.
	assert.Equal(t, 1.0, AgreementScore(results))
}

func TestOverallConfidence(t *testing.T) {
	results := []AnalysisResult{
		resultWith("a", 90, nil),
		resultWith("b", 80, nil),
	}
	// 0.7*85 + 0.3*100 = 89.5 → 90
	assert.Equal(t, 90, OverallConfidence(results, 1.0))
	// 0.7*85 + 0.3*0 = 59.5 → 60
	assert.Equal(t, 60, OverallConfidence(results, 0.0))
}

func TestOverallConfidenceNoSuccesses(t *testing.T) {
	results := []AnalysisResult{resultWith("a", 0, nil)}
	assert.Equal(t, 0, OverallConfidence(results, 1.0))
}

func TestOverallConfidenceClamped(t *testing.T) {
	results := []AnalysisResult{resultWith("a", 100, nil)}
	assert.Equal(t, 100, OverallConfidence(results, 1.0))
}
