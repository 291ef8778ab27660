package consensus

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clearfile/credit-cli/internal/report"
)

func testModels() []ModelConfig {
	return []ModelConfig{
		{Name: "claude-completeness", Weight: 0.35},
		{Name: "claude-cross-validation", Weight: 0.40},
		{Name: "gemini-error-flagging", Weight: 0.25},
	}
}

func TestReconcileMajorityName(t *testing.T) {
	rc := NewReconciler(testModels())
	results := []AnalysisResult{
		resultWith("claude-completeness", 90, &report.Report{PersonalInfo: report.PersonalInfo{Name: "John Doe"}}),
		resultWith("claude-cross-validation", 85, &report.Report{PersonalInfo: report.PersonalInfo{Name: "John Doe"}}),
		resultWith("gemini-error-flagging", 80, &report.Report{PersonalInfo: report.PersonalInfo{Name: "Jon Doe"}}),
	}

	out := rc.Reconcile(results)

	assert.Equal(t, "John Doe", out.Report.PersonalInfo.Name)
	assert.Equal(t, identityMajorityConfidence, out.Report.FieldConfidence["personal_info.name"])

	require.Len(t, out.Conflicts, 1)
	assert.Equal(t, "personal_info.name", out.Conflicts[0].FieldPath)
	assert.Equal(t, MethodMajorityVote, out.Conflicts[0].Method)
	assert.Len(t, out.Conflicts[0].Candidates, 3)
}

func TestReconcileSplitNameTakesHighestWeight(t *testing.T) {
	rc := NewReconciler(testModels())
	results := []AnalysisResult{
		resultWith("claude-completeness", 90, &report.Report{PersonalInfo: report.PersonalInfo{Name: "John Doe"}}),
		resultWith("claude-cross-validation", 85, &report.Report{PersonalInfo: report.PersonalInfo{Name: "Jane Roe"}}),
	}

	out := rc.Reconcile(results)

	// cross-validation carries the higher weight, so its value wins the split.
	assert.Equal(t, "Jane Roe", out.Report.PersonalInfo.Name)
	assert.Equal(t, identitySplitConfidence, out.Report.FieldConfidence["personal_info.name"])
}

func TestReconcileScoreMean(t *testing.T) {
	rc := NewReconciler(testModels())
	results := []AnalysisResult{
		resultWith("claude-completeness", 90, &report.Report{
			Scores: map[string]report.ScoreEntry{"experian": {Value: 720, Date: "2026-06-01"}},
		}),
		resultWith("claude-cross-validation", 85, &report.Report{
			Scores: map[string]report.ScoreEntry{"experian": {Value: 780, Date: "2026-07-01"}},
		}),
	}

	out := rc.Reconcile(results)

	require.Contains(t, out.Report.Scores, "experian")
	assert.Equal(t, 750, out.Report.Scores["experian"].Value)
	assert.Equal(t, "2026-07-01", out.Report.Scores["experian"].Date)
	require.Len(t, out.Conflicts, 1)
	assert.Equal(t, MethodWeightedAverage, out.Conflicts[0].Method)
}

func TestReconcileBureauOmittedWithoutValues(t *testing.T) {
	rc := NewReconciler(testModels())
	results := []AnalysisResult{
		resultWith("claude-completeness", 90, &report.Report{
			Scores: map[string]report.ScoreEntry{"experian": {Value: 720}},
		}),
	}

	out := rc.Reconcile(results)

	assert.Contains(t, out.Report.Scores, "experian")
	assert.NotContains(t, out.Report.Scores, "equifax")
	assert.NotContains(t, out.Report.Scores, "transunion")
}

func TestReconcileAccountsGroupedByCreditorAndNumber(t *testing.T) {
	rc := NewReconciler(testModels())
	results := []AnalysisResult{
		resultWith("claude-completeness", 90, &report.Report{
			Accounts: []report.Account{
				{CreditorName: "Chase", AccountNumber: "1234", Balance: 1000, Status: "current"},
				{CreditorName: "Amex", AccountNumber: "9999", Balance: 500},
			},
		}),
		resultWith("claude-cross-validation", 85, &report.Report{
			Accounts: []report.Account{
				{CreditorName: "CHASE", AccountNumber: "1234", Balance: 1050, Status: "current"},
			},
		}),
	}

	out := rc.Reconcile(results)

	require.Len(t, out.Report.Accounts, 2)

	var chase, amex *report.Account
	for i := range out.Report.Accounts {
		switch out.Report.Accounts[i].AccountNumber {
		case "1234":
			chase = &out.Report.Accounts[i]
		case "9999":
			amex = &out.Report.Accounts[i]
		}
	}
	require.NotNil(t, chase)
	require.NotNil(t, amex)
	assert.InDelta(t, 1025, chase.Balance, 0.001)
	assert.InDelta(t, 500, amex.Balance, 0.001)
}

func TestReconcileCategoricalMajority(t *testing.T) {
	rc := NewReconciler(testModels())
	results := []AnalysisResult{
		resultWith("claude-completeness", 90, &report.Report{
			Accounts: []report.Account{{CreditorName: "Chase", AccountNumber: "1234", Status: "current"}},
		}),
		resultWith("claude-cross-validation", 85, &report.Report{
			Accounts: []report.Account{{CreditorName: "Chase", AccountNumber: "1234", Status: "late"}},
		}),
		resultWith("gemini-error-flagging", 80, &report.Report{
			Accounts: []report.Account{{CreditorName: "Chase", AccountNumber: "1234", Status: "current"}},
		}),
	}

	out := rc.Reconcile(results)

	require.Len(t, out.Report.Accounts, 1)
	assert.Equal(t, "current", out.Report.Accounts[0].Status)
}

func TestReconcileInquiriesDeduped(t *testing.T) {
	rc := NewReconciler(testModels())
	inq := report.Inquiry{CreditorName: "Amex", Date: "2026-01-15"}
	results := []AnalysisResult{
		resultWith("claude-completeness", 90, &report.Report{Inquiries: []report.Inquiry{inq}}),
		resultWith("claude-cross-validation", 85, &report.Report{Inquiries: []report.Inquiry{inq,
			{CreditorName: "Discover", Date: "2026-02-01"}}}),
	}

	out := rc.Reconcile(results)

	assert.Len(t, out.Report.Inquiries, 2)
}

func TestReconcilePermutationInvariant(t *testing.T) {
	rc := NewReconciler(testModels())
	results := []AnalysisResult{
		resultWith("claude-completeness", 90, &report.Report{
			PersonalInfo: report.PersonalInfo{Name: "John Doe"},
			Scores:       map[string]report.ScoreEntry{"experian": {Value: 720}},
			Accounts:     []report.Account{{CreditorName: "Chase", AccountNumber: "1234", Balance: 1000}},
		}),
		resultWith("claude-cross-validation", 85, &report.Report{
			PersonalInfo: report.PersonalInfo{Name: "John Doe"},
			Scores:       map[string]report.ScoreEntry{"experian": {Value: 715}},
			Accounts:     []report.Account{{CreditorName: "Chase", AccountNumber: "1234", Balance: 1050}},
		}),
		resultWith("gemini-error-flagging", 80, &report.Report{
			PersonalInfo: report.PersonalInfo{Name: "Jon Doe"},
			Scores:       map[string]report.ScoreEntry{"experian": {Value: 725}},
			Accounts:     []report.Account{{CreditorName: "Chase", AccountNumber: "1234", Balance: 950}},
		}),
	}

	permutations := [][]int{
		{0, 1, 2}, {0, 2, 1}, {1, 0, 2}, {1, 2, 0}, {2, 0, 1}, {2, 1, 0},
	}

	var baseline []byte
	for _, perm := range permutations {
		shuffled := make([]AnalysisResult, len(results))
		for i, idx := range perm {
			shuffled[i] = results[idx]
		}

		out := rc.Reconcile(shuffled)
		raw, err := json.Marshal(out.Report)
		require.NoError(t, err)

		if baseline == nil {
			baseline = raw
			continue
		}
		assert.JSONEq(t, string(baseline), string(raw))
	}
}

func TestReconcileEndToEndValues(t *testing.T) {
	rc := NewReconciler(testModels())
	results := []AnalysisResult{
		resultWith("claude-completeness", 90, &report.Report{
			PersonalInfo: report.PersonalInfo{Name: "John Doe"},
			Scores:       map[string]report.ScoreEntry{"experian": {Value: 720}},
			Accounts:     []report.Account{{CreditorName: "Chase", AccountNumber: "1234", Balance: 1000}},
		}),
		resultWith("claude-cross-validation", 85, &report.Report{
			PersonalInfo: report.PersonalInfo{Name: "John Doe"},
			Scores:       map[string]report.ScoreEntry{"experian": {Value: 715}},
			Accounts:     []report.Account{{CreditorName: "Chase", AccountNumber: "1234", Balance: 1050}},
		}),
		resultWith("gemini-error-flagging", 80, &report.Report{
			PersonalInfo: report.PersonalInfo{Name: "John Doe"},
			Scores:       map[string]report.ScoreEntry{"experian": {Value: 725}},
			Accounts:     []report.Account{{CreditorName: "Chase", AccountNumber: "1234", Balance: 950}},
		}),
	}

	out := rc.Reconcile(results)

	assert.Equal(t, "John Doe", out.Report.PersonalInfo.Name)
	assert.Equal(t, 720, out.Report.Scores["experian"].Value)
	require.Len(t, out.Report.Accounts, 1)
	assert.InDelta(t, 1000, out.Report.Accounts[0].Balance, 0.001)
}

func TestReconcileContributors(t *testing.T) {
	rc := NewReconciler(testModels())
	results := []AnalysisResult{
		resultWith("claude-completeness", 90, &report.Report{
			PersonalInfo: report.PersonalInfo{Name: "John Doe"},
		}),
		resultWith("gemini-error-flagging", 80, &report.Report{
			Scores: map[string]report.ScoreEntry{"equifax": {Value: 680}},
		}),
	}

	out := rc.Reconcile(results)

	assert.Equal(t, []string{"claude-completeness"}, out.Contributors["personal_info"])
	assert.Equal(t, []string{"gemini-error-flagging"}, out.Contributors["credit_scores"])
}

func TestReconcileQualityMetrics(t *testing.T) {
	rc := NewReconciler(testModels())
	results := []AnalysisResult{
		resultWith("claude-completeness", 90, &report.Report{
			PersonalInfo: report.PersonalInfo{Name: "John Doe"},
			Scores:       map[string]report.ScoreEntry{"experian": {Value: 720}},
		}),
		resultWith("claude-cross-validation", 70, &report.Report{
			PersonalInfo: report.PersonalInfo{Name: "John Doe"},
			Scores:       map[string]report.ScoreEntry{"experian": {Value: 720}},
		}),
	}

	out := rc.Reconcile(results)

	assert.InDelta(t, 0.8, out.Report.Quality.Accuracy, 0.001)
	assert.InDelta(t, 1.0, out.Report.Quality.Consistency, 0.001)
	assert.InDelta(t, 2.0/6.0, out.Report.Quality.Completeness, 0.001)
}
