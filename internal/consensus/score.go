package consensus

import (
	"math"
	"strings"
)

// Variance normalizers: a score variance of scoreVarianceNorm (or an
// account-count variance of countVarianceNorm) zeroes out that agreement
// dimension entirely.
const (
	scoreVarianceNorm = 10000.0
	countVarianceNorm = 4.0
)

// AgreementScore measures how much the successful results agree, in [0,1].
// Three dimensions contribute equally when computable: extracted name
// equality, credit-score variance, and account-count variance. With fewer
// than two contributors for a dimension that dimension is skipped; with no
// computable dimension at all the score defaults to 1.0 (a single surviving
// model cannot disagree with itself).
func AgreementScore(results []AnalysisResult) float64 {
	contributing := make([]AnalysisResult, 0, len(results))
	for _, r := range results {
		if r.Succeeded() && r.Report != nil {
			contributing = append(contributing, r)
		}
	}
	if len(contributing) < 2 {
		return 1.0
	}

	var dims []float64
	if d, ok := nameAgreement(contributing); ok {
		dims = append(dims, d)
	}
	if d, ok := scoreAgreement(contributing); ok {
		dims = append(dims, d)
	}
	if d, ok := accountCountAgreement(contributing); ok {
		dims = append(dims, d)
	}
	if len(dims) == 0 {
		return 1.0
	}

	var sum float64
	for _, d := range dims {
		sum += d
	}
	return sum / float64(len(dims))
}

// nameAgreement is the fraction of pairwise case-insensitive matches across
// the extracted names. Requires at least two non-empty names.
func nameAgreement(results []AnalysisResult) (float64, bool) {
	var names []string
	for _, r := range results {
		if n := r.Report.PersonalInfo.Name; n != "" {
			names = append(names, strings.ToLower(strings.TrimSpace(n)))
		}
	}
	if len(names) < 2 {
		return 0, false
	}

	matches, pairs := 0, 0
	for i := 0; i < len(names); i++ {
		for j := i + 1; j < len(names); j++ {
			pairs++
			if names[i] == names[j] {
				matches++
			}
		}
	}
	return float64(matches) / float64(pairs), true
}

// scoreAgreement maps per-bureau credit-score variance to [0,1]: for each
// bureau extracted by at least two models, zero variance across those models
// is perfect agreement and scoreVarianceNorm or more is none. Bureaus are
// averaged; bureaus with a single contributor are skipped so that
// between-bureau spread never counts as inter-model disagreement.
func scoreAgreement(results []AnalysisResult) (float64, bool) {
	byBureau := make(map[string][]float64)
	for _, r := range results {
		for bureau, entry := range r.Report.Scores {
			byBureau[bureau] = append(byBureau[bureau], float64(entry.Value))
		}
	}

	var sum float64
	var bureaus int
	for _, values := range byBureau {
		if len(values) < 2 {
			continue
		}
		sum += varianceAgreement(values, scoreVarianceNorm)
		bureaus++
	}
	if bureaus == 0 {
		return 0, false
	}
	return sum / float64(bureaus), true
}

// accountCountAgreement does the same over per-model account counts.
func accountCountAgreement(results []AnalysisResult) (float64, bool) {
	counts := make([]float64, len(results))
	for i, r := range results {
		counts[i] = float64(len(r.Report.Accounts))
	}
	if len(counts) < 2 {
		return 0, false
	}
	return varianceAgreement(counts, countVarianceNorm), true
}

func varianceAgreement(values []float64, norm float64) float64 {
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))

	var variance float64
	for _, v := range values {
		variance += (v - mean) * (v - mean)
	}
	variance /= float64(len(values))

	agreement := 1.0 - variance/norm
	if agreement < 0 {
		return 0
	}
	return agreement
}

// OverallConfidence combines the mean per-model confidence (70%) with the
// agreement score (30%) into an integer in [0,100].
func OverallConfidence(results []AnalysisResult, agreement float64) int {
	var sum float64
	var n int
	for _, r := range results {
		if r.Succeeded() {
			sum += r.Confidence
			n++
		}
	}
	if n == 0 {
		return 0
	}
	meanConf := sum / float64(n)

	// Integer weights keep the blend exact: 0.7*85 is 59.4999... in
	// float64 and would round 59.5 cases down.
	overall := int(math.Round((70*meanConf + 30*agreement*100) / 100))
	if overall < 0 {
		return 0
	}
	if overall > 100 {
		return 100
	}
	return overall
}
