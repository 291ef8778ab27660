package consensus

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"golang.org/x/text/cases"

	"github.com/clearfile/credit-cli/internal/report"
)

// Identity field confidence constants: a value backed by a cross-model
// majority is trusted more than a first-non-empty fallback.
const (
	identityMajorityConfidence = 0.9
	identitySplitConfidence    = 0.6
	scoreMultiModelConfidence  = 0.9
	scoreSingleModelConfidence = 0.7
)

// Reconciler merges successful partial reports into one consensus report.
// Deterministic and order-independent: results are first sorted into a
// canonical order (model weight descending, then name), so tie-breaks like
// "first non-empty value" do not depend on completion order.
type Reconciler struct {
	weights map[string]float64
	fold    cases.Caser
}

// NewReconciler creates a Reconciler using the model weights for tie-breaks.
func NewReconciler(models []ModelConfig) *Reconciler {
	weights := make(map[string]float64, len(models))
	for _, m := range models {
		weights[m.Name] = m.Weight
	}
	return &Reconciler{weights: weights, fold: cases.Fold()}
}

// Reconciled bundles the consensus report with its conflict log and the
// per-domain model contributor sets.
type Reconciled struct {
	Report       *report.ConsensusReport
	Conflicts    []ConflictResolution
	Contributors map[string][]string
}

// Reconcile merges the successful results into a single consensus report.
// Callers must pass only results with Confidence > 0 and a non-nil Report.
func (rc *Reconciler) Reconcile(results []AnalysisResult) *Reconciled {
	ordered := rc.canonicalOrder(results)

	out := &Reconciled{
		Report: &report.ConsensusReport{
			FieldConfidence: make(map[string]float64),
		},
		Contributors: make(map[string][]string),
	}

	rc.reconcileIdentity(ordered, out)
	rc.reconcileScores(ordered, out)
	rc.reconcileAccounts(ordered, out)
	rc.reconcileNegativeItems(ordered, out)
	rc.reconcileInquiries(ordered, out)
	rc.reconcilePublicRecords(ordered, out)

	out.Report.Quality = rc.qualityMetrics(ordered, out)
	return out
}

// canonicalOrder returns a copy of results sorted by weight descending, then
// model name ascending. All "first encountered" tie-breaks below operate on
// this order, which makes reconciliation independent of completion order.
func (rc *Reconciler) canonicalOrder(results []AnalysisResult) []AnalysisResult {
	ordered := make([]AnalysisResult, len(results))
	copy(ordered, results)
	sort.SliceStable(ordered, func(i, j int) bool {
		wi, wj := rc.weights[ordered[i].ModelName], rc.weights[ordered[j].ModelName]
		if wi != wj {
			return wi > wj
		}
		return ordered[i].ModelName < ordered[j].ModelName
	})
	return ordered
}

// identityCandidate is one model's value for a single identity field.
type identityCandidate struct {
	model      string
	value      string
	confidence float64
}

func (rc *Reconciler) reconcileIdentity(ordered []AnalysisResult, out *Reconciled) {
	fields := []struct {
		path string
		get  func(*report.Report) string
		set  func(*report.ConsensusReport, string)
	}{
		{"personal_info.name", func(r *report.Report) string { return r.PersonalInfo.Name },
			func(c *report.ConsensusReport, v string) { c.PersonalInfo.Name = v }},
		{"personal_info.address", func(r *report.Report) string { return r.PersonalInfo.Address },
			func(c *report.ConsensusReport, v string) { c.PersonalInfo.Address = v }},
		{"personal_info.ssn", func(r *report.Report) string { return r.PersonalInfo.SSN },
			func(c *report.ConsensusReport, v string) { c.PersonalInfo.SSN = v }},
		{"personal_info.date_of_birth", func(r *report.Report) string { return r.PersonalInfo.DateOfBirth },
			func(c *report.ConsensusReport, v string) { c.PersonalInfo.DateOfBirth = v }},
	}

	contributors := map[string]bool{}
	for _, f := range fields {
		var candidates []identityCandidate
		for _, res := range ordered {
			v := f.get(res.Report)
			if v == "" {
				continue
			}
			candidates = append(candidates, identityCandidate{res.ModelName, v, res.Confidence})
			contributors[res.ModelName] = true
		}
		if len(candidates) == 0 {
			continue
		}

		value, conf, method := rc.resolveIdentity(candidates)
		f.set(out.Report, value)
		out.Report.FieldConfidence[f.path] = conf

		if distinctFoldedValues(rc.fold, candidates) > 1 {
			cands := make([]Candidate, len(candidates))
			for i, c := range candidates {
				cands[i] = Candidate{Model: c.model, Value: c.value, Confidence: c.confidence}
			}
			out.Conflicts = append(out.Conflicts, ConflictResolution{
				FieldPath:  f.path,
				Candidates: cands,
				Resolved:   value,
				Method:     method,
				Confidence: conf,
			})
		}
	}

	// Name and address carry a fixed high confidence whenever present.
	if out.Report.PersonalInfo.Name != "" || out.Report.PersonalInfo.Address != "" {
		out.Report.PersonalInfo.Confidence = identityMajorityConfidence
	}
	out.Contributors["personal_info"] = sortedKeys(contributors)
}

// resolveIdentity applies the identity merge rule: most frequent value wins
// (case-insensitive counting); when all values are distinct the first one in
// canonical order wins at reduced confidence.
func (rc *Reconciler) resolveIdentity(candidates []identityCandidate) (string, float64, ResolutionMethod) {
	counts := make(map[string]int)
	first := make(map[string]string) // folded -> first original casing
	for _, c := range candidates {
		key := rc.fold.String(c.value)
		counts[key]++
		if _, ok := first[key]; !ok {
			first[key] = c.value
		}
	}

	bestKey := ""
	bestCount := 0
	for _, c := range candidates { // canonical order decides ties
		key := rc.fold.String(c.value)
		if counts[key] > bestCount {
			bestKey = key
			bestCount = counts[key]
		}
	}

	if bestCount > 1 {
		return first[bestKey], identityMajorityConfidence, MethodMajorityVote
	}
	return candidates[0].value, identitySplitConfidence, MethodHighestConfidence
}

func (rc *Reconciler) reconcileScores(ordered []AnalysisResult, out *Reconciled) {
	type scoreSample struct {
		model string
		entry report.ScoreEntry
	}
	byBureau := make(map[string][]scoreSample)
	contributors := map[string]bool{}

	for _, res := range ordered {
		for bureau, entry := range res.Report.Scores {
			if entry.Value < report.ScoreMin || entry.Value > report.ScoreMax {
				continue
			}
			key := rc.fold.String(bureau)
			byBureau[key] = append(byBureau[key], scoreSample{res.ModelName, entry})
			contributors[res.ModelName] = true
		}
	}
	if len(byBureau) == 0 {
		out.Contributors["credit_scores"] = []string{}
		return
	}

	out.Report.Scores = make(map[string]report.ScoreEntry, len(byBureau))
	for _, bureau := range sortedMapKeys(byBureau) {
		samples := byBureau[bureau]

		sum := 0
		maxDate := ""
		distinct := make(map[int]bool)
		for _, s := range samples {
			sum += s.entry.Value
			distinct[s.entry.Value] = true
			if s.entry.Date > maxDate {
				maxDate = s.entry.Date
			}
		}
		mean := int(math.Round(float64(sum) / float64(len(samples))))

		conf := scoreSingleModelConfidence
		if len(samples) > 1 {
			conf = scoreMultiModelConfidence
		}
		out.Report.Scores[bureau] = report.ScoreEntry{
			Value:      mean,
			Date:       maxDate,
			Confidence: conf,
		}
		out.Report.FieldConfidence["credit_scores."+bureau] = conf

		if len(distinct) > 1 {
			cands := make([]Candidate, len(samples))
			for i, s := range samples {
				cands[i] = Candidate{Model: s.model, Value: s.entry.Value, Confidence: s.entry.Confidence}
			}
			out.Conflicts = append(out.Conflicts, ConflictResolution{
				FieldPath:  "credit_scores." + bureau,
				Candidates: cands,
				Resolved:   mean,
				Method:     MethodWeightedAverage,
				Confidence: conf,
			})
		}
	}
	out.Contributors["credit_scores"] = sortedKeys(contributors)
}

// accountSample pairs one model's view of an account with its origin.
type accountSample struct {
	model string
	acct  report.Account
}

func (rc *Reconciler) reconcileAccounts(ordered []AnalysisResult, out *Reconciled) {
	groups := make(map[string][]accountSample)
	contributors := map[string]bool{}

	for _, res := range ordered {
		for _, acct := range res.Report.Accounts {
			key := rc.fold.String(acct.CreditorName) + "|" + acct.AccountNumber
			groups[key] = append(groups[key], accountSample{res.ModelName, acct})
			contributors[res.ModelName] = true
		}
	}

	for _, key := range sortedMapKeys(groups) {
		samples := groups[key]
		merged := samples[0].acct // structural template: first in canonical order

		balances := make([]float64, len(samples))
		limits := make([]float64, len(samples))
		statuses := make([]string, len(samples))
		types := make([]string, len(samples))
		for i, s := range samples {
			balances[i] = s.acct.Balance
			limits[i] = s.acct.CreditLimit
			statuses[i] = s.acct.Status
			types[i] = s.acct.AccountType
		}

		merged.Balance = roundMean(balances)
		merged.CreditLimit = roundMean(limits)
		merged.Status = rc.mostFrequent(statuses)
		merged.AccountType = rc.mostFrequent(types)

		if distinct(balances) > 1 {
			out.Conflicts = append(out.Conflicts, ConflictResolution{
				FieldPath:  fmt.Sprintf("accounts[%s].balance", key),
				Candidates: accountCandidates(samples, func(a report.Account) any { return a.Balance }),
				Resolved:   merged.Balance,
				Method:     MethodWeightedAverage,
				Confidence: scoreMultiModelConfidence,
			})
		}
		if distinctStrings(statuses) > 1 {
			out.Conflicts = append(out.Conflicts, ConflictResolution{
				FieldPath:  fmt.Sprintf("accounts[%s].status", key),
				Candidates: accountCandidates(samples, func(a report.Account) any { return a.Status }),
				Resolved:   merged.Status,
				Method:     MethodMajorityVote,
				Confidence: scoreMultiModelConfidence,
			})
		}

		out.Report.Accounts = append(out.Report.Accounts, merged)
	}
	out.Contributors["accounts"] = sortedKeys(contributors)
}

func accountCandidates(samples []accountSample, get func(report.Account) any) []Candidate {
	cands := make([]Candidate, len(samples))
	for i, s := range samples {
		cands[i] = Candidate{Model: s.model, Value: get(s.acct)}
	}
	return cands
}

func (rc *Reconciler) reconcileNegativeItems(ordered []AnalysisResult, out *Reconciled) {
	type itemSample struct {
		model string
		item  report.NegativeItem
	}
	groups := make(map[string][]itemSample)
	contributors := map[string]bool{}

	for _, res := range ordered {
		for _, item := range res.Report.NegativeItems {
			key := rc.fold.String(item.CreditorName) + "|" + rc.fold.String(item.Type)
			groups[key] = append(groups[key], itemSample{res.ModelName, item})
			contributors[res.ModelName] = true
		}
	}

	for _, key := range sortedMapKeys(groups) {
		samples := groups[key]
		merged := samples[0].item

		amounts := make([]float64, len(samples))
		impacts := make([]float64, len(samples))
		statuses := make([]string, len(samples))
		for i, s := range samples {
			amounts[i] = s.item.Amount
			impacts[i] = s.item.ImpactScore
			statuses[i] = s.item.Status
		}
		merged.Amount = roundMean(amounts)
		merged.ImpactScore = roundMean(impacts)
		merged.Status = rc.mostFrequent(statuses)

		out.Report.NegativeItems = append(out.Report.NegativeItems, merged)
	}
	out.Contributors["negative_items"] = sortedKeys(contributors)
}

func (rc *Reconciler) reconcileInquiries(ordered []AnalysisResult, out *Reconciled) {
	seen := make(map[string]bool)
	contributors := map[string]bool{}
	var keys []string
	byKey := make(map[string]report.Inquiry)

	for _, res := range ordered {
		for _, inq := range res.Report.Inquiries {
			key := rc.fold.String(inq.CreditorName) + "|" + inq.Date
			contributors[res.ModelName] = true
			if seen[key] {
				continue
			}
			seen[key] = true
			keys = append(keys, key)
			byKey[key] = inq
		}
	}

	sort.Strings(keys)
	for _, key := range keys {
		out.Report.Inquiries = append(out.Report.Inquiries, byKey[key])
	}
	out.Contributors["inquiries"] = sortedKeys(contributors)
}

func (rc *Reconciler) reconcilePublicRecords(ordered []AnalysisResult, out *Reconciled) {
	seen := make(map[string]bool)
	contributors := map[string]bool{}
	var keys []string
	byKey := make(map[string]report.PublicRecord)

	for _, res := range ordered {
		for _, pr := range res.Report.PublicRecords {
			key := rc.fold.String(pr.Type) + "|" + pr.Date
			contributors[res.ModelName] = true
			if seen[key] {
				continue
			}
			seen[key] = true
			keys = append(keys, key)
			byKey[key] = pr
		}
	}

	sort.Strings(keys)
	for _, key := range keys {
		out.Report.PublicRecords = append(out.Report.PublicRecords, byKey[key])
	}
	out.Contributors["public_records"] = sortedKeys(contributors)
}

// qualityMetrics derives the consensus quality summary: completeness from the
// populated domains, accuracy from mean model confidence, consistency from
// the conflict rate over compared fields.
func (rc *Reconciler) qualityMetrics(ordered []AnalysisResult, out *Reconciled) report.QualityMetrics {
	var confSum float64
	for _, res := range ordered {
		confSum += res.Confidence
	}
	accuracy := 0.0
	if len(ordered) > 0 {
		accuracy = confSum / float64(len(ordered)) / 100.0
	}

	compared := len(out.Report.FieldConfidence) + len(out.Report.Accounts)
	consistency := 1.0
	if compared > 0 {
		consistency = 1.0 - float64(len(out.Conflicts))/float64(compared)
		if consistency < 0 {
			consistency = 0
		}
	}

	return report.QualityMetrics{
		Completeness: out.Report.Completeness(),
		Accuracy:     accuracy,
		Consistency:  consistency,
	}
}

// mostFrequent returns the most frequent non-empty value, breaking ties by
// first appearance in the given (canonical) order.
func (rc *Reconciler) mostFrequent(values []string) string {
	counts := make(map[string]int)
	for _, v := range values {
		if v == "" {
			continue
		}
		counts[rc.fold.String(v)]++
	}

	best := ""
	bestCount := 0
	for _, v := range values {
		if v == "" {
			continue
		}
		if c := counts[rc.fold.String(v)]; c > bestCount {
			best = v
			bestCount = c
		}
	}
	return best
}

func distinctFoldedValues(fold cases.Caser, candidates []identityCandidate) int {
	set := make(map[string]bool)
	for _, c := range candidates {
		set[fold.String(c.value)] = true
	}
	return len(set)
}

func roundMean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return math.Round(sum / float64(len(values)))
}

func distinct(values []float64) int {
	set := make(map[float64]bool)
	for _, v := range values {
		set[v] = true
	}
	return len(set)
}

func distinctStrings(values []string) int {
	set := make(map[string]bool)
	for _, v := range values {
		if v != "" {
			set[strings.ToLower(v)] = true
		}
	}
	return len(set)
}

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedMapKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
