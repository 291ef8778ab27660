// Package validate audits a reconciled credit report for reporting errors
// and likely FCRA violations using rule-based checks.
package validate

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/clearfile/credit-cli/internal/report"
)

// Severity grades a detected issue.
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// Issue is one detected reporting problem.
type Issue struct {
	Type            string   `json:"type"`
	Severity        Severity `json:"severity"`
	Title           string   `json:"title"`
	Description     string   `json:"description"`
	AffectedAccount string   `json:"affected_account,omitempty"`
	LegalBasis      string   `json:"legal_basis,omitempty"`
}

// Findings is the full audit output for one consensus report.
type Findings struct {
	OverallScore    int            `json:"overall_score"` // 0..100, higher is cleaner
	DomainScores    map[string]int `json:"domain_scores"`
	Issues          []Issue        `json:"issues,omitempty"`
	Recommendations []string       `json:"recommendations,omitempty"`
}

// severityPenalty is the score deduction per issue of each severity.
var severityPenalty = map[Severity]int{
	SeverityLow:      3,
	SeverityMedium:   8,
	SeverityHigh:     15,
	SeverityCritical: 25,
}

var ssnPattern = regexp.MustCompile(`^(\d{3}|[Xx*]{3})-(\d{2}|[Xx*]{2})-\d{4}$`)

// obsolescenceYears is how long most negative items may legally remain on a
// report (FCRA §605 allows seven years for most derogatory entries).
const obsolescenceYears = 7

// Auditor runs the rule set against consensus reports. The zero value is not
// usable; construct with NewAuditor.
type Auditor struct {
	now func() time.Time
}

// NewAuditor creates a rule-based report auditor.
func NewAuditor() *Auditor {
	return &Auditor{now: time.Now}
}

// Validate audits the report. The document text is accepted for interface
// compatibility but the rule set operates on the structured report alone.
func (a *Auditor) Validate(ctx context.Context, documentText string, rep *report.ConsensusReport) (*Findings, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if rep == nil {
		return &Findings{OverallScore: 0, DomainScores: map[string]int{}}, nil
	}

	var issues []Issue
	issues = append(issues, a.checkPersonalInfo(rep)...)
	issues = append(issues, a.checkAccounts(rep)...)
	issues = append(issues, a.checkNegativeItems(rep)...)
	issues = append(issues, a.checkDuplicates(rep)...)

	f := &Findings{
		Issues:       issues,
		DomainScores: a.domainScores(issues),
	}
	f.OverallScore = overallScore(issues)
	f.Recommendations = recommendations(issues)

	zap.L().Debug("report audit complete",
		zap.Int("issues", len(issues)),
		zap.Int("overall_score", f.OverallScore))
	return f, nil
}

func (a *Auditor) checkPersonalInfo(rep *report.ConsensusReport) []Issue {
	var issues []Issue
	pi := rep.PersonalInfo

	if pi.Name == "" {
		issues = append(issues, Issue{
			Type:        "missing_personal_info",
			Severity:    SeverityMedium,
			Title:       "Missing consumer name",
			Description: "No consumer name could be extracted from the report.",
		})
	}
	if pi.SSN != "" && !ssnPattern.MatchString(pi.SSN) {
		issues = append(issues, Issue{
			Type:        "malformed_ssn",
			Severity:    SeverityHigh,
			Title:       "Malformed SSN",
			Description: fmt.Sprintf("SSN %q does not match the expected XXX-XX-XXXX format.", pi.SSN),
			LegalBasis:  "FCRA §607(b) - reasonable procedures to assure accuracy",
		})
	}
	return issues
}

func (a *Auditor) checkAccounts(rep *report.ConsensusReport) []Issue {
	var issues []Issue
	for _, acct := range rep.Accounts {
		label := accountLabel(acct)

		if acct.Balance == 0 && isDerogatoryStatus(acct.Status) {
			issues = append(issues, Issue{
				Type:            "zero_balance_derogatory",
				Severity:        SeverityHigh,
				Title:           "Derogatory status on zero-balance account",
				Description:     fmt.Sprintf("Account %s reports status %q with a zero balance, which commonly indicates a paid account still reported as delinquent.", label, acct.Status),
				AffectedAccount: label,
				LegalBasis:      "FCRA §623(a)(2) - duty to correct and update information",
			})
		}
		if acct.CreditLimit > 0 && acct.Balance > acct.CreditLimit {
			issues = append(issues, Issue{
				Type:            "balance_exceeds_limit",
				Severity:        SeverityMedium,
				Title:           "Balance exceeds credit limit",
				Description:     fmt.Sprintf("Account %s reports a balance of %.2f against a limit of %.2f.", label, acct.Balance, acct.CreditLimit),
				AffectedAccount: label,
			})
		}
		if acct.AccountNumber == "" {
			issues = append(issues, Issue{
				Type:            "missing_account_number",
				Severity:        SeverityLow,
				Title:           "Missing account number",
				Description:     fmt.Sprintf("Account %s has no account number, which complicates dispute filing.", label),
				AffectedAccount: label,
			})
		}
	}
	return issues
}

func (a *Auditor) checkNegativeItems(rep *report.ConsensusReport) []Issue {
	cutoff := a.now().AddDate(-obsolescenceYears, 0, 0).Format("2006-01-02")

	var issues []Issue
	for _, item := range rep.NegativeItems {
		if item.Date == "" || item.Date >= cutoff {
			continue
		}
		if strings.Contains(strings.ToLower(item.Type), "bankruptcy") {
			// Chapter 7 bankruptcies may remain for ten years.
			continue
		}
		issues = append(issues, Issue{
			Type:            "obsolete_negative_item",
			Severity:        SeverityCritical,
			Title:           "Negative item past reporting period",
			Description:     fmt.Sprintf("%s from %s (%s) is older than %d years and should no longer appear on the report.", item.Type, item.CreditorName, item.Date, obsolescenceYears),
			AffectedAccount: item.CreditorName,
			LegalBasis:      "FCRA §605(a) - obsolete information",
		})
	}
	return issues
}

func (a *Auditor) checkDuplicates(rep *report.ConsensusReport) []Issue {
	seen := make(map[string]bool)
	var issues []Issue
	for _, acct := range rep.Accounts {
		key := strings.ToLower(acct.CreditorName) + "|" + acct.AccountNumber
		if acct.AccountNumber != "" && seen[key] {
			label := accountLabel(acct)
			issues = append(issues, Issue{
				Type:            "duplicate_account",
				Severity:        SeverityHigh,
				Title:           "Duplicate account entry",
				Description:     fmt.Sprintf("Account %s appears more than once, which can double-count the debt.", label),
				AffectedAccount: label,
				LegalBasis:      "FCRA §623(a)(1) - prohibition on reporting inaccurate information",
			})
		}
		seen[key] = true
	}
	return issues
}

// domainScores buckets issues per report domain and converts each bucket to
// a 0..100 cleanliness score.
func (a *Auditor) domainScores(issues []Issue) map[string]int {
	domains := map[string][]Issue{
		"personal_info":  nil,
		"accounts":       nil,
		"negative_items": nil,
	}
	for _, issue := range issues {
		switch issue.Type {
		case "missing_personal_info", "malformed_ssn":
			domains["personal_info"] = append(domains["personal_info"], issue)
		case "obsolete_negative_item":
			domains["negative_items"] = append(domains["negative_items"], issue)
		default:
			domains["accounts"] = append(domains["accounts"], issue)
		}
	}

	scores := make(map[string]int, len(domains))
	for domain, ds := range domains {
		scores[domain] = overallScore(ds)
	}
	return scores
}

func overallScore(issues []Issue) int {
	score := 100
	for _, issue := range issues {
		score -= severityPenalty[issue.Severity]
	}
	if score < 0 {
		return 0
	}
	return score
}

func recommendations(issues []Issue) []string {
	var recs []string
	seen := make(map[string]bool)
	add := func(r string) {
		if !seen[r] {
			seen[r] = true
			recs = append(recs, r)
		}
	}

	for _, issue := range issues {
		switch issue.Type {
		case "obsolete_negative_item":
			add("Dispute obsolete negative items with each bureau citing FCRA §605(a).")
		case "zero_balance_derogatory":
			add("Request status correction for paid accounts still reported as delinquent.")
		case "duplicate_account":
			add("Dispute duplicate tradelines to avoid double-counted debt.")
		case "malformed_ssn":
			add("Verify identity details with the bureau; mismatched SSNs can indicate a mixed file.")
		}
	}
	return recs
}

func accountLabel(acct report.Account) string {
	if acct.AccountNumber != "" {
		return fmt.Sprintf("%s (...%s)", acct.CreditorName, acct.AccountNumber)
	}
	return acct.CreditorName
}

func isDerogatoryStatus(status string) bool {
	s := strings.ToLower(status)
	for _, marker := range []string{"late", "delinquent", "charge", "collection", "default", "past due"} {
		if strings.Contains(s, marker) {
			return true
		}
	}
	return false
}
