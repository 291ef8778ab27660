package report

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// Parse coerces raw model output text into a Report. The policy is
// deliberately lenient: missing fields default to zero values, numeric fields
// accept strings with commas or currency symbols, scores outside [300,850]
// are dropped rather than clamped, and collection entries lacking an
// identifying key (creditor, type) are filtered out entirely. Only a response
// that is not a JSON object at all produces an error.
func Parse(raw string) (*Report, error) {
	cleaned := cleanJSON(raw)

	var m map[string]any
	if err := json.Unmarshal([]byte(cleaned), &m); err != nil {
		return nil, eris.Wrap(err, "report: parse response")
	}

	rep := &Report{}
	if pi, ok := m["personal_info"].(map[string]any); ok {
		rep.PersonalInfo = parsePersonalInfo(pi)
	}
	if scores, ok := m["credit_scores"].(map[string]any); ok {
		rep.Scores = parseScores(scores)
	}
	if accounts, ok := m["accounts"].([]any); ok {
		rep.Accounts = parseAccounts(accounts)
	}
	if items, ok := m["negative_items"].([]any); ok {
		rep.NegativeItems = parseNegativeItems(items)
	}
	if inquiries, ok := m["inquiries"].([]any); ok {
		rep.Inquiries = parseInquiries(inquiries)
	}
	if records, ok := m["public_records"].([]any); ok {
		rep.PublicRecords = parsePublicRecords(records)
	}

	return rep, nil
}

func parsePersonalInfo(m map[string]any) PersonalInfo {
	return PersonalInfo{
		Name:        asString(m["name"]),
		Address:     asString(m["address"]),
		SSN:         asString(m["ssn"]),
		DateOfBirth: asString(m["date_of_birth"]),
		Confidence:  asFloat(m["confidence"]),
	}
}

// parseScores keeps only entries with a value inside [ScoreMin, ScoreMax].
// Entries may be bare numbers or objects with value/date/confidence keys.
func parseScores(m map[string]any) map[string]ScoreEntry {
	scores := make(map[string]ScoreEntry)
	for bureau, v := range m {
		key := strings.ToLower(strings.TrimSpace(bureau))
		if key == "" {
			continue
		}

		var entry ScoreEntry
		switch sv := v.(type) {
		case map[string]any:
			val := asFloat(sv["value"])
			if val == 0 {
				val = asFloat(sv["score"])
			}
			entry = ScoreEntry{
				Value:      int(val),
				Date:       asString(sv["date"]),
				Confidence: asFloat(sv["confidence"]),
			}
		default:
			entry = ScoreEntry{Value: int(asFloat(v))}
		}

		if entry.Value < ScoreMin || entry.Value > ScoreMax {
			continue
		}
		scores[key] = entry
	}
	if len(scores) == 0 {
		return nil
	}
	return scores
}

func parseAccounts(items []any) []Account {
	var accounts []Account
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		acct := Account{
			CreditorName:  asString(m["creditor_name"]),
			AccountNumber: asString(m["account_number"]),
			AccountType:   asString(m["account_type"]),
			Balance:       asFloat(m["balance"]),
			CreditLimit:   asFloat(m["credit_limit"]),
			Status:        asString(m["status"]),
		}
		if history, ok := m["payment_history"].([]any); ok {
			for _, h := range history {
				if s := asString(h); s != "" {
					acct.PaymentHistory = append(acct.PaymentHistory, s)
				}
			}
		}
		if acct.CreditorName == "" {
			continue
		}
		accounts = append(accounts, acct)
	}
	return accounts
}

func parseNegativeItems(items []any) []NegativeItem {
	var negatives []NegativeItem
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		ni := NegativeItem{
			Type:         asString(m["type"]),
			CreditorName: asString(m["creditor_name"]),
			Amount:       asFloat(m["amount"]),
			Date:         asString(m["date"]),
			Status:       asString(m["status"]),
			ImpactScore:  asFloat(m["impact_score"]),
		}
		if ni.Type == "" && ni.CreditorName == "" {
			continue
		}
		negatives = append(negatives, ni)
	}
	return negatives
}

func parseInquiries(items []any) []Inquiry {
	var inquiries []Inquiry
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		inq := Inquiry{
			CreditorName: asString(m["creditor_name"]),
			Date:         asString(m["date"]),
			Type:         asString(m["type"]),
		}
		if inq.CreditorName == "" {
			// Gemini-style output uses "company" for inquiry creditors.
			inq.CreditorName = asString(m["company"])
		}
		if inq.CreditorName == "" {
			continue
		}
		inquiries = append(inquiries, inq)
	}
	return inquiries
}

func parsePublicRecords(items []any) []PublicRecord {
	var records []PublicRecord
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		pr := PublicRecord{
			Type:   asString(m["type"]),
			Date:   asString(m["date"]),
			Amount: asFloat(m["amount"]),
			Status: asString(m["status"]),
		}
		if pr.Type == "" {
			continue
		}
		records = append(records, pr)
	}
	return records
}

// cleanJSON strips markdown fences and extracts the outermost JSON object.
func cleanJSON(text string) string {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "```json") {
		text = strings.TrimPrefix(text, "```json")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	} else if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		text = text[start : end+1]
	}

	return strings.TrimSpace(text)
}

func asString(v any) string {
	switch s := v.(type) {
	case string:
		return strings.TrimSpace(s)
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	default:
		return ""
	}
}

// asFloat converts numbers and numeric strings (commas and $ tolerated) to
// float64, defaulting to 0 on failure.
func asFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case string:
		cleaned := strings.ReplaceAll(n, ",", "")
		cleaned = strings.TrimPrefix(strings.TrimSpace(cleaned), "$")
		f, err := strconv.ParseFloat(cleaned, 64)
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}
