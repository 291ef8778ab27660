package consensus

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/clearfile/credit-cli/internal/report"
	"github.com/clearfile/credit-cli/internal/resilience"
)

// extractionPrompt is the fixed schema description shared by all variants.
// The variant suffix is appended to steer each model's emphasis.
const extractionPrompt = `You are a credit report analyst extracting structured data from report text.

Extract the following into a JSON object:
- "personal_info": {"name", "ssn" (XXX-XX-XXXX), "address", "date_of_birth" (YYYY-MM-DD)}
- "credit_scores": map of bureau ("experian", "equifax", "transunion") to {"value" (300-850), "date" (YYYY-MM-DD)}
- "accounts": [{"creditor_name", "account_number" (last 4 if masked), "account_type", "balance", "credit_limit", "status", "payment_history"}]
- "negative_items": [{"type", "creditor_name", "amount", "date", "status", "impact_score"}]
- "inquiries": [{"creditor_name", "date"}]
- "public_records": [{"type", "date", "amount", "status"}]

Use empty strings for missing text fields and 0 for missing numbers. All dates YYYY-MM-DD.
Return ONLY the JSON object.
%s

Credit report text:
%s`

// variantInstructions steers each model configuration toward a different
// failure mode, so their disagreements are informative.
var variantInstructions = map[Variant]string{
	VariantCompleteness:    "Prioritize completeness: extract every account, inquiry, and item you can find, even when partially legible.",
	VariantCrossValidation: "Cross-validate before output: only include values that are consistent across mentions in the text, and prefer omitting a field over guessing.",
	VariantErrorFlagging:   "Watch for reporting errors: extract data exactly as printed even when it looks wrong (inconsistent balances, impossible dates), so discrepancies survive into the output.",
}

// minDocumentChars is the input-length threshold above which the document is
// considered substantial enough to support a full extraction.
const defaultMinDocumentChars = 500

// Invoker runs a single model invocation: prompt, completion call, parse,
// per-model confidence. Stateless across invocations.
type Invoker struct {
	completers       map[string]TextCompleter // keyed by provider
	limiter          *rate.Limiter
	maxTokens        int64
	minDocumentChars int
}

// NewInvoker creates an Invoker over the given provider completers. The
// limiter spans all providers; pass nil to disable rate limiting.
func NewInvoker(completers map[string]TextCompleter, limiter *rate.Limiter, maxTokens int64, minDocumentChars int) *Invoker {
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	if minDocumentChars <= 0 {
		minDocumentChars = defaultMinDocumentChars
	}
	return &Invoker{
		completers:       completers,
		limiter:          limiter,
		maxTokens:        maxTokens,
		minDocumentChars: minDocumentChars,
	}
}

// Invoke runs one model against the document text. It never returns an error:
// transport and parse failures come back as a result with Confidence 0 and a
// non-empty Errors list, which the engine treats the same as any other
// low-confidence result.
func (iv *Invoker) Invoke(ctx context.Context, documentText string, mc ModelConfig) AnalysisResult {
	start := time.Now()
	result := AnalysisResult{ModelName: mc.Name}

	fail := func(msg string) AnalysisResult {
		result.Errors = append(result.Errors, msg)
		result.Duration = time.Since(start)
		return result
	}

	completer, ok := iv.completers[mc.Provider]
	if !ok {
		return fail(fmt.Sprintf("no completer for provider %q", mc.Provider))
	}

	if iv.limiter != nil {
		if err := iv.limiter.Wait(ctx); err != nil {
			return fail("rate limiter: " + err.Error())
		}
	}

	prompt := fmt.Sprintf(extractionPrompt, variantInstructions[mc.Variant], documentText)

	// Transient provider failures (throttling, 5xx) are retried with backoff;
	// anything else fails the invocation on the first attempt.
	callStart := time.Now()
	completion, err := resilience.Do(ctx, resilience.Config{
		OnRetry: resilience.RetryLogger(mc.Name),
	}, func(ctx context.Context) (*Completion, error) {
		return completer.Complete(ctx, CompletionRequest{
			Model:       mc.Model,
			Prompt:      prompt,
			Temperature: mc.Temperature,
			MaxTokens:   iv.maxTokens,
		})
	})
	latency := time.Since(callStart)
	if err != nil {
		return fail("completion: " + err.Error())
	}

	rep, err := report.Parse(completion.Text)
	if err != nil {
		// No retry on parse failure: the result is simply a failed model.
		result.LatencyMS = latency.Milliseconds()
		result.ModelVersion = completion.ModelVersion
		return fail("parse: " + err.Error())
	}

	result.Report = rep
	result.Confidence = iv.scoreConfidence(rep, len(documentText))
	result.ModelVersion = completion.ModelVersion
	result.LatencyMS = latency.Milliseconds()
	result.Duration = time.Since(start)
	return result
}

// scoreConfidence computes the per-model confidence in [0,100] as a weighted
// presence check over the extracted domains plus a completeness fraction.
func (iv *Invoker) scoreConfidence(rep *report.Report, documentChars int) float64 {
	var score float64
	if rep.PersonalInfo.Name != "" {
		score += 20
	}
	if len(rep.Scores) > 0 {
		score += 25
	}
	if len(rep.Accounts) > 0 {
		score += 20
	}
	if len(rep.NegativeItems) > 0 {
		score += 15
	}
	if documentChars > iv.minDocumentChars {
		score += 10
	}
	score += 10 * rep.Completeness()

	if score > 100 {
		score = 100
	}
	return score
}
