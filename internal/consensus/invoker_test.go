package consensus

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

// fakeCompleter returns canned completions keyed by model ID, or a fixed
// error when err is set.
type fakeCompleter struct {
	text    string
	err     error
	delay   time.Duration
	lastReq CompletionRequest
}

func (f *fakeCompleter) Complete(ctx context.Context, req CompletionRequest) (*Completion, error) {
	f.lastReq = req
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return &Completion{Text: f.text, ModelVersion: req.Model + "-v1"}, nil
}

const sampleCompletion = `{
	"personal_info": {"name": "John Doe", "address": "123 Main St"},
	"credit_scores": {"experian": {"value": 720, "date": "2026-07-01"}},
	"accounts": [{"creditor_name": "Chase", "account_number": "1234", "balance": 1500}],
	"negative_items": [{"type": "late_payment", "creditor_name": "Chase"}]
}`

func testModelConfig() ModelConfig {
	return ModelConfig{
		Name:     "claude-completeness",
		Provider: "anthropic",
		Model:    "test-model",
		Weight:   0.35,
		Variant:  VariantCompleteness,
		Enabled:  true,
	}
}

func TestInvokeSuccess(t *testing.T) {
	fake := &fakeCompleter{text: sampleCompletion}
	iv := NewInvoker(map[string]TextCompleter{"anthropic": fake}, nil, 4096, 500)

	doc := strings.Repeat("credit report line\n", 100) // > 500 chars
	result := iv.Invoke(context.Background(), doc, testModelConfig())

	require.True(t, result.Succeeded())
	require.NotNil(t, result.Report)
	assert.Empty(t, result.Errors)
	assert.Equal(t, "John Doe", result.Report.PersonalInfo.Name)
	assert.Equal(t, "test-model-v1", result.ModelVersion)

	// name 20 + scores 25 + accounts 20 + negatives 15 + length 10
	// + completeness 10*(4/6)
	assert.InDelta(t, 90+10.0*4.0/6.0, result.Confidence, 0.01)

	assert.Contains(t, fake.lastReq.Prompt, "Prioritize completeness")
	assert.Contains(t, fake.lastReq.Prompt, doc)
}

func TestInvokeParseFailure(t *testing.T) {
	fake := &fakeCompleter{text: "I could not find a credit report in this document."}
	iv := NewInvoker(map[string]TextCompleter{"anthropic": fake}, nil, 4096, 500)

	result := iv.Invoke(context.Background(), "short doc", testModelConfig())

	assert.False(t, result.Succeeded())
	assert.Zero(t, result.Confidence)
	require.NotEmpty(t, result.Errors)
	assert.Contains(t, result.Errors[0], "parse")
}

func TestInvokeTransportFailure(t *testing.T) {
	fake := &fakeCompleter{err: eris.New("connection refused")}
	iv := NewInvoker(map[string]TextCompleter{"anthropic": fake}, nil, 4096, 500)

	result := iv.Invoke(context.Background(), "doc", testModelConfig())

	assert.False(t, result.Succeeded())
	require.NotEmpty(t, result.Errors)
	assert.Contains(t, result.Errors[0], "completion")
	assert.Contains(t, result.Errors[0], "connection refused")
}

func TestInvokeUnknownProvider(t *testing.T) {
	iv := NewInvoker(map[string]TextCompleter{}, nil, 4096, 500)

	result := iv.Invoke(context.Background(), "doc", testModelConfig())

	assert.False(t, result.Succeeded())
	require.NotEmpty(t, result.Errors)
	assert.Contains(t, result.Errors[0], "no completer")
}

func TestInvokeContextTimeout(t *testing.T) {
	fake := &fakeCompleter{text: sampleCompletion, delay: time.Second}
	iv := NewInvoker(map[string]TextCompleter{"anthropic": fake}, nil, 4096, 500)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	result := iv.Invoke(ctx, "doc", testModelConfig())

	assert.False(t, result.Succeeded())
	require.NotEmpty(t, result.Errors)
}

func TestInvokeRateLimited(t *testing.T) {
	fake := &fakeCompleter{text: sampleCompletion}
	limiter := rate.NewLimiter(rate.Every(time.Millisecond), 1)
	iv := NewInvoker(map[string]TextCompleter{"anthropic": fake}, limiter, 4096, 500)

	for i := 0; i < 3; i++ {
		result := iv.Invoke(context.Background(), "doc", testModelConfig())
		assert.True(t, result.Succeeded())
	}
}

func TestScoreConfidenceCaps(t *testing.T) {
	fake := &fakeCompleter{text: `{
		"personal_info": {"name": "John Doe"},
		"credit_scores": {"experian": 720, "equifax": 715, "transunion": 725},
		"accounts": [{"creditor_name": "Chase"}],
		"negative_items": [{"type": "collection"}],
		"inquiries": [{"creditor_name": "Amex", "date": "2026-01-01"}],
		"public_records": [{"type": "lien", "date": "2024-01-01"}]
	}`}
	iv := NewInvoker(map[string]TextCompleter{"anthropic": fake}, nil, 4096, 500)

	doc := strings.Repeat("x", 600)
	result := iv.Invoke(context.Background(), doc, testModelConfig())
	require.True(t, result.Succeeded())
	// 20+25+20+15+10+10 = 100, capped
	assert.Equal(t, 100.0, result.Confidence)
}
