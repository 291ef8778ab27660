package consensus

import (
	"context"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clearfile/credit-cli/internal/config"
	"github.com/clearfile/credit-cli/internal/report"
	"github.com/clearfile/credit-cli/internal/validate"
)

func engineModels() []ModelConfig {
	return []ModelConfig{
		{Name: "claude-completeness", Provider: "anthropic", Model: "haiku", Weight: 0.35, Variant: VariantCompleteness, Enabled: true},
		{Name: "claude-cross-validation", Provider: "anthropic", Model: "sonnet", Weight: 0.40, Variant: VariantCrossValidation, Enabled: true},
		{Name: "gemini-error-flagging", Provider: "gemini", Model: "flash", Weight: 0.25, Variant: VariantErrorFlagging, Enabled: true},
	}
}

func TestAnalyzeNoModelsEnabled(t *testing.T) {
	iv := NewInvoker(map[string]TextCompleter{}, nil, 4096, 500)
	engine := NewEngine(iv, []ModelConfig{
		{Name: "claude-completeness", Enabled: false},
	})

	_, err := engine.AnalyzeWithConsensus(context.Background(), "doc", "user-1")
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrNoModelsEnabled))
}

func TestAnalyzeAllModelsFailed(t *testing.T) {
	failing := &fakeCompleter{err: eris.New("service unavailable")}
	iv := NewInvoker(map[string]TextCompleter{
		"anthropic": failing,
		"gemini":    failing,
	}, nil, 4096, 500)
	engine := NewEngine(iv, engineModels())

	_, err := engine.AnalyzeWithConsensus(context.Background(), "doc", "user-1")
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrAllModelsFailed))
}

func TestAnalyzePartialFailureStillSucceeds(t *testing.T) {
	iv := NewInvoker(map[string]TextCompleter{
		"anthropic": &fakeCompleter{text: sampleCompletion},
		"gemini":    &fakeCompleter{err: eris.New("quota exceeded")},
	}, nil, 4096, 500)
	engine := NewEngine(iv, engineModels())

	result, err := engine.AnalyzeWithConsensus(context.Background(), "doc", "user-1")
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.Len(t, result.ModelResults, 3)
	assert.Len(t, result.Metadata.ModelsUsed, 2)
	assert.NotContains(t, result.Metadata.ModelsUsed, "gemini-error-flagging")
	assert.Equal(t, "John Doe", result.Report.PersonalInfo.Name)
	assert.Greater(t, result.OverallConfidence, 0)
	assert.NotEmpty(t, result.Metadata.AnalysisID)
	assert.Equal(t, "multi_model_consensus", result.Metadata.Method)
}

func TestAnalyzeSingleModelMethod(t *testing.T) {
	iv := NewInvoker(map[string]TextCompleter{
		"anthropic": &fakeCompleter{text: sampleCompletion},
	}, nil, 4096, 500)
	engine := NewEngine(iv, []ModelConfig{
		{Name: "claude-completeness", Provider: "anthropic", Model: "haiku", Weight: 0.35, Enabled: true},
	})

	result, err := engine.AnalyzeWithConsensus(context.Background(), "doc", "user-1")
	require.NoError(t, err)
	assert.Equal(t, "single_model", result.Metadata.Method)
	assert.Equal(t, 1.0, result.Metadata.AgreementScore)
}

func TestAnalyzeTaskTimeoutAbsorbed(t *testing.T) {
	iv := NewInvoker(map[string]TextCompleter{
		"anthropic": &fakeCompleter{text: sampleCompletion},
		"gemini":    &fakeCompleter{text: sampleCompletion, delay: 500 * time.Millisecond},
	}, nil, 4096, 500)
	engine := NewEngine(iv, engineModels(), WithTaskTimeout(50*time.Millisecond))

	result, err := engine.AnalyzeWithConsensus(context.Background(), "doc", "user-1")
	require.NoError(t, err)

	var gemini AnalysisResult
	for _, r := range result.ModelResults {
		if r.ModelName == "gemini-error-flagging" {
			gemini = r
		}
	}
	assert.False(t, gemini.Succeeded())
	assert.NotEmpty(t, gemini.Errors)
	assert.Len(t, result.Metadata.ModelsUsed, 2)
}

type fakeValidator struct {
	findings *validate.Findings
	err      error
}

func (f *fakeValidator) Validate(ctx context.Context, documentText string, rep *report.ConsensusReport) (*validate.Findings, error) {
	return f.findings, f.err
}

func TestAnalyzeAttachesFindings(t *testing.T) {
	iv := NewInvoker(map[string]TextCompleter{
		"anthropic": &fakeCompleter{text: sampleCompletion},
	}, nil, 4096, 500)
	v := &fakeValidator{findings: &validate.Findings{OverallScore: 88}}
	engine := NewEngine(iv, engineModels()[:1], WithValidator(v))

	result, err := engine.AnalyzeWithConsensus(context.Background(), "doc", "user-1")
	require.NoError(t, err)
	require.NotNil(t, result.Findings)
	assert.Equal(t, 88, result.Findings.OverallScore)
}

func TestAnalyzeValidatorFailureNotFatal(t *testing.T) {
	iv := NewInvoker(map[string]TextCompleter{
		"anthropic": &fakeCompleter{text: sampleCompletion},
	}, nil, 4096, 500)
	v := &fakeValidator{err: eris.New("audit backend down")}
	engine := NewEngine(iv, engineModels()[:1], WithValidator(v))

	result, err := engine.AnalyzeWithConsensus(context.Background(), "doc", "user-1")
	require.NoError(t, err)
	assert.Nil(t, result.Findings)
}

func TestBuildModelConfigs(t *testing.T) {
	cfg := &config.Config{
		Anthropic: config.AnthropicConfig{
			Key:         "sk-ant",
			HaikuModel:  "haiku",
			SonnetModel: "sonnet",
		},
		Gemini: config.GeminiConfig{Model: "flash"},
	}

	models := BuildModelConfigs(cfg)
	require.Len(t, models, 3)

	enabled := 0
	for _, m := range models {
		if m.Enabled {
			enabled++
			assert.Equal(t, "anthropic", m.Provider)
		}
	}
	assert.Equal(t, 2, enabled)
}
