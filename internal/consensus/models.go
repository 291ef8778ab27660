// Package consensus implements the multi-model extraction engine: it fans out
// one invocation per enabled model, reconciles the partial reports into a
// single consensus report, and scores cross-model agreement.
package consensus

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/clearfile/credit-cli/internal/config"
	"github.com/clearfile/credit-cli/internal/report"
	"github.com/clearfile/credit-cli/internal/validate"
)

// Fatal orchestration errors. Everything else is absorbed into the per-model
// result and lowers the agreement score instead of aborting the run.
var (
	ErrNoModelsEnabled = eris.New("consensus: no models enabled")
	ErrAllModelsFailed = eris.New("consensus: all models failed")
)

// Variant selects the prompt emphasis for a model configuration. Running
// nominally identical models under different variants is what produces the
// extraction diversity the reconciler feeds on.
type Variant string

const (
	VariantCompleteness    Variant = "completeness"
	VariantCrossValidation Variant = "cross_validation"
	VariantErrorFlagging   Variant = "error_flagging"
)

// ModelConfig identifies one model variant. Immutable once constructed.
type ModelConfig struct {
	Name        string
	Provider    string // "anthropic" or "gemini"
	Model       string // provider-specific model ID
	Weight      float64
	Temperature float64
	Variant     Variant
	Enabled     bool
}

// AnalysisResult is the outcome of one model invocation. A transport or parse
// failure is represented as Confidence 0 with a non-empty Errors list, never
// as a Go error. Never mutated after creation.
type AnalysisResult struct {
	ModelName    string         `json:"model_name"`
	Report       *report.Report `json:"report,omitempty"`
	Confidence   float64        `json:"confidence"` // 0..100
	Duration     time.Duration  `json:"duration_ns"`
	Errors       []string       `json:"errors,omitempty"`
	ModelVersion string         `json:"model_version,omitempty"`
	LatencyMS    int64          `json:"latency_ms"`
}

// Succeeded reports whether this invocation contributes to reconciliation.
func (r AnalysisResult) Succeeded() bool {
	return r.Confidence > 0
}

// ResolutionMethod names how a field conflict was settled.
type ResolutionMethod string

const (
	MethodHighestConfidence ResolutionMethod = "highest_confidence"
	MethodWeightedAverage   ResolutionMethod = "weighted_average"
	MethodMajorityVote      ResolutionMethod = "majority_vote"
	MethodManualReview      ResolutionMethod = "manual_review"
)

// Candidate is one model's competing value for a conflicted field.
type Candidate struct {
	Model      string  `json:"model"`
	Value      any     `json:"value"`
	Confidence float64 `json:"confidence"`
}

// ConflictResolution records one field where models disagreed and how the
// disagreement was settled.
type ConflictResolution struct {
	FieldPath  string           `json:"field_path"`
	Candidates []Candidate      `json:"candidates"`
	Resolved   any              `json:"resolved"`
	Method     ResolutionMethod `json:"method"`
	Confidence float64          `json:"confidence"`
}

// Metadata describes how the consensus report was produced.
type Metadata struct {
	AnalysisID     string               `json:"analysis_id"`
	ModelsUsed     []string             `json:"models_used"`
	Method         string               `json:"method"`
	AgreementScore float64              `json:"agreement_score"`
	Conflicts      []ConflictResolution `json:"conflicts,omitempty"`
	ProcessingMS   int64                `json:"processing_ms"`
	CreatedAt      time.Time            `json:"created_at"`
}

// Result is the complete bundle returned to callers: the consensus report,
// every per-model result (failures included), and the validation findings.
type Result struct {
	Report            *report.ConsensusReport `json:"report"`
	OverallConfidence int                     `json:"overall_confidence"`
	ModelResults      []AnalysisResult        `json:"model_results"`
	Metadata          Metadata                `json:"metadata"`
	Findings          *validate.Findings      `json:"findings,omitempty"`
}

// Validator is the external collaborator that audits the consensus report
// against the source document. Consumed opaquely.
type Validator interface {
	Validate(ctx context.Context, documentText string, rep *report.ConsensusReport) (*validate.Findings, error)
}

// BuildModelConfigs derives the model set from available credentials: one
// config per supported variant, disabled when its provider credential is
// missing. The set is fixed for the lifetime of the engine.
func BuildModelConfigs(cfg *config.Config) []ModelConfig {
	return []ModelConfig{
		{
			Name:        "claude-completeness",
			Provider:    "anthropic",
			Model:       cfg.Anthropic.HaikuModel,
			Weight:      0.35,
			Temperature: 0.2,
			Variant:     VariantCompleteness,
			Enabled:     cfg.Anthropic.Key != "",
		},
		{
			Name:        "claude-cross-validation",
			Provider:    "anthropic",
			Model:       cfg.Anthropic.SonnetModel,
			Weight:      0.40,
			Temperature: 0.1,
			Variant:     VariantCrossValidation,
			Enabled:     cfg.Anthropic.Key != "",
		},
		{
			Name:        "gemini-error-flagging",
			Provider:    "gemini",
			Model:       cfg.Gemini.Model,
			Weight:      0.25,
			Temperature: 0.3,
			Variant:     VariantErrorFlagging,
			Enabled:     cfg.Gemini.Key != "",
		},
	}
}
