package consensus

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const defaultTaskTimeout = 120 * time.Second

// Engine orchestrates a full consensus run: fan out one invocation per
// enabled model, reconcile the survivors, score agreement, and attach
// validation findings. Safe for concurrent use.
type Engine struct {
	invoker     *Invoker
	models      []ModelConfig
	validator   Validator // optional
	taskTimeout time.Duration
}

// EngineOption customizes Engine construction.
type EngineOption func(*Engine)

// WithValidator attaches a post-consensus validator. Validation failures are
// logged and dropped, never fatal.
func WithValidator(v Validator) EngineOption {
	return func(e *Engine) { e.validator = v }
}

// WithTaskTimeout bounds each model invocation. A model that exceeds it is
// recorded as a failed result rather than stalling the whole run.
func WithTaskTimeout(d time.Duration) EngineOption {
	return func(e *Engine) {
		if d > 0 {
			e.taskTimeout = d
		}
	}
}

// NewEngine creates an Engine over the given model set. Disabled models are
// kept in the set for reporting but never invoked.
func NewEngine(invoker *Invoker, models []ModelConfig, opts ...EngineOption) *Engine {
	e := &Engine{
		invoker:     invoker,
		models:      models,
		taskTimeout: defaultTaskTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// AnalyzeWithConsensus runs every enabled model against the document and
// merges the outcomes. It fails only when no model is enabled or every
// invocation came back with confidence 0; any partial success produces a
// consensus report.
func (e *Engine) AnalyzeWithConsensus(ctx context.Context, documentText, userID string) (*Result, error) {
	start := time.Now()
	analysisID := uuid.NewString()

	enabled := make([]ModelConfig, 0, len(e.models))
	for _, m := range e.models {
		if m.Enabled {
			enabled = append(enabled, m)
		}
	}
	if len(enabled) == 0 {
		return nil, ErrNoModelsEnabled
	}

	logger := zap.L().With(
		zap.String("analysis_id", analysisID),
		zap.String("user_id", userID),
		zap.Int("models", len(enabled)),
	)
	logger.Info("starting consensus analysis",
		zap.Int("document_chars", len(documentText)))

	// One slot per model; each task owns its index, so no mutex is needed.
	// Tasks absorb their own failures and always return nil: a failed model
	// must not cancel its siblings.
	results := make([]AnalysisResult, len(enabled))
	g, gctx := errgroup.WithContext(ctx)
	for i, mc := range enabled {
		g.Go(func() error {
			taskCtx, cancel := context.WithTimeout(gctx, e.taskTimeout)
			defer cancel()

			results[i] = e.invoker.Invoke(taskCtx, documentText, mc)
			if results[i].Succeeded() {
				logger.Info("model completed",
					zap.String("model", mc.Name),
					zap.Float64("confidence", results[i].Confidence),
					zap.Int64("latency_ms", results[i].LatencyMS))
			} else {
				logger.Warn("model failed",
					zap.String("model", mc.Name),
					zap.Strings("errors", results[i].Errors))
			}
			return nil
		})
	}
	_ = g.Wait() // tasks never return errors

	succeeded := make([]AnalysisResult, 0, len(results))
	modelsUsed := make([]string, 0, len(results))
	for _, r := range results {
		if r.Succeeded() {
			succeeded = append(succeeded, r)
			modelsUsed = append(modelsUsed, r.ModelName)
		}
	}
	if len(succeeded) == 0 {
		logger.Error("all models failed")
		return nil, ErrAllModelsFailed
	}

	reconciler := NewReconciler(enabled)
	merged := reconciler.Reconcile(succeeded)

	agreement := AgreementScore(succeeded)
	overall := OverallConfidence(succeeded, agreement)

	result := &Result{
		Report:            merged.Report,
		OverallConfidence: overall,
		ModelResults:      results,
		Metadata: Metadata{
			AnalysisID:     analysisID,
			ModelsUsed:     modelsUsed,
			Method:         e.method(len(succeeded)),
			AgreementScore: agreement,
			Conflicts:      merged.Conflicts,
			ProcessingMS:   time.Since(start).Milliseconds(),
			CreatedAt:      time.Now().UTC(),
		},
	}

	if e.validator != nil {
		findings, err := e.validator.Validate(ctx, documentText, merged.Report)
		if err != nil {
			logger.Warn("validation failed", zap.Error(err))
		} else {
			result.Findings = findings
		}
	}

	logger.Info("consensus analysis complete",
		zap.Int("overall_confidence", overall),
		zap.Float64("agreement", agreement),
		zap.Int("succeeded", len(succeeded)),
		zap.Int("conflicts", len(merged.Conflicts)),
		zap.Int64("processing_ms", result.Metadata.ProcessingMS))
	return result, nil
}

func (e *Engine) method(succeeded int) string {
	if succeeded == 1 {
		return "single_model"
	}
	return "multi_model_consensus"
}
