package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/clearfile/credit-cli/internal/consensus"
	"github.com/clearfile/credit-cli/internal/store"
	"github.com/clearfile/credit-cli/internal/validate"
	"github.com/clearfile/credit-cli/pkg/anthropic"
	"github.com/clearfile/credit-cli/pkg/gemini"
)

// analysisEnv bundles the constructed engine with its optional store.
type analysisEnv struct {
	Engine *consensus.Engine
	Store  store.Store // nil when persistence is disabled
}

// initAnalysis wires the consensus engine from config: provider clients,
// rate limiter, model set, validator, and the optional persistence backend.
func initAnalysis(ctx context.Context) (*analysisEnv, error) {
	completers := make(map[string]consensus.TextCompleter)
	if cfg.Anthropic.Key != "" {
		completers["anthropic"] = consensus.NewAnthropicCompleter(anthropic.NewClient(cfg.Anthropic.Key))
	}
	if cfg.Gemini.Key != "" {
		geminiOpts := []gemini.Option{gemini.WithModel(cfg.Gemini.Model)}
		if cfg.Gemini.BaseURL != "" {
			geminiOpts = append(geminiOpts, gemini.WithBaseURL(cfg.Gemini.BaseURL))
		}
		completers["gemini"] = consensus.NewGeminiCompleter(gemini.NewClient(cfg.Gemini.Key, geminiOpts...))
	}

	var limiter *rate.Limiter
	if cfg.Consensus.RequestsPerSec > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.Consensus.RequestsPerSec), 1)
	}

	invoker := consensus.NewInvoker(completers, limiter, cfg.Consensus.MaxTokens, cfg.Consensus.MinDocumentChars)

	opts := []consensus.EngineOption{
		consensus.WithValidator(validate.NewAuditor()),
	}
	if cfg.Consensus.TaskTimeoutSecs > 0 {
		opts = append(opts, consensus.WithTaskTimeout(time.Duration(cfg.Consensus.TaskTimeoutSecs)*time.Second))
	}
	engine := consensus.NewEngine(invoker, consensus.BuildModelConfigs(cfg), opts...)

	st, err := openStore(ctx)
	if err != nil {
		return nil, err
	}

	return &analysisEnv{Engine: engine, Store: st}, nil
}

// openStore creates the configured persistence backend, or nil when the
// driver is unset.
func openStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "":
		return nil, nil
	case "sqlite":
		s, err := store.NewSQLite(cfg.Store.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := s.Migrate(ctx); err != nil {
			s.Close()
			return nil, err
		}
		return s, nil
	case "postgres":
		s, err := store.NewPostgres(ctx, cfg.Store.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := s.Migrate(ctx); err != nil {
			s.Close()
			return nil, err
		}
		return s, nil
	default:
		return nil, eris.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

// Close releases the env's resources.
func (e *analysisEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}
