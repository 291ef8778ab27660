// Package store persists completed consensus analyses.
package store

import (
	"context"
	"time"

	"github.com/clearfile/credit-cli/internal/consensus"
)

// AnalysisRecord is one persisted consensus analysis.
type AnalysisRecord struct {
	ID                string            `json:"id"`
	UserID            string            `json:"user_id,omitempty"`
	OverallConfidence int               `json:"overall_confidence"`
	AgreementScore    float64           `json:"agreement_score"`
	ModelsUsed        []string          `json:"models_used"`
	Result            *consensus.Result `json:"result"`
	CreatedAt         time.Time         `json:"created_at"`
}

// AnalysisFilter specifies criteria for listing analyses.
type AnalysisFilter struct {
	UserID        string `json:"user_id,omitempty"`
	MinConfidence int    `json:"min_confidence,omitempty"`
	Limit         int    `json:"limit,omitempty"`
	Offset        int    `json:"offset,omitempty"`
}

// Store defines the persistence interface for consensus analyses.
type Store interface {
	SaveAnalysis(ctx context.Context, result *consensus.Result, userID string) (*AnalysisRecord, error)
	GetAnalysis(ctx context.Context, id string) (*AnalysisRecord, error)
	ListAnalyses(ctx context.Context, filter AnalysisFilter) ([]AnalysisRecord, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
