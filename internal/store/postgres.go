package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/clearfile/credit-cli/internal/consensus"
)

// Pool is the subset of pgxpool.Pool the store uses. pgxmock satisfies it in
// tests.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    Pool
	closeFn func()
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}
	pgxCfg.MaxConns = 10
	pgxCfg.MinConns = 2
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresWithPool wraps an existing pool, used by tests.
func NewPostgresWithPool(pool Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS analyses (
	id                 TEXT PRIMARY KEY,
	user_id            TEXT,
	overall_confidence INTEGER NOT NULL,
	agreement_score    DOUBLE PRECISION NOT NULL,
	models_used        JSONB NOT NULL,
	result             JSONB NOT NULL,
	created_at         TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_analyses_user_id ON analyses(user_id);
CREATE INDEX IF NOT EXISTS idx_analyses_created_at ON analyses(created_at);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) SaveAnalysis(ctx context.Context, result *consensus.Result, userID string) (*AnalysisRecord, error) {
	now := time.Now().UTC()

	resultJSON, err := json.Marshal(result)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal result")
	}
	modelsJSON, err := json.Marshal(result.Metadata.ModelsUsed)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal models")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO analyses (id, user_id, overall_confidence, agreement_score, models_used, result, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		result.Metadata.AnalysisID, userID, result.OverallConfidence,
		result.Metadata.AgreementScore, modelsJSON, resultJSON, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert analysis")
	}

	return &AnalysisRecord{
		ID:                result.Metadata.AnalysisID,
		UserID:            userID,
		OverallConfidence: result.OverallConfidence,
		AgreementScore:    result.Metadata.AgreementScore,
		ModelsUsed:        result.Metadata.ModelsUsed,
		Result:            result,
		CreatedAt:         now,
	}, nil
}

func (s *PostgresStore) GetAnalysis(ctx context.Context, id string) (*AnalysisRecord, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, user_id, overall_confidence, agreement_score, models_used, result, created_at
		 FROM analyses WHERE id = $1`,
		id,
	)

	rec, err := scanPostgresAnalysis(row.Scan)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return rec, err
}

func (s *PostgresStore) ListAnalyses(ctx context.Context, filter AnalysisFilter) ([]AnalysisRecord, error) {
	query := `SELECT id, user_id, overall_confidence, agreement_score, models_used, result, created_at
	 FROM analyses WHERE 1=1`
	var args []any

	if filter.UserID != "" {
		args = append(args, filter.UserID)
		query += ` AND user_id = $1`
	}
	if filter.MinConfidence > 0 {
		args = append(args, filter.MinConfidence)
		query += ` AND overall_confidence >= ` + placeholder(len(args))
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)
	query += ` LIMIT ` + placeholder(len(args))

	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += ` OFFSET ` + placeholder(len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list analyses")
	}
	defer rows.Close()

	var recs []AnalysisRecord
	for rows.Next() {
		rec, err := scanPostgresAnalysis(rows.Scan)
		if err != nil {
			return nil, err
		}
		recs = append(recs, *rec)
	}
	return recs, eris.Wrap(rows.Err(), "postgres: list analyses iterate")
}

func scanPostgresAnalysis(scan func(...any) error) (*AnalysisRecord, error) {
	var rec AnalysisRecord
	var userID *string
	var modelsJSON, resultJSON []byte

	err := scan(&rec.ID, &userID, &rec.OverallConfidence, &rec.AgreementScore,
		&modelsJSON, &resultJSON, &rec.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan analysis")
	}

	if userID != nil {
		rec.UserID = *userID
	}
	if err := json.Unmarshal(modelsJSON, &rec.ModelsUsed); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal models")
	}
	if err := json.Unmarshal(resultJSON, &rec.Result); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal result")
	}
	return &rec, nil
}

func placeholder(n int) string {
	return fmt.Sprintf("$%d", n)
}
