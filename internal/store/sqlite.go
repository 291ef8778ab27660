package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/clearfile/credit-cli/internal/consensus"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS analyses (
	id                 TEXT PRIMARY KEY,
	user_id            TEXT,
	overall_confidence INTEGER NOT NULL,
	agreement_score    REAL NOT NULL,
	models_used        TEXT NOT NULL,
	result             TEXT NOT NULL,
	created_at         DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_analyses_user_id ON analyses(user_id);
CREATE INDEX IF NOT EXISTS idx_analyses_created_at ON analyses(created_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) SaveAnalysis(ctx context.Context, result *consensus.Result, userID string) (*AnalysisRecord, error) {
	now := time.Now().UTC()

	resultJSON, err := json.Marshal(result)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal result")
	}
	modelsJSON, err := json.Marshal(result.Metadata.ModelsUsed)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal models")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO analyses (id, user_id, overall_confidence, agreement_score, models_used, result, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		result.Metadata.AnalysisID, userID, result.OverallConfidence,
		result.Metadata.AgreementScore, string(modelsJSON), string(resultJSON), now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert analysis")
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

func (s *SQLiteStore) GetAnalysis(ctx context.Context, id string) (*AnalysisRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, overall_confidence, agreement_score, models_used, result, created_at
		 FROM analyses WHERE id = ?`,
		id,
	)

	rec, err := scanAnalysis(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return rec, err
}

func (s *SQLiteStore) ListAnalyses(ctx context.Context, filter AnalysisFilter) ([]AnalysisRecord, error) {
	query := `SELECT id, user_id, overall_confidence, agreement_score, models_used, result, created_at
	 FROM analyses WHERE 1=1`
	var args []any

	if filter.UserID != "" {
		query += ` AND user_id = ?`
		args = append(args, filter.UserID)
	}
	if filter.MinConfidence > 0 {
		query += ` AND overall_confidence >= ?`
		args = append(args, filter.MinConfidence)
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list analyses")
	}
	defer rows.Close()

	var recs []AnalysisRecord
	for rows.Next() {
		rec, err := scanAnalysis(rows.Scan)
		if err != nil {
			return nil, err
		}
		recs = append(recs, *rec)
	}
	return recs, eris.Wrap(rows.Err(), "sqlite: list analyses iterate")
}

// scanAnalysis decodes one analyses row via the given Scan function.
func scanAnalysis(scan func(...any) error) (*AnalysisRecord, error) {
	var rec AnalysisRecord
	var userID sql.NullString
	var modelsJSON, resultJSON string

	err := scan(&rec.ID, &userID, &rec.OverallConfidence, &rec.AgreementScore,
		&modelsJSON, &resultJSON, &rec.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, eris.Wrap(err, "store: scan analysis")
	}

	rec.UserID = userID.String
	if err := json.Unmarshal([]byte(modelsJSON), &rec.ModelsUsed); err != nil {
		return nil, eris.Wrap(err, "store: unmarshal models")
	}
	if err := json.Unmarshal([]byte(resultJSON), &rec.Result); err != nil {
		return nil, eris.Wrap(err, "store: unmarshal result")
	}
	return &rec, nil
}
