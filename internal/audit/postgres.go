// Package audit persists completed evaluations for PA-submission
// auditability. Every evaluation the pipeline produces is recorded with its
// full result document, so a later dispute can replay exactly what the
// engine saw and decided.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/pa-evaluation-engine/internal/domain"
)

// PostgresStore implements domain.AuditStore on PostgreSQL. The structured
// identity columns support querying; the full result is kept as a JSONB
// document.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore wraps an existing connection. The schema must already
// exist (created via migrations).
func NewPostgresStore(db *sql.DB) (*PostgresStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

// NewPostgresStoreFromURL opens a connection pool and wraps it.
func NewPostgresStoreFromURL(databaseURL string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	store, err := NewPostgresStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// Record inserts one evaluation. Re-recording the same evaluation ID is a
// no-op, so retried pipelines don't duplicate audit rows.
func (s *PostgresStore) Record(ctx context.Context, result *domain.EvaluationResult) error {
	doc, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal evaluation result: %w", err)
	}

	query := `
		INSERT INTO evaluations (
			id, patient_id, insurer, drug_name, dose, indication,
			score, confidence, summary, result, evaluated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO NOTHING
	`

	_, err = s.db.ExecContext(ctx, query,
		result.ID,
		result.PatientID,
		result.Insurer,
		result.DrugName,
		result.Dose,
		string(result.Indication),
		result.Likelihood.Score,
		string(result.Likelihood.Confidence),
		result.Summary,
		doc,
		result.Metadata.EvaluatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record evaluation: %w", err)
	}
	return nil
}

// GetByPatient returns a patient's most recent evaluations, newest first.
func (s *PostgresStore) GetByPatient(ctx context.Context, patientID string, limit int) ([]*domain.EvaluationResult, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `
		SELECT result
		FROM evaluations
		WHERE patient_id = $1
		ORDER BY evaluated_at DESC
		LIMIT $2
	`

	rows, err := s.db.QueryContext(ctx, query, patientID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query evaluations: %w", err)
	}
	defer rows.Close()

	var results []*domain.EvaluationResult
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		var result domain.EvaluationResult
		if err := json.Unmarshal(doc, &result); err != nil {
			return nil, fmt.Errorf("failed to decode evaluation result: %w", err)
		}
		results = append(results, &result)
	}
	return results, rows.Err()
}

// Close closes the underlying connection pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
