package policy

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/pa-evaluation-engine/internal/domain"
)

// SQLiteStore implements domain.PolicyStore over a SQLite file. The policy
// database is authored externally (benefits teams edit it out of band); this
// store reads and upserts whole policies, with the structured fields held as
// JSON columns.
type SQLiteStore struct {
	db     *sql.DB
	dbPath string
}

// NewSQLiteStore opens (creating if needed) the policy database at dbPath.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLiteStore{db: db, dbPath: dbPath}, nil
}

func createSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS coverage_policies (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		insurer TEXT NOT NULL,
		drug_name TEXT NOT NULL,
		indication TEXT DEFAULT '',
		covered INTEGER NOT NULL DEFAULT 1,
		tier INTEGER DEFAULT 0,
		copay_amount REAL DEFAULT 0,
		requires_pa INTEGER NOT NULL DEFAULT 1,
		dose_schedule TEXT DEFAULT '[]',
		pa_criteria TEXT DEFAULT '[]',
		evaluation_rules TEXT DEFAULT '{}',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(insurer, drug_name, indication)
	);

	CREATE INDEX IF NOT EXISTS idx_policies_insurer_drug ON coverage_policies(insurer, drug_name);
	`

	_, err := db.Exec(schema)
	return err
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanPolicy(s scanner) (*domain.CoveragePolicy, error) {
	p := &domain.CoveragePolicy{}
	var scheduleJSON, criteriaJSON, rulesJSON string

	err := s.Scan(
		&p.Insurer, &p.DrugName, &p.Indication,
		&p.Covered, &p.Tier, &p.CopayAmount, &p.RequiresPA,
		&scheduleJSON, &criteriaJSON, &rulesJSON,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(scheduleJSON), &p.DoseSchedule); err != nil {
		return nil, fmt.Errorf("failed to decode dose schedule: %w", err)
	}
	if err := json.Unmarshal([]byte(criteriaJSON), &p.PACriteria); err != nil {
		return nil, fmt.Errorf("failed to decode criteria: %w", err)
	}
	if rulesJSON != "" && rulesJSON != "{}" {
		if err := json.Unmarshal([]byte(rulesJSON), &p.EvaluationRules); err != nil {
			return nil, fmt.Errorf("failed to decode evaluation rules: %w", err)
		}
	}
	return p, nil
}

const policyColumns = `insurer, drug_name, indication, covered, tier, copay_amount, requires_pa,
		dose_schedule, pa_criteria, evaluation_rules`

// GetPolicy retrieves the policy for an insurer/drug pair, matched
// case-insensitively. Returns domain.ErrNotFound when absent.
func (s *SQLiteStore) GetPolicy(ctx context.Context, insurer, drugName string) (*domain.CoveragePolicy, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+policyColumns+`
		FROM coverage_policies
		WHERE LOWER(insurer) = ? AND LOWER(drug_name) = ?
		LIMIT 1
	`, strings.ToLower(insurer), strings.ToLower(drugName))

	p, err := scanPolicy(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("policy %s/%s: %w", insurer, drugName, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan policy: %w", err)
	}
	return p, nil
}

// ListPolicies returns all policies for an insurer.
func (s *SQLiteStore) ListPolicies(ctx context.Context, insurer string) ([]*domain.CoveragePolicy, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+policyColumns+`
		FROM coverage_policies
		WHERE LOWER(insurer) = ?
		ORDER BY drug_name, indication
	`, strings.ToLower(insurer))
	if err != nil {
		return nil, fmt.Errorf("failed to query policies: %w", err)
	}
	defer rows.Close()

	var result []*domain.CoveragePolicy
	for rows.Next() {
		p, err := scanPolicy(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

// SavePolicy validates and upserts a policy on (insurer, drug, indication).
func (s *SQLiteStore) SavePolicy(ctx context.Context, policy *domain.CoveragePolicy) error {
	if err := policy.Validate(); err != nil {
		return err
	}

	scheduleJSON, err := json.Marshal(policy.DoseSchedule)
	if err != nil {
		return fmt.Errorf("failed to encode dose schedule: %w", err)
	}
	criteriaJSON, err := json.Marshal(policy.PACriteria)
	if err != nil {
		return fmt.Errorf("failed to encode criteria: %w", err)
	}
	rulesJSON, err := json.Marshal(policy.EvaluationRules)
	if err != nil {
		return fmt.Errorf("failed to encode evaluation rules: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO coverage_policies (
			insurer, drug_name, indication, covered, tier, copay_amount,
			requires_pa, dose_schedule, pa_criteria, evaluation_rules, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(insurer, drug_name, indication) DO UPDATE SET
			covered = excluded.covered,
			tier = excluded.tier,
			copay_amount = excluded.copay_amount,
			requires_pa = excluded.requires_pa,
			dose_schedule = excluded.dose_schedule,
			pa_criteria = excluded.pa_criteria,
			evaluation_rules = excluded.evaluation_rules,
			updated_at = excluded.updated_at
	`,
		policy.Insurer, policy.DrugName, string(policy.Indication),
		policy.Covered, policy.Tier, policy.CopayAmount, policy.RequiresPA,
		string(scheduleJSON), string(criteriaJSON), string(rulesJSON),
		time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert policy: %w", err)
	}
	return nil
}

// Close closes the store and releases resources.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
