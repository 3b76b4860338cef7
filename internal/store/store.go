package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/audiopcb/veritas/internal/models"
	"github.com/audiopcb/veritas/internal/store/migrations"
)

// Store persists effectiveness records and optimization history as one flat
// JSON document per rule id, backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens or creates the database at path and applies migrations.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// WAL mode for concurrent readers during validation bursts.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	s := &Store{db: db, path: path}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("store: set goose dialect: %w", err)
	}
	if err := goose.Up(s.db, "."); err != nil {
		return fmt.Errorf("store: run migrations: %w", err)
	}
	return nil
}

// SaveEffectiveness upserts one rule's effectiveness document.
func (s *Store) SaveEffectiveness(ctx context.Context, record *models.RuleEffectiveness) error {
	doc, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("store: encode effectiveness: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO rule_effectiveness (rule_id, doc, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(rule_id) DO UPDATE SET doc = excluded.doc, updated_at = excluded.updated_at
	`, record.RuleID, string(doc), time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("store: save effectiveness: %w", err)
	}
	return nil
}

// LoadEffectiveness returns every persisted effectiveness record.
func (s *Store) LoadEffectiveness(ctx context.Context) ([]*models.RuleEffectiveness, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT doc FROM rule_effectiveness ORDER BY rule_id`)
	if err != nil {
		return nil, fmt.Errorf("store: load effectiveness: %w", err)
	}
	defer rows.Close()

	var records []*models.RuleEffectiveness
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("store: scan effectiveness: %w", err)
		}
		var rec models.RuleEffectiveness
		if err := json.Unmarshal([]byte(doc), &rec); err != nil {
			return nil, fmt.Errorf("store: decode effectiveness: %w", err)
		}
		records = append(records, &rec)
	}
	return records, rows.Err()
}

// DeleteEffectiveness removes every effectiveness record (administrative
// reset).
func (s *Store) DeleteEffectiveness(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM rule_effectiveness`); err != nil {
		return fmt.Errorf("store: delete effectiveness: %w", err)
	}
	return nil
}

// SaveOptimizationHistory upserts one rule's optimization history document.
func (s *Store) SaveOptimizationHistory(ctx context.Context, ruleID string, entries []models.OptimizationResult) error {
	doc, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("store: encode optimization history: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO optimization_history (rule_id, doc, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(rule_id) DO UPDATE SET doc = excluded.doc, updated_at = excluded.updated_at
	`, ruleID, string(doc), time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("store: save optimization history: %w", err)
	}
	return nil
}

// LoadOptimizationHistory returns one rule's persisted optimization history.
// A rule with no record yields an empty slice.
func (s *Store) LoadOptimizationHistory(ctx context.Context, ruleID string) ([]models.OptimizationResult, error) {
	var doc string
	err := s.db.QueryRowContext(ctx, `SELECT doc FROM optimization_history WHERE rule_id = ?`, ruleID).Scan(&doc)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: load optimization history: %w", err)
	}
	var entries []models.OptimizationResult
	if err := json.Unmarshal([]byte(doc), &entries); err != nil {
		return nil, fmt.Errorf("store: decode optimization history: %w", err)
	}
	return entries, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}
