package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"mcp-meal-triggers/internal/experiment"
	"mcp-meal-triggers/internal/models"
	"mcp-meal-triggers/internal/triggers"
)

var ErrNotFound = errors.New("not found")

type SQLiteStorage struct {
	db *sql.DB
}

var _ experiment.Store = (*SQLiteStorage)(nil)

func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection keeps ":memory:" databases and whole-document writes consistent.
	db.SetMaxOpenConns(1)

	storage := &SQLiteStorage{db: db}
	if err := storage.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return storage, nil
}

func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

func (s *SQLiteStorage) initSchema() error {
	schema := `
    CREATE TABLE IF NOT EXISTS meals (
        id TEXT PRIMARY KEY,
        name TEXT NOT NULL DEFAULT '',
        created_at INTEGER NOT NULL,
        time TEXT NOT NULL DEFAULT '',
        type TEXT NOT NULL DEFAULT '',
        tags TEXT NOT NULL DEFAULT '',
        calories REAL NOT NULL DEFAULT 0,
        protein REAL NOT NULL DEFAULT 0,
        carbs REAL NOT NULL DEFAULT 0,
        fats REAL NOT NULL DEFAULT 0,
        finished INTEGER,
        feeling TEXT NOT NULL DEFAULT ''
    );

    CREATE TABLE IF NOT EXISTS dismissed_patterns (
        key TEXT PRIMARY KEY,
        reason TEXT NOT NULL DEFAULT '',
        dismissed_at DATETIME NOT NULL
    );

    CREATE TABLE IF NOT EXISTS experiment_slot (
        slot INTEGER PRIMARY KEY CHECK (slot = 1),
        document TEXT NOT NULL,
        updated_at DATETIME NOT NULL
    );

    CREATE INDEX IF NOT EXISTS idx_meals_created_at ON meals(created_at);
    `

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	return nil
}

func (s *SQLiteStorage) SaveMeal(ctx context.Context, meal *models.MealRecord) error {
	var finished sql.NullBool
	if meal.Finished != nil {
		finished = sql.NullBool{Bool: *meal.Finished, Valid: true}
	}

	query := `
        INSERT INTO meals (id, name, created_at, time, type, tags, calories, protein, carbs, fats, finished, feeling)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
    `
	_, err := s.db.ExecContext(ctx, query,
		meal.ID, meal.Name, meal.CreatedAt, meal.Time, meal.Type, meal.Tags,
		meal.Calories, meal.Protein, meal.Carbs, meal.Fats, finished, string(meal.Feeling))
	if err != nil {
		return fmt.Errorf("failed to insert meal: %w", err)
	}
	return nil
}

// GetMeals returns meals logged in [from, to), newest first. Zero bounds are
// open; limit <= 0 means no limit.
func (s *SQLiteStorage) GetMeals(ctx context.Context, from, to time.Time, limit int) ([]models.MealRecord, error) {
	query := `
        SELECT id, name, created_at, time, type, tags, calories, protein, carbs, fats, finished, feeling
        FROM meals
        WHERE 1=1
    `
	args := []interface{}{}

	if !from.IsZero() {
		query += " AND created_at >= ?"
		args = append(args, from.UnixMilli())
	}
	if !to.IsZero() {
		query += " AND created_at < ?"
		args = append(args, to.UnixMilli())
	}

	query += " ORDER BY created_at DESC, id DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	return s.queryMeals(ctx, query, args...)
}

// AllMeals returns the whole log in logging order, the input the analysis expects.
func (s *SQLiteStorage) AllMeals(ctx context.Context) ([]models.MealRecord, error) {
	query := `
        SELECT id, name, created_at, time, type, tags, calories, protein, carbs, fats, finished, feeling
        FROM meals
        ORDER BY created_at ASC, id ASC
    `
	return s.queryMeals(ctx, query)
}

func (s *SQLiteStorage) queryMeals(ctx context.Context, query string, args ...interface{}) ([]models.MealRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query meals: %w", err)
	}
	defer rows.Close()

	meals := []models.MealRecord{}
	for rows.Next() {
		var meal models.MealRecord
		var finished sql.NullBool
		var feeling string

		err := rows.Scan(
			&meal.ID, &meal.Name, &meal.CreatedAt, &meal.Time, &meal.Type, &meal.Tags,
			&meal.Calories, &meal.Protein, &meal.Carbs, &meal.Fats, &finished, &feeling)
		if err != nil {
			return nil, fmt.Errorf("failed to scan meal: %w", err)
		}

		if finished.Valid {
			meal.Finished = models.Bool(finished.Bool)
		}
		meal.Feeling = models.Feeling(feeling)
		meals = append(meals, meal)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read meals: %w", err)
	}

	return meals, nil
}

// AddDismissed stores a dismissal. Dismissing the same key again keeps the
// latest reason and time.
func (s *SQLiteStorage) AddDismissed(ctx context.Context, d triggers.DismissedPattern) error {
	query := `
        INSERT INTO dismissed_patterns (key, reason, dismissed_at)
        VALUES (?, ?, ?)
        ON CONFLICT(key) DO UPDATE SET reason = excluded.reason, dismissed_at = excluded.dismissed_at
    `
	if _, err := s.db.ExecContext(ctx, query, d.Key, d.Reason, d.DismissedAt.UTC().Format(time.RFC3339Nano)); err != nil {
		return fmt.Errorf("failed to insert dismissed pattern: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) ListDismissed(ctx context.Context) ([]triggers.DismissedPattern, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT key, reason, dismissed_at FROM dismissed_patterns ORDER BY dismissed_at, key
    `)
	if err != nil {
		return nil, fmt.Errorf("failed to query dismissed patterns: %w", err)
	}
	defer rows.Close()

	dismissed := []triggers.DismissedPattern{}
	for rows.Next() {
		var d triggers.DismissedPattern
		var dismissedAt string
		if err := rows.Scan(&d.Key, &d.Reason, &dismissedAt); err != nil {
			return nil, fmt.Errorf("failed to scan dismissed pattern: %w", err)
		}
		if d.DismissedAt, err = time.Parse(time.RFC3339Nano, dismissedAt); err != nil {
			return nil, fmt.Errorf("failed to parse dismissed_at: %w", err)
		}
		dismissed = append(dismissed, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read dismissed patterns: %w", err)
	}
	return dismissed, nil
}

// RemoveDismissed deletes a dismissal, returning ErrNotFound if key was never dismissed.
func (s *SQLiteStorage) RemoveDismissed(ctx context.Context, key string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM dismissed_patterns WHERE key = ?`, key)
	if err != nil {
		return fmt.Errorf("failed to delete dismissed pattern: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete dismissed pattern: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("dismissed pattern %q: %w", key, ErrNotFound)
	}
	return nil
}

func (s *SQLiteStorage) LoadExperiment(ctx context.Context) (*experiment.Experiment, error) {
	var doc string
	err := s.db.QueryRowContext(ctx, `SELECT document FROM experiment_slot WHERE slot = 1`).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query experiment: %w", err)
	}

	var exp experiment.Experiment
	if err := json.Unmarshal([]byte(doc), &exp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal experiment: %w", err)
	}
	return &exp, nil
}

// SaveExperiment overwrites the slot with exp as a single document.
func (s *SQLiteStorage) SaveExperiment(ctx context.Context, exp experiment.Experiment) error {
	doc, err := json.Marshal(exp)
	if err != nil {
		return fmt.Errorf("failed to marshal experiment: %w", err)
	}

	query := `
        INSERT INTO experiment_slot (slot, document, updated_at)
        VALUES (1, ?, ?)
        ON CONFLICT(slot) DO UPDATE SET document = excluded.document, updated_at = excluded.updated_at
    `
	if _, err := s.db.ExecContext(ctx, query, string(doc), time.Now().UTC().Format(time.RFC3339Nano)); err != nil {
		return fmt.Errorf("failed to save experiment: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) ClearExperiment(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM experiment_slot`); err != nil {
		return fmt.Errorf("failed to clear experiment: %w", err)
	}
	return nil
}
