package recipe

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore keeps recipes in a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS recipes (
		key TEXT PRIMARY KEY,
		name_raw TEXT NOT NULL,
		title TEXT,
		ingredients TEXT NOT NULL,
		instructions TEXT NOT NULL,
		raw_ingredients TEXT,
		raw_instructions TEXT,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);
	`
	_, err := db.Exec(schema)
	return err
}

const upsertSQL = `INSERT INTO recipes (key, name_raw, title, ingredients, instructions, raw_ingredients, raw_instructions, updated_at)
	 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	 ON CONFLICT(key) DO UPDATE SET
		name_raw = excluded.name_raw,
		title = excluded.title,
		ingredients = excluded.ingredients,
		instructions = excluded.instructions,
		raw_ingredients = excluded.raw_ingredients,
		raw_instructions = excluded.raw_instructions,
		updated_at = excluded.updated_at`

// Upsert inserts or replaces a recipe by key.
func (s *SQLiteStore) Upsert(ctx context.Context, r *Recipe) error {
	if r.Key == "" {
		return fmt.Errorf("recipe %q has an empty key", r.NameRaw)
	}
	_, err := s.db.ExecContext(ctx, upsertSQL,
		r.Key, r.NameRaw, r.Title, r.Ingredients, r.Instructions, r.RawIngredients, r.RawInstructions, time.Now(),
	)
	return err
}

// BatchUpsert writes recipes in one transaction.
func (s *SQLiteStore) BatchUpsert(ctx context.Context, recipes []*Recipe) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, upsertSQL)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now()
	for _, r := range recipes {
		if r.Key == "" {
			return fmt.Errorf("recipe %q has an empty key", r.NameRaw)
		}
		if _, err := stmt.ExecContext(ctx, r.Key, r.NameRaw, r.Title, r.Ingredients, r.Instructions, r.RawIngredients, r.RawInstructions, now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// GetRecipe returns the recipe for label, accepting raw names or keys. Absent recipes return nil, nil.
func (s *SQLiteStore) GetRecipe(ctx context.Context, label string) (*Recipe, error) {
	key := NormalizeKey(label)
	if key == "" {
		return nil, nil
	}
	var r Recipe
	var title, rawIng, rawInstr sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT key, name_raw, title, ingredients, instructions, raw_ingredients, raw_instructions
		 FROM recipes WHERE key = ?`, key,
	).Scan(&r.Key, &r.NameRaw, &title, &r.Ingredients, &r.Instructions, &rawIng, &rawInstr)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get recipe %s: %w", key, err)
	}
	r.Title, r.RawIngredients, r.RawInstructions = title.String, rawIng.String, rawInstr.String
	return &r, nil
}

// All returns every recipe ordered by key.
func (s *SQLiteStore) All(ctx context.Context) ([]*Recipe, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key, name_raw, title, ingredients, instructions FROM recipes ORDER BY key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Recipe
	for rows.Next() {
		var r Recipe
		var title sql.NullString
		if err := rows.Scan(&r.Key, &r.NameRaw, &title, &r.Ingredients, &r.Instructions); err != nil {
			return nil, err
		}
		r.Title = title.String
		out = append(out, &r)
	}
	return out, rows.Err()
}

// Count returns the number of recipes.
func (s *SQLiteStore) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM recipes`).Scan(&count)
	return count, err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
