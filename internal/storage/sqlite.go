package storage

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/Amaanudeen/ai-interview-bot/internal/interview"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store wraps a SQLite database holding archived interviews.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) a SQLite database in dataDir and runs pending
// migrations. Pass ":memory:" as dataDir for an in-memory database (used by
// tests).
func Open(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "interviewbot.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// Limit to single connection to avoid "database is locked" errors.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate reads embedded SQL migration files and applies any that haven't
// been run yet.
func (s *Store) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		version, err := parseMigrationVersion(entry.Name())
		if err != nil {
			return err
		}

		var exists int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&exists); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if exists > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %d: %w", version, err)
		}
		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", version, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", version, err)
		}
	}

	return nil
}

func parseMigrationVersion(filename string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(filename, "%d_", &version); err != nil {
		return 0, fmt.Errorf("parsing migration version from %q: %w", filename, err)
	}
	return version, nil
}

// Archive persists a finalized interview with all of its exchanges in one
// transaction. Re-archiving the same session id replaces the prior record.
// Implements interview.Archiver.
func (s *Store) Archive(ctx context.Context, rec interview.Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning archive transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM interviews WHERE id = ?`, rec.SessionID); err != nil {
		return fmt.Errorf("clearing prior archive: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO interviews (id, mode, subject, question_count, final_feedback, started_at, ended_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.SessionID, string(rec.Mode), rec.Subject, rec.QuestionCount, rec.FinalFeedback,
		rec.StartedAt.UTC().Format(time.RFC3339), rec.EndedAt.UTC().Format(time.RFC3339),
	); err != nil {
		return fmt.Errorf("inserting interview: %w", err)
	}

	for i, ex := range rec.Exchanges {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO exchanges (interview_id, position, question, answer, feedback, score, is_followup)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			rec.SessionID, i, ex.Question, ex.Answer, ex.Feedback, ex.Score, ex.IsFollowup,
		); err != nil {
			return fmt.Errorf("inserting exchange %d: %w", i, err)
		}
	}

	return tx.Commit()
}

// GetInterview loads one archived interview with its exchanges.
func (s *Store) GetInterview(id string) (Interview, error) {
	var iv Interview
	var startedAt, endedAt string
	err := s.db.QueryRow(`
		SELECT id, mode, subject, question_count, final_feedback, started_at, ended_at
		FROM interviews WHERE id = ?`, id,
	).Scan(&iv.ID, &iv.Mode, &iv.Subject, &iv.QuestionCount, &iv.FinalFeedback, &startedAt, &endedAt)
	if err == sql.ErrNoRows {
		return Interview{}, ErrNotFound
	}
	if err != nil {
		return Interview{}, err
	}

	if iv.StartedAt, err = time.Parse(time.RFC3339, startedAt); err != nil {
		return Interview{}, fmt.Errorf("parsing started_at: %w", err)
	}
	if iv.EndedAt, err = time.Parse(time.RFC3339, endedAt); err != nil {
		return Interview{}, fmt.Errorf("parsing ended_at: %w", err)
	}

	rows, err := s.db.Query(`
		SELECT position, question, answer, feedback, score, is_followup
		FROM exchanges WHERE interview_id = ? ORDER BY position ASC`, id,
	)
	if err != nil {
		return Interview{}, err
	}
	defer rows.Close()

	for rows.Next() {
		var ex ExchangeRow
		if err := rows.Scan(&ex.Position, &ex.Question, &ex.Answer, &ex.Feedback, &ex.Score, &ex.IsFollowup); err != nil {
			return Interview{}, err
		}
		iv.Exchanges = append(iv.Exchanges, ex)
	}
	return iv, rows.Err()
}

// ListInterviews returns archived interviews, most recently ended first,
// without their exchanges.
func (s *Store) ListInterviews(limit int) ([]Interview, error) {
	rows, err := s.db.Query(`
		SELECT id, mode, subject, question_count, final_feedback, started_at, ended_at
		FROM interviews ORDER BY ended_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Interview
	for rows.Next() {
		var iv Interview
		var startedAt, endedAt string
		if err := rows.Scan(&iv.ID, &iv.Mode, &iv.Subject, &iv.QuestionCount, &iv.FinalFeedback, &startedAt, &endedAt); err != nil {
			return nil, err
		}
		if iv.StartedAt, err = time.Parse(time.RFC3339, startedAt); err != nil {
			return nil, fmt.Errorf("parsing started_at: %w", err)
		}
		if iv.EndedAt, err = time.Parse(time.RFC3339, endedAt); err != nil {
			return nil, fmt.Errorf("parsing ended_at: %w", err)
		}
		results = append(results, iv)
	}
	return results, rows.Err()
}

// DeleteInterview removes an archived interview and its exchanges.
func (s *Store) DeleteInterview(id string) error {
	res, err := s.db.Exec(`DELETE FROM interviews WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
