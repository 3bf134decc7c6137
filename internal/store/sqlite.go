package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"mailcensus/internal/model"

	_ "modernc.org/sqlite"
)

// SQLiteStore keeps the ledger and aggregates in one SQLite database and
// flushes both in a single transaction, so the two can never diverge across
// a crash.
type SQLiteStore struct {
	*Memory
	db     *sql.DB
	logger *log.Logger
}

// NewSQLiteStore opens (or creates) the database at the given path and runs
// migrations.
func NewSQLiteStore(dbPath string, logger *log.Logger) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLiteStore{Memory: NewMemory(), db: db, logger: logger}, nil
}

func migrate(db *sql.DB) error {
	const schema = `
CREATE TABLE IF NOT EXISTS processed_ids (
	id TEXT PRIMARY KEY
);

CREATE TABLE IF NOT EXISTS senders (
	key        TEXT PRIMARY KEY,
	name       TEXT NOT NULL DEFAULT '',
	email      TEXT NOT NULL DEFAULT '',
	categories TEXT NOT NULL DEFAULT '',
	count      INTEGER NOT NULL,
	first_seen TEXT NOT NULL,
	last_seen  TEXT NOT NULL
);
`
	_, err := db.Exec(schema)
	if err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Load reads both tables. Query failures reset the affected store to empty
// with a warning rather than aborting the run.
func (s *SQLiteStore) Load(ctx context.Context) error {
	s.loadLedger(ctx)
	s.loadSenders(ctx)
	return nil
}

func (s *SQLiteStore) loadLedger(ctx context.Context) {
	rows, err := s.db.QueryContext(ctx, "SELECT id FROM processed_ids")
	if err != nil {
		s.logger.Warn("ledger table unreadable; starting from an empty ledger", "err", err)
		s.resetLedger()
		return
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			s.logger.Warn("skipping unreadable ledger row", "err", err)
			continue
		}
		s.MarkSeen(id)
	}
	if err := rows.Err(); err != nil {
		s.logger.Warn("ledger table unreadable; starting from an empty ledger", "err", err)
		s.resetLedger()
	}
}

func (s *SQLiteStore) loadSenders(ctx context.Context) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT key, name, email, categories, count, first_seen, last_seen FROM senders")
	if err != nil {
		s.logger.Warn("sender table unreadable; starting from empty aggregates", "err", err)
		s.resetSenders()
		return
	}
	defer rows.Close()

	for rows.Next() {
		var (
			key, name, email, categories, firstStr, lastStr string
			count                                           int
		)
		if err := rows.Scan(&key, &name, &email, &categories, &count, &firstStr, &lastStr); err != nil {
			s.logger.Warn("skipping unreadable sender row", "err", err)
			continue
		}
		if count < 1 {
			s.logger.Warn("skipping invalid sender row", "key", key, "count", count)
			continue
		}
		first, err := time.Parse(time.RFC3339, firstStr)
		if err != nil {
			s.logger.Warn("skipping sender row with bad first_seen", "key", key, "err", err)
			continue
		}
		last, err := time.Parse(time.RFC3339, lastStr)
		if err != nil {
			s.logger.Warn("skipping sender row with bad last_seen", "key", key, "err", err)
			continue
		}
		set := model.ParseCategorySet(categories)
		if len(set) == 0 {
			set = model.NewCategorySet(model.CategoryDataHolder)
		}
		s.restore(model.SenderRecord{
			Key:        key,
			Name:       name,
			Email:      strings.ToLower(email),
			Categories: set,
			Count:      count,
			FirstSeen:  first,
			LastSeen:   last,
		})
	}
	if err := rows.Err(); err != nil {
		s.logger.Warn("sender table unreadable; starting from empty aggregates", "err", err)
		s.resetSenders()
	}
}

// Flush commits the ledger and the aggregates in one transaction.
func (s *SQLiteStore) Flush(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	idStmt, err := tx.PrepareContext(ctx, "INSERT OR IGNORE INTO processed_ids (id) VALUES (?)")
	if err != nil {
		return err
	}
	defer idStmt.Close()
	for _, id := range s.seenIDs() {
		if _, err := idStmt.ExecContext(ctx, id); err != nil {
			return err
		}
	}

	senderStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO senders (key, name, email, categories, count, first_seen, last_seen)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			name       = excluded.name,
			email      = excluded.email,
			categories = excluded.categories,
			count      = excluded.count,
			first_seen = excluded.first_seen,
			last_seen  = excluded.last_seen
	`)
	if err != nil {
		return err
	}
	defer senderStmt.Close()
	for _, rec := range s.Records() {
		_, err := senderStmt.ExecContext(ctx,
			rec.Key,
			rec.Name,
			rec.Email,
			rec.Categories.String(),
			rec.Count,
			rec.FirstSeen.UTC().Format(time.RFC3339),
			rec.LastSeen.UTC().Format(time.RFC3339),
		)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}
