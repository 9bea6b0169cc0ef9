package storage

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"github.com/afroash/ledger-monitor/internal/models"
)

// MemoryDSN keeps the journal in process memory only.
const MemoryDSN = "file:journal?mode=memory&cache=shared"

const timeLayout = "2006-01-02 15:04:05.000"

// Journal records poll cycles for diagnostics.
type Journal interface {
	Close() error
	Migrate() error
	InsertBatch(recs []*models.RefreshRecord) error
	Recent(limit int) ([]*models.RefreshRecord, error)
	InRange(start, end time.Time, limit int) ([]*models.RefreshRecord, error)
	DeleteOlderThan(age time.Duration) (int64, error)
	GetStorageStats() (*StorageStats, error)
}

// Compile-time interface check
var _ Journal = (*SQLiteStore)(nil)

// SQLiteStore is a Journal on SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger zerolog.Logger
}

// StorageStats summarizes the journal
type StorageStats struct {
	TotalRefreshes  int64     `json:"total_refreshes"`
	FailedRefreshes int64     `json:"failed_refreshes"`
	OldestRefresh   time.Time `json:"oldest_refresh,omitempty"`
	NewestRefresh   time.Time `json:"newest_refresh,omitempty"`
	DatabaseSizeMB  float64   `json:"database_size_mb"`
}

// NewSQLiteStore opens the journal at dsn. Use MemoryDSN for a journal that
// does not outlive the process.
func NewSQLiteStore(dsn string, logger zerolog.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA temp_store=MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma %q: %w", pragma, err)
		}
	}

	// Single writer; also keeps a shared in-memory database alive.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	store := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := store.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	logger.Info().Str("dsn", dsn).Msg("Refresh journal initialized")

	return store, nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Migrate creates the schema if it doesn't exist
func (s *SQLiteStore) Migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS refreshes (
		id TEXT PRIMARY KEY,
		cause TEXT NOT NULL,
		started_at TEXT NOT NULL,
		finished_at TEXT NOT NULL,
		reading_count INTEGER NOT NULL,
		error TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_refreshes_started ON refreshes(started_at DESC);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	s.logger.Debug().Msg("Journal schema migrated")
	return nil
}

const insertRefresh = `
	INSERT INTO refreshes (id, cause, started_at, finished_at, reading_count, error)
	VALUES (?, ?, ?, ?, ?, ?)
`

func refreshArgs(rec *models.RefreshRecord) []interface{} {
	return []interface{}{
		rec.ID.String(),
		rec.Trigger,
		rec.StartedAt.UTC().Format(timeLayout),
		rec.FinishedAt.UTC().Format(timeLayout),
		rec.ReadingCount,
		rec.Error,
	}
}

// InsertBatch inserts records in a single transaction
func (s *SQLiteStore) InsertBatch(recs []*models.RefreshRecord) error {
	if len(recs) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(insertRefresh)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, rec := range recs {
		if _, err := stmt.Exec(refreshArgs(rec)...); err != nil {
			return fmt.Errorf("failed to insert refresh in batch: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.logger.Debug().Int("count", len(recs)).Msg("Batch insert completed")
	return nil
}

// Recent returns up to limit records, newest first
func (s *SQLiteStore) Recent(limit int) ([]*models.RefreshRecord, error) {
	rows, err := s.db.Query(`
		SELECT id, cause, started_at, finished_at, reading_count, error
		FROM refreshes
		ORDER BY started_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query refreshes: %w", err)
	}
	defer rows.Close()

	return s.scanRecords(rows)
}

// InRange returns records started within [start, end], newest first
func (s *SQLiteStore) InRange(start, end time.Time, limit int) ([]*models.RefreshRecord, error) {
	rows, err := s.db.Query(`
		SELECT id, cause, started_at, finished_at, reading_count, error
		FROM refreshes
		WHERE started_at BETWEEN ? AND ?
		ORDER BY started_at DESC
		LIMIT ?
	`, start.UTC().Format(timeLayout), end.UTC().Format(timeLayout), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query refreshes: %w", err)
	}
	defer rows.Close()

	return s.scanRecords(rows)
}

// DeleteOlderThan removes records that started more than age ago
func (s *SQLiteStore) DeleteOlderThan(age time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-age)

	result, err := s.db.Exec("DELETE FROM refreshes WHERE started_at < ?", cutoff.Format(timeLayout))
	if err != nil {
		return 0, fmt.Errorf("failed to delete old refreshes: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	s.logger.Debug().
		Dur("age", age).
		Int64("deleted", deleted).
		Time("cutoff", cutoff).
		Msg("Deleted old refreshes")

	return deleted, nil
}

// GetStorageStats returns statistics about the journal
func (s *SQLiteStore) GetStorageStats() (*StorageStats, error) {
	stats := &StorageStats{}

	err := s.db.QueryRow("SELECT COUNT(*), COUNT(NULLIF(error, '')) FROM refreshes").
		Scan(&stats.TotalRefreshes, &stats.FailedRefreshes)
	if err != nil {
		return nil, fmt.Errorf("failed to count refreshes: %w", err)
	}

	if stats.TotalRefreshes == 0 {
		return stats, nil
	}

	var oldestStr, newestStr string
	err = s.db.QueryRow("SELECT MIN(started_at), MAX(started_at) FROM refreshes").
		Scan(&oldestStr, &newestStr)
	if err != nil {
		return nil, fmt.Errorf("failed to get timestamp range: %w", err)
	}

	stats.OldestRefresh, _ = parseTimestamp(oldestStr)
	stats.NewestRefresh, _ = parseTimestamp(newestStr)

	var pageCount, pageSize int64
	s.db.QueryRow("PRAGMA page_count").Scan(&pageCount)
	s.db.QueryRow("PRAGMA page_size").Scan(&pageSize)
	stats.DatabaseSizeMB = float64(pageCount*pageSize) / (1024 * 1024)

	return stats, nil
}

func (s *SQLiteStore) scanRecords(rows *sql.Rows) ([]*models.RefreshRecord, error) {
	var recs []*models.RefreshRecord

	for rows.Next() {
		var rec models.RefreshRecord
		var id, startedAt, finishedAt string

		err := rows.Scan(&id, &rec.Trigger, &startedAt, &finishedAt, &rec.ReadingCount, &rec.Error)
		if err != nil {
			return nil, fmt.Errorf("failed to scan refresh: %w", err)
		}

		if rec.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("failed to parse id: %w", err)
		}
		if rec.StartedAt, err = parseTimestamp(startedAt); err != nil {
			return nil, fmt.Errorf("failed to parse started_at: %w", err)
		}
		if rec.FinishedAt, err = parseTimestamp(finishedAt); err != nil {
			return nil, fmt.Errorf("failed to parse finished_at: %w", err)
		}

		recs = append(recs, &rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return recs, nil
}

func parseTimestamp(ts string) (time.Time, error) {
	formats := []string{
		timeLayout,
		"2006-01-02 15:04:05",
		time.RFC3339Nano,
	}

	for _, format := range formats {
		if t, err := time.Parse(format, ts); err == nil {
			return t, nil
		}
	}

	return time.Time{}, fmt.Errorf("unable to parse timestamp: %s", ts)
}
