package storage

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/afroash/ledger-monitor/internal/models"
)

// RecorderConfig combines the settings of the journal pieces.
type RecorderConfig struct {
	DSN       string
	Writer    DBWriterConfig
	Retention RetentionCleanerConfig
}

// RecorderStats reports on the whole journal.
type RecorderStats struct {
	Storage   *StorageStats         `json:"storage,omitempty"`
	Writer    DBWriterStats         `json:"writer"`
	Retention RetentionCleanerStats `json:"retention"`
}

// Recorder owns a journal store with its async writer and retention
// cleaner.
type Recorder struct {
	store   *SQLiteStore
	writer  *DBWriter
	cleaner *RetentionCleaner
	logger  zerolog.Logger
}

// OpenRecorder opens the store and starts the background workers. An empty
// DSN selects MemoryDSN.
func OpenRecorder(cfg RecorderConfig, logger zerolog.Logger) (*Recorder, error) {
	if cfg.DSN == "" {
		cfg.DSN = MemoryDSN
	}
	store, err := NewSQLiteStore(cfg.DSN, logger)
	if err != nil {
		return nil, err
	}
	return &Recorder{
		store:   store,
		writer:  NewDBWriter(store, cfg.Writer, logger),
		cleaner: NewRetentionCleaner(store, cfg.Retention, logger),
		logger:  logger,
	}, nil
}

// Record queues rec. It shows up in Recent after the next flush.
func (r *Recorder) Record(rec *models.RefreshRecord) bool {
	return r.writer.Write(rec)
}

// Recent returns up to limit flushed records, newest first.
func (r *Recorder) Recent(limit int) ([]*models.RefreshRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	return r.store.Recent(limit)
}

// InRange returns up to limit flushed records started within [start, end],
// newest first.
func (r *Recorder) InRange(start, end time.Time, limit int) ([]*models.RefreshRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	return r.store.InRange(start, end, limit)
}

// Stats gathers store, writer and cleaner statistics.
func (r *Recorder) Stats() RecorderStats {
	stats := RecorderStats{
		Writer:    r.writer.Stats(),
		Retention: r.cleaner.Stats(),
	}
	if s, err := r.store.GetStorageStats(); err == nil {
		stats.Storage = s
	} else {
		r.logger.Warn().Err(err).Msg("Failed to read journal stats")
	}
	return stats
}

// Close flushes pending records and closes the store.
func (r *Recorder) Close() error {
	r.cleaner.Stop()
	r.writer.Stop()
	return r.store.Close()
}
