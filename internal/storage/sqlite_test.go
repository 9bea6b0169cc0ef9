package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/afroash/ledger-monitor/internal/models"
)

// testLogger creates a logger for tests
func testLogger() zerolog.Logger {
	return zerolog.New(os.Stdout).With().Timestamp().Logger().Level(zerolog.WarnLevel)
}

// setupTestDB creates a temporary journal database
func setupTestDB(t *testing.T) (*SQLiteStore, func()) {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "journal-test-*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}

	store, err := NewSQLiteStore(filepath.Join(tmpDir, "test.db"), testLogger())
	if err != nil {
		os.RemoveAll(tmpDir)
		t.Fatalf("Failed to create store: %v", err)
	}

	cleanup := func() {
		store.Close()
		os.RemoveAll(tmpDir)
	}

	return store, cleanup
}

// createTestRecord builds a finished record started at startedAt
func createTestRecord(trigger string, count int, failure error, startedAt time.Time) *models.RefreshRecord {
	rec := models.NewRefreshRecord(trigger)
	rec.StartedAt = startedAt.UTC()
	rec.FinishedAt = rec.StartedAt.Add(250 * time.Millisecond)
	rec.ReadingCount = count
	if failure != nil {
		rec.Error = failure.Error()
	}
	return rec
}

// insertOne stores a single record through the batch path
func insertOne(store *SQLiteStore, rec *models.RefreshRecord) error {
	return store.InsertBatch([]*models.RefreshRecord{rec})
}

func TestNewSQLiteStore(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()

	if store.db == nil {
		t.Fatal("Expected non-nil database connection")
	}
}

func TestNewSQLiteStore_InvalidPath(t *testing.T) {
	_, err := NewSQLiteStore("/nonexistent/path/that/cannot/exist/test.db", testLogger())
	if err == nil {
		t.Fatal("Expected error for invalid path")
	}
}

func TestNewSQLiteStore_Memory(t *testing.T) {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	store, err := NewSQLiteStore(dsn, testLogger())
	if err != nil {
		t.Fatalf("NewSQLiteStore(memory) failed: %v", err)
	}
	defer store.Close()

	if err := insertOne(store, createTestRecord("timer", 3, nil, time.Now())); err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	recs, err := store.Recent(10)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(recs) != 1 {
		t.Errorf("len(Recent) = %d, want 1", len(recs))
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()

	for i := 0; i < 2; i++ {
		if err := store.Migrate(); err != nil {
			t.Fatalf("Migration %d failed: %v", i+2, err)
		}
	}
}

func TestInsert_RoundTrip(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()

	started := time.Now().UTC().Truncate(time.Millisecond)
	rec := createTestRecord("manual", 42, errors.New("fetch reading 7: execution reverted"), started)

	if err := insertOne(store, rec); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	recs, err := store.Recent(1)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("len(Recent) = %d, want 1", len(recs))
	}

	got := recs[0]
	if got.ID != rec.ID {
		t.Errorf("ID = %s, want %s", got.ID, rec.ID)
	}
	if got.Trigger != "manual" {
		t.Errorf("Trigger = %q, want manual", got.Trigger)
	}
	if !got.StartedAt.Equal(started) {
		t.Errorf("StartedAt = %v, want %v", got.StartedAt, started)
	}
	if got.Duration() != 250*time.Millisecond {
		t.Errorf("Duration = %v, want 250ms", got.Duration())
	}
	if got.ReadingCount != 42 {
		t.Errorf("ReadingCount = %d, want 42", got.ReadingCount)
	}
	if got.OK() {
		t.Error("OK() = true, want false")
	}
}

func TestInsert_DuplicateID(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()

	rec := createTestRecord("timer", 1, nil, time.Now())
	if err := insertOne(store, rec); err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	if err := insertOne(store, rec); err == nil {
		t.Error("Expected error inserting duplicate id")
	}
}

func TestInsertBatch(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()

	base := time.Now().UTC()
	recs := make([]*models.RefreshRecord, 50)
	for i := range recs {
		var failure error
		if i%10 == 0 {
			failure = errors.New("rpc timeout")
		}
		recs[i] = createTestRecord("timer", i, failure, base.Add(time.Duration(i)*time.Second))
	}

	if err := store.InsertBatch(recs); err != nil {
		t.Fatalf("InsertBatch failed: %v", err)
	}

	stats, err := store.GetStorageStats()
	if err != nil {
		t.Fatalf("GetStorageStats failed: %v", err)
	}
	if stats.TotalRefreshes != 50 {
		t.Errorf("TotalRefreshes = %d, want 50", stats.TotalRefreshes)
	}
	if stats.FailedRefreshes != 5 {
		t.Errorf("FailedRefreshes = %d, want 5", stats.FailedRefreshes)
	}
	if stats.NewestRefresh.Before(stats.OldestRefresh) {
		t.Errorf("NewestRefresh %v before OldestRefresh %v", stats.NewestRefresh, stats.OldestRefresh)
	}
}

func TestInsertBatch_Empty(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()

	if err := store.InsertBatch(nil); err != nil {
		t.Fatalf("InsertBatch(nil) failed: %v", err)
	}
	if err := store.InsertBatch([]*models.RefreshRecord{}); err != nil {
		t.Fatalf("InsertBatch(empty) failed: %v", err)
	}
}

func TestRecent_NewestFirstWithLimit(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()

	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 10; i++ {
		insertOne(store, createTestRecord("timer", i, nil, base.Add(time.Duration(i)*time.Minute)))
	}

	recs, err := store.Recent(3)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("len(Recent) = %d, want 3", len(recs))
	}
	for i, want := range []int{9, 8, 7} {
		if recs[i].ReadingCount != want {
			t.Errorf("recs[%d].ReadingCount = %d, want %d", i, recs[i].ReadingCount, want)
		}
	}
}

func TestInRange(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()

	base := time.Now().UTC().Add(-time.Hour).Truncate(time.Second)
	for i := 0; i < 6; i++ {
		insertOne(store, createTestRecord("timer", i, nil, base.Add(time.Duration(i)*10*time.Minute)))
	}

	tests := []struct {
		name  string
		start time.Time
		end   time.Time
		want  int
	}{
		{"all", base, base.Add(time.Hour), 6},
		{"middle", base.Add(15 * time.Minute), base.Add(35 * time.Minute), 2},
		{"inclusive bounds", base.Add(10 * time.Minute), base.Add(20 * time.Minute), 2},
		{"none", base.Add(-time.Hour), base.Add(-time.Minute), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recs, err := store.InRange(tt.start, tt.end, 100)
			if err != nil {
				t.Fatalf("InRange failed: %v", err)
			}
			if len(recs) != tt.want {
				t.Errorf("len(InRange) = %d, want %d", len(recs), tt.want)
			}
		})
	}
}

func TestDeleteOlderThan(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()

	now := time.Now().UTC()
	for i := 0; i < 4; i++ {
		insertOne(store, createTestRecord("timer", i, nil, now.Add(-48*time.Hour)))
		insertOne(store, createTestRecord("timer", i, nil, now.Add(-time.Duration(i)*time.Minute)))
	}

	deleted, err := store.DeleteOlderThan(24 * time.Hour)
	if err != nil {
		t.Fatalf("DeleteOlderThan failed: %v", err)
	}
	if deleted != 4 {
		t.Errorf("deleted = %d, want 4", deleted)
	}

	stats, _ := store.GetStorageStats()
	if stats.TotalRefreshes != 4 {
		t.Errorf("TotalRefreshes = %d, want 4", stats.TotalRefreshes)
	}
}

func TestGetStorageStats_Empty(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()

	stats, err := store.GetStorageStats()
	if err != nil {
		t.Fatalf("GetStorageStats failed: %v", err)
	}
	if stats.TotalRefreshes != 0 {
		t.Errorf("TotalRefreshes = %d, want 0", stats.TotalRefreshes)
	}
	if !stats.OldestRefresh.IsZero() {
		t.Error("OldestRefresh should be zero for an empty journal")
	}
}

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		in      string
		wantErr bool
	}{
		{"2024-01-02 03:04:05.678", false},
		{"2024-01-02 03:04:05", false},
		{"2024-01-02T03:04:05.678Z", false},
		{"yesterday", true},
	}
	for _, tt := range tests {
		_, err := parseTimestamp(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseTimestamp(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
	}
}
