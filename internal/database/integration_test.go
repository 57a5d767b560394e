package database

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := Initialize(filepath.Join(t.TempDir(), "integration.db"))
	if err != nil {
		t.Fatalf("Failed to initialize database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if _, err := db.RunMigrations(context.Background()); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}
	return db
}

// TestDatabaseIntegration tests the complete database lifecycle
func TestDatabaseIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	db := openTestDB(t)
	ctx := context.Background()

	tables := []string{"users", "courses", "chapters", "lessons", "purchases", "lesson_progress"}
	for _, table := range tables {
		var name string
		err := db.QueryRowContext(ctx, "SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		if err != nil {
			t.Errorf("Table %s not found: %v", table, err)
		}
	}

	applied, err := db.RunMigrations(ctx)
	if err != nil {
		t.Fatalf("Second migration run failed: %v", err)
	}
	if len(applied) != 0 {
		t.Errorf("Expected no migrations on second run, got %v", applied)
	}
}

// TestDatabaseTransactions tests commit and rollback through WithTx
func TestDatabaseTransactions(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	db := openTestDB(t)
	ctx := context.Background()

	err := db.WithTx(ctx, func(tx *Tx) error {
		_, err := tx.ExecReturningID(ctx, "INSERT INTO courses (title, currency, price_cents) VALUES (?, ?, ?)", "Committed", "usd", 1000)
		return err
	})
	if err != nil {
		t.Fatalf("WithTx commit failed: %v", err)
	}

	boom := errors.New("boom")
	err = db.WithTx(ctx, func(tx *Tx) error {
		if _, err := tx.ExecContext(ctx, "INSERT INTO courses (title, currency, price_cents) VALUES (?, ?, ?)", "RolledBack", "usd", 1000); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Expected WithTx to return fn error, got %v", err)
	}

	var count int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM courses").Scan(&count); err != nil {
		t.Fatalf("Failed to count courses: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected 1 course after rollback, got %d", count)
	}
}

// TestLessonProgressUpsertIsSticky checks the upsert never clears completion
func TestLessonProgressUpsertIsSticky(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	db := openTestDB(t)
	ctx := context.Background()
	query := db.Dialect.UpsertLessonProgressQuery()
	now := time.Now().UTC()

	// First write completes the lesson.
	if _, err := db.ExecContext(ctx, query, 1, 10, 5, 95.0, true, now, now, true); err != nil {
		t.Fatalf("First upsert failed: %v", err)
	}
	// A later, lower report must not revert completion.
	if _, err := db.ExecContext(ctx, query, 1, 10, 5, 20.0, false, nil, now.Add(time.Minute), true); err != nil {
		t.Fatalf("Second upsert failed: %v", err)
	}
	// A completion-only write keeps the stored video progress.
	if _, err := db.ExecContext(ctx, query, 1, 10, 5, 0.0, true, now.Add(2*time.Minute), now.Add(2*time.Minute), false); err != nil {
		t.Fatalf("Third upsert failed: %v", err)
	}

	var progress float64
	var completed bool
	var completedAt time.Time
	err := db.QueryRowContext(ctx, "SELECT video_progress, completed, completed_at FROM lesson_progress WHERE user_id = ? AND lesson_id = ?", 1, 10).
		Scan(&progress, &completed, &completedAt)
	if err != nil {
		t.Fatalf("Failed to read progress: %v", err)
	}
	if progress != 20.0 {
		t.Errorf("Expected video_progress 20, got %v", progress)
	}
	if !completed {
		t.Error("Expected lesson to stay completed")
	}
	if !completedAt.Equal(now) {
		t.Errorf("Expected completed_at to keep first completion time %v, got %v", now, completedAt)
	}
}

// TestConcurrentProgressWrites tests that concurrent upserts produce one row
func TestConcurrentProgressWrites(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	db := openTestDB(t)
	ctx := context.Background()
	query := db.Dialect.UpsertLessonProgressQuery()

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			now := time.Now().UTC()
			completed := i == 3
			var completedAt any
			if completed {
				completedAt = now
			}
			if _, err := db.ExecContext(ctx, query, 7, 70, 1, float64(i), completed, completedAt, now, true); err != nil {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("Concurrent upsert failed: %v", err)
	}

	var rows int
	var completed bool
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*), MAX(completed) FROM lesson_progress WHERE user_id = ?", 7).Scan(&rows, &completed); err != nil {
		t.Fatalf("Failed to read progress: %v", err)
	}
	if rows != 1 {
		t.Errorf("Expected 1 progress row, got %d", rows)
	}
	if !completed {
		t.Error("Expected the completing write to stick")
	}
}
