// Package testutil provides database fixtures shared by package tests.
package testutil

import (
	"context"
	"path/filepath"
	"testing"

	"coursegate/internal/database"
	"coursegate/internal/models"
	"coursegate/internal/repository"
	"coursegate/internal/security"
)

// OpenDB opens a migrated SQLite database in a temporary directory.
func OpenDB(t testing.TB) *database.DB {
	t.Helper()

	db, err := database.Initialize(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if _, err := db.RunMigrations(context.Background()); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}
	return db
}

// SeedCourse stores a one-chapter course whose lessons have the given
// durations in seconds.
func SeedCourse(t testing.TB, db *database.DB, priceCents int64, durations ...int) *models.Course {
	t.Helper()

	lessons := make([]models.Lesson, len(durations))
	for i, d := range durations {
		lessons[i] = models.Lesson{Title: "Lesson", DurationSeconds: d}
	}
	course := &models.Course{
		Title:             "Course",
		Currency:          "usd",
		PriceCents:        priceCents,
		PremiumPriceCents: priceCents * 2,
		Chapters:          []models.Chapter{{Title: "Chapter", Lessons: lessons}},
	}
	if err := repository.NewCourseRepository(db).CreateCourse(context.Background(), course); err != nil {
		t.Fatalf("failed to seed course: %v", err)
	}
	return course
}

// SeedUser stores a user with the given email and password.
func SeedUser(t testing.TB, db *database.DB, email, password string, isAdmin bool) *models.User {
	t.Helper()

	hash, err := security.HashPassword(password)
	if err != nil {
		t.Fatalf("failed to hash password: %v", err)
	}
	user, err := repository.NewUserRepository(db).CreateUser(context.Background(), email, hash, "Test User", isAdmin)
	if err != nil {
		t.Fatalf("failed to seed user: %v", err)
	}
	return user
}
