// Package storage defines the persistence port for the scheduling service
// and its two implementations: a JSON file store and a SQLite store.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/versekeeper/versekeeper/internal/streak"
)

// ErrNotFound is returned when a requested record does not exist or is not
// owned by the requesting user.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned by SaveStreak when the guarded update lost to a
// concurrent writer; the caller should reload the record.
var ErrConflict = errors.New("concurrent streak update")

// MemoryVerse is a verse under spaced repetition for one user.
type MemoryVerse struct {
	ID             string     `json:"id" db:"id"`
	OwnerID        string     `json:"owner_id" db:"owner_id"`
	Reference      string     `json:"reference" db:"reference"`
	Text           string     `json:"text" db:"body"`
	Language       string     `json:"language" db:"language"`
	EaseFactor     float64    `json:"ease_factor" db:"ease_factor"`
	IntervalDays   int        `json:"interval_days" db:"interval_days"`
	Repetitions    int        `json:"repetitions" db:"repetitions"`
	NextReviewDate time.Time  `json:"next_review_date" db:"next_review_date"`
	LastReviewedAt *time.Time `json:"last_reviewed_at,omitempty" db:"last_reviewed_at"`
	TotalReviews   int        `json:"total_reviews" db:"total_reviews"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
}

// ReviewEvent is one graded review, immutable once written. It snapshots the
// scheduling state that resulted from the review.
type ReviewEvent struct {
	ID               string    `json:"id" db:"id"`
	VerseID          string    `json:"verse_id" db:"verse_id"`
	OwnerID          string    `json:"owner_id" db:"owner_id"`
	Quality          int       `json:"quality" db:"quality"`
	ReviewedAt       time.Time `json:"reviewed_at" db:"reviewed_at"`
	NewEaseFactor    float64   `json:"new_ease_factor" db:"new_ease_factor"`
	NewIntervalDays  int       `json:"new_interval_days" db:"new_interval_days"`
	NewRepetitions   int       `json:"new_repetitions" db:"new_repetitions"`
	TimeSpentSeconds int       `json:"time_spent_seconds,omitempty" db:"time_spent_seconds"`
}

// DailyStats aggregates one user's reviews for one UTC calendar day.
type DailyStats struct {
	OwnerID string    `json:"owner_id" db:"owner_id"`
	Day     time.Time `json:"day" db:"day"`
	Reviews int       `json:"reviews" db:"reviews"`
	Correct int       `json:"correct" db:"correct"`
}

// Store is the persistence port consumed by the scheduling service.
type Store interface {
	// Verse operations. Get and Update are scoped by owner: a verse owned
	// by someone else reads as ErrNotFound.
	CreateVerse(ctx context.Context, v MemoryVerse) error
	GetVerse(ctx context.Context, ownerID, verseID string) (MemoryVerse, error)
	UpdateVerse(ctx context.Context, v MemoryVerse) error
	// ListVerses returns all verses for an owner, optionally restricted to
	// one language. Ordering, due filtering, and pagination are the
	// service's concern.
	ListVerses(ctx context.Context, ownerID, language string) ([]MemoryVerse, error)

	// Review log (append-only).
	AddReviewEvent(ctx context.Context, ev ReviewEvent) error
	CountReviewsSince(ctx context.Context, ownerID string, since time.Time) (int, error)
	// PracticeDaysBetween counts distinct UTC calendar days with at least
	// one review in [from, to).
	PracticeDaysBetween(ctx context.Context, ownerID string, from, to time.Time) (int, error)

	// Streaks. SaveStreak is an atomic guarded upsert: it inserts when no
	// record exists, and otherwise applies only if the stored
	// last_practice_date still equals prevPractice. A losing writer gets
	// ErrConflict and no partial write.
	GetStreak(ctx context.Context, ownerID string) (streak.Record, error)
	SaveStreak(ctx context.Context, rec streak.Record, prevPractice time.Time) error

	// Daily aggregates (best-effort analytics).
	IncrementDailyStats(ctx context.Context, ownerID string, day time.Time, correct bool) error

	Close() error
}
