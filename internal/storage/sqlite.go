package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/versekeeper/versekeeper/internal/streak"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore implements Store on a SQLite database. Timestamps are stored
// as unix seconds so date arithmetic stays portable across drivers.
type SQLiteStore struct {
	db *sqlx.DB
}

// OpenSQLite opens (or creates) the database at dataDir/versekeeper.db and
// applies pending migrations. Pass ":memory:" as dataDir for an in-memory
// database (used by tests).
func OpenSQLite(dataDir string) (*SQLiteStore, error) {
	dsn := ":memory:"
	if dataDir != ":memory:" {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "versekeeper.db")
	}

	db, err := sqlx.Connect("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Single writer; SQLite locks the whole database anyway.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

// migrate applies embedded SQL migrations that have not run yet, in
// filename order, each inside a transaction.
func (s *SQLiteStore) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at INTEGER NOT NULL
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		version, err := strconv.Atoi(strings.SplitN(entry.Name(), "_", 2)[0])
		if err != nil {
			return fmt.Errorf("migration %s: missing numeric prefix: %w", entry.Name(), err)
		}

		var applied int
		if err := s.db.Get(&applied, "SELECT COUNT(*) FROM schema_version WHERE version = ?", version); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if applied > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning migration %d: %w", version, err)
		}
		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", version, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_version (version, applied_at) VALUES (?, ?)",
			version, time.Now().Unix()); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", version, err)
		}
	}
	return nil
}

// verseRow mirrors the verses table.
type verseRow struct {
	ID             string        `db:"id"`
	OwnerID        string        `db:"owner_id"`
	Reference      string        `db:"reference"`
	Body           string        `db:"body"`
	Language       string        `db:"language"`
	EaseFactor     float64       `db:"ease_factor"`
	IntervalDays   int           `db:"interval_days"`
	Repetitions    int           `db:"repetitions"`
	NextReviewTS   int64         `db:"next_review_ts"`
	LastReviewedTS sql.NullInt64 `db:"last_reviewed_ts"`
	TotalReviews   int           `db:"total_reviews"`
	CreatedTS      int64         `db:"created_ts"`
}

func (r verseRow) toVerse() MemoryVerse {
	v := MemoryVerse{
		ID:             r.ID,
		OwnerID:        r.OwnerID,
		Reference:      r.Reference,
		Text:           r.Body,
		Language:       r.Language,
		EaseFactor:     r.EaseFactor,
		IntervalDays:   r.IntervalDays,
		Repetitions:    r.Repetitions,
		NextReviewDate: time.Unix(r.NextReviewTS, 0).UTC(),
		TotalReviews:   r.TotalReviews,
		CreatedAt:      time.Unix(r.CreatedTS, 0).UTC(),
	}
	if r.LastReviewedTS.Valid {
		t := time.Unix(r.LastReviewedTS.Int64, 0).UTC()
		v.LastReviewedAt = &t
	}
	return v
}

func verseArgs(v MemoryVerse) verseRow {
	r := verseRow{
		ID:           v.ID,
		OwnerID:      v.OwnerID,
		Reference:    v.Reference,
		Body:         v.Text,
		Language:     v.Language,
		EaseFactor:   v.EaseFactor,
		IntervalDays: v.IntervalDays,
		Repetitions:  v.Repetitions,
		NextReviewTS: v.NextReviewDate.Unix(),
		TotalReviews: v.TotalReviews,
		CreatedTS:    v.CreatedAt.Unix(),
	}
	if v.LastReviewedAt != nil {
		r.LastReviewedTS = sql.NullInt64{Int64: v.LastReviewedAt.Unix(), Valid: true}
	}
	return r
}

func (s *SQLiteStore) CreateVerse(ctx context.Context, v MemoryVerse) error {
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO verses (
			id, owner_id, reference, body, language, ease_factor,
			interval_days, repetitions, next_review_ts, last_reviewed_ts,
			total_reviews, created_ts
		) VALUES (
			:id, :owner_id, :reference, :body, :language, :ease_factor,
			:interval_days, :repetitions, :next_review_ts, :last_reviewed_ts,
			:total_reviews, :created_ts
		)`, verseArgs(v))
	if err != nil {
		return fmt.Errorf("inserting verse: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetVerse(ctx context.Context, ownerID, verseID string) (MemoryVerse, error) {
	var row verseRow
	err := s.db.GetContext(ctx, &row,
		"SELECT * FROM verses WHERE id = ? AND owner_id = ?", verseID, ownerID)
	if errors.Is(err, sql.ErrNoRows) {
		return MemoryVerse{}, ErrNotFound
	}
	if err != nil {
		return MemoryVerse{}, fmt.Errorf("selecting verse: %w", err)
	}
	return row.toVerse(), nil
}

func (s *SQLiteStore) UpdateVerse(ctx context.Context, v MemoryVerse) error {
	res, err := s.db.NamedExecContext(ctx, `
		UPDATE verses SET
			reference = :reference, body = :body, language = :language,
			ease_factor = :ease_factor, interval_days = :interval_days,
			repetitions = :repetitions, next_review_ts = :next_review_ts,
			last_reviewed_ts = :last_reviewed_ts, total_reviews = :total_reviews
		WHERE id = :id AND owner_id = :owner_id`, verseArgs(v))
	if err != nil {
		return fmt.Errorf("updating verse: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating verse: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) ListVerses(ctx context.Context, ownerID, language string) ([]MemoryVerse, error) {
	query := "SELECT * FROM verses WHERE owner_id = ?"
	args := []any{ownerID}
	if language != "" {
		query += " AND language = ?"
		args = append(args, language)
	}
	query += " ORDER BY next_review_ts ASC"

	var rows []verseRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("listing verses: %w", err)
	}
	verses := make([]MemoryVerse, 0, len(rows))
	for _, r := range rows {
		verses = append(verses, r.toVerse())
	}
	return verses, nil
}

func (s *SQLiteStore) AddReviewEvent(ctx context.Context, ev ReviewEvent) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO review_events (
			id, verse_id, owner_id, quality, reviewed_ts,
			new_ease_factor, new_interval_days, new_repetitions, time_spent_seconds
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.VerseID, ev.OwnerID, ev.Quality, ev.ReviewedAt.Unix(),
		ev.NewEaseFactor, ev.NewIntervalDays, ev.NewRepetitions, ev.TimeSpentSeconds)
	if err != nil {
		return fmt.Errorf("inserting review event: %w", err)
	}
	return nil
}

func (s *SQLiteStore) CountReviewsSince(ctx context.Context, ownerID string, since time.Time) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count,
		"SELECT COUNT(*) FROM review_events WHERE owner_id = ? AND reviewed_ts >= ?",
		ownerID, since.Unix())
	if err != nil {
		return 0, fmt.Errorf("counting reviews: %w", err)
	}
	return count, nil
}

func (s *SQLiteStore) PracticeDaysBetween(ctx context.Context, ownerID string, from, to time.Time) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count, `
		SELECT COUNT(DISTINCT date(reviewed_ts, 'unixepoch'))
		FROM review_events
		WHERE owner_id = ? AND reviewed_ts >= ? AND reviewed_ts < ?`,
		ownerID, from.Unix(), to.Unix())
	if err != nil {
		return 0, fmt.Errorf("counting practice days: %w", err)
	}
	return count, nil
}

// streakRow mirrors the streaks table; milestone dates are a JSON object
// mapping threshold to unix day.
type streakRow struct {
	OwnerID             string `db:"owner_id"`
	CurrentStreak       int    `db:"current_streak"`
	LongestStreak       int    `db:"longest_streak"`
	LastPracticeTS      int64  `db:"last_practice_ts"`
	TotalPracticeDays   int    `db:"total_practice_days"`
	FreezeDaysAvailable int    `db:"freeze_days_available"`
	FreezeDaysUsed      int    `db:"freeze_days_used"`
	MilestoneDates      string `db:"milestone_dates"`
}

func (s *SQLiteStore) GetStreak(ctx context.Context, ownerID string) (streak.Record, error) {
	var row streakRow
	err := s.db.GetContext(ctx, &row, "SELECT * FROM streaks WHERE owner_id = ?", ownerID)
	if errors.Is(err, sql.ErrNoRows) {
		return streak.Record{}, ErrNotFound
	}
	if err != nil {
		return streak.Record{}, fmt.Errorf("selecting streak: %w", err)
	}

	rec := streak.Record{
		OwnerID:             row.OwnerID,
		CurrentStreak:       row.CurrentStreak,
		LongestStreak:       row.LongestStreak,
		LastPracticeDate:    time.Unix(row.LastPracticeTS, 0).UTC(),
		TotalPracticeDays:   row.TotalPracticeDays,
		FreezeDaysAvailable: row.FreezeDaysAvailable,
		FreezeDaysUsed:      row.FreezeDaysUsed,
	}
	if row.MilestoneDates != "" && row.MilestoneDates != "{}" {
		var raw map[int]int64
		if err := json.Unmarshal([]byte(row.MilestoneDates), &raw); err != nil {
			return streak.Record{}, fmt.Errorf("decoding milestone dates: %w", err)
		}
		rec.MilestoneDates = make(map[int]time.Time, len(raw))
		for days, ts := range raw {
			rec.MilestoneDates[days] = time.Unix(ts, 0).UTC()
		}
	}
	return rec, nil
}

func (s *SQLiteStore) SaveStreak(ctx context.Context, rec streak.Record, prevPractice time.Time) error {
	milestones := map[int]int64{}
	for days, date := range rec.MilestoneDates {
		milestones[days] = date.Unix()
	}
	rawMilestones, err := json.Marshal(milestones)
	if err != nil {
		return fmt.Errorf("encoding milestone dates: %w", err)
	}

	if prevPractice.IsZero() {
		res, err := s.db.ExecContext(ctx, `
			INSERT INTO streaks (
				owner_id, current_streak, longest_streak, last_practice_ts,
				total_practice_days, freeze_days_available, freeze_days_used, milestone_dates
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (owner_id) DO NOTHING`,
			rec.OwnerID, rec.CurrentStreak, rec.LongestStreak, rec.LastPracticeDate.Unix(),
			rec.TotalPracticeDays, rec.FreezeDaysAvailable, rec.FreezeDaysUsed, string(rawMilestones))
		if err != nil {
			return fmt.Errorf("inserting streak: %w", err)
		}
		if n, err := res.RowsAffected(); err != nil {
			return fmt.Errorf("inserting streak: %w", err)
		} else if n == 0 {
			return ErrConflict
		}
		return nil
	}

	// Compare-and-set on last_practice_ts so two devices finishing practice
	// at once cannot double-apply a day.
	res, err := s.db.ExecContext(ctx, `
		UPDATE streaks SET
			current_streak = ?, longest_streak = ?, last_practice_ts = ?,
			total_practice_days = ?, freeze_days_available = ?,
			freeze_days_used = ?, milestone_dates = ?
		WHERE owner_id = ? AND last_practice_ts = ?`,
		rec.CurrentStreak, rec.LongestStreak, rec.LastPracticeDate.Unix(),
		rec.TotalPracticeDays, rec.FreezeDaysAvailable, rec.FreezeDaysUsed,
		string(rawMilestones), rec.OwnerID, prevPractice.Unix())
	if err != nil {
		return fmt.Errorf("updating streak: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("updating streak: %w", err)
	} else if n == 0 {
		return ErrConflict
	}
	return nil
}

func (s *SQLiteStore) IncrementDailyStats(ctx context.Context, ownerID string, day time.Time, correct bool) error {
	correctDelta := 0
	if correct {
		correctDelta = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO daily_stats (owner_id, day_ts, reviews, correct)
		VALUES (?, ?, 1, ?)
		ON CONFLICT (owner_id, day_ts) DO UPDATE SET
			reviews = reviews + 1,
			correct = correct + excluded.correct`,
		ownerID, streak.DayOf(day).Unix(), correctDelta)
	if err != nil {
		return fmt.Errorf("updating daily stats: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
