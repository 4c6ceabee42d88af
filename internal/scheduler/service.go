// Package scheduler glues the interval policy and streak tracker to
// persistence and exposes the review-scheduling API consumed by the
// transports.
package scheduler

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/versekeeper/versekeeper/internal/sm2"
	"github.com/versekeeper/versekeeper/internal/storage"
	"github.com/versekeeper/versekeeper/internal/streak"
)

const (
	// DefaultPageLimit is the due-verse page size when the caller does not
	// specify one.
	DefaultPageLimit = 20
	// MaxPageLimit bounds a single due-verse page.
	MaxPageLimit = 100
	// upcomingWindowDays is the look-ahead window for the "upcoming"
	// statistic.
	upcomingWindowDays = 7
)

// Service orchestrates reviews, due queries, and streak updates against a
// persistence store. It holds no mutable state of its own; every operation
// is a short-lived request.
type Service struct {
	store  storage.Store
	policy sm2.Scheduler
	logger *zap.Logger
	now    func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the wall clock, letting tests pin "now".
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithPolicy overrides the default interval policy.
func WithPolicy(p sm2.Scheduler) Option {
	return func(s *Service) { s.policy = p }
}

// New creates a Service on top of a store.
func New(store storage.Store, logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		store:  store,
		policy: sm2.NewScheduler(),
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ReviewResult is the outcome of one graded review.
type ReviewResult struct {
	Verse storage.MemoryVerse `json:"verse"`
	// StreakMaintained is true when the recall succeeded (quality >= 3).
	StreakMaintained bool `json:"streak_maintained"`
}

// SubmitReview grades one verse. The verse update is the only write that
// must succeed; the review-log append and daily aggregate are best-effort.
func (s *Service) SubmitReview(ctx context.Context, ownerID, verseID string, quality sm2.Quality, timeSpentSeconds int) (ReviewResult, error) {
	if ownerID == "" {
		return ReviewResult{}, validationf("owner id is required")
	}
	if verseID == "" {
		return ReviewResult{}, validationf("verse id is required")
	}
	if !quality.Valid() {
		return ReviewResult{}, validationf("quality rating must be between 0 and 5, got %d", quality)
	}
	if timeSpentSeconds < 0 {
		return ReviewResult{}, validationf("time spent must not be negative, got %d", timeSpentSeconds)
	}

	now := s.now()
	s.logger.Debug("submitting review",
		zap.String("owner_id", ownerID),
		zap.String("verse_id", verseID),
		zap.Int("quality", int(quality)))

	verse, err := s.store.GetVerse(ctx, ownerID, verseID)
	if err != nil {
		return ReviewResult{}, s.mapStoreErr("get verse", err)
	}

	next, err := s.policy.ComputeNext(sm2.ReviewState{
		EaseFactor:   verse.EaseFactor,
		IntervalDays: verse.IntervalDays,
		Repetitions:  verse.Repetitions,
	}, quality, now)
	if err != nil {
		if errors.Is(err, sm2.ErrInvalidQuality) || errors.Is(err, sm2.ErrCorruptState) {
			return ReviewResult{}, &ValidationError{Msg: err.Error()}
		}
		return ReviewResult{}, err
	}

	verse.EaseFactor = next.EaseFactor
	verse.IntervalDays = next.IntervalDays
	verse.Repetitions = next.Repetitions
	verse.NextReviewDate = next.NextReviewDate
	verse.LastReviewedAt = &now
	verse.TotalReviews++

	// The authoritative scheduling state: all-or-nothing.
	if err := s.store.UpdateVerse(ctx, verse); err != nil {
		return ReviewResult{}, s.mapStoreErr("update verse", err)
	}

	// Review log and daily aggregate are analytics; losing one is
	// acceptable, losing the verse update is not.
	ev := storage.ReviewEvent{
		ID:               uuid.New().String(),
		VerseID:          verse.ID,
		OwnerID:          ownerID,
		Quality:          int(quality),
		ReviewedAt:       now,
		NewEaseFactor:    next.EaseFactor,
		NewIntervalDays:  next.IntervalDays,
		NewRepetitions:   next.Repetitions,
		TimeSpentSeconds: timeSpentSeconds,
	}
	if err := s.store.AddReviewEvent(ctx, ev); err != nil {
		s.logger.Warn("failed to append review event",
			zap.String("verse_id", verse.ID), zap.Error(err))
	}
	if err := s.store.IncrementDailyStats(ctx, ownerID, now, quality.Passing()); err != nil {
		s.logger.Warn("failed to update daily stats",
			zap.String("owner_id", ownerID), zap.Error(err))
	}

	s.logger.Debug("review applied",
		zap.String("verse_id", verse.ID),
		zap.Float64("ease_factor", verse.EaseFactor),
		zap.Int("interval_days", verse.IntervalDays),
		zap.Int("repetitions", verse.Repetitions),
		zap.Time("next_review", verse.NextReviewDate))

	return ReviewResult{Verse: verse, StreakMaintained: quality.Passing()}, nil
}

// DueFilters narrows and pages a due-verse query.
type DueFilters struct {
	Limit    int
	Offset   int
	Language string
	// ShowAll includes verses that are not due yet.
	ShowAll bool
}

// Statistics summarizes one user's deck.
type Statistics struct {
	Total         int `json:"total"`
	Due           int `json:"due"`
	ReviewedToday int `json:"reviewed_today"`
	UpcomingWeek  int `json:"upcoming_week"`
	Mastered      int `json:"mastered"`
}

// Page echoes pagination state back to the caller.
type Page struct {
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	HasMore bool `json:"has_more"`
}

// DueResult is the response of a due-verse query.
type DueResult struct {
	Verses []storage.MemoryVerse `json:"verses"`
	Stats  Statistics            `json:"statistics"`
	Page   Page                  `json:"pagination"`
}

// DueVerses returns the verses due for review, most overdue first, along
// with deck statistics.
func (s *Service) DueVerses(ctx context.Context, ownerID string, f DueFilters) (DueResult, error) {
	if ownerID == "" {
		return DueResult{}, validationf("owner id is required")
	}
	if f.Limit == 0 {
		f.Limit = DefaultPageLimit
	}
	if f.Limit < 1 || f.Limit > MaxPageLimit {
		return DueResult{}, validationf("limit must be between 1 and %d, got %d", MaxPageLimit, f.Limit)
	}
	if f.Offset < 0 {
		return DueResult{}, validationf("offset must not be negative, got %d", f.Offset)
	}

	now := s.now()
	verses, err := s.store.ListVerses(ctx, ownerID, f.Language)
	if err != nil {
		return DueResult{}, s.mapStoreErr("list verses", err)
	}

	stats := Statistics{Total: len(verses)}
	upcomingCutoff := now.AddDate(0, 0, upcomingWindowDays)
	selected := make([]storage.MemoryVerse, 0, len(verses))
	for _, v := range verses {
		due := !v.NextReviewDate.After(now)
		if due {
			stats.Due++
		} else if !v.NextReviewDate.After(upcomingCutoff) {
			stats.UpcomingWeek++
		}
		if v.Repetitions >= sm2.MasteredReps {
			stats.Mastered++
		}
		if due || f.ShowAll {
			selected = append(selected, v)
		}
	}

	reviewedToday, err := s.store.CountReviewsSince(ctx, ownerID, streak.DayOf(now))
	if err != nil {
		// Statistics only; the due list is still answerable.
		s.logger.Warn("failed to count today's reviews",
			zap.String("owner_id", ownerID), zap.Error(err))
	}
	stats.ReviewedToday = reviewedToday

	sort.Slice(selected, func(i, j int) bool {
		if !selected[i].NextReviewDate.Equal(selected[j].NextReviewDate) {
			return selected[i].NextReviewDate.Before(selected[j].NextReviewDate)
		}
		return selected[i].ID < selected[j].ID
	})

	page := Page{Limit: f.Limit, Offset: f.Offset}
	start := f.Offset
	if start > len(selected) {
		start = len(selected)
	}
	end := start + f.Limit
	if end > len(selected) {
		end = len(selected)
	}
	page.HasMore = end < len(selected)

	return DueResult{Verses: selected[start:end], Stats: stats, Page: page}, nil
}

// StreakResult is the outcome of recording today's practice.
type StreakResult struct {
	Record streak.Record `json:"record"`
	// Continued is true when today extended an existing streak or repeated
	// an already-counted day.
	Continued       bool              `json:"streak_continued"`
	Milestone       *streak.Milestone `json:"milestone_reached,omitempty"`
	FreezeDayEarned bool              `json:"freeze_day_earned"`
}

// UpdateStreak folds "the user practiced now" into their streak record.
// Same-day repeats are idempotent; concurrent updates from two devices
// resolve through the store's guarded upsert.
func (s *Service) UpdateStreak(ctx context.Context, ownerID string) (StreakResult, error) {
	if ownerID == "" {
		return StreakResult{}, validationf("owner id is required")
	}

	now := s.now()
	var rec *streak.Record
	existing, err := s.store.GetStreak(ctx, ownerID)
	switch {
	case err == nil:
		rec = &existing
	case errors.Is(err, storage.ErrNotFound):
		// First-ever practice.
	default:
		return StreakResult{}, s.mapStoreErr("get streak", err)
	}

	// Idempotent fast path: today is already counted.
	if rec != nil && streak.DayOf(now).Equal(streak.DayOf(rec.LastPracticeDate)) {
		return StreakResult{Record: *rec, Continued: true}, nil
	}

	practiceDays, err := s.practiceDaysThisWeek(ctx, ownerID, now)
	if err != nil {
		return StreakResult{}, s.mapStoreErr("count practice days", err)
	}

	res := streak.RecordPractice(rec, now, practiceDays)
	res.Record.OwnerID = ownerID

	var prevPractice time.Time
	if rec != nil {
		prevPractice = rec.LastPracticeDate
	}
	if err := s.store.SaveStreak(ctx, res.Record, prevPractice); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			// Another device won the same-day race; report its result.
			s.logger.Debug("streak update lost race, reloading",
				zap.String("owner_id", ownerID))
			current, getErr := s.store.GetStreak(ctx, ownerID)
			if getErr != nil {
				return StreakResult{}, s.mapStoreErr("reload streak", getErr)
			}
			return StreakResult{Record: current, Continued: true}, nil
		}
		return StreakResult{}, s.mapStoreErr("save streak", err)
	}

	if res.Milestone != nil {
		s.logger.Info("streak milestone reached",
			zap.String("owner_id", ownerID),
			zap.Int("days", res.Milestone.Days),
			zap.String("name", res.Milestone.Name))
	}

	return StreakResult{
		Record:          res.Record,
		Continued:       res.Continued,
		Milestone:       res.Milestone,
		FreezeDayEarned: res.FreezeDayEarned,
	}, nil
}

// practiceDaysThisWeek counts distinct review days in the ISO week holding
// now, counting today even when today's review has not hit the log yet.
func (s *Service) practiceDaysThisWeek(ctx context.Context, ownerID string, now time.Time) (int, error) {
	weekStart := streak.WeekStart(now)
	days, err := s.store.PracticeDaysBetween(ctx, ownerID, weekStart, weekStart.AddDate(0, 0, 7))
	if err != nil {
		return 0, err
	}
	today, err := s.store.CountReviewsSince(ctx, ownerID, streak.DayOf(now))
	if err != nil {
		return 0, err
	}
	if today == 0 {
		days++
	}
	return days, nil
}

// CreateVerse adds a verse to the owner's deck, due immediately.
func (s *Service) CreateVerse(ctx context.Context, ownerID, reference, text, language string) (storage.MemoryVerse, error) {
	if ownerID == "" {
		return storage.MemoryVerse{}, validationf("owner id is required")
	}
	if reference == "" {
		return storage.MemoryVerse{}, validationf("verse reference is required")
	}
	if text == "" {
		return storage.MemoryVerse{}, validationf("verse text is required")
	}
	if language == "" {
		language = "en"
	}

	now := s.now()
	state := sm2.NewReviewState(now)
	verse := storage.MemoryVerse{
		ID:             uuid.New().String(),
		OwnerID:        ownerID,
		Reference:      reference,
		Text:           text,
		Language:       language,
		EaseFactor:     state.EaseFactor,
		IntervalDays:   state.IntervalDays,
		Repetitions:    state.Repetitions,
		NextReviewDate: state.NextReviewDate,
		CreatedAt:      now,
	}
	if err := s.store.CreateVerse(ctx, verse); err != nil {
		return storage.MemoryVerse{}, s.mapStoreErr("create verse", err)
	}

	s.logger.Debug("verse created",
		zap.String("verse_id", verse.ID),
		zap.String("owner_id", ownerID),
		zap.String("reference", reference))
	return verse, nil
}

// GetVerse returns one verse owned by ownerID.
func (s *Service) GetVerse(ctx context.Context, ownerID, verseID string) (storage.MemoryVerse, error) {
	if ownerID == "" {
		return storage.MemoryVerse{}, validationf("owner id is required")
	}
	if verseID == "" {
		return storage.MemoryVerse{}, validationf("verse id is required")
	}
	verse, err := s.store.GetVerse(ctx, ownerID, verseID)
	if err != nil {
		return storage.MemoryVerse{}, s.mapStoreErr("get verse", err)
	}
	return verse, nil
}

// ListVerses returns the owner's whole deck, optionally filtered by
// language.
func (s *Service) ListVerses(ctx context.Context, ownerID, language string) ([]storage.MemoryVerse, error) {
	if ownerID == "" {
		return nil, validationf("owner id is required")
	}
	verses, err := s.store.ListVerses(ctx, ownerID, language)
	if err != nil {
		return nil, s.mapStoreErr("list verses", err)
	}
	sort.Slice(verses, func(i, j int) bool {
		return verses[i].NextReviewDate.Before(verses[j].NextReviewDate)
	})
	return verses, nil
}

// mapStoreErr translates storage errors into the service taxonomy.
func (s *Service) mapStoreErr(op string, err error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return ErrNotFound
	}
	return &StorageError{Op: op, Err: err}
}
