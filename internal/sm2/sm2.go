// Package sm2 implements the spaced repetition interval policy used for
// memory verse review. It is a two-phase variant of SuperMemo-2: verses are
// repeated daily during an initial cementing period, and only perfect recall
// afterwards unlocks a fixed progressive spacing table.
package sm2

import (
	"errors"
	"fmt"
	"math"
	"time"
)

const (
	// InitialEaseFactor is the ease factor assigned to a verse that has
	// never been reviewed.
	InitialEaseFactor = 2.5
	// MinEaseFactor is the floor below which the ease factor never drops.
	MinEaseFactor = 1.3
	// MaxIntervalDays caps the review interval at roughly six months.
	MaxIntervalDays = 180
	// DailyCementingReps is the number of consecutive successful reviews
	// during which the interval stays at one day regardless of ease factor.
	DailyCementingReps = 14
	// MasteredReps is the repetition count at which a verse is considered
	// mastered for statistics purposes.
	MasteredReps = 5
)

// progressiveIntervals is the spacing table used once a verse leaves the
// daily cementing period with a perfect recall. It is indexed by
// (repetitions - DailyCementingReps - 1) and clamps to its last entry.
var progressiveIntervals = []int{3, 7, 14, 21, 30, 45, 60, 90, 120, 150, 180}

// Quality is the 0-5 recall quality rating from a graded review.
type Quality int

const (
	// QualityBlackout means total failure to recall the verse.
	QualityBlackout Quality = 0
	// QualityWrongRemembered means an incorrect response, but the verse was
	// remembered once seen.
	QualityWrongRemembered Quality = 1
	// QualityWrongFamiliar means an incorrect response that felt familiar.
	QualityWrongFamiliar Quality = 2
	// QualityHard means correct recall with significant effort.
	QualityHard Quality = 3
	// QualityHesitant means correct recall after some hesitation.
	QualityHesitant Quality = 4
	// QualityPerfect means flawless recall.
	QualityPerfect Quality = 5
)

// PassThreshold is the lowest quality counted as a successful recall.
const PassThreshold = QualityHard

// Valid reports whether q is inside the 0-5 rating scale.
func (q Quality) Valid() bool {
	return q >= QualityBlackout && q <= QualityPerfect
}

// Passing reports whether q counts as a successful recall.
func (q Quality) Passing() bool {
	return q >= PassThreshold
}

// ErrInvalidQuality is returned when a rating falls outside the 0-5 scale.
var ErrInvalidQuality = errors.New("quality rating must be between 0 and 5")

// ErrCorruptState is returned when a scheduling state violates its
// invariants (negative interval or repetitions, ease factor below minimum).
var ErrCorruptState = errors.New("corrupt scheduling state")

// ReviewState is the scheduling state of a single verse.
type ReviewState struct {
	EaseFactor     float64
	IntervalDays   int
	Repetitions    int
	NextReviewDate time.Time
}

// NewReviewState returns the state assigned to a verse that has never been
// reviewed: due immediately with the default ease factor.
func NewReviewState(now time.Time) ReviewState {
	return ReviewState{
		EaseFactor:     InitialEaseFactor,
		IntervalDays:   1,
		Repetitions:    0,
		NextReviewDate: now,
	}
}

// Scheduler computes the next scheduling state for a graded review.
type Scheduler interface {
	// ComputeNext applies a quality rating to the current state and returns
	// the next one. It never mutates its input and performs no I/O.
	ComputeNext(current ReviewState, quality Quality, now time.Time) (ReviewState, error)

	// ReviewPriority scores a verse for due-queue ordering; higher means
	// review sooner.
	ReviewPriority(state ReviewState, now time.Time) float64
}

type scheduler struct{}

// NewScheduler returns the default interval policy.
func NewScheduler() Scheduler {
	return scheduler{}
}

// ComputeNext implements the Scheduler interface.
func (scheduler) ComputeNext(current ReviewState, quality Quality, now time.Time) (ReviewState, error) {
	if !quality.Valid() {
		return ReviewState{}, fmt.Errorf("%w: got %d", ErrInvalidQuality, quality)
	}
	if current.IntervalDays < 0 || current.Repetitions < 0 {
		return ReviewState{}, fmt.Errorf("%w: interval=%d repetitions=%d",
			ErrCorruptState, current.IntervalDays, current.Repetitions)
	}

	next := current

	// Canonical SM-2 ease factor adjustment, floored at the minimum.
	delta := 0.1 - float64(5-quality)*(0.08+float64(5-quality)*0.02)
	next.EaseFactor = round2(math.Max(MinEaseFactor, current.EaseFactor+delta))

	if !quality.Passing() {
		// Failed recall: back to daily review from scratch.
		next.Repetitions = 0
		next.IntervalDays = 1
	} else {
		next.Repetitions = current.Repetitions + 1
		switch {
		case next.Repetitions <= DailyCementingReps:
			// Cementing period: repeat daily no matter how easy the verse
			// feels. Deliberately overrides classic SM-2.
			next.IntervalDays = 1
		case quality == QualityPerfect:
			next.IntervalDays = progressiveInterval(next.Repetitions - DailyCementingReps - 1)
		default:
			// Correct but not perfect: grow slowly until recall is flawless.
			next.IntervalDays = current.IntervalDays + 1
		}
	}

	if next.IntervalDays > MaxIntervalDays {
		next.IntervalDays = MaxIntervalDays
	}
	next.NextReviewDate = now.AddDate(0, 0, next.IntervalDays)

	return next, nil
}

// ReviewPriority implements the Scheduler interface. Overdue verses score
// higher the longer they have waited; verses not yet due decay below 1.
func (scheduler) ReviewPriority(state ReviewState, now time.Time) float64 {
	overdueDays := now.Sub(state.NextReviewDate).Hours() / 24.0
	if overdueDays >= 0 {
		return 1.0 + overdueDays*0.1
	}
	return 1.0 / (1.0 - overdueDays)
}

// Mastered reports whether a verse counts as mastered: it has accumulated
// enough consecutive successful reviews to be in strong retention.
func Mastered(state ReviewState) bool {
	return state.Repetitions >= MasteredReps
}

// progressiveInterval returns the spacing table entry for idx, clamping past
// the end of the table.
func progressiveInterval(idx int) int {
	if idx < 0 {
		idx = 0
	}
	if idx >= len(progressiveIntervals) {
		idx = len(progressiveIntervals) - 1
	}
	return progressiveIntervals[idx]
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
