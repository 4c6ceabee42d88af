package sm2

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// genQuality generates a valid 0-5 quality rating.
func genQuality() gopter.Gen {
	return gen.IntRange(0, 5).Map(func(v int) Quality { return Quality(v) })
}

// genQualitySequence generates a sequence of valid ratings.
func genQualitySequence(maxLen int) gopter.Gen {
	return gen.SliceOf(genQuality()).SuchThat(func(qs []Quality) bool {
		return len(qs) > 0 && len(qs) <= maxLen
	})
}

// applySequence runs a full review history against a fresh verse state,
// advancing the clock by the scheduled interval between reviews.
func applySequence(t *testing.T, qs []Quality) ReviewState {
	t.Helper()
	s := NewScheduler()
	now := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)
	state := NewReviewState(now)
	for i, q := range qs {
		var err error
		state, err = s.ComputeNext(state, q, now)
		if err != nil {
			t.Fatalf("review %d (quality %d): %v", i+1, q, err)
		}
		now = now.AddDate(0, 0, state.IntervalDays)
	}
	return state
}

func TestPolicyProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("failed recall always resets repetitions and interval", prop.ForAll(
		func(ease float64, interval, reps, quality int) bool {
			s := NewScheduler()
			next, err := s.ComputeNext(ReviewState{
				EaseFactor:   ease,
				IntervalDays: interval,
				Repetitions:  reps,
			}, Quality(quality), time.Now())
			return err == nil && next.Repetitions == 0 && next.IntervalDays == 1
		},
		gen.Float64Range(MinEaseFactor, 3.0),
		gen.IntRange(1, MaxIntervalDays),
		gen.IntRange(0, 50),
		gen.IntRange(0, 2),
	))

	properties.Property("successful recall inside cementing period keeps interval at one day", prop.ForAll(
		func(ease float64, interval, reps, quality int) bool {
			s := NewScheduler()
			next, err := s.ComputeNext(ReviewState{
				EaseFactor:   ease,
				IntervalDays: interval,
				Repetitions:  reps,
			}, Quality(quality), time.Now())
			return err == nil && next.IntervalDays == 1 && next.Repetitions == reps+1
		},
		gen.Float64Range(MinEaseFactor, 3.0),
		gen.IntRange(1, MaxIntervalDays),
		gen.IntRange(0, DailyCementingReps-1),
		gen.IntRange(3, 5),
	))

	properties.Property("ease factor never drops below the minimum over any history", prop.ForAll(
		func(qs []Quality) bool {
			return applySequence(t, qs).EaseFactor >= MinEaseFactor
		},
		genQualitySequence(60),
	))

	properties.Property("interval never exceeds the cap over any history", prop.ForAll(
		func(qs []Quality) bool {
			final := applySequence(t, qs)
			return final.IntervalDays >= 1 && final.IntervalDays <= MaxIntervalDays
		},
		genQualitySequence(60),
	))

	properties.Property("next review date is always in the future", prop.ForAll(
		func(ease float64, interval, reps, quality int) bool {
			s := NewScheduler()
			now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
			next, err := s.ComputeNext(ReviewState{
				EaseFactor:   ease,
				IntervalDays: interval,
				Repetitions:  reps,
			}, Quality(quality), now)
			return err == nil && next.NextReviewDate.After(now)
		},
		gen.Float64Range(MinEaseFactor, 3.0),
		gen.IntRange(1, MaxIntervalDays),
		gen.IntRange(0, 50),
		gen.IntRange(0, 5),
	))

	properties.TestingRun(t)
}
