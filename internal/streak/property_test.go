package streak

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// genGapSequence generates day gaps between successive practice events:
// 0 = same day again, 1 = next day, larger = a break in practice.
func genGapSequence() gopter.Gen {
	return gen.SliceOf(gen.IntRange(0, 4)).SuchThat(func(gaps []int) bool {
		return len(gaps) > 0 && len(gaps) <= 120
	})
}

func TestStreakProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	run := func(gaps []int, check func(prev, cur Record) bool) bool {
		var rec *Record
		today := start
		for _, gap := range gaps {
			today = today.AddDate(0, 0, gap)
			var prev Record
			if rec != nil {
				prev = *rec
			}
			res := RecordPractice(rec, today, 1)
			if rec != nil && !check(prev, res.Record) {
				return false
			}
			r := res.Record
			rec = &r
		}
		return true
	}

	properties.Property("current streak never exceeds longest streak", prop.ForAll(
		func(gaps []int) bool {
			return run(gaps, func(_, cur Record) bool {
				return cur.CurrentStreak <= cur.LongestStreak
			})
		},
		genGapSequence(),
	))

	properties.Property("longest streak is non-decreasing", prop.ForAll(
		func(gaps []int) bool {
			return run(gaps, func(prev, cur Record) bool {
				return cur.LongestStreak >= prev.LongestStreak
			})
		},
		genGapSequence(),
	))

	properties.Property("total practice days counts each calendar day once", prop.ForAll(
		func(gaps []int) bool {
			var rec *Record
			today := start
			days := map[time.Time]struct{}{}
			for _, gap := range gaps {
				today = today.AddDate(0, 0, gap)
				days[DayOf(today)] = struct{}{}
				res := RecordPractice(rec, today, 1)
				r := res.Record
				rec = &r
			}
			return rec.TotalPracticeDays == len(days)
		},
		genGapSequence(),
	))

	properties.Property("same-day replay is a no-op", prop.ForAll(
		func(gaps []int) bool {
			var rec *Record
			today := start
			for _, gap := range gaps {
				today = today.AddDate(0, 0, gap)
				res := RecordPractice(rec, today, 1)
				replay := RecordPractice(&res.Record, today, 1)
				if replay.Record.CurrentStreak != res.Record.CurrentStreak ||
					replay.Record.TotalPracticeDays != res.Record.TotalPracticeDays ||
					replay.Record.FreezeDaysAvailable != res.Record.FreezeDaysAvailable ||
					replay.Milestone != nil || replay.FreezeDayEarned {
					return false
				}
				r := res.Record
				rec = &r
			}
			return true
		},
		genGapSequence(),
	))

	properties.Property("each milestone is reported at most once per record", prop.ForAll(
		func(gaps []int) bool {
			var rec *Record
			today := start
			seen := map[int]int{}
			for _, gap := range gaps {
				today = today.AddDate(0, 0, gap)
				res := RecordPractice(rec, today, 1)
				if res.Milestone != nil {
					seen[res.Milestone.Days]++
					if seen[res.Milestone.Days] > 1 {
						return false
					}
				}
				r := res.Record
				rec = &r
			}
			return true
		},
		genGapSequence(),
	))

	properties.TestingRun(t)
}
