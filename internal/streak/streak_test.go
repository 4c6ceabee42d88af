package streak

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestRecordPracticeFirstEver(t *testing.T) {
	today := day(2024, 3, 15)
	res := RecordPractice(nil, today, 1)

	assert.Equal(t, 1, res.Record.CurrentStreak)
	assert.Equal(t, 1, res.Record.LongestStreak)
	assert.Equal(t, 1, res.Record.TotalPracticeDays)
	assert.True(t, res.Record.LastPracticeDate.Equal(today))
	assert.False(t, res.Continued)
	assert.Nil(t, res.Milestone)
	assert.False(t, res.FreezeDayEarned)
}

func TestRecordPracticeSameDayIdempotent(t *testing.T) {
	today := day(2024, 3, 15)
	rec := Record{
		CurrentStreak:     4,
		LongestStreak:     9,
		LastPracticeDate:  today,
		TotalPracticeDays: 12,
	}

	res := RecordPractice(&rec, today, 3)
	assert.True(t, res.Continued)
	assert.Nil(t, res.Milestone)
	assert.False(t, res.FreezeDayEarned)
	if diff := cmp.Diff(rec, res.Record); diff != "" {
		t.Errorf("same-day update changed the record (-want +got):\n%s", diff)
	}

	// A second same-day call yields the identical record again.
	res2 := RecordPractice(&res.Record, today.Add(6*time.Hour), 3)
	if diff := cmp.Diff(res.Record, res2.Record); diff != "" {
		t.Errorf("repeated same-day update changed the record (-want +got):\n%s", diff)
	}
}

func TestRecordPracticeConsecutiveDay(t *testing.T) {
	rec := Record{
		CurrentStreak:     4,
		LongestStreak:     4,
		LastPracticeDate:  day(2024, 3, 14),
		TotalPracticeDays: 4,
	}

	res := RecordPractice(&rec, day(2024, 3, 15), 2)
	assert.Equal(t, 5, res.Record.CurrentStreak)
	assert.Equal(t, 5, res.Record.LongestStreak)
	assert.Equal(t, 5, res.Record.TotalPracticeDays)
	assert.True(t, res.Continued)
}

func TestRecordPracticeGapResets(t *testing.T) {
	rec := Record{
		CurrentStreak:       20,
		LongestStreak:       20,
		LastPracticeDate:    day(2024, 3, 10),
		TotalPracticeDays:   20,
		FreezeDaysAvailable: 2,
	}

	// Two-day gap: the streak resets and no freeze day is consumed.
	res := RecordPractice(&rec, day(2024, 3, 13), 1)
	assert.Equal(t, 1, res.Record.CurrentStreak)
	assert.Equal(t, 20, res.Record.LongestStreak, "longest streak survives a reset")
	assert.Equal(t, 21, res.Record.TotalPracticeDays)
	assert.Equal(t, 2, res.Record.FreezeDaysAvailable, "freeze days are never spent")
	assert.False(t, res.Continued)
}

func TestMilestoneReached(t *testing.T) {
	rec := Record{
		CurrentStreak:     9,
		LongestStreak:     9,
		LastPracticeDate:  day(2024, 3, 14),
		TotalPracticeDays: 9,
	}

	res := RecordPractice(&rec, day(2024, 3, 15), 2)
	if assert.NotNil(t, res.Milestone) {
		assert.Equal(t, 10, res.Milestone.Days)
		assert.Equal(t, "daily_devotion", res.Milestone.Name)
		assert.Equal(t, 50, res.Milestone.XPReward)
	}
	assert.True(t, res.Record.MilestoneDates[10].Equal(day(2024, 3, 15)))
}

func TestMilestoneReportedOnlyOnce(t *testing.T) {
	// A record that already earned the 10-day milestone, broke the streak,
	// and climbed back to 10 must not report it a second time.
	rec := Record{
		CurrentStreak:     9,
		LongestStreak:     15,
		LastPracticeDate:  day(2024, 5, 1),
		TotalPracticeDays: 40,
		MilestoneDates:    map[int]time.Time{10: day(2024, 2, 10)},
	}

	res := RecordPractice(&rec, day(2024, 5, 2), 2)
	assert.Equal(t, 10, res.Record.CurrentStreak)
	assert.Nil(t, res.Milestone)
	assert.True(t, res.Record.MilestoneDates[10].Equal(day(2024, 2, 10)), "milestone date is write-once")
}

func TestMilestoneNotSkipped(t *testing.T) {
	// Crossing 30 reports 30, not 10, when 10 was already recorded.
	rec := Record{
		CurrentStreak:     29,
		LongestStreak:     29,
		LastPracticeDate:  day(2024, 5, 1),
		TotalPracticeDays: 29,
		MilestoneDates:    map[int]time.Time{10: day(2024, 4, 12)},
	}

	res := RecordPractice(&rec, day(2024, 5, 2), 2)
	if assert.NotNil(t, res.Milestone) {
		assert.Equal(t, 30, res.Milestone.Days)
		assert.Equal(t, "monthly_faithful", res.Milestone.Name)
	}
}

func TestFreezeDayEconomy(t *testing.T) {
	rec := Record{
		CurrentStreak:     4,
		LongestStreak:     4,
		LastPracticeDate:  day(2024, 3, 14), // Thursday
		TotalPracticeDays: 4,
	}

	// Fifth distinct practice day this week earns exactly one freeze day.
	res := RecordPractice(&rec, day(2024, 3, 15), 5)
	assert.True(t, res.FreezeDayEarned)
	assert.Equal(t, 1, res.Record.FreezeDaysAvailable)

	// Sixth practice day in the same week does not earn another.
	res2 := RecordPractice(&res.Record, day(2024, 3, 16), 6)
	assert.False(t, res2.FreezeDayEarned)
	assert.Equal(t, 1, res2.Record.FreezeDaysAvailable)
}

func TestFreezeDayCap(t *testing.T) {
	rec := Record{
		CurrentStreak:       30,
		LongestStreak:       30,
		LastPracticeDate:    day(2024, 3, 14),
		TotalPracticeDays:   30,
		FreezeDaysAvailable: MaxFreezeDays,
	}

	res := RecordPractice(&rec, day(2024, 3, 15), 5)
	assert.False(t, res.FreezeDayEarned)
	assert.Equal(t, MaxFreezeDays, res.Record.FreezeDaysAvailable)
}

func TestWeekStart(t *testing.T) {
	tests := []struct {
		name string
		in   time.Time
		want time.Time
	}{
		{"monday maps to itself", day(2024, 3, 11), day(2024, 3, 11)},
		{"friday maps back to monday", day(2024, 3, 15), day(2024, 3, 11)},
		{"sunday belongs to the preceding monday", day(2024, 3, 17), day(2024, 3, 11)},
		{"next monday starts a new week", day(2024, 3, 18), day(2024, 3, 18)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := WeekStart(tt.in)
			if !got.Equal(tt.want) {
				t.Errorf("WeekStart(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestDayOfNormalizesToUTC(t *testing.T) {
	loc := time.FixedZone("IST", 5*3600+1800)
	// 02:00 IST on March 16 is still March 15 in UTC.
	in := time.Date(2024, 3, 16, 2, 0, 0, 0, loc)
	assert.True(t, DayOf(in).Equal(day(2024, 3, 15)))
}
