// Package streak maintains per-user practice streaks: consecutive-day
// counting, milestone achievements, and the freeze-day economy. All logic is
// pure; callers load and persist the record.
package streak

import (
	"time"
)

const (
	// MaxFreezeDays caps how many freeze days a user can bank.
	MaxFreezeDays = 5
	// FreezeEarnThreshold is the number of distinct practice days within one
	// ISO week required to earn a freeze day.
	FreezeEarnThreshold = 5
)

// Milestone is a streak-length achievement awarded once per record.
type Milestone struct {
	Days     int    `json:"days"`
	Name     string `json:"name"`
	XPReward int    `json:"xp_reward"`
}

// Milestones lists every achievement threshold in ascending order.
var Milestones = []Milestone{
	{Days: 10, Name: "daily_devotion", XPReward: 50},
	{Days: 30, Name: "monthly_faithful", XPReward: 150},
	{Days: 100, Name: "century_of_grace", XPReward: 500},
	{Days: 365, Name: "year_of_devotion", XPReward: 2000},
}

// Record is the persistent streak state for one user. LastPracticeDate and
// milestone dates are day-granular: midnight UTC.
type Record struct {
	OwnerID             string            `json:"owner_id"`
	CurrentStreak       int               `json:"current_streak"`
	LongestStreak       int               `json:"longest_streak"`
	LastPracticeDate    time.Time         `json:"last_practice_date"`
	TotalPracticeDays   int               `json:"total_practice_days"`
	FreezeDaysAvailable int               `json:"freeze_days_available"`
	FreezeDaysUsed      int               `json:"freeze_days_used"`
	// MilestoneDates maps a threshold to the day it was first reached.
	MilestoneDates map[int]time.Time `json:"milestone_dates,omitempty"`
}

// Result reports the outcome of recording one practice day.
type Result struct {
	Record Record
	// Continued is true when today extended the streak or repeated a day
	// already counted; false on creation and on a reset after a gap.
	Continued bool
	// Milestone is non-nil when a threshold was crossed for the first time.
	Milestone *Milestone
	// FreezeDayEarned is true when this call banked a freeze day.
	FreezeDayEarned bool
}

// DayOf truncates t to its UTC calendar day.
func DayOf(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// WeekStart returns the Monday beginning the ISO week containing day.
func WeekStart(day time.Time) time.Time {
	d := DayOf(day)
	offset := (int(d.Weekday()) + 6) % 7 // Monday=0 ... Sunday=6
	return d.AddDate(0, 0, -offset)
}

// RecordPractice folds one practice day into rec and returns the updated
// record plus any events. rec may be nil (first-ever practice).
// practiceDaysThisWeek is the count of distinct days with at least one review
// in the ISO week containing today, including today; the caller derives it
// from the review log.
//
// Freeze days are only ever earned here, never consumed: a gap of two or more
// days resets the streak outright. That mirrors the shipped behavior even
// though freeze days were presumably meant to bridge a missed day.
func RecordPractice(rec *Record, today time.Time, practiceDaysThisWeek int) Result {
	day := DayOf(today)

	if rec == nil {
		r := Record{
			CurrentStreak:     1,
			LongestStreak:     1,
			LastPracticeDate:  day,
			TotalPracticeDays: 1,
		}
		return Result{
			Record:          r,
			FreezeDayEarned: maybeEarnFreeze(&r, practiceDaysThisWeek),
		}
	}

	updated := *rec
	updated.MilestoneDates = cloneMilestones(rec.MilestoneDates)
	last := DayOf(rec.LastPracticeDate)

	if day.Equal(last) {
		// Already counted today; duplicate or retried request.
		return Result{Record: updated, Continued: true}
	}

	prevStreak := rec.CurrentStreak
	if day.Equal(last.AddDate(0, 0, 1)) {
		updated.CurrentStreak = prevStreak + 1
	} else {
		updated.CurrentStreak = 1
	}
	if updated.CurrentStreak > updated.LongestStreak {
		updated.LongestStreak = updated.CurrentStreak
	}
	updated.TotalPracticeDays = rec.TotalPracticeDays + 1
	updated.LastPracticeDate = day

	res := Result{
		Record:    updated,
		Continued: updated.CurrentStreak > 1,
	}

	// Thresholds are mutually exclusive per call since the streak grows by
	// at most one day, so the first match is the only match.
	for i, m := range Milestones {
		if prevStreak < m.Days && m.Days <= updated.CurrentStreak {
			if _, seen := updated.MilestoneDates[m.Days]; !seen {
				if updated.MilestoneDates == nil {
					updated.MilestoneDates = make(map[int]time.Time)
				}
				updated.MilestoneDates[m.Days] = day
				res.Milestone = &Milestones[i]
			}
			break
		}
	}

	res.FreezeDayEarned = maybeEarnFreeze(&updated, practiceDaysThisWeek)
	res.Record = updated
	return res
}

// maybeEarnFreeze awards at most one freeze day per ISO week: the count of
// practice days grows by one per day, so it equals the threshold exactly once
// per week.
func maybeEarnFreeze(rec *Record, practiceDaysThisWeek int) bool {
	if practiceDaysThisWeek == FreezeEarnThreshold && rec.FreezeDaysAvailable < MaxFreezeDays {
		rec.FreezeDaysAvailable++
		return true
	}
	return false
}

func cloneMilestones(m map[int]time.Time) map[int]time.Time {
	if m == nil {
		return nil
	}
	out := make(map[int]time.Time, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
