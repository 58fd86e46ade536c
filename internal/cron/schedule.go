package cron

import (
	"time"

	"github.com/robfig/cron/v3"
)

// cronParser understands the standard five-field expression (minute, hour,
// day-of-month, month, day-of-week), with day-of-month/day-of-week combined
// by logical OR when both are restricted — robfig/cron/v3's default
// standard-parser behavior already matches spec §4.8 exactly.
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// ParseSchedule parses a five-field cron expression.
func ParseSchedule(expr string) (cron.Schedule, error) {
	return cronParser.Parse(expr)
}

// Matches reports whether schedule fires at now, with now's timezone
// preserved (spec §4.8: "using the local time zone") and seconds zeroed.
func Matches(schedule cron.Schedule, now time.Time) bool {
	truncated := now.Truncate(time.Minute)
	next := schedule.Next(truncated.Add(-time.Second))
	return next.Equal(truncated)
}
