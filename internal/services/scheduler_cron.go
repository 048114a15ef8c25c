package services

import (
	"time"

	"github.com/robfig/cron/v3"

	"github.com/soochol/autoflow/internal/autoflow"
)

// DefaultTimezone applies to schedules created without a timezone.
const DefaultTimezone = "UTC"

// NextOccurrence returns the first instant strictly after after at which
// the standard 5-field cron expression fires in timezone tz ("" for UTC).
// Descriptors such as @daily and @every 1h are accepted as well.
func NextOccurrence(expr, tz string, after time.Time) (time.Time, error) {
	sched, err := parseRecurrence(expr, tz)
	if err != nil {
		return time.Time{}, err
	}
	next := sched.Next(after)
	if next.IsZero() {
		return time.Time{}, autoflow.NewConfigError("", "recurrence %q never fires", expr)
	}
	return next.UTC(), nil
}

// parseRecurrence validates tz and parses expr in that zone via the
// CRON_TZ= prefix.
func parseRecurrence(expr, tz string) (cron.Schedule, error) {
	if tz == "" {
		tz = DefaultTimezone
	}
	if _, err := time.LoadLocation(tz); err != nil {
		return nil, autoflow.NewConfigError("", "invalid timezone %q: %v", tz, err)
	}
	sched, err := cron.ParseStandard("CRON_TZ=" + tz + " " + expr)
	if err != nil {
		return nil, autoflow.NewConfigError("", "invalid recurrence expression %q: %v", expr, err)
	}
	return sched, nil
}
