// Package schedule computes when recurring ingestion jobs should next run.
// All civil-time arithmetic happens in the civic timezone with an injected
// clock; the host's local zone is never consulted.
package schedule

import (
	"fmt"
	"strings"
	"time"

	"city_ingest/internal/config"
)

// Interval is the recurrence shape of a job.
type Interval string

const (
	IntervalDaily  Interval = "daily"
	IntervalWeekly Interval = "weekly"
)

// JobSpec is the static description of one recurring job.
type JobSpec struct {
	Kind     string
	Interval Interval
	Hour     int
	Weekday  time.Weekday
	Sources  []string
}

// SpecFromConfig converts a validated job config entry.
func SpecFromConfig(kind string, jc config.JobConfig) (JobSpec, error) {
	spec := JobSpec{
		Kind:     kind,
		Interval: Interval(jc.Interval),
		Hour:     jc.Hour,
		Sources:  jc.Sources,
	}
	if spec.Interval == IntervalWeekly {
		wd, err := parseWeekday(jc.Weekday)
		if err != nil {
			return JobSpec{}, err
		}
		spec.Weekday = wd
	}
	return spec, nil
}

func parseWeekday(s string) (time.Weekday, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "sunday":
		return time.Sunday, nil
	case "monday":
		return time.Monday, nil
	case "tuesday":
		return time.Tuesday, nil
	case "wednesday":
		return time.Wednesday, nil
	case "thursday":
		return time.Thursday, nil
	case "friday":
		return time.Friday, nil
	case "saturday":
		return time.Saturday, nil
	}
	return time.Sunday, fmt.Errorf("unknown weekday %q", s)
}

// NextRun computes the next run instant for a job. Disabled jobs have no
// next run. The result is always strictly after now. lastRun guards against
// refiring when a run completes exactly on its own slot boundary.
func NextRun(spec JobSpec, now time.Time, enabled bool, lastRun *time.Time, civicLoc *time.Location) *time.Time {
	if !enabled {
		return nil
	}

	civicNow := now.In(civicLoc)
	var next time.Time

	switch spec.Interval {
	case IntervalDaily:
		next = time.Date(civicNow.Year(), civicNow.Month(), civicNow.Day(), spec.Hour, 0, 0, 0, civicLoc)
		if !next.After(civicNow) {
			next = next.AddDate(0, 0, 1)
		}
	case IntervalWeekly:
		next = time.Date(civicNow.Year(), civicNow.Month(), civicNow.Day(), spec.Hour, 0, 0, 0, civicLoc)
		daysAhead := (int(spec.Weekday) - int(civicNow.Weekday()) + 7) % 7
		next = next.AddDate(0, 0, daysAhead)
		if !next.After(civicNow) {
			next = next.AddDate(0, 0, 7)
		}
	default:
		return nil
	}

	if lastRun != nil && !next.After(lastRun.In(civicLoc)) {
		switch spec.Interval {
		case IntervalDaily:
			next = next.AddDate(0, 0, 1)
		case IntervalWeekly:
			next = next.AddDate(0, 0, 7)
		}
	}

	return &next
}
