package leaderboard

import (
	"fmt"
	"strings"
	"time"
)

type Period string

const (
	PeriodAllTime Period = "alltime"
	PeriodMonthly Period = "monthly"
	PeriodWeekly  Period = "weekly"
	PeriodDaily   Period = "daily"
)

var Periods = []Period{PeriodAllTime, PeriodMonthly, PeriodWeekly, PeriodDaily}

func ParsePeriod(raw string) (Period, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "alltime", "all-time", "all_time":
		return PeriodAllTime, nil
	case "monthly":
		return PeriodMonthly, nil
	case "weekly":
		return PeriodWeekly, nil
	case "daily":
		return PeriodDaily, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidPeriod, raw)
}

// Window returns the inclusive lower bound on mention time for windowed
// periods. Daily starts at UTC midnight; weekly and monthly are rolling.
func (p Period) Window(now time.Time) (time.Time, bool) {
	now = now.UTC()
	switch p {
	case PeriodDaily:
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC), true
	case PeriodWeekly:
		return now.AddDate(0, 0, -7), true
	case PeriodMonthly:
		return now.AddDate(0, 0, -30), true
	}
	return time.Time{}, false
}
