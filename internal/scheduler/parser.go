package scheduler

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Off disables a schedule that would otherwise fall back to a default.
const Off = "off"

const maxInterval = 365 * 24 * time.Hour

var (
	// Six-field expressions carry a leading seconds field.
	cronParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

	intervalPattern = regexp.MustCompile(`^every\s+(\d+)\s*([a-z]+)$`)

	intervalUnits = map[string]time.Duration{
		"s": time.Second, "sec": time.Second, "second": time.Second, "seconds": time.Second,
		"m": time.Minute, "min": time.Minute, "minute": time.Minute, "minutes": time.Minute,
		"h": time.Hour, "hour": time.Hour, "hours": time.Hour,
		"d": 24 * time.Hour, "day": 24 * time.Hour, "days": 24 * time.Hour,
	}
)

// ParseSchedule parses a class or maintenance schedule. It accepts cron
// expressions with five or six fields, descriptors such as "@hourly" and
// "@every 90s", and intervals written as "every 5m".
func ParseSchedule(expr string) (cron.Schedule, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, errors.New("schedule expression cannot be empty")
	}
	if Disabled(expr) {
		return nil, fmt.Errorf("schedule %q is disabled", expr)
	}

	lower := strings.ToLower(expr)
	if strings.HasPrefix(lower, "every ") {
		every, err := parseInterval(lower)
		if err != nil {
			return nil, fmt.Errorf("invalid interval %q: %w", expr, err)
		}
		return cron.Every(every), nil
	}

	schedule, err := cronParser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return schedule, nil
}

func parseInterval(expr string) (time.Duration, error) {
	m := intervalPattern.FindStringSubmatch(expr)
	if m == nil {
		return 0, errors.New("expected 'every <number><unit>', e.g. 'every 5m'")
	}
	unit, ok := intervalUnits[m[2]]
	if !ok {
		return 0, fmt.Errorf("unsupported time unit %q", m[2])
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n <= 0 {
		return 0, errors.New("interval must be a positive integer")
	}

	every := time.Duration(n) * unit
	if every > maxInterval {
		return 0, errors.New("interval cannot exceed 1 year")
	}
	return every, nil
}

// Disabled reports whether expr turns its task off.
func Disabled(expr string) bool {
	return strings.EqualFold(strings.TrimSpace(expr), Off)
}

// ValidateSchedule reports whether expr parses.
func ValidateSchedule(expr string) error {
	_, err := ParseSchedule(expr)
	return err
}

// NextRun returns the first activation of expr after from, in from's
// location.
func NextRun(expr string, from time.Time) (time.Time, error) {
	schedule, err := ParseSchedule(expr)
	if err != nil {
		return time.Time{}, err
	}
	return schedule.Next(from), nil
}
