package normalize

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/golang-module/carbon/v2"

	"reminder/internal/domain"
)

var (
	// ErrInvalidTime is returned when input matches none of the time forms.
	ErrInvalidTime = fmt.Errorf("%w: unrecognised time", domain.ErrInvalidInput)
	// ErrNonexistentLocalTime is returned for wall-clock times skipped by a
	// daylight saving transition.
	ErrNonexistentLocalTime = fmt.Errorf("%w: local time does not exist", domain.ErrInvalidInput)
)

const absoluteLayout = "2006-01-02 15:04"

// maxRelativeMinutes caps relative offsets at roughly a century.
const maxRelativeMinutes = 100 * 365 * 24 * 60

var unitMinutes = map[byte]int{'m': 1, 'h': 60, 'd': 24 * 60, 'w': 7 * 24 * 60}

const timeGuidance = `Accepted forms:
  absolute:  2025-01-31 14:30
  relative:  30m, 2h, 1d, 1w (minutes, hours, days, weeks)
  natural:   today, tomorrow 9am, next monday 14:00, this friday 5pm, sat`

var (
	absoluteRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2} \d{2}:\d{2}$`)
	relativeRe = regexp.MustCompile(`^([1-9]\d*)\s*(m|min|mins|minute|minutes|h|hr|hrs|hour|hours|d|day|days|w|week|weeks)$`)
)

// ParseTime resolves an absolute, relative or natural time expression
// against now. Wall-clock forms are interpreted in now's location.
func ParseTime(input string, now time.Time) (time.Time, error) {
	s := spaceRe.ReplaceAllString(strings.ToLower(strings.TrimSpace(input)), " ")

	if absoluteRe.MatchString(s) {
		return parseAbsolute(s, now.Location())
	}
	if m := relativeRe.FindStringSubmatch(s); m != nil {
		return parseRelative(m[1], m[2], now)
	}
	if t, ok, err := parseNatural(s, now); ok {
		return t, err
	}
	return time.Time{}, fmt.Errorf("%w %q\n\n%s", ErrInvalidTime, input, timeGuidance)
}

func parseAbsolute(s string, loc *time.Location) (time.Time, error) {
	u, err := time.Parse(absoluteLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w %q: %v", ErrInvalidTime, s, err)
	}
	return wallClock(u.Year(), u.Month(), u.Day(), u.Hour(), u.Minute(), loc)
}

func parseRelative(amount, unit string, now time.Time) (time.Time, error) {
	n, err := strconv.Atoi(amount)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: amount %q", ErrInvalidTime, amount)
	}
	if n > maxRelativeMinutes/unitMinutes[unit[0]] {
		return time.Time{}, fmt.Errorf("%w: offset %s%s is too far ahead", ErrInvalidTime, amount, unit)
	}

	c := carbon.Time2Carbon(now)
	loc := now.Location()
	switch unit[0] {
	case 'm':
		return c.AddMinutes(n).Carbon2Time().In(loc), nil
	case 'h':
		return c.AddHours(n).Carbon2Time().In(loc), nil
	case 'd':
		return calendarShift(now, c.AddDays(n).Carbon2Time().In(loc))
	default:
		return calendarShift(now, c.AddWeeks(n).Carbon2Time().In(loc))
	}
}

// calendarShift checks that a day-based offset kept the wall-clock time,
// which only fails when it lands in a spring-forward gap.
func calendarShift(from, to time.Time) (time.Time, error) {
	if to.Hour() != from.Hour() || to.Minute() != from.Minute() {
		return time.Time{}, fmt.Errorf("%w: %s %02d:%02d", ErrNonexistentLocalTime, to.Format("2006-01-02"), from.Hour(), from.Minute())
	}
	return to, nil
}

// parseNatural handles "<date-ref> [<time>]". ok is false when the input
// does not start with a date reference at all.
func parseNatural(s string, now time.Time) (t time.Time, ok bool, err error) {
	tokens := strings.Fields(s)
	if len(tokens) == 0 {
		return time.Time{}, false, nil
	}

	var days int
	rest := tokens[1:]
	switch tokens[0] {
	case "today":
	case "tomorrow":
		days = 1
	case "yesterday":
		days = -1
	case "next", "this":
		if len(tokens) < 2 {
			return time.Time{}, false, nil
		}
		wd, found := parseWeekday(tokens[1])
		if !found {
			return time.Time{}, false, nil
		}
		days = daysUntil(now.Weekday(), wd, tokens[0] == "this")
		rest = tokens[2:]
	default:
		wd, found := parseWeekday(tokens[0])
		if !found {
			return time.Time{}, false, nil
		}
		days = daysUntil(now.Weekday(), wd, false)
	}

	hour, minute := defaultHour, defaultMinute
	if len(rest) > 0 {
		clock := strings.TrimPrefix(strings.Join(rest, " "), "at ")
		h, m, valid := parseClock(clock)
		if !valid {
			return time.Time{}, true, fmt.Errorf("%w: time of day %q\n\n%s", ErrInvalidTime, clock, timeGuidance)
		}
		hour, minute = h, m
	}

	day := carbon.Time2Carbon(now).AddDays(days).Carbon2Time().In(now.Location())
	t, err = wallClock(day.Year(), day.Month(), day.Day(), hour, minute, now.Location())
	return t, true, err
}

// daysUntil counts days from today to the target weekday. Unless
// includeToday is set, a match on today rolls over to next week.
func daysUntil(today, target time.Weekday, includeToday bool) int {
	d := (int(target) - int(today) + 7) % 7
	if d == 0 && !includeToday {
		d = 7
	}
	return d
}

// wallClock builds a local time and rejects instants that do not exist.
func wallClock(year int, month time.Month, day, hour, minute int, loc *time.Location) (time.Time, error) {
	t := time.Date(year, month, day, hour, minute, 0, 0, loc)
	if t.Day() != day || t.Hour() != hour || t.Minute() != minute {
		return time.Time{}, fmt.Errorf("%w: %04d-%02d-%02d %02d:%02d in %s", ErrNonexistentLocalTime, year, month, day, hour, minute, loc)
	}
	return t, nil
}
