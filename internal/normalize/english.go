package normalize

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	defaultHour   = 9
	defaultMinute = 0
)

var (
	spaceRe      = regexp.MustCompile(`\s+`)
	everyNRe     = regexp.MustCompile(`^every (\d+) ?(seconds?|secs?|s|minutes?|mins?|m|hours?|hrs?|h)$`)
	everyDayRe   = regexp.MustCompile(`^every day(?: at (.+))?$`)
	weekdaysRe   = regexp.MustCompile(`^every weekdays?(?: at (.+))?$`)
	weekendRe    = regexp.MustCompile(`^every weekends?(?: at (.+))?$`)
	everyWeekRe  = regexp.MustCompile(`^every week(?: on ([a-z]+))?(?: at (.+))?$`)
	everyMonthRe = regexp.MustCompile(`^every month(?: on the (\d{1,2})(?:st|nd|rd|th)?)?(?: at (.+))?$`)
	dayListRe    = regexp.MustCompile(`^every ([a-z, ]+?)(?: at (.+))?$`)
	listSplitRe  = regexp.MustCompile(`\s*(?:,|\band\b|\s)\s*`)
)

// translateEnglish maps a recurrence phrase to a six-field cron expression.
// The result is not validated here.
func translateEnglish(input string) (string, bool) {
	s := spaceRe.ReplaceAllString(strings.ToLower(strings.TrimSpace(input)), " ")

	switch s {
	case "every second":
		return "* * * * * *", true
	case "every minute":
		return "0 * * * * *", true
	case "every hour", "hourly":
		return "0 0 * * * *", true
	case "daily":
		return daily("*", "*", defaultHour, defaultMinute), true
	case "weekly":
		return daily("*", "1", defaultHour, defaultMinute), true
	case "monthly":
		return daily("1", "*", defaultHour, defaultMinute), true
	}

	if m := everyNRe.FindStringSubmatch(s); m != nil {
		n, err := strconv.Atoi(m[1])
		if err != nil || n < 1 {
			return "", false
		}
		switch m[2][0] {
		case 's':
			if n > 59 {
				return "", false
			}
			return fmt.Sprintf("*/%d * * * * *", n), true
		case 'm':
			if n > 59 {
				return "", false
			}
			return fmt.Sprintf("0 */%d * * * *", n), true
		default:
			if n > 23 {
				return "", false
			}
			return fmt.Sprintf("0 0 */%d * * *", n), true
		}
	}

	if m := everyDayRe.FindStringSubmatch(s); m != nil {
		return atClock("*", "*", m[1])
	}
	if m := weekdaysRe.FindStringSubmatch(s); m != nil {
		return atClock("*", "1-5", m[1])
	}
	if m := weekendRe.FindStringSubmatch(s); m != nil {
		return atClock("*", "0,6", m[1])
	}
	if m := everyWeekRe.FindStringSubmatch(s); m != nil {
		dow := "1"
		if m[1] != "" {
			d, ok := parseWeekday(m[1])
			if !ok {
				return "", false
			}
			dow = strconv.Itoa(int(d))
		}
		return atClock("*", dow, m[2])
	}
	if m := everyMonthRe.FindStringSubmatch(s); m != nil {
		dom := "1"
		if m[1] != "" {
			n, _ := strconv.Atoi(m[1])
			if n < 1 || n > 31 {
				return "", false
			}
			dom = strconv.Itoa(n)
		}
		return atClock(dom, "*", m[2])
	}
	if m := dayListRe.FindStringSubmatch(s); m != nil {
		dow, ok := weekdayList(m[1])
		if !ok {
			return "", false
		}
		return atClock("*", dow, m[2])
	}
	return "", false
}

func atClock(dom, dow, clock string) (string, bool) {
	if clock == "" {
		return daily(dom, dow, defaultHour, defaultMinute), true
	}
	h, m, ok := parseClock(clock)
	if !ok {
		return "", false
	}
	return daily(dom, dow, h, m), true
}

func daily(dom, dow string, hour, minute int) string {
	return fmt.Sprintf("0 %d %d %s * %s", minute, hour, dom, dow)
}

// weekdayList turns "monday, wednesday and friday" into "1,3,5".
func weekdayList(s string) (string, bool) {
	seen := map[time.Weekday]bool{}
	for _, part := range listSplitRe.Split(strings.TrimSpace(s), -1) {
		if part == "" {
			continue
		}
		d, ok := parseWeekday(part)
		if !ok {
			return "", false
		}
		seen[d] = true
	}
	if len(seen) == 0 {
		return "", false
	}
	days := make([]int, 0, len(seen))
	for d := range seen {
		days = append(days, int(d))
	}
	sort.Ints(days)
	parts := make([]string, len(days))
	for i, d := range days {
		parts[i] = strconv.Itoa(d)
	}
	return strings.Join(parts, ","), true
}
