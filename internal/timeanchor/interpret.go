package timeanchor

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/pawdesk/pawdesk-platform/internal/apperr"
)

var (
	reISODate  = regexp.MustCompile(`\b(\d{4})-(\d{1,2})-(\d{1,2})\b`)
	reSlash    = regexp.MustCompile(`\b(\d{1,2})/(\d{1,2})(?:/(\d{2,4}))?\b`)
	reClockMer = regexp.MustCompile(`\b(\d{1,2})(?::(\d{2}))?\s*(am|pm)\b`)
	reClock24  = regexp.MustCompile(`\b(\d{1,2}):(\d{2})\b`)
	reMonthDay = regexp.MustCompile(`\b(january|february|march|april|may|june|july|august|september|october|november|december|jan|feb|mar|apr|jun|jul|aug|sep|sept|oct|nov|dec)\.?\s+(\d{1,2})(?:st|nd|rd|th)?(?:\s+(\d{4}))?\b`)
	reRelative = regexp.MustCompile(`\bin\s+([a-z0-9]+)\s+(minute|minutes|hour|hours|day|days|week|weeks)\b`)
	reISOGlue  = regexp.MustCompile(`(\d{4}-\d{1,2}-\d{1,2})t(\d)`)
)

var monthsByName = map[string]time.Month{
	"january": time.January, "jan": time.January,
	"february": time.February, "feb": time.February,
	"march": time.March, "mar": time.March,
	"april": time.April, "apr": time.April,
	"may":  time.May,
	"june": time.June, "jun": time.June,
	"july": time.July, "jul": time.July,
	"august": time.August, "aug": time.August,
	"september": time.September, "sep": time.September, "sept": time.September,
	"october": time.October, "oct": time.October,
	"november": time.November, "nov": time.November,
	"december": time.December, "dec": time.December,
}

var weekdaysByName = map[string]time.Weekday{
	"sunday": time.Sunday, "sun": time.Sunday,
	"monday": time.Monday, "mon": time.Monday,
	"tuesday": time.Tuesday, "tue": time.Tuesday, "tues": time.Tuesday,
	"wednesday": time.Wednesday, "wed": time.Wednesday,
	"thursday": time.Thursday, "thu": time.Thursday, "thur": time.Thursday, "thurs": time.Thursday,
	"friday": time.Friday, "fri": time.Friday,
	"saturday": time.Saturday, "sat": time.Saturday,
}

var smallNumbers = map[string]int{
	"one": 1, "two": 2, "three": 3, "four": 4, "five": 5, "six": 6,
	"seven": 7, "eight": 8, "nine": 9, "ten": 10, "eleven": 11, "twelve": 12,
	"a": 1, "an": 1, "couple": 2, "few": 3,
}

// localDate is a calendar date in the practice timezone.
type localDate struct {
	year  int
	month time.Month
	day   int
}

// clockReading is a wall-clock time extracted from the expression.
type clockReading struct {
	hour, minute int
}

// Interpret parses a human time expression against the practice timezone.
// Relative anchors ("today", "next friday", "in two hours") resolve against
// nowUTC projected into loc. The result is a point when the expression is
// unambiguous to the minute, otherwise a window.
func Interpret(expression string, loc *time.Location, nowUTC time.Time) (Resolution, error) {
	if loc == nil {
		return Resolution{}, apperr.New(apperr.CodeUnknownTimezone, "timezone is required")
	}
	expr := normalize(expression)
	if expr == "" {
		return Resolution{}, apperr.New(apperr.CodeUnparseable, "empty time expression")
	}
	nowLocal := nowUTC.In(loc)

	// "in two hours", "in 30 minutes": pure offsets from now.
	if m := reRelative.FindStringSubmatch(expr); m != nil {
		n, ok := smallNumbers[m[1]]
		if !ok {
			parsed, err := strconv.Atoi(m[1])
			if err != nil {
				return Resolution{}, apperr.Newf(apperr.CodeUnparseable, "cannot read quantity %q", m[1])
			}
			n = parsed
		}
		var unit time.Duration
		switch strings.TrimSuffix(m[2], "s") {
		case "minute":
			unit = time.Minute
		case "hour":
			unit = time.Hour
		case "day":
			unit = 24 * time.Hour
		default:
			unit = 7 * 24 * time.Hour
		}
		at := nowUTC.Add(time.Duration(n) * unit).Truncate(time.Minute)
		return Resolution{Point: true, At: at}, nil
	}

	part, hasPart := extractDaypart(expr)
	reading, hasTime, err := extractClock(expr, part, hasPart)
	if err != nil {
		return Resolution{}, err
	}
	date, hasDate, err := extractDate(expr, nowLocal)
	if err != nil {
		return Resolution{}, err
	}

	switch {
	case hasDate && hasTime:
		at, err := resolveLocalTime(date.year, date.month, date.day, reading.hour, reading.minute, loc)
		if err != nil {
			return Resolution{}, err
		}
		return Resolution{Point: true, At: at}, nil

	case hasDate && hasPart:
		start, end := DaypartWindow(date.year, date.month, date.day, part, loc)
		return Resolution{Start: start, End: end}, nil

	case hasDate:
		start, end := DayBounds(date.year, date.month, date.day, loc)
		return Resolution{Start: start, End: end}, nil

	case hasTime:
		// Time with no date: today, or tomorrow once the time has passed.
		at, err := resolveLocalTime(nowLocal.Year(), nowLocal.Month(), nowLocal.Day(), reading.hour, reading.minute, loc)
		if err != nil || at.Before(nowUTC) {
			next := nowLocal.AddDate(0, 0, 1)
			at, err = resolveLocalTime(next.Year(), next.Month(), next.Day(), reading.hour, reading.minute, loc)
			if err != nil {
				return Resolution{}, err
			}
		}
		return Resolution{Point: true, At: at}, nil

	case hasPart:
		start, end := DaypartWindow(nowLocal.Year(), nowLocal.Month(), nowLocal.Day(), part, loc)
		if !end.After(nowUTC) {
			next := nowLocal.AddDate(0, 0, 1)
			start, end = DaypartWindow(next.Year(), next.Month(), next.Day(), part, loc)
		}
		return Resolution{Start: start, End: end}, nil
	}

	return Resolution{}, apperr.Newf(apperr.CodeUnparseable, "cannot interpret %q", expression)
}

func normalize(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = reISOGlue.ReplaceAllString(s, "$1 $2")
	s = strings.NewReplacer(",", " ", ".", " ", "a m", "am", "p m", "pm").Replace(s)
	return strings.Join(strings.Fields(s), " ")
}

func extractDaypart(expr string) (Daypart, bool) {
	switch {
	case strings.Contains(expr, "morning"):
		return DaypartMorning, true
	case strings.Contains(expr, "afternoon"):
		return DaypartAfternoon, true
	case strings.Contains(expr, "evening"), strings.Contains(expr, "tonight"):
		return DaypartEvening, true
	}
	return "", false
}

// extractClock pulls a wall-clock time out of the expression. A bare
// "hh:mm" without AM/PM is taken literally when the hour can only be a
// 24-hour reading; otherwise both future readings are plausible and the
// expression is AMBIGUOUS unless a daypart disambiguates.
func extractClock(expr string, part Daypart, hasPart bool) (clockReading, bool, error) {
	if strings.Contains(expr, "noon") {
		return clockReading{hour: 12}, true, nil
	}
	if strings.Contains(expr, "midnight") {
		return clockReading{hour: 0}, true, nil
	}

	if m := reClockMer.FindStringSubmatch(expr); m != nil {
		hour, _ := strconv.Atoi(m[1])
		minute := 0
		if m[2] != "" {
			minute, _ = strconv.Atoi(m[2])
		}
		if hour < 1 || hour > 12 || minute > 59 {
			return clockReading{}, false, apperr.Newf(apperr.CodeUnparseable, "invalid clock reading %q", m[0])
		}
		if m[3] == "pm" && hour != 12 {
			hour += 12
		}
		if m[3] == "am" && hour == 12 {
			hour = 0
		}
		return clockReading{hour: hour, minute: minute}, true, nil
	}

	if m := reClock24.FindStringSubmatch(expr); m != nil {
		hour, _ := strconv.Atoi(m[1])
		minute, _ := strconv.Atoi(m[2])
		if hour > 23 || minute > 59 {
			return clockReading{}, false, apperr.Newf(apperr.CodeUnparseable, "invalid clock reading %q", m[0])
		}
		if hour >= 13 || hour == 0 || hour == 12 {
			return clockReading{hour: hour, minute: minute}, true, nil
		}
		// ISO datetimes are 24-hour by convention.
		if reISODate.MatchString(expr) {
			return clockReading{hour: hour, minute: minute}, true, nil
		}
		if hasPart {
			if part != DaypartMorning {
				hour += 12
			}
			return clockReading{hour: hour, minute: minute}, true, nil
		}
		return clockReading{}, false, apperr.Newf(apperr.CodeAmbiguous,
			"%s could be morning or evening; please say AM or PM", m[0])
	}

	return clockReading{}, false, nil
}

func extractDate(expr string, nowLocal time.Time) (localDate, bool, error) {
	if m := reISODate.FindStringSubmatch(expr); m != nil {
		year, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		day, _ := strconv.Atoi(m[3])
		if month < 1 || month > 12 || day < 1 || day > 31 {
			return localDate{}, false, apperr.Newf(apperr.CodeUnparseable, "invalid date %q", m[0])
		}
		return localDate{year, time.Month(month), day}, true, nil
	}

	if m := reMonthDay.FindStringSubmatch(expr); m != nil {
		month := monthsByName[m[1]]
		day, _ := strconv.Atoi(m[2])
		if day < 1 || day > 31 {
			return localDate{}, false, apperr.Newf(apperr.CodeUnparseable, "invalid day %q", m[2])
		}
		year := nowLocal.Year()
		if m[3] != "" {
			year, _ = strconv.Atoi(m[3])
		} else if beforeDate(month, day, nowLocal) {
			// A month-day already behind us this year means next year.
			year++
		}
		return localDate{year, month, day}, true, nil
	}

	if m := reSlash.FindStringSubmatch(expr); m != nil {
		month, _ := strconv.Atoi(m[1])
		day, _ := strconv.Atoi(m[2])
		if month < 1 || month > 12 || day < 1 || day > 31 {
			return localDate{}, false, apperr.Newf(apperr.CodeUnparseable, "invalid date %q", m[0])
		}
		year := nowLocal.Year()
		if m[3] != "" {
			year, _ = strconv.Atoi(m[3])
			if year < 100 {
				year += 2000
			}
		} else if beforeDate(time.Month(month), day, nowLocal) {
			year++
		}
		return localDate{year, time.Month(month), day}, true, nil
	}

	switch {
	case strings.Contains(expr, "day after tomorrow"):
		d := nowLocal.AddDate(0, 0, 2)
		return localDate{d.Year(), d.Month(), d.Day()}, true, nil
	case strings.Contains(expr, "tomorrow"):
		d := nowLocal.AddDate(0, 0, 1)
		return localDate{d.Year(), d.Month(), d.Day()}, true, nil
	case strings.Contains(expr, "today"), strings.Contains(expr, "tonight"):
		return localDate{nowLocal.Year(), nowLocal.Month(), nowLocal.Day()}, true, nil
	}

	for _, word := range strings.Fields(expr) {
		target, ok := weekdaysByName[word]
		if !ok {
			continue
		}
		// Bare and "next" weekday references both mean the upcoming
		// occurrence; naming today's weekday points a week out.
		delta := (int(target) - int(nowLocal.Weekday()) + 7) % 7
		if delta == 0 {
			delta = 7
		}
		d := nowLocal.AddDate(0, 0, delta)
		return localDate{d.Year(), d.Month(), d.Day()}, true, nil
	}

	return localDate{}, false, nil
}

// beforeDate reports whether month/day falls before today's local date within
// the current year.
func beforeDate(month time.Month, day int, nowLocal time.Time) bool {
	if month != nowLocal.Month() {
		return month < nowLocal.Month()
	}
	return day < nowLocal.Day()
}
