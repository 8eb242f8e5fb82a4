package search

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

// DateRange is a half-open interval [Start, End). A zero bound is open.
type DateRange struct {
	Start time.Time
	End   time.Time
}

var (
	yearRe      = regexp.MustCompile(`^(\d{4})$`)
	yearMonthRe = regexp.MustCompile(`^(\d{4})-(\d{1,2})$`)
	relativeRe  = regexp.MustCompile(`^([+-]\d+)\s*([a-z]+?)s?$`)
	rangeRe     = regexp.MustCompile(`(?i)^\[\s*(.*?)\s+to\s+(.*?)\s*\]$|^\[\s*(.*?)\s+to\s*\]$|^\[\s*to\s+(.*?)\s*\]$`)
)

// ParseDateExpr resolves a date expression relative to now. Supported forms:
// today, yesterday, now, this|last week|month|year, YYYY, YYYY-MM, full
// dates, signed offsets such as "-3 days", and ranges "[a to b]" where
// either side may be left out.
func ParseDateExpr(expr string, now time.Time) (DateRange, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return DateRange{}, fmt.Errorf("empty date expression")
	}

	if strings.HasPrefix(expr, "[") {
		return parseDateRange(expr, now)
	}
	return parseDatePoint(strings.ToLower(expr), now)
}

func parseDateRange(expr string, now time.Time) (DateRange, error) {
	m := rangeRe.FindStringSubmatch(expr)
	if m == nil {
		return DateRange{}, fmt.Errorf("malformed date range %q", expr)
	}

	var from, to string
	switch {
	case m[1] != "" || m[2] != "":
		from, to = m[1], m[2]
	case m[3] != "":
		from = m[3]
	default:
		to = m[4]
	}

	var r DateRange
	if from != "" {
		start, err := parseDatePoint(strings.ToLower(from), now)
		if err != nil {
			return DateRange{}, err
		}
		r.Start = start.Start
	}
	if to != "" {
		end, err := parseDatePoint(strings.ToLower(to), now)
		if err != nil {
			return DateRange{}, err
		}
		r.End = end.End
	}
	if !r.Start.IsZero() && !r.End.IsZero() && !r.Start.Before(r.End) {
		return DateRange{}, fmt.Errorf("date range %q is empty", expr)
	}
	return r, nil
}

// parseDatePoint resolves a single expression to the period it names.
func parseDatePoint(expr string, now time.Time) (DateRange, error) {
	day := startOfDay(now)

	switch expr {
	case "now":
		return DateRange{Start: now, End: now.Add(time.Nanosecond)}, nil
	case "today":
		return DateRange{Start: day, End: day.AddDate(0, 0, 1)}, nil
	case "yesterday":
		return DateRange{Start: day.AddDate(0, 0, -1), End: day}, nil
	case "this week":
		w := startOfWeek(now)
		return DateRange{Start: w, End: w.AddDate(0, 0, 7)}, nil
	case "last week":
		w := startOfWeek(now)
		return DateRange{Start: w.AddDate(0, 0, -7), End: w}, nil
	case "this month":
		m := startOfMonth(now)
		return DateRange{Start: m, End: m.AddDate(0, 1, 0)}, nil
	case "last month":
		m := startOfMonth(now)
		return DateRange{Start: m.AddDate(0, -1, 0), End: m}, nil
	case "this year":
		y := time.Date(now.Year(), 1, 1, 0, 0, 0, 0, now.Location())
		return DateRange{Start: y, End: y.AddDate(1, 0, 0)}, nil
	case "last year":
		y := time.Date(now.Year()-1, 1, 1, 0, 0, 0, 0, now.Location())
		return DateRange{Start: y, End: y.AddDate(1, 0, 0)}, nil
	}

	if m := yearRe.FindStringSubmatch(expr); m != nil {
		year, _ := strconv.Atoi(m[1])
		y := time.Date(year, 1, 1, 0, 0, 0, 0, now.Location())
		return DateRange{Start: y, End: y.AddDate(1, 0, 0)}, nil
	}

	if m := yearMonthRe.FindStringSubmatch(expr); m != nil {
		year, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		if month < 1 || month > 12 {
			return DateRange{}, fmt.Errorf("invalid month in %q", expr)
		}
		start := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, now.Location())
		return DateRange{Start: start, End: start.AddDate(0, 1, 0)}, nil
	}

	if m := relativeRe.FindStringSubmatch(expr); m != nil {
		n, _ := strconv.Atoi(m[1])
		t, err := shift(now, n, m[2])
		if err != nil {
			return DateRange{}, err
		}
		// an offset names the period between it and now
		if t.After(now) {
			return DateRange{Start: now, End: t}, nil
		}
		return DateRange{Start: t, End: now}, nil
	}

	t, err := dateparse.ParseIn(expr, now.Location())
	if err != nil {
		return DateRange{}, fmt.Errorf("unrecognised date %q: %w", expr, err)
	}
	if t.Equal(startOfDay(t)) {
		return DateRange{Start: t, End: t.AddDate(0, 0, 1)}, nil
	}
	return DateRange{Start: t, End: t.Add(time.Second)}, nil
}

func shift(t time.Time, n int, unit string) (time.Time, error) {
	switch unit {
	case "minute", "min":
		return t.Add(time.Duration(n) * time.Minute), nil
	case "hour", "hr":
		return t.Add(time.Duration(n) * time.Hour), nil
	case "day":
		return t.AddDate(0, 0, n), nil
	case "week":
		return t.AddDate(0, 0, 7*n), nil
	case "month":
		return t.AddDate(0, n, 0), nil
	case "year":
		return t.AddDate(n, 0, 0), nil
	default:
		return time.Time{}, fmt.Errorf("unknown time unit %q", unit)
	}
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// startOfWeek returns the Monday of t's week.
func startOfWeek(t time.Time) time.Time {
	offset := (int(t.Weekday()) + 6) % 7
	return startOfDay(t).AddDate(0, 0, -offset)
}

func startOfMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
}
