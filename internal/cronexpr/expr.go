// Package cronexpr implements a seconds-resolution CRON evaluator: a pure
// function mapping (expression, reference instant) to the next fire
// instant, pinned to UTC. It parses a six-field expression with a leading
// seconds field, combines day-of-month and day-of-week with OR instead of
// AND, and reports an explicit Unschedulable error past a safety horizon.
// See DESIGN.md for why robfig/cron itself isn't imported.
package cronexpr

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrInvalidExpression wraps every parse-time failure: wrong field
	// count, empty fields, bad tokens, out-of-range values.
	ErrInvalidExpression = errors.New("invalid cron expression")
	// ErrUnschedulable means no future instant within the safety horizon
	// satisfies the expression.
	ErrUnschedulable = errors.New("unschedulable: no match within horizon")
)

// horizonYears bounds how far into the future NextAfter will search before
// giving up. Five years comfortably covers any legitimate cadence while
// still failing fast on expressions like "0 0 0 31 2 *".
const horizonYears = 5

// Expression is a parsed, validated six-field CRON expression:
// second minute hour day-of-month month day-of-week.
type Expression struct {
	raw                                  string
	second, minute, hour, dom, mon, dow *field
}

func (e *Expression) String() string { return e.raw }

// Parse validates expr and returns a reusable Expression. A Job's schedule
// is parsed once at creation/update time: a Job that fails to parse is
// never persisted and never enqueued.
func Parse(expr string) (*Expression, error) {
	fields := strings.Fields(expr)
	if len(fields) != 6 {
		return nil, fmt.Errorf("%w: expected 6 space-separated fields, got %d", ErrInvalidExpression, len(fields))
	}

	second, err := parseField(fields[0], secondBounds)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidExpression, err)
	}
	minute, err := parseField(fields[1], minuteBounds)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidExpression, err)
	}
	hour, err := parseField(fields[2], hourBounds)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidExpression, err)
	}
	dom, err := parseField(fields[3], domBounds)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidExpression, err)
	}
	mon, err := parseField(fields[4], monthBounds)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidExpression, err)
	}
	dow, err := parseField(fields[5], dowBounds)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidExpression, err)
	}

	return &Expression{
		raw: expr, second: second, minute: minute, hour: hour, dom: dom, mon: mon, dow: dow,
	}, nil
}

// dayMatches applies the OR-combination rule for day-of-month/day-of-week:
// if both fields are restricted (not "*"), a day matches when either is
// satisfied; if only one is restricted, it alone applies; if neither is
// restricted, every day matches.
func (e *Expression) dayMatches(t time.Time) bool {
	domOK := e.dom.has(t.Day())
	dowOK := e.dow.has(int(t.Weekday()))

	switch {
	case e.dom.restricted && e.dow.restricted:
		return domOK || dowOK
	case e.dom.restricted:
		return domOK
	case e.dow.restricted:
		return dowOK
	default:
		return true
	}
}

// NextAfter returns the smallest instant strictly after t (UTC) whose
// fields satisfy the expression. It advances field-by-field from least to
// most significant, letting time.Date's own normalization carry overflow
// (day 32 of January becomes February 1, and so on), and fails with
// ErrUnschedulable if no match falls within the safety horizon.
func (e *Expression) NextAfter(t time.Time) (time.Time, error) {
	t = t.UTC().Truncate(time.Second).Add(time.Second)
	horizon := t.AddDate(horizonYears, 0, 0)

	for {
		if t.After(horizon) {
			return time.Time{}, ErrUnschedulable
		}

		if !e.mon.has(int(t.Month())) {
			if nm, ok := e.mon.nextFrom(int(t.Month())); ok {
				t = time.Date(t.Year(), time.Month(nm), 1, 0, 0, 0, 0, time.UTC)
			} else {
				t = time.Date(t.Year()+1, time.Month(e.mon.first()), 1, 0, 0, 0, 0, time.UTC)
			}
			continue
		}

		if !e.dayMatches(t) {
			t = time.Date(t.Year(), t.Month(), t.Day()+1, 0, 0, 0, 0, time.UTC)
			continue
		}

		if !e.hour.has(t.Hour()) {
			if nh, ok := e.hour.nextFrom(t.Hour()); ok {
				t = time.Date(t.Year(), t.Month(), t.Day(), nh, 0, 0, 0, time.UTC)
			} else {
				t = time.Date(t.Year(), t.Month(), t.Day()+1, 0, 0, 0, 0, time.UTC)
			}
			continue
		}

		if !e.minute.has(t.Minute()) {
			if nmin, ok := e.minute.nextFrom(t.Minute()); ok {
				t = time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), nmin, 0, 0, time.UTC)
			} else {
				t = time.Date(t.Year(), t.Month(), t.Day(), t.Hour()+1, 0, 0, 0, time.UTC)
			}
			continue
		}

		if !e.second.has(t.Second()) {
			if ns, ok := e.second.nextFrom(t.Second()); ok {
				t = time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), ns, 0, time.UTC)
			} else {
				t = time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute()+1, 0, 0, time.UTC)
			}
			continue
		}

		return t, nil
	}
}

// NextAfter is a convenience wrapper that parses expr and evaluates it once.
// Callers that evaluate the same expression repeatedly (the scheduler loop
// does, every occurrence) should Parse once and reuse the Expression.
func NextAfter(expr string, t time.Time) (time.Time, error) {
	parsed, err := Parse(expr)
	if err != nil {
		return time.Time{}, err
	}
	return parsed.NextAfter(t)
}
