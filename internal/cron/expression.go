// Package cron implements the daemon's minute-resolution scheduler: a reduced
// five-field cron grammar, next-run computation and an ordered job registry
// that dispatches due jobs to the agent runtime.
//
// Grammar: every field is either "*" or a single non-negative integer.
// Lists ("1,2"), ranges ("1-5"), steps ("*/5") and descriptors ("@daily") are
// a known limitation and are rejected rather than approximated.
package cron

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	robfig "github.com/robfig/cron/v3"
)

// Wildcard marks a field that matches every value.
const Wildcard uint8 = 255

var (
	// ErrInvalidExpression is returned for expressions outside the supported grammar.
	ErrInvalidExpression = errors.New("invalid cron expression")

	// ErrNoValidSchedule is returned when a syntactically valid expression
	// never matches within the bounded scan window.
	ErrNoValidSchedule = errors.New("no valid schedule")
)

// FieldSet holds the five parsed schedule fields.
type FieldSet struct {
	Minute     uint8 `json:"minute"`
	Hour       uint8 `json:"hour"`
	DayOfMonth uint8 `json:"day_of_month"`
	Month      uint8 `json:"month"`
	DayOfWeek  uint8 `json:"day_of_week"`
}

type fieldBounds struct {
	name     string
	min, max uint8
}

var fieldOrder = [5]fieldBounds{
	{"minute", 0, 59},
	{"hour", 0, 23},
	{"day-of-month", 1, 31},
	{"month", 1, 12},
	{"day-of-week", 0, 6},
}

// standardParser is only consulted to tell "unsupported" from "malformed".
var standardParser = robfig.NewParser(robfig.Minute | robfig.Hour | robfig.Dom | robfig.Month | robfig.Dow | robfig.Descriptor)

// Parse parses a five-field expression.
func Parse(expr string) (FieldSet, error) {
	fields := strings.Fields(expr)
	if len(fields) != len(fieldOrder) {
		return FieldSet{}, invalid(expr, fmt.Sprintf("expected 5 fields, got %d", len(fields)))
	}

	var values [5]uint8
	for i, raw := range fields {
		v, err := parseField(raw, fieldOrder[i])
		if err != nil {
			return FieldSet{}, invalid(expr, err.Error())
		}
		values[i] = v
	}

	return FieldSet{
		Minute:     values[0],
		Hour:       values[1],
		DayOfMonth: values[2],
		Month:      values[3],
		DayOfWeek:  values[4],
	}, nil
}

// MustParse is Parse for constants and tests.
func MustParse(expr string) FieldSet {
	fs, err := Parse(expr)
	if err != nil {
		panic(err)
	}
	return fs
}

func parseField(raw string, b fieldBounds) (uint8, error) {
	if raw == "*" {
		return Wildcard, nil
	}
	for _, r := range raw {
		if r < '0' || r > '9' {
			return 0, fmt.Errorf("%s field %q is not '*' or an integer", b.name, raw)
		}
	}
	n, err := strconv.ParseUint(raw, 10, 16)
	if err != nil || n < uint64(b.min) || n > uint64(b.max) {
		return 0, fmt.Errorf("%s field %q out of range %d-%d", b.name, raw, b.min, b.max)
	}
	return uint8(n), nil
}

func invalid(expr, reason string) error {
	if _, err := standardParser.Parse(expr); err == nil {
		return fmt.Errorf("%w: %q uses syntax that is not supported (only '*' or single values): %s",
			ErrInvalidExpression, expr, reason)
	}
	return fmt.Errorf("%w: %q: %s", ErrInvalidExpression, expr, reason)
}

// Matches reports whether t satisfies all five fields.
func (fs FieldSet) Matches(t time.Time) bool {
	return fs.matchesDate(t) && match(fs.Hour, t.Hour()) && match(fs.Minute, t.Minute())
}

func (fs FieldSet) matchesDate(t time.Time) bool {
	return match(fs.Month, int(t.Month())) &&
		match(fs.DayOfMonth, t.Day()) &&
		match(fs.DayOfWeek, int(t.Weekday()))
}

func match(field uint8, v int) bool {
	return field == Wildcard || int(field) == v
}

// String renders the fields back into expression form.
func (fs FieldSet) String() string {
	parts := [5]string{}
	for i, v := range [5]uint8{fs.Minute, fs.Hour, fs.DayOfMonth, fs.Month, fs.DayOfWeek} {
		if v == Wildcard {
			parts[i] = "*"
		} else {
			parts[i] = strconv.Itoa(int(v))
		}
	}
	return strings.Join(parts[:], " ")
}
