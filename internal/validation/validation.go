// Package validation provides small composable predicates for checking
// untyped tool arguments decoded from JSON. Every failure is a *FieldError
// naming the offending field and the rule it violated.
package validation

import (
	"fmt"
	"math"
	"regexp"
	"strings"
)

// FieldError reports a single argument that violates a rule.
type FieldError struct {
	Field   string
	Rule    string
	Message string
}

func (e *FieldError) Error() string { return e.Message }

func fail(field, rule, format string, a ...any) error {
	return &FieldError{Field: field, Rule: rule, Message: field + " " + fmt.Sprintf(format, a...)}
}

// Rule checks the value of one field. A missing field is passed as nil.
type Rule func(field string, v any) error

var datePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// NonEmptyString requires a string with at least one non-space character.
func NonEmptyString(field string, v any) error {
	s, ok := v.(string)
	if !ok || strings.TrimSpace(s) == "" {
		return fail(field, "non_empty_string", "must be a non-empty string")
	}
	return nil
}

// Boolean requires a JSON boolean.
func Boolean(field string, v any) error {
	if _, ok := v.(bool); !ok {
		return fail(field, "boolean", "must be a boolean")
	}
	return nil
}

// Date requires a non-empty string in YYYY-MM-DD form. Only the shape is
// checked; the broker rejects impossible calendar dates itself.
func Date(field string, v any) error {
	if err := NonEmptyString(field, v); err != nil {
		return err
	}
	if !datePattern.MatchString(v.(string)) {
		return fail(field, "date", "must be in YYYY-MM-DD format")
	}
	return nil
}

// NonNegativeNumber requires a JSON number >= 0.
func NonNegativeNumber(field string, v any) error {
	f, ok := number(v)
	if !ok || f < 0 {
		return fail(field, "non_negative_number", "must be a non-negative number")
	}
	return nil
}

// PositiveInt requires an integral JSON number > 0. A positive ceiling is an
// inclusive upper bound.
func PositiveInt(ceiling int) Rule {
	return func(field string, v any) error {
		f, ok := number(v)
		if !ok || f <= 0 || f != math.Trunc(f) {
			return fail(field, "positive_integer", "must be a positive integer")
		}
		if ceiling > 0 && f > float64(ceiling) {
			return fail(field, "maximum", "cannot exceed %d", ceiling)
		}
		return nil
	}
}

// OneOf requires the value to equal one of allowed. Numbers compare by value
// regardless of their Go type, so OneOf(0, 1) accepts a decoded float64(1).
func OneOf(allowed ...any) Rule {
	labels := make([]string, len(allowed))
	for i, a := range allowed {
		labels[i] = fmt.Sprint(a)
	}
	list := strings.Join(labels, ", ")
	return func(field string, v any) error {
		for _, a := range allowed {
			if sameValue(a, v) {
				return nil
			}
		}
		return fail(field, "one_of", "must be one of: %s", list)
	}
}

// Check validates an argument object.
type Check func(args map[string]any) error

// Required runs rules against the field whether or not it is present.
func Required(field string, rules ...Rule) Check {
	return func(args map[string]any) error {
		return apply(field, args[field], rules)
	}
}

// Optional runs rules only when the field is present. An explicit null is
// present and is checked.
func Optional(field string, rules ...Rule) Check {
	return func(args map[string]any) error {
		v, ok := args[field]
		if !ok {
			return nil
		}
		return apply(field, v, rules)
	}
}

// Default substitutes def for a field that is absent or holds a zero JSON
// value (null, false, 0 or the empty string), then runs rules. The
// substituted value is written back to args.
func Default(field string, def any, rules ...Rule) Check {
	return func(args map[string]any) error {
		v, ok := args[field]
		if !ok || isZero(v) {
			v = def
			if args != nil {
				args[field] = def
			}
		}
		return apply(field, v, rules)
	}
}

func isZero(v any) bool {
	switch v := v.(type) {
	case nil:
		return true
	case bool:
		return !v
	case string:
		return v == ""
	}
	if f, ok := number(v); ok {
		return f == 0
	}
	return false
}

// Object composes checks into one validator. Checks run in order and the
// first failure is returned.
func Object(checks ...Check) func(args map[string]any) error {
	return func(args map[string]any) error {
		for _, c := range checks {
			if err := c(args); err != nil {
				return err
			}
		}
		return nil
	}
}

func apply(field string, v any, rules []Rule) error {
	for _, r := range rules {
		if err := r(field, v); err != nil {
			return err
		}
	}
	return nil
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, !math.IsNaN(n) && !math.IsInf(n, 0)
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	default:
		return 0, false
	}
}

func sameValue(a, b any) bool {
	if fa, ok := number(a); ok {
		fb, ok := number(b)
		return ok && fa == fb
	}
	return a == b
}
