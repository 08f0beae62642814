// Package validate provides pluggable rules that change trackers evaluate
// before accepting a new field value.
package validate

import (
	"cmp"
	"fmt"
	"regexp"
	"strings"
)

// Violation describes why a candidate value was rejected.
type Violation struct {
	Reason string
	Value  any
}

func (v *Violation) Error() string {
	return fmt.Sprintf("%s: %v", v.Reason, v.Value)
}

// Rule checks a candidate value. It returns nil when the value is acceptable
// and a *Violation otherwise.
type Rule[T any] interface {
	Validate(value T) error
}

// RuleFunc adapts a function to Rule.
type RuleFunc[T any] func(value T) error

// Validate calls f(value).
func (f RuleFunc[T]) Validate(value T) error {
	return f(value)
}

// Predicate accepts values for which ok returns true and rejects the rest
// with reason.
func Predicate[T any](ok func(T) bool, reason string) Rule[T] {
	return RuleFunc[T](func(value T) error {
		if ok(value) {
			return nil
		}
		return &Violation{Reason: reason, Value: value}
	})
}

// Regex accepts strings that match pattern in full. Empty strings pass; pair
// with NotBlank when a value is mandatory.
func Regex(pattern, reason string) Rule[string] {
	re := regexp.MustCompile(`^(?:` + pattern + `)$`)
	return RuleFunc[string](func(value string) error {
		if value == "" || re.MatchString(value) {
			return nil
		}
		return &Violation{Reason: reason, Value: value}
	})
}

// NotBlank rejects empty or whitespace-only strings.
func NotBlank(reason string) Rule[string] {
	return Predicate(func(value string) bool {
		return strings.TrimSpace(value) != ""
	}, reason)
}

// Min rejects values below minimum.
func Min[T cmp.Ordered](minimum T, reason string) Rule[T] {
	return Predicate(func(value T) bool {
		return cmp.Compare(value, minimum) >= 0
	}, reason)
}

// Max rejects values above maximum.
func Max[T cmp.Ordered](maximum T, reason string) Rule[T] {
	return Predicate(func(value T) bool {
		return cmp.Compare(value, maximum) <= 0
	}, reason)
}

// All accepts a value only when every rule does, reporting the first
// violation.
func All[T any](rules ...Rule[T]) Rule[T] {
	return RuleFunc[T](func(value T) error {
		return Check(value, rules...)
	})
}

// Check runs rules against value in order and returns the first violation.
func Check[T any](value T, rules ...Rule[T]) error {
	for _, rule := range rules {
		if rule == nil {
			continue
		}
		if err := rule.Validate(value); err != nil {
			return err
		}
	}
	return nil
}
