package validate

import (
	"errors"
	"testing"
)

func TestRegexMatchesWholeValue(t *testing.T) {
	rule := Regex(`[a-z][a-z0-9_-]*`, "invalid account id")
	tests := []struct {
		value string
		ok    bool
	}{
		{value: "janet", ok: true},
		{value: "john-2", ok: true},
		{value: "", ok: true},
		{value: "Janet", ok: false},
		{value: "janet doe", ok: false},
		{value: "9lives", ok: false},
	}
	for _, tt := range tests {
		err := rule.Validate(tt.value)
		if (err == nil) != tt.ok {
			t.Fatalf("Validate(%q) = %v, want ok=%v", tt.value, err, tt.ok)
		}
	}
}

func TestMinMax(t *testing.T) {
	if err := Min(int64(0), "insufficient funds").Validate(0); err != nil {
		t.Fatalf("min boundary: %v", err)
	}
	err := Min(int64(0), "insufficient funds").Validate(-1)
	var violation *Violation
	if !errors.As(err, &violation) {
		t.Fatalf("expected violation, got %v", err)
	}
	if violation.Reason != "insufficient funds" || violation.Value != int64(-1) {
		t.Fatalf("unexpected violation %+v", violation)
	}
	if err.Error() != "insufficient funds: -1" {
		t.Fatalf("unexpected message %q", err.Error())
	}
	if err := Max(10, "too big").Validate(11); err == nil {
		t.Fatal("expected max violation")
	}
}

func TestAllReportsFirstViolation(t *testing.T) {
	rule := All(NotBlank("name is required"), Regex(`[A-Z].*`, "name must be capitalized"))
	if err := rule.Validate("Janet Doe"); err != nil {
		t.Fatalf("valid name: %v", err)
	}
	err := rule.Validate("  ")
	var violation *Violation
	if !errors.As(err, &violation) || violation.Reason != "name is required" {
		t.Fatalf("expected blank violation, got %v", err)
	}
	err = rule.Validate("janet")
	if !errors.As(err, &violation) || violation.Reason != "name must be capitalized" {
		t.Fatalf("expected capitalization violation, got %v", err)
	}
}

func TestCheckSkipsNilRules(t *testing.T) {
	if err := Check(5, nil, Min(1, "positive")); err != nil {
		t.Fatalf("check: %v", err)
	}
}
