package fault

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"new validation", New(Validation, "bad input"), Validation},
		{"new not found", New(NotFound, "missing %s", "thing"), NotFound},
		{"wrapped conflict", Wrap(errors.New("boom"), Conflict, "state"), Conflict},
		{"double wrapped", fmt.Errorf("outer: %w", New(Transient, "blip")), Transient},
		{"plain error", errors.New("plain"), Internal},
		{"nil", nil, Internal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Errorf("KindOf() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestWrapNil(t *testing.T) {
	if err := Wrap(nil, Validation, "ignored"); err != nil {
		t.Fatalf("Wrap(nil) = %v, want nil", err)
	}
}

func TestUnwrap(t *testing.T) {
	inner := errors.New("inner")
	err := Wrap(inner, BackendUnavailable, "model load")
	if !errors.Is(err, inner) {
		t.Fatal("wrapped error should satisfy errors.Is on the cause")
	}
}

func TestIsKind(t *testing.T) {
	err := New(NotFound, "gone")
	if !IsKind(err, NotFound) {
		t.Error("IsKind should match the error's kind")
	}
	if IsKind(err, Conflict) {
		t.Error("IsKind should not match a different kind")
	}
}

func TestErrorString(t *testing.T) {
	err := Wrap(errors.New("cause"), Transient, "op failed")
	got := err.Error()
	if got == "" || got == "cause" {
		t.Fatalf("unexpected error string %q", got)
	}
}
