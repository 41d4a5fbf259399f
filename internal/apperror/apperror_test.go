package apperror

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorsIs(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		target    error
		wantMatch bool
	}{
		{"Unauthorized wraps ErrAuthorization", Unauthorized("nope"), ErrAuthorization, true},
		{"ValidationFailed wraps ErrValidation", ValidationFailed("name", "name is required"), ErrValidation, true},
		{"MissingScope wraps ErrMissingScope", MissingScope("household"), ErrMissingScope, true},
		{"NotFound wraps ErrNotFound", NotFound("household", "ABC"), ErrNotFound, true},
		{"Busy wraps ErrBusy", Busy("redeeming"), ErrBusy, true},
		{"wrapped NotFound still matches", fmt.Errorf("join household: %w", NotFound("invite code", "X")), ErrNotFound, true},
		{"NotFound does not match ErrValidation", NotFound("tag", "1"), ErrValidation, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := errors.Is(tt.err, tt.target); got != tt.wantMatch {
				t.Errorf("errors.Is(%v, %v) = %v, want %v", tt.err, tt.target, got, tt.wantMatch)
			}
		})
	}
}

func TestMessages(t *testing.T) {
	tests := []struct {
		err  *AppError
		want string
	}{
		{NotFound("household", "H1"), "household not found with id H1"},
		{MissingScope("household"), "no household selected"},
		{ValidationFailed("cost", "cost must be positive"), "cost must be positive"},
	}
	for _, tt := range tests {
		if got := tt.err.Error(); got != tt.want {
			t.Errorf("Error() = %q, want %q", got, tt.want)
		}
	}
}

func TestIsLocal(t *testing.T) {
	if !IsLocal(Unauthorized("x")) {
		t.Error("authorization errors are local")
	}
	if IsLocal(NotFound("task", "1")) {
		t.Error("not found comes from the remote side")
	}
	if IsLocal(errors.New("network down")) {
		t.Error("plain errors are remote")
	}
}
