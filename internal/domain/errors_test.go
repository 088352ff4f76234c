package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorConstants(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{"ErrSetup", ErrSetup, "setup error"},
		{"ErrTransport", ErrTransport, "transport error"},
		{"ErrAssertion", ErrAssertion, "assertion failed"},
		{"ErrUnexpectedStatus", ErrUnexpectedStatus, "assertion failed: unexpected status"},
		{"ErrMissingMarker", ErrMissingMarker, "assertion failed: missing body marker"},
		{"ErrMissingCookie", ErrMissingCookie, "assertion failed: missing Set-Cookie"},
		{"ErrParse", ErrParse, "assertion failed: malformed JSON"},
		{"ErrMissingKey", ErrMissingKey, "assertion failed: missing JSON key"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Error() != tt.expected {
				t.Errorf("Expected %s to be %q, got %q", tt.name, tt.expected, tt.err.Error())
			}
		})
	}
}

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		setup     bool
		assertion bool
	}{
		{"wrapped setup", fmt.Errorf("op=fixture.Ensure: %w", ErrSetup), true, false},
		{"transport", fmt.Errorf("%w: connection refused", ErrTransport), true, false},
		{"status", &StatusError{Got: 500, Want: Between(200, 302)}, false, true},
		{"parse", fmt.Errorf("op=interpret.ParseJSON: %w", ErrParse), false, true},
		{"missing key", ErrMissingKey, false, true},
		{"plain", errors.New("boom"), false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsSetup(tt.err); got != tt.setup {
				t.Errorf("IsSetup = %v, want %v", got, tt.setup)
			}
			if got := IsAssertion(tt.err); got != tt.assertion {
				t.Errorf("IsAssertion = %v, want %v", got, tt.assertion)
			}
		})
	}
}

func TestStatusError(t *testing.T) {
	err := Exactly(302).Check(200)
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("expected *StatusError, got %T", err)
	}
	if se.Got != 200 {
		t.Fatalf("Got = %d", se.Got)
	}
	if !errors.Is(err, ErrUnexpectedStatus) {
		t.Fatalf("expected ErrUnexpectedStatus")
	}
	if err.Error() != "status 200, want {302}" {
		t.Fatalf("unexpected message %q", err.Error())
	}
}
