package domain

import (
	"errors"
	"fmt"
)

// Error taxonomy (sentinels)
var (
	// Setup errors: the run cannot meaningfully proceed for dependent steps.
	ErrSetup     = errors.New("setup error")
	ErrTransport = errors.New("transport error")

	// Assertion failures: reported per step, never cascade across scenarios.
	ErrAssertion        = errors.New("assertion failed")
	ErrUnexpectedStatus = fmt.Errorf("%w: unexpected status", ErrAssertion)
	ErrMissingMarker    = fmt.Errorf("%w: missing body marker", ErrAssertion)
	ErrMissingCookie    = fmt.Errorf("%w: missing Set-Cookie", ErrAssertion)
	ErrParse            = fmt.Errorf("%w: malformed JSON", ErrAssertion)
	ErrMissingKey       = fmt.Errorf("%w: missing JSON key", ErrAssertion)

	ErrInvalidArgument = errors.New("invalid argument")
)

// StatusError reports a status code outside the accepted set.
type StatusError struct {
	Got  int
	Want StatusRange
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("status %d, want %s", e.Got, e.Want)
}

// Unwrap lets errors.Is match ErrUnexpectedStatus and ErrAssertion.
func (e *StatusError) Unwrap() error { return ErrUnexpectedStatus }

// IsSetup reports whether err belongs to the setup class (including
// transport failures, which abort only the affected request).
func IsSetup(err error) bool {
	return errors.Is(err, ErrSetup) || errors.Is(err, ErrTransport)
}

// IsAssertion reports whether err is an assertion failure.
func IsAssertion(err error) bool { return errors.Is(err, ErrAssertion) }
