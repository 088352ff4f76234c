// Package domain holds the harness types shared by every layer: observed
// responses, credentials, step outcomes and the error taxonomy.
package domain

import (
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"
)

// Credentials is a username/password pair submitted to /register and /login.
type Credentials struct {
	Username string
	Password string
}

// UniqueCredentials suffixes the base username with the unix timestamp so
// repeated registrations don't collide.
func UniqueCredentials(base Credentials, now time.Time) Credentials {
	return Credentials{
		Username: fmt.Sprintf("%s_%d", base.Username, now.Unix()),
		Password: base.Password,
	}
}

// Response is an observed HTTP response. It is a value: callers get their own
// copy of the header map.
type Response struct {
	Method     string
	URL        string
	StatusCode int
	Header     http.Header
	Body       []byte
	Duration   time.Duration
}

// Text returns the body as a string.
func (r Response) Text() string { return string(r.Body) }

// SetCookies returns every raw Set-Cookie header value.
func (r Response) SetCookies() []string { return r.Header.Values("Set-Cookie") }

// HasSetCookie reports whether at least one Set-Cookie header is present.
func (r Response) HasSetCookie() bool { return len(r.SetCookies()) > 0 }

// Location returns the redirect target, if any.
func (r Response) Location() string { return r.Header.Get("Location") }

// IsRedirect reports a 3xx status.
func (r Response) IsRedirect() bool { return r.StatusCode >= 300 && r.StatusCode < 400 }

// StatusRange is an accepted set of status codes. Codes, when non-empty,
// takes precedence over the inclusive [Min, Max] band.
type StatusRange struct {
	Min, Max int
	Codes    []int
}

// Between returns the inclusive band [lo, hi].
func Between(lo, hi int) StatusRange { return StatusRange{Min: lo, Max: hi} }

// Exactly accepts only the listed codes.
func Exactly(codes ...int) StatusRange { return StatusRange{Codes: codes} }

// Contains reports whether code is accepted.
func (s StatusRange) Contains(code int) bool {
	if len(s.Codes) > 0 {
		return slices.Contains(s.Codes, code)
	}
	return code >= s.Min && code <= s.Max
}

func (s StatusRange) String() string {
	if len(s.Codes) > 0 {
		parts := make([]string, len(s.Codes))
		for i, c := range s.Codes {
			parts[i] = fmt.Sprint(c)
		}
		return "{" + strings.Join(parts, ",") + "}"
	}
	if s.Min == s.Max {
		return fmt.Sprint(s.Min)
	}
	return fmt.Sprintf("[%d,%d]", s.Min, s.Max)
}

// Check returns a *StatusError when code is outside the range.
func (s StatusRange) Check(code int) error {
	if s.Contains(code) {
		return nil
	}
	return &StatusError{Got: code, Want: s}
}

// JobStatus mirrors the status values the application reports for a job.
type JobStatus string

const (
	JobPending    JobStatus = "pending"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
)

// Terminal reports whether the job will not change status again.
func (s JobStatus) Terminal() bool { return s == JobCompleted || s == JobFailed }
