// Package apptwin is an in-process twin of the Detector Gadget web
// application. It reproduces the HTTP contract the harness asserts on
// (registration, session login, dashboard, job submission, job stats) so the
// harness can be exercised end to end without the real service.
package apptwin

import (
	"errors"
	"time"

	"github.com/fairyhunter13/detector-gadget-e2e/internal/domain"
)

var (
	ErrUserExists  = errors.New("user already exists")
	ErrNotFound    = errors.New("not found")
	ErrInvalidForm = errors.New("invalid form")
)

// User is a registered account.
type User struct {
	Username     string    `json:"username"`
	PasswordHash string    `json:"password_hash"`
	CreatedAt    time.Time `json:"created_at"`
}

// Job is an analysis job submitted through /submit_job.
type Job struct {
	ID          int64            `json:"id"`
	Owner       string           `json:"owner"`
	Status      domain.JobStatus `json:"status"`
	InputSource string           `json:"input_source"`
	OutputDest  string           `json:"output_destination"`
	// Content is the uploaded bytes, or the URL for URL submissions.
	Content   []byte         `json:"content,omitempty"`
	Features  map[string]int `json:"feature_counts,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Faults toggles contract violations so the harness's failure paths can be
// exercised against a real server.
type Faults struct {
	// DropSetCookie logs users in without issuing a session cookie.
	DropSetCookie bool `json:"drop_set_cookie"`
	// OpenDashboard serves protected routes without a session.
	OpenDashboard bool `json:"open_dashboard"`
	// OmitCharts leaves the chart canvases off the dashboard.
	OmitCharts bool `json:"omit_charts"`
	// MalformedStats makes /api/job_stats return a non-JSON body.
	MalformedStats bool `json:"malformed_stats"`
	// RejectSubmissions answers job submissions with 500.
	RejectSubmissions bool `json:"reject_submissions"`
}
