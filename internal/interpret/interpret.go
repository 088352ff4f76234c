// Package interpret extracts structured values from responses: job
// references scraped from rendered HTML and JSON documents from the status API.
package interpret

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/fairyhunter13/detector-gadget-e2e/internal/domain"
	"github.com/fairyhunter13/detector-gadget-e2e/pkg/textx"
)

// jobLink matches the job detail path rendered on the dashboard. The match is
// intentionally narrow; this is not an HTML parser.
var jobLink = regexp.MustCompile(`/job/(\d+)`)

// ExtractJobID returns the id of the first /job/<digits> occurrence in html.
// ok is false when there is no match, which is a legitimate state (no jobs
// yet) rather than an error.
func ExtractJobID(html string) (id int64, ok bool) {
	m := jobLink.FindStringSubmatch(html)
	if m == nil {
		return 0, false
	}
	id, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// ExtractJobIDs returns every distinct job id in order of first appearance.
func ExtractJobIDs(html string) []int64 {
	var ids []int64
	seen := make(map[int64]struct{})
	for _, m := range jobLink.FindAllStringSubmatch(html, -1) {
		id, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids
}

// MissingMarkers returns the markers not present in body, in input order.
func MissingMarkers(body string, markers ...string) []string {
	var missing []string
	for _, m := range markers {
		if !strings.Contains(body, m) {
			missing = append(missing, m)
		}
	}
	return missing
}

// RequireMarkers is MissingMarkers as an assertion error.
func RequireMarkers(body string, markers ...string) error {
	if missing := MissingMarkers(body, markers...); len(missing) > 0 {
		return fmt.Errorf("%w: %q", domain.ErrMissingMarker, missing)
	}
	return nil
}

// ParseError reports a body that is not a JSON object.
type ParseError struct {
	Snippet string
	Err     error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%v: %v (body %q)", domain.ErrParse, e.Err, e.Snippet)
}

// Unwrap exposes both the decode error and domain.ErrParse to errors.Is.
func (e *ParseError) Unwrap() []error { return []error{domain.ErrParse, e.Err} }

// Document is a decoded JSON object. Keys other than the ones a caller
// checks are opaque.
type Document map[string]any

// ParseJSON decodes body as a JSON object.
func ParseJSON(body []byte) (Document, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var doc Document
	if err := dec.Decode(&doc); err != nil {
		return nil, &ParseError{Snippet: snippet(body), Err: err}
	}
	if doc == nil {
		return nil, &ParseError{Snippet: snippet(body), Err: fmt.Errorf("top level is not an object")}
	}
	if dec.More() {
		return nil, &ParseError{Snippet: snippet(body), Err: fmt.Errorf("trailing data after JSON object")}
	}
	return doc, nil
}

// Missing returns the keys absent from the document.
func (d Document) Missing(keys ...string) []string {
	var out []string
	for _, k := range keys {
		if _, ok := d[k]; !ok {
			out = append(out, k)
		}
	}
	return out
}

// String renders the value at key as a string regardless of whether it was
// encoded as a JSON string or number. ok is false when absent or null.
func (d Document) String(key string) (string, bool) {
	v, ok := d[key]
	if !ok || v == nil {
		return "", false
	}
	switch t := v.(type) {
	case string:
		return t, true
	case json.Number:
		return t.String(), true
	default:
		return fmt.Sprint(t), true
	}
}

// JobStats is the typed view of /api/job_stats/{id}.
type JobStats struct {
	ID     string
	Status domain.JobStatus
	Raw    Document
}

// ParseJobStats decodes body and requires the id and status keys.
func ParseJobStats(body []byte) (JobStats, error) {
	doc, err := ParseJSON(body)
	if err != nil {
		return JobStats{}, err
	}
	if missing := doc.Missing("id", "status"); len(missing) > 0 {
		return JobStats{}, fmt.Errorf("%w: %q", domain.ErrMissingKey, missing)
	}
	id, _ := doc.String("id")
	status, _ := doc.String("status")
	return JobStats{ID: id, Status: domain.JobStatus(status), Raw: doc}, nil
}

// MatchesID reports whether the stats document refers to job id, ignoring
// whether the application encoded it as a string or number.
func (s JobStats) MatchesID(id int64) bool {
	return strings.TrimSpace(s.ID) == strconv.FormatInt(id, 10)
}

func snippet(b []byte) string { return textx.Snippet(string(b), 120) }
