// Package session holds the cookies captured from a login response and
// replays them on later requests.
//
// A Store belongs to exactly one scenario. It is not safe for concurrent use;
// scenarios that run in parallel each own a Store.
package session

import (
	"net/http"
	"sort"
	"strings"
)

// Store maps cookie name to value. Cookie attributes (Path, Expires, ...)
// are not tracked.
type Store struct {
	cookies map[string]string
}

// New returns an empty store.
func New() *Store {
	return &Store{cookies: make(map[string]string)}
}

// Capture parses every Set-Cookie header in h and inserts or overwrites the
// name/value pairs. Malformed entries are skipped. It returns the number of
// cookies captured. A nil store captures nothing.
func (s *Store) Capture(h http.Header) int {
	if s == nil {
		return 0
	}
	n := 0
	for _, line := range h.Values("Set-Cookie") {
		c, err := http.ParseSetCookie(line)
		if err != nil || c.Name == "" {
			continue
		}
		s.cookies[c.Name] = c.Value
		n++
	}
	return n
}

// Header renders the stored pairs as a Cookie header value, "name=value"
// joined by "; ", ordered by name. An empty store renders "".
func (s *Store) Header() string {
	if s == nil || len(s.cookies) == 0 {
		return ""
	}
	names := make([]string, 0, len(s.cookies))
	for name := range s.cookies {
		names = append(names, name)
	}
	sort.Strings(names)
	pairs := make([]string, len(names))
	for i, name := range names {
		pairs[i] = name + "=" + s.cookies[name]
	}
	return strings.Join(pairs, "; ")
}

// Apply sets the Cookie header on req when the store is non-empty. Any
// Cookie header already on the request is replaced.
func (s *Store) Apply(req *http.Request) {
	if hv := s.Header(); hv != "" {
		req.Header.Set("Cookie", hv)
	}
}

// Get returns the value stored for name.
func (s *Store) Get(name string) (string, bool) {
	if s == nil {
		return "", false
	}
	v, ok := s.cookies[name]
	return v, ok
}

// Len returns the number of stored cookies.
func (s *Store) Len() int {
	if s == nil {
		return 0
	}
	return len(s.cookies)
}

// Reset drops every cookie.
func (s *Store) Reset() {
	if s == nil {
		return
	}
	clear(s.cookies)
}
