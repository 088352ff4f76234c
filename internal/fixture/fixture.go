// Package fixture provisions the sample upload file used by the job
// submission scenarios.
package fixture

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/fairyhunter13/detector-gadget-e2e/internal/domain"
)

// DefaultPath is where the fixture lives when no path is configured.
const DefaultPath = "test/fixtures/sample.txt"

// sampleLines cover every entity category the analyzer is expected to
// recognize: emails, phone numbers, card numbers and URLs.
var sampleLines = []string{
	"This is a sample file for testing.",
	"It contains some email addresses like test@example.com and admin@example.org.",
	"It also has phone numbers like 555-123-4567 and 123.456.7890.",
	"Credit card number: 4111-1111-1111-1111",
	"Another card: 5555555555554444",
	"Some URLs: https://example.com and http://test.org",
}

// Content returns the deterministic fixture content.
func Content() string { return strings.Join(sampleLines, "\n") + "\n" }

// Ensure creates the fixture file and any missing parent directory when the
// file does not exist yet, and returns path. The content is written to a
// temporary sibling and hard-linked into place, so the file is complete the
// moment it appears and an existing file is never rewritten.
func Ensure(path string) (string, error) {
	if path == "" {
		path = DefaultPath
	}
	if Exists(path) {
		return path, nil
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("op=fixture.Ensure: %w: %w", domain.ErrSetup, err)
	}
	tmp, err := writeTemp(dir)
	if err != nil {
		return "", fmt.Errorf("op=fixture.Ensure: %w: %w", domain.ErrSetup, err)
	}
	defer os.Remove(tmp)

	err = os.Link(tmp, path)
	if err != nil && !errors.Is(err, fs.ErrExist) {
		return "", fmt.Errorf("op=fixture.Ensure: %w: %w", domain.ErrSetup, err)
	}
	return path, nil
}

func writeTemp(dir string) (string, error) {
	f, err := os.CreateTemp(dir, ".sample-*.tmp")
	if err != nil {
		return "", err
	}
	name := f.Name()
	if _, err := f.WriteString(Content()); err != nil {
		_ = f.Close()
		_ = os.Remove(name)
		return "", err
	}
	if err := f.Chmod(0o644); err != nil {
		_ = f.Close()
		_ = os.Remove(name)
		return "", err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(name)
		return "", err
	}
	return name, nil
}

// Exists reports whether a regular file is present at path.
func Exists(path string) bool {
	st, err := os.Stat(path)
	return err == nil && st.Mode().IsRegular()
}
