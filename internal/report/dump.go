package report

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/fairyhunter13/detector-gadget-e2e/internal/domain"
	"github.com/fairyhunter13/detector-gadget-e2e/pkg/textx"
)

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9_.-]+`)

// FileDumper writes each observed response to <dir>/<scenario>_<step>.txt.
type FileDumper struct {
	dir string
}

// NewFileDumper creates dir if needed.
func NewFileDumper(dir string) (*FileDumper, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("%w: dump dir is empty", domain.ErrInvalidArgument)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("op=report.NewFileDumper: %w", err)
	}
	return &FileDumper{dir: dir}, nil
}

// Dir returns the target directory.
func (d *FileDumper) Dir() string { return d.dir }

// FileName returns the dump file name for a scenario step.
func FileName(scenario, step string) string {
	return unsafeName.ReplaceAllString(scenario+"_"+step, "_") + ".txt"
}

// Dump writes the status line, headers and sanitized body of resp.
func (d *FileDumper) Dump(scenario, step string, resp domain.Response) error {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n", resp.Method, resp.URL)
	fmt.Fprintf(&b, "status: %d\n", resp.StatusCode)
	fmt.Fprintf(&b, "duration: %s\n", resp.Duration)
	keys := make([]string, 0, len(resp.Header))
	for k := range resp.Header {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		for _, v := range resp.Header[k] {
			fmt.Fprintf(&b, "%s: %s\n", k, v)
		}
	}
	b.WriteString("\n")
	b.WriteString(textx.SanitizeText(string(resp.Body)))
	b.WriteString("\n")

	path := filepath.Join(d.dir, FileName(scenario, step))
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("op=report.Dump: %w", err)
	}
	return nil
}
