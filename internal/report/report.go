// Package report renders suite results and persists raw responses.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"gopkg.in/yaml.v3"

	"github.com/fairyhunter13/detector-gadget-e2e/internal/domain"
)

// Supported output formats.
const (
	FormatText = "text"
	FormatJSON = "json"
	FormatYAML = "yaml"
)

type stepView struct {
	Step     string  `json:"step" yaml:"step"`
	Outcome  string  `json:"outcome" yaml:"outcome"`
	Reason   string  `json:"reason,omitempty" yaml:"reason,omitempty"`
	Error    string  `json:"error,omitempty" yaml:"error,omitempty"`
	Duration float64 `json:"duration_ms" yaml:"duration_ms"`
}

type scenarioView struct {
	Name    string     `json:"name" yaml:"name"`
	Outcome string     `json:"outcome" yaml:"outcome"`
	Steps   []stepView `json:"steps" yaml:"steps"`
}

type suiteView struct {
	RunID     string         `json:"run_id" yaml:"run_id"`
	BaseURL   string         `json:"base_url" yaml:"base_url"`
	StartedAt string         `json:"started_at" yaml:"started_at"`
	Duration  float64        `json:"duration_ms" yaml:"duration_ms"`
	SetupErr  string         `json:"setup_error,omitempty" yaml:"setup_error,omitempty"`
	Failed    bool           `json:"failed" yaml:"failed"`
	Counts    domain.Counts  `json:"counts" yaml:"counts"`
	Scenarios []scenarioView `json:"scenarios" yaml:"scenarios"`
}

func millis(d time.Duration) float64 { return float64(d) / float64(time.Millisecond) }

func view(res domain.SuiteResult) suiteView {
	v := suiteView{
		RunID:     res.RunID,
		BaseURL:   res.BaseURL,
		StartedAt: res.StartedAt.UTC().Format(time.RFC3339),
		Duration:  millis(res.Duration),
		Failed:    res.Failed(),
		Counts:    res.Counts(),
		Scenarios: make([]scenarioView, 0, len(res.Scenarios)),
	}
	if res.SetupErr != nil {
		v.SetupErr = res.SetupErr.Error()
	}
	for _, sc := range res.Scenarios {
		sv := scenarioView{Name: sc.Name, Outcome: string(sc.Outcome()), Steps: make([]stepView, 0, len(sc.Steps))}
		for _, st := range sc.Steps {
			sv.Steps = append(sv.Steps, stepView{
				Step:     st.Step,
				Outcome:  string(st.Outcome),
				Reason:   st.Reason,
				Error:    st.Error(),
				Duration: millis(st.Duration),
			})
		}
		v.Scenarios = append(v.Scenarios, sv)
	}
	return v
}

// Render writes res to w in the requested format.
func Render(w io.Writer, res domain.SuiteResult, format string) error {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", FormatText:
		return renderText(w, res)
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(view(res)); err != nil {
			return fmt.Errorf("op=report.Render: %w", err)
		}
		return nil
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(view(res)); err != nil {
			return fmt.Errorf("op=report.Render: %w", err)
		}
		if err := enc.Close(); err != nil {
			return fmt.Errorf("op=report.Render: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown report format %q", domain.ErrInvalidArgument, format)
	}
}

func marker(o domain.Outcome) string {
	switch o {
	case domain.OutcomePass:
		return "✅"
	case domain.OutcomeFail:
		return "❌"
	default:
		return "⏭"
	}
}

// textStyles colors outcomes when w is a terminal; other writers get plain text.
type textStyles struct {
	pass, fail, skip, title lipgloss.Style
}

func newTextStyles(w io.Writer) textStyles {
	r := lipgloss.NewRenderer(w)
	return textStyles{
		pass:  r.NewStyle().Foreground(lipgloss.Color("2")),
		fail:  r.NewStyle().Foreground(lipgloss.Color("1")).Bold(true),
		skip:  r.NewStyle().Faint(true),
		title: r.NewStyle().Bold(true),
	}
}

func (s textStyles) line(o domain.Outcome, text string) string {
	switch o {
	case domain.OutcomePass:
		return s.pass.Render(text)
	case domain.OutcomeFail:
		return s.fail.Render(text)
	default:
		return s.skip.Render(text)
	}
}

func renderText(w io.Writer, res domain.SuiteResult) error {
	st := newTextStyles(w)
	var b strings.Builder
	b.WriteString(st.title.Render(fmt.Sprintf("Detector Gadget e2e run %s against %s", res.RunID, res.BaseURL)))
	b.WriteString("\n")
	if res.SetupErr != nil {
		b.WriteString("\n" + st.fail.Render(fmt.Sprintf("❌ SETUP FAILED: %v", res.SetupErr)) + "\n")
	}
	for _, sc := range res.Scenarios {
		o := sc.Outcome()
		b.WriteString("\n" + st.line(o, marker(o)+" "+sc.Name) + "\n")
		for _, step := range sc.Steps {
			text := marker(step.Outcome) + " " + step.Step
			switch {
			case step.Outcome == domain.OutcomeFail && step.Err != nil:
				text += fmt.Sprintf(": %v", step.Err)
			case step.Reason != "":
				text += ": " + step.Reason
			}
			fmt.Fprintf(&b, "  %s (%s)\n", st.line(step.Outcome, text), step.Duration.Round(time.Millisecond))
		}
	}
	c := res.Counts()
	fmt.Fprintf(&b, "\n%d passed, %d failed, %d skipped in %s\n", c.Pass, c.Fail, c.Skip, res.Duration.Round(time.Millisecond))
	if _, err := io.WriteString(w, b.String()); err != nil {
		return fmt.Errorf("op=report.Render: %w", err)
	}
	return nil
}
