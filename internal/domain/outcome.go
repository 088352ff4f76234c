package domain

import (
	"time"
)

// Outcome is the tri-state result of a step.
type Outcome string

const (
	OutcomePass Outcome = "pass"
	OutcomeFail Outcome = "fail"
	OutcomeSkip Outcome = "skip"
)

// StepResult records a single request/assert step.
type StepResult struct {
	Scenario string        `json:"scenario" yaml:"scenario"`
	Step     string        `json:"step" yaml:"step"`
	Outcome  Outcome       `json:"outcome" yaml:"outcome"`
	Reason   string        `json:"reason,omitempty" yaml:"reason,omitempty"`
	Err      error         `json:"-" yaml:"-"`
	Duration time.Duration `json:"duration_ns" yaml:"duration"`
}

// Error returns the failure message, if any.
func (s StepResult) Error() string {
	if s.Err == nil {
		return ""
	}
	return s.Err.Error()
}

// ScenarioResult groups the steps of one workflow.
type ScenarioResult struct {
	Name  string       `json:"name" yaml:"name"`
	Steps []StepResult `json:"steps" yaml:"steps"`
}

// Outcome folds the step outcomes: any failure fails the scenario, a
// scenario whose steps were all skipped is skipped.
func (s ScenarioResult) Outcome() Outcome {
	if len(s.Steps) == 0 {
		return OutcomeSkip
	}
	allSkipped := true
	for _, st := range s.Steps {
		switch st.Outcome {
		case OutcomeFail:
			return OutcomeFail
		case OutcomePass:
			allSkipped = false
		}
	}
	if allSkipped {
		return OutcomeSkip
	}
	return OutcomePass
}

// Counts tallies step outcomes.
type Counts struct {
	Pass int `json:"pass" yaml:"pass"`
	Fail int `json:"fail" yaml:"fail"`
	Skip int `json:"skip" yaml:"skip"`
}

// Total returns pass+fail; skipped steps are excluded from the pass/fail count.
func (c Counts) Total() int { return c.Pass + c.Fail }

// SuiteResult is the outcome of one harness run.
type SuiteResult struct {
	RunID     string           `json:"run_id" yaml:"run_id"`
	BaseURL   string           `json:"base_url" yaml:"base_url"`
	StartedAt time.Time        `json:"started_at" yaml:"started_at"`
	Duration  time.Duration    `json:"duration_ns" yaml:"duration"`
	SetupErr  error            `json:"-" yaml:"-"`
	Scenarios []ScenarioResult `json:"scenarios" yaml:"scenarios"`
}

// Counts tallies every step of every scenario.
func (r SuiteResult) Counts() Counts {
	var c Counts
	for _, sc := range r.Scenarios {
		for _, st := range sc.Steps {
			switch st.Outcome {
			case OutcomePass:
				c.Pass++
			case OutcomeFail:
				c.Fail++
			case OutcomeSkip:
				c.Skip++
			}
		}
	}
	return c
}

// Failed reports whether any step failed or setup failed.
func (r SuiteResult) Failed() bool {
	return r.SetupErr != nil || r.Counts().Fail > 0
}

// Scenario returns the named scenario result.
func (r SuiteResult) Scenario(name string) (ScenarioResult, bool) {
	for _, sc := range r.Scenarios {
		if sc.Name == name {
			return sc, true
		}
	}
	return ScenarioResult{}, false
}
