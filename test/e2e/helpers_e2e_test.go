//go:build e2e

package e2e_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/detector-gadget-e2e/internal/adapter/httpclient"
	"github.com/fairyhunter13/detector-gadget-e2e/internal/config"
	"github.com/fairyhunter13/detector-gadget-e2e/internal/domain"
	"github.com/fairyhunter13/detector-gadget-e2e/internal/report"
	"github.com/fairyhunter13/detector-gadget-e2e/internal/scenario"
)

// getenv returns the value of the environment variable k or def if empty.
func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

// liveConfig builds the harness configuration for the application at APP_URL.
func liveConfig(t *testing.T) config.Config {
	t.Helper()
	cfg, err := config.Load()
	require.NoError(t, err)
	cfg.FixturePath = getenv("HARNESS_FIXTURE_PATH", filepath.Join(t.TempDir(), "fixtures", "sample.txt"))
	return cfg
}

// newRunner probes the application and provisions the fixture.
func newRunner(t *testing.T, cfg config.Config) *scenario.Runner {
	t.Helper()
	var opts []scenario.Option
	if dir := getenv("HARNESS_DUMP_DIR", ""); dir != "" {
		d, err := report.NewFileDumper(dir)
		require.NoError(t, err)
		opts = append(opts, scenario.WithDumper(d))
	}
	r := scenario.NewRunner(httpclient.New(cfg.BaseURL, httpclient.WithTimeout(cfg.HTTPTimeout)), cfg, opts...)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ReadyTimeout+5*time.Second)
	defer cancel()
	require.NoError(t, r.Probe(ctx), "application at %s is not reachable", cfg.BaseURL)
	require.NoError(t, r.PrepareFixture())
	return r
}

// requireScenario runs name and maps its steps onto the test outcome.
func requireScenario(t *testing.T, r *scenario.Runner, name string) domain.ScenarioResult {
	t.Helper()
	res, err := r.Run(context.Background(), name)
	require.NoError(t, err)
	for _, st := range res.Steps {
		switch st.Outcome {
		case domain.OutcomeFail:
			t.Errorf("%s/%s failed: %v", name, st.Step, st.Err)
		case domain.OutcomeSkip:
			t.Logf("%s/%s skipped: %s", name, st.Step, st.Reason)
		}
	}
	if res.Outcome() == domain.OutcomeSkip {
		t.Skipf("%s skipped", name)
	}
	return res
}
