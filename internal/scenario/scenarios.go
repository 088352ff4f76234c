package scenario

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"

	"github.com/fairyhunter13/detector-gadget-e2e/internal/adapter/httpclient"
	"github.com/fairyhunter13/detector-gadget-e2e/internal/config"
	"github.com/fairyhunter13/detector-gadget-e2e/internal/domain"
	"github.com/fairyhunter13/detector-gadget-e2e/internal/fixture"
	"github.com/fairyhunter13/detector-gadget-e2e/internal/interpret"
)

// Scenario names, stable across releases since reports key on them.
const (
	Registration          = "registration"
	Login                 = "login"
	UnauthenticatedAccess = "unauthenticated_access"
	Dashboard             = "dashboard"
	SubmitJobForm         = "submit_job_form"
	SubmitJobFile         = "submit_job_file"
	SubmitJobURL          = "submit_job_url"
	JobStats              = "job_stats"
	JobLifecycle          = "job_lifecycle"
)

// Body markers the application must render.
const (
	MarkerDashboardTitle = "Your Analysis Jobs"
	MarkerStatusChart    = "statusChart"
	MarkerActivityChart  = "activityChart"
	MarkerSubmitForm     = "Submit New Analysis Job"
)

// NoJobsReason is the skip reason when the dashboard lists no job.
const NoJobsReason = "no jobs found to test API endpoint"

type scenario struct {
	name string
	// enabled, when set, gates the scenario on configuration; requires names
	// the setting that opens the gate.
	enabled  func(config.Config) bool
	requires string
	run      func(ctx context.Context, st *state)
}

var catalog = []scenario{
	{name: Registration, run: runRegistration},
	{name: Login, run: runLogin},
	{name: UnauthenticatedAccess, run: runUnauthenticatedAccess},
	{name: Dashboard, run: runDashboard},
	{name: SubmitJobForm, run: runSubmitJobForm},
	{name: SubmitJobFile, run: runSubmitJobFile},
	{name: SubmitJobURL, run: runSubmitJobURL},
	{name: JobStats, run: runJobStats},
	{
		name:     JobLifecycle,
		run:      runJobLifecycle,
		enabled:  func(c config.Config) bool { return c.PollJobs },
		requires: "HARNESS_POLL_JOBS=true",
	},
}

// Names lists every scenario in declaration order.
func Names() []string {
	out := make([]string, len(catalog))
	for i, sc := range catalog {
		out[i] = sc.name
	}
	return out
}

func lookup(name string) (scenario, bool) {
	i := slices.IndexFunc(catalog, func(sc scenario) bool { return sc.name == name })
	if i < 0 {
		return scenario{}, false
	}
	return catalog[i], true
}

// selectScenarios applies the name filter and per-scenario gates, keeping
// declaration order.
func selectScenarios(cfg config.Config) []scenario {
	var out []scenario
	for _, sc := range catalog {
		if !cfg.ScenarioEnabled(sc.name) {
			continue
		}
		if sc.enabled != nil && !sc.enabled(cfg) {
			continue
		}
		out = append(out, sc)
	}
	return out
}

// ValidateSelection rejects a scenario filter naming an unknown scenario or
// a scenario whose gate is closed. An empty filter selects every enabled
// scenario and is always valid.
func ValidateSelection(cfg config.Config) error {
	var unknown []string
	for _, n := range cfg.Scenarios {
		n = strings.TrimSpace(n)
		if !slices.ContainsFunc(catalog, func(sc scenario) bool { return strings.EqualFold(sc.name, n) }) {
			unknown = append(unknown, strconv.Quote(n))
		}
	}
	if len(unknown) > 0 {
		return fmt.Errorf("%w: unknown scenario %s (known: %s)",
			domain.ErrInvalidArgument, strings.Join(unknown, ", "), strings.Join(Names(), ", "))
	}
	if len(cfg.Scenarios) == 0 {
		return nil
	}
	for _, sc := range catalog {
		if sc.enabled != nil && !sc.enabled(cfg) && cfg.ScenarioEnabled(sc.name) {
			return fmt.Errorf("%w: scenario %s requires %s", domain.ErrInvalidArgument, sc.name, sc.requires)
		}
	}
	return nil
}

func expectStatus(resp domain.Response, want domain.StatusRange) error {
	if err := want.Check(resp.StatusCode); err != nil {
		return fmt.Errorf("%s %s: %w", resp.Method, resp.URL, err)
	}
	return nil
}

func expectMarkers(resp domain.Response, markers ...string) error {
	if err := interpret.RequireMarkers(resp.Text(), markers...); err != nil {
		return fmt.Errorf("%s %s: %w", resp.Method, resp.URL, err)
	}
	return nil
}

// setCookiePairs reads the name=value prefix of every Set-Cookie line in h
// without cookie parsing, later values winning. Lines with no name are
// dropped.
func setCookiePairs(h http.Header) map[string]string {
	pairs := make(map[string]string)
	for _, line := range h.Values("Set-Cookie") {
		pair, _, _ := strings.Cut(line, ";")
		name, value, ok := strings.Cut(pair, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			continue
		}
		value = strings.TrimSpace(value)
		if len(value) > 1 && value[0] == '"' && value[len(value)-1] == '"' {
			value = value[1 : len(value)-1]
		}
		pairs[name] = value
	}
	return pairs
}

// login posts the configured credentials and captures the session. Every
// name=value the response set must be replayable from the session.
func (st *state) login(ctx context.Context) bool {
	return st.step(ctx, "login", func(ctx context.Context) error {
		cfg := st.r.cfg
		r, err := st.send(ctx, "login", http.MethodPost, "/login", httpclient.Request{
			Form: url.Values{"username": {cfg.Username}, "password": {cfg.Password}},
		})
		if err != nil {
			return err
		}
		if err := expectStatus(r, domain.Between(200, 302)); err != nil {
			return err
		}
		if !r.HasSetCookie() {
			return fmt.Errorf("POST /login returned %d: %w", r.StatusCode, domain.ErrMissingCookie)
		}
		if st.sess.Capture(r.Header) == 0 {
			return fmt.Errorf("POST /login: no parseable cookie: %w", domain.ErrMissingCookie)
		}
		for name, want := range setCookiePairs(r.Header) {
			if got, ok := st.sess.Get(name); !ok || got != want {
				return fmt.Errorf("POST /login: cookie %q not captured: %w", name, domain.ErrMissingCookie)
			}
		}
		return nil
	})
}

func runRegistration(ctx context.Context, st *state) {
	st.step(ctx, "register", func(ctx context.Context) error {
		base := domain.Credentials{Username: st.r.cfg.Username, Password: st.r.cfg.Password}
		creds := domain.UniqueCredentials(base, st.r.now())
		resp, err := st.send(ctx, "register", http.MethodPost, "/register", httpclient.Request{
			Form: url.Values{
				"username":         {creds.Username},
				"password":         {creds.Password},
				"confirm_password": {creds.Password},
			},
		})
		if err != nil {
			return err
		}
		return expectStatus(resp, st.r.successBand())
	})
}

func runLogin(ctx context.Context, st *state) {
	st.login(ctx)
}

func runUnauthenticatedAccess(ctx context.Context, st *state) {
	st.step(ctx, "dashboard_redirect", func(ctx context.Context) error {
		resp, err := st.send(ctx, "dashboard_redirect", http.MethodGet, "/dashboard", httpclient.Request{})
		if err != nil {
			return err
		}
		return expectStatus(resp, domain.Exactly(http.StatusFound))
	})
}

func (st *state) viewDashboard(ctx context.Context, resp *domain.Response) bool {
	return st.step(ctx, "dashboard", func(ctx context.Context) error {
		r, err := st.send(ctx, "dashboard", http.MethodGet, "/dashboard", httpclient.Request{})
		if err != nil {
			return err
		}
		*resp = r
		if err := expectStatus(r, domain.Exactly(http.StatusOK)); err != nil {
			return err
		}
		return expectMarkers(r, MarkerDashboardTitle)
	}, "login")
}

func runDashboard(ctx context.Context, st *state) {
	var resp domain.Response
	st.login(ctx)
	st.viewDashboard(ctx, &resp)
	st.step(ctx, "charts", func(context.Context) error {
		return expectMarkers(resp, MarkerStatusChart, MarkerActivityChart)
	}, "dashboard")
}

func runSubmitJobForm(ctx context.Context, st *state) {
	st.login(ctx)
	st.step(ctx, "submit_form", func(ctx context.Context) error {
		resp, err := st.send(ctx, "submit_form", http.MethodGet, "/submit_job", httpclient.Request{})
		if err != nil {
			return err
		}
		if err := expectStatus(resp, domain.Exactly(http.StatusOK)); err != nil {
			return err
		}
		return expectMarkers(resp, MarkerSubmitForm)
	}, "login")
}

func runSubmitJobFile(ctx context.Context, st *state) {
	st.login(ctx)
	st.step(ctx, "submit_file", func(ctx context.Context) error {
		path := st.r.fixturePath
		if st.r.fixtureErr != nil {
			return skip("fixture unavailable: %v", st.r.fixtureErr)
		}
		if !fixture.Exists(path) {
			return skip("fixture %s not found", path)
		}
		resp, err := st.send(ctx, "submit_file", http.MethodPost, "/submit_job", httpclient.Request{
			Multipart: &httpclient.Multipart{
				Fields: map[string]string{"output_dest": st.r.cfg.OutputDest},
				Files:  []httpclient.FilePart{{Field: "file", Path: path}},
			},
		})
		if err != nil {
			return err
		}
		return expectStatus(resp, st.r.successBand())
	}, "login")
}

func (st *state) submitURL(ctx context.Context) bool {
	return st.step(ctx, "submit_url", func(ctx context.Context) error {
		resp, err := st.send(ctx, "submit_url", http.MethodPost, "/submit_job", httpclient.Request{
			Form: url.Values{"url": {st.r.cfg.SubmitURL}, "output_dest": {st.r.cfg.OutputDest}},
		})
		if err != nil {
			return err
		}
		return expectStatus(resp, st.r.successBand())
	}, "login")
}

func runSubmitJobURL(ctx context.Context, st *state) {
	st.login(ctx)
	st.submitURL(ctx)
}

func (st *state) fetchStats(ctx context.Context, step string, id int64) (interpret.JobStats, error) {
	resp, err := st.send(ctx, step, http.MethodGet, fmt.Sprintf("/api/job_stats/%d", id), httpclient.Request{})
	if err != nil {
		return interpret.JobStats{}, err
	}
	if err := expectStatus(resp, domain.Exactly(http.StatusOK)); err != nil {
		return interpret.JobStats{}, err
	}
	stats, err := interpret.ParseJobStats(resp.Body)
	if err != nil {
		return interpret.JobStats{}, fmt.Errorf("%s %s: %w", resp.Method, resp.URL, err)
	}
	if !stats.MatchesID(id) {
		return stats, fmt.Errorf("%w: stats id %q, want %d", domain.ErrAssertion, stats.ID, id)
	}
	return stats, nil
}

func runJobStats(ctx context.Context, st *state) {
	var dash domain.Response
	st.login(ctx)
	st.viewDashboard(ctx, &dash)
	st.step(ctx, "job_stats", func(ctx context.Context) error {
		id, ok := interpret.ExtractJobID(dash.Text())
		if !ok {
			return skip(NoJobsReason)
		}
		_, err := st.fetchStats(ctx, "job_stats", id)
		return err
	}, "dashboard")
}

func runJobLifecycle(ctx context.Context, st *state) {
	var dash domain.Response
	var id int64
	st.login(ctx)
	st.submitURL(ctx)
	st.step(ctx, "find_job", func(ctx context.Context) error {
		r, err := st.send(ctx, "find_job", http.MethodGet, "/dashboard", httpclient.Request{})
		if err != nil {
			return err
		}
		dash = r
		if err := expectStatus(r, domain.Exactly(http.StatusOK)); err != nil {
			return err
		}
		ids := interpret.ExtractJobIDs(dash.Text())
		if len(ids) == 0 {
			return skip(NoJobsReason)
		}
		id = slices.Max(ids)
		return nil
	}, "submit_url")
	st.step(ctx, "poll_status", func(ctx context.Context) error {
		interval, timeout := st.r.cfg.GetPollBackoffConfig()
		_, err := st.r.PollStatus(ctx, st.sess, id, interval, timeout)
		return err
	}, "find_job")
}
