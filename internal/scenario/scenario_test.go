package scenario

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/detector-gadget-e2e/internal/adapter/httpclient"
	"github.com/fairyhunter13/detector-gadget-e2e/internal/apptwin"
	"github.com/fairyhunter13/detector-gadget-e2e/internal/config"
	"github.com/fairyhunter13/detector-gadget-e2e/internal/domain"
	"github.com/fairyhunter13/detector-gadget-e2e/internal/session"
)

type twinEnv struct {
	twin      *apptwin.Server
	ts        *httptest.Server
	cfg       config.Config
	statsHits atomic.Int64
}

func newEnv(t *testing.T, withWorker bool) *twinEnv {
	t.Helper()
	cfg := config.Default()
	cfg.AppEnv = "test"
	cfg.ReadyTimeout = time.Second
	cfg.FixturePath = filepath.Join(t.TempDir(), "fixtures", "sample.txt")

	twin, err := apptwin.New(context.Background(), apptwin.Options{
		SessionSecret: "test-secret",
		Seed:          []domain.Credentials{{Username: cfg.Username, Password: cfg.Password}},
	})
	require.NoError(t, err)

	env := &twinEnv{twin: twin, cfg: cfg}
	h := twin.Handler()
	env.ts = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/api/job_stats/") {
			env.statsHits.Add(1)
		}
		h.ServeHTTP(w, r)
	}))
	t.Cleanup(env.ts.Close)
	env.cfg.BaseURL = env.ts.URL

	if withWorker {
		ctx, cancel := context.WithCancel(context.Background())
		w := apptwin.NewWorker(twin.Store(), 10*time.Millisecond, nil)
		done := make(chan struct{})
		go func() { _ = w.Run(ctx); close(done) }()
		t.Cleanup(func() { cancel(); <-done })
	}
	return env
}

func (e *twinEnv) runner(opts ...Option) *Runner {
	return NewRunner(httpclient.New(e.cfg.BaseURL, httpclient.WithTimeout(5*time.Second)), e.cfg, opts...)
}

func run(t *testing.T, r *Runner, name string) domain.ScenarioResult {
	t.Helper()
	res, err := r.Run(context.Background(), name)
	require.NoError(t, err)
	return res
}

func stepOf(t *testing.T, res domain.ScenarioResult, name string) domain.StepResult {
	t.Helper()
	for _, st := range res.Steps {
		if st.Step == name {
			return st
		}
	}
	t.Fatalf("step %q not recorded in %s", name, res.Name)
	return domain.StepResult{}
}

func TestRun_UnknownScenario(t *testing.T) {
	_, err := newEnv(t, false).runner().Run(context.Background(), "nope")
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestRegistration(t *testing.T) {
	env := newEnv(t, false)
	res := run(t, env.runner(), Registration)
	assert.Equal(t, domain.OutcomePass, res.Outcome())
	assert.Equal(t, domain.OutcomePass, stepOf(t, res, "register").Outcome)
}

func TestRegistration_SuccessBand(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))
	t.Cleanup(ts.Close)
	cfg := config.Default()
	cfg.BaseURL = ts.URL
	client := httpclient.New(ts.URL)

	res := run(t, NewRunner(client, cfg), Registration)
	assert.Equal(t, domain.OutcomePass, res.Outcome(), "201 is inside the loose band")

	cfg.StrictStatus = true
	res = run(t, NewRunner(client, cfg), Registration)
	step := stepOf(t, res, "register")
	assert.Equal(t, domain.OutcomeFail, step.Outcome)
	assert.ErrorIs(t, step.Err, domain.ErrUnexpectedStatus)
}

func TestRegistration_UniqueUsername(t *testing.T) {
	env := newEnv(t, false)
	now := time.Unix(1_700_000_000, 0)
	run(t, env.runner(WithClock(func() time.Time { return now })), Registration)
	_, err := env.twin.Store().GetUser(context.Background(), "test_user_1700000000")
	assert.NoError(t, err)
}

func TestLogin_CapturesSession(t *testing.T) {
	env := newEnv(t, false)
	res := run(t, env.runner(), Login)
	require.Len(t, res.Steps, 1)
	assert.Equal(t, domain.OutcomePass, stepOf(t, res, "login").Outcome)
}

func TestLogin_MissingSetCookie(t *testing.T) {
	env := newEnv(t, false)
	env.twin.Faults().Set(apptwin.Faults{DropSetCookie: true})
	res := run(t, env.runner(), Login)

	login := stepOf(t, res, "login")
	assert.Equal(t, domain.OutcomeFail, login.Outcome)
	assert.ErrorIs(t, login.Err, domain.ErrMissingCookie)
	assert.Equal(t, domain.OutcomeFail, res.Outcome())
}

func TestLogin_BadCredentials(t *testing.T) {
	env := newEnv(t, false)
	env.cfg.Password = "wrong"
	res := run(t, env.runner(), Login)
	assert.ErrorIs(t, stepOf(t, res, "login").Err, domain.ErrMissingCookie)
}

func TestUnauthenticatedAccess(t *testing.T) {
	env := newEnv(t, false)
	res := run(t, env.runner(), UnauthenticatedAccess)
	assert.Equal(t, domain.OutcomePass, res.Outcome())

	env.twin.Faults().Set(apptwin.Faults{OpenDashboard: true})
	res = run(t, env.runner(), UnauthenticatedAccess)
	step := stepOf(t, res, "dashboard_redirect")
	assert.Equal(t, domain.OutcomeFail, step.Outcome)
	var se *domain.StatusError
	require.ErrorAs(t, step.Err, &se)
	assert.Equal(t, http.StatusOK, se.Got)
}

func TestDashboard(t *testing.T) {
	env := newEnv(t, false)
	res := run(t, env.runner(), Dashboard)
	assert.Equal(t, domain.OutcomePass, res.Outcome())
	require.Len(t, res.Steps, 3)

	env.twin.Faults().Set(apptwin.Faults{OmitCharts: true})
	res = run(t, env.runner(), Dashboard)
	assert.Equal(t, domain.OutcomePass, stepOf(t, res, "dashboard").Outcome)
	charts := stepOf(t, res, "charts")
	assert.Equal(t, domain.OutcomeFail, charts.Outcome)
	assert.ErrorIs(t, charts.Err, domain.ErrMissingMarker)
	assert.Contains(t, charts.Reason, MarkerStatusChart)
}

func TestDashboard_DependsOnLogin(t *testing.T) {
	env := newEnv(t, false)
	env.twin.Faults().Set(apptwin.Faults{DropSetCookie: true})
	res := run(t, env.runner(), Dashboard)
	assert.Equal(t, "depends on login", stepOf(t, res, "dashboard").Reason)
	assert.Equal(t, "depends on dashboard", stepOf(t, res, "charts").Reason)
}

func TestSubmitJobForm(t *testing.T) {
	env := newEnv(t, false)
	res := run(t, env.runner(), SubmitJobForm)
	assert.Equal(t, domain.OutcomePass, res.Outcome())
}

func TestSubmitJobFile(t *testing.T) {
	env := newEnv(t, false)
	r := env.runner()

	res := run(t, r, SubmitJobFile)
	step := stepOf(t, res, "submit_file")
	assert.Equal(t, domain.OutcomeSkip, step.Outcome, "fixture not provisioned yet")
	assert.Contains(t, step.Reason, "not found")

	require.NoError(t, r.PrepareFixture())
	res = run(t, r, SubmitJobFile)
	assert.Equal(t, domain.OutcomePass, res.Outcome())

	jobs, err := env.twin.Store().ListJobs(context.Background(), env.cfg.Username)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "upload:sample.txt", jobs[0].InputSource)
	assert.Equal(t, env.cfg.OutputDest, jobs[0].OutputDest)
}

func TestSubmitJobFile_FixtureSetupError(t *testing.T) {
	env := newEnv(t, false)
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, writeFile(blocker))
	env.cfg.FixturePath = filepath.Join(blocker, "sample.txt")
	r := env.runner()

	err := r.PrepareFixture()
	require.ErrorIs(t, err, domain.ErrSetup)
	res := run(t, r, SubmitJobFile)
	step := stepOf(t, res, "submit_file")
	assert.Equal(t, domain.OutcomeSkip, step.Outcome)
	assert.Contains(t, step.Reason, "fixture unavailable")
}

func TestSubmitJobURL(t *testing.T) {
	env := newEnv(t, false)
	res := run(t, env.runner(), SubmitJobURL)
	assert.Equal(t, domain.OutcomePass, res.Outcome())

	env.twin.Faults().Set(apptwin.Faults{RejectSubmissions: true})
	res = run(t, env.runner(), SubmitJobURL)
	step := stepOf(t, res, "submit_url")
	assert.Equal(t, domain.OutcomeFail, step.Outcome)
	assert.ErrorIs(t, step.Err, domain.ErrUnexpectedStatus)
}

func TestJobStats_NoJobsSkipsWithoutCallingAPI(t *testing.T) {
	env := newEnv(t, false)
	res := run(t, env.runner(), JobStats)
	step := stepOf(t, res, "job_stats")
	assert.Equal(t, domain.OutcomeSkip, step.Outcome)
	assert.Equal(t, NoJobsReason, step.Reason)
	assert.Zero(t, env.statsHits.Load())
}

func TestJobStats_RoundTrip(t *testing.T) {
	env := newEnv(t, false)
	r := env.runner()
	run(t, r, SubmitJobURL)
	run(t, r, SubmitJobURL)

	res := run(t, r, JobStats)
	assert.Equal(t, domain.OutcomePass, res.Outcome())
	assert.Equal(t, int64(1), env.statsHits.Load())
}

func TestJobStats_MalformedJSON(t *testing.T) {
	env := newEnv(t, false)
	r := env.runner()
	run(t, r, SubmitJobURL)
	env.twin.Faults().Set(apptwin.Faults{MalformedStats: true})

	res := run(t, r, JobStats)
	step := stepOf(t, res, "job_stats")
	assert.Equal(t, domain.OutcomeFail, step.Outcome)
	assert.ErrorIs(t, step.Err, domain.ErrParse)
}

func TestJobLifecycle(t *testing.T) {
	env := newEnv(t, true)
	env.cfg.PollJobs = true
	res := run(t, env.runner(), JobLifecycle)
	for _, st := range res.Steps {
		assert.Equal(t, domain.OutcomePass, st.Outcome, "%s: %s", st.Step, st.Reason)
	}
	jobs, err := env.twin.Store().ListJobs(context.Background(), env.cfg.Username)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, domain.JobCompleted, jobs[0].Status)
}

func TestPollStatus_Timeout(t *testing.T) {
	env := newEnv(t, false)
	r := env.runner()
	run(t, r, SubmitJobURL)

	sess := loggedInSession(t, env)
	stats, err := r.PollStatus(context.Background(), sess, 1, 10*time.Millisecond, 100*time.Millisecond)
	require.ErrorIs(t, err, ErrNotTerminal)
	assert.ErrorIs(t, err, domain.ErrAssertion)
	assert.Equal(t, domain.JobPending, stats.Status)
	assert.Contains(t, err.Error(), `still "pending"`)
}

func TestPollStatus_UnknownJobFailsFast(t *testing.T) {
	env := newEnv(t, false)
	sess := loggedInSession(t, env)
	start := time.Now()
	_, err := env.runner().PollStatus(context.Background(), sess, 99, 10*time.Millisecond, 5*time.Second)
	require.ErrorIs(t, err, domain.ErrUnexpectedStatus)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func loggedInSession(t *testing.T, env *twinEnv) *session.Store {
	t.Helper()
	client := httpclient.New(env.cfg.BaseURL)
	resp, err := client.PostForm(context.Background(), "/login", map[string][]string{
		"username": {env.cfg.Username},
		"password": {env.cfg.Password},
	}, nil)
	require.NoError(t, err)
	sess := session.New()
	require.Equal(t, 1, sess.Capture(resp.Header))
	return sess
}

type recordingDumper struct {
	mu    sync.Mutex
	steps []string
}

func (d *recordingDumper) Dump(scenario, step string, _ domain.Response) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.steps = append(d.steps, scenario+"/"+step)
	return nil
}

func TestRunner_DumpsResponses(t *testing.T) {
	env := newEnv(t, false)
	d := &recordingDumper{}
	run(t, env.runner(WithDumper(d)), Dashboard)
	assert.Equal(t, []string{"dashboard/login", "dashboard/dashboard"}, d.steps)
}

func TestSetCookiePairs(t *testing.T) {
	h := http.Header{}
	h.Add("Set-Cookie", "session=abc; Path=/; HttpOnly")
	h.Add("Set-Cookie", "a=1")
	h.Add("Set-Cookie", "=broken")
	h.Add("Set-Cookie", "noequals")
	h.Add("Set-Cookie", `q="quoted"`)
	h.Add("Set-Cookie", "session=def")
	assert.Equal(t, map[string]string{"a": "1", "q": "quoted", "session": "def"}, setCookiePairs(h))
	assert.Empty(t, setCookiePairs(http.Header{}))
}

func TestLogin_UncapturedCookieFails(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Add("Set-Cookie", "session=abc; Path=/")
		// rejected by cookie parsing, so it never reaches the session
		w.Header().Add("Set-Cookie", `tracking=a\b`)
		http.Redirect(w, r, "/dashboard", http.StatusFound)
	}))
	t.Cleanup(ts.Close)

	cfg := config.Default()
	cfg.BaseURL = ts.URL
	r := NewRunner(httpclient.New(ts.URL), cfg)
	res := run(t, r, Login)

	login := stepOf(t, res, "login")
	assert.Equal(t, domain.OutcomeFail, login.Outcome)
	assert.ErrorIs(t, login.Err, domain.ErrMissingCookie)
	assert.Contains(t, login.Reason, "tracking")
}

func TestSelectScenarios(t *testing.T) {
	cfg := config.Default()
	names := func(scs []scenario) []string {
		out := make([]string, len(scs))
		for i, sc := range scs {
			out[i] = sc.name
		}
		return out
	}
	all := names(selectScenarios(cfg))
	assert.NotContains(t, all, JobLifecycle)
	assert.Len(t, all, len(Names())-1)

	cfg.PollJobs = true
	assert.Equal(t, Names(), names(selectScenarios(cfg)))

	cfg.Scenarios = []string{"login", " Dashboard "}
	assert.Equal(t, []string{Login, Dashboard}, names(selectScenarios(cfg)))
}

func TestValidateSelection(t *testing.T) {
	cfg := config.Default()
	require.NoError(t, ValidateSelection(cfg))

	cfg.Scenarios = []string{"Login", " dashboard "}
	require.NoError(t, ValidateSelection(cfg))

	cfg.Scenarios = []string{"login", "logn"}
	err := ValidateSelection(cfg)
	require.ErrorIs(t, err, domain.ErrInvalidArgument)
	assert.Contains(t, err.Error(), `"logn"`)
	assert.NotContains(t, err.Error(), `"login"`)

	cfg.Scenarios = []string{JobLifecycle}
	err = ValidateSelection(cfg)
	require.ErrorIs(t, err, domain.ErrInvalidArgument)
	assert.Contains(t, err.Error(), "HARNESS_POLL_JOBS=true")

	cfg.PollJobs = true
	require.NoError(t, ValidateSelection(cfg))
}
