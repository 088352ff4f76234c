package apptwin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/fairyhunter13/detector-gadget-e2e/internal/domain"
)

// maxUpload caps the multipart body the twin accepts.
const maxUpload = 10 << 20

type errorEnvelope struct {
	Error apiError `json:"error"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	code, codeStr := http.StatusInternalServerError, "INTERNAL"
	switch {
	case errors.Is(err, ErrNotFound):
		code, codeStr = http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, ErrInvalidForm), errors.Is(err, domain.ErrInvalidArgument):
		code, codeStr = http.StatusBadRequest, "INVALID_ARGUMENT"
	}
	writeJSON(w, code, errorEnvelope{Error: apiError{Code: codeStr, Message: err.Error()}})
}

func (s *Server) createUser(ctx context.Context, username, password string) error {
	hash, err := HashPassword(password, DefaultArgon2Params)
	if err != nil {
		return err
	}
	return s.store.CreateUser(ctx, User{Username: username, PasswordHash: hash, CreatedAt: time.Now().UTC()})
}

func currentUser(r *http.Request) string {
	u, _ := CurrentUser(r.Context())
	return u
}

// IndexPage renders the landing page.
func (s *Server) IndexPage(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, http.StatusOK, "index.html", pageData{Title: "Home"})
}

// RegisterPage renders the registration form.
func (s *Server) RegisterPage(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, http.StatusOK, "register.html", pageData{Title: "Register"})
}

// Register creates an account and redirects to /login. Validation problems
// re-render the form with 200.
func (s *Server) Register(w http.ResponseWriter, r *http.Request) {
	username := strings.TrimSpace(r.FormValue("username"))
	password := r.FormValue("password")
	confirm := r.FormValue("confirm_password")
	page := pageData{Title: "Register"}
	switch {
	case username == "" || password == "":
		page.Error = "Username and password are required"
	case password != confirm:
		page.Error = "Passwords do not match"
	}
	if page.Error != "" {
		s.render(w, r, http.StatusOK, "register.html", page)
		return
	}
	if err := s.createUser(r.Context(), username, password); err != nil {
		if !errors.Is(err, ErrUserExists) {
			LoggerFrom(r).Error("register", "error", err)
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}
		page.Error = "Username already exists"
		s.render(w, r, http.StatusOK, "register.html", page)
		return
	}
	LoggerFrom(r).Info("user registered", "username", username)
	http.Redirect(w, r, "/login", http.StatusFound)
}

// LoginPage renders the login form, or redirects to the dashboard when the
// caller already holds a valid session.
func (s *Server) LoginPage(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(SessionCookieName); err == nil && c.Value != "" {
		if _, err := s.sessions.ValidateSession(c.Value); err == nil {
			http.Redirect(w, r, "/dashboard", http.StatusFound)
			return
		}
	}
	s.render(w, r, http.StatusOK, "login.html", pageData{Title: "Login"})
}

// Login verifies credentials, sets the session cookie and redirects to the
// dashboard. Bad credentials re-render the form without a cookie.
func (s *Server) Login(w http.ResponseWriter, r *http.Request) {
	username := strings.TrimSpace(r.FormValue("username"))
	password := r.FormValue("password")
	u, err := s.store.GetUser(r.Context(), username)
	if err != nil || !VerifyPassword(password, u.PasswordHash) {
		if err != nil && !errors.Is(err, ErrNotFound) {
			LoggerFrom(r).Error("login lookup", "error", err)
		}
		s.render(w, r, http.StatusOK, "login.html", pageData{Title: "Login", Error: "Invalid username or password"})
		return
	}
	if !s.faults.Get().DropSetCookie {
		s.sessions.SetSessionCookie(w, s.sessions.CreateSession(u.Username))
	}
	http.Redirect(w, r, "/dashboard", http.StatusFound)
}

// Logout clears the session cookie.
func (s *Server) Logout(w http.ResponseWriter, r *http.Request) {
	s.sessions.ClearSessionCookie(w)
	http.Redirect(w, r, "/", http.StatusFound)
}

// DashboardPage lists the caller's jobs, newest first.
func (s *Server) DashboardPage(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)
	jobs, err := s.store.ListJobs(r.Context(), user)
	if err != nil {
		LoggerFrom(r).Error("list jobs", "error", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	s.render(w, r, http.StatusOK, "dashboard.html", pageData{
		Title:  "Dashboard",
		User:   user,
		Jobs:   jobs,
		Charts: !s.faults.Get().OmitCharts,
	})
}

// SubmitJobPage renders the submission form.
func (s *Server) SubmitJobPage(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, http.StatusOK, "submit_job.html", pageData{Title: "Submit Job", User: currentUser(r)})
}

// SubmitJob accepts either a multipart upload in field "file" or a form
// field "url", plus "output_dest", and redirects to the dashboard.
func (s *Server) SubmitJob(w http.ResponseWriter, r *http.Request) {
	if s.faults.Get().RejectSubmissions {
		http.Error(w, "submission rejected", http.StatusInternalServerError)
		return
	}
	if s.limiter != nil {
		allowed, retryAfter, err := s.limiter.Allow(r.Context(), SubmitBucket, currentUser(r), 1)
		if err != nil {
			LoggerFrom(r).Warn("submit limiter", "error", err)
		}
		if !allowed {
			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(retryAfter.Seconds()))))
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
			return
		}
	}
	job, err := readSubmission(r)
	if err != nil {
		s.render(w, r, http.StatusBadRequest, "submit_job.html", pageData{Title: "Submit Job", User: currentUser(r), Error: err.Error()})
		return
	}
	job.Owner = currentUser(r)
	job.Status = domain.JobPending
	created, err := s.store.CreateJob(r.Context(), job)
	if err != nil {
		LoggerFrom(r).Error("create job", "error", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	LoggerFrom(r).Info("job submitted", "job_id", created.ID, "input_source", created.InputSource)
	http.Redirect(w, r, "/dashboard", http.StatusFound)
}

func readSubmission(r *http.Request) (Job, error) {
	var job Job
	if err := r.ParseMultipartForm(maxUpload); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		return Job{}, fmt.Errorf("%w: %v", ErrInvalidForm, err)
	}
	job.OutputDest = strings.TrimSpace(r.FormValue("output_dest"))
	if file, hdr, err := r.FormFile("file"); err == nil {
		defer file.Close()
		data, err := io.ReadAll(io.LimitReader(file, maxUpload))
		if err != nil {
			return Job{}, fmt.Errorf("%w: read upload: %v", ErrInvalidForm, err)
		}
		job.InputSource = "upload:" + hdr.Filename
		job.Content = data
		return job, nil
	}
	if u := strings.TrimSpace(r.FormValue("url")); u != "" {
		job.InputSource = u
		job.Content = []byte(u)
		return job, nil
	}
	return Job{}, fmt.Errorf("%w: a file or url is required", ErrInvalidForm)
}

func (s *Server) ownedJob(r *http.Request) (Job, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		return Job{}, ErrNotFound
	}
	job, err := s.store.GetJob(r.Context(), id)
	if err != nil {
		return Job{}, err
	}
	if user, ok := CurrentUser(r.Context()); ok && job.Owner != user {
		return Job{}, ErrNotFound
	}
	return job, nil
}

// JobPage renders one job.
func (s *Server) JobPage(w http.ResponseWriter, r *http.Request) {
	job, err := s.ownedJob(r)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			http.NotFound(w, r)
			return
		}
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	s.render(w, r, http.StatusOK, "job.html", pageData{Title: "Job", User: currentUser(r), Job: job})
}

type jobStatsResponse struct {
	ID            int64            `json:"id"`
	Status        domain.JobStatus `json:"status"`
	InputSource   string           `json:"input_source"`
	OutputDest    string           `json:"output_destination"`
	FeatureCounts map[string]int   `json:"feature_counts"`
}

// JobStats reports a job's status and feature counts as JSON.
func (s *Server) JobStats(w http.ResponseWriter, r *http.Request) {
	job, err := s.ownedJob(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if s.faults.Get().MalformedStats {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, `{"id": `+strconv.FormatInt(job.ID, 10)+`, "status": `)
		return
	}
	counts := job.Features
	if counts == nil {
		counts = map[string]int{}
	}
	writeJSON(w, http.StatusOK, jobStatsResponse{
		ID:            job.ID,
		Status:        job.Status,
		InputSource:   job.InputSource,
		OutputDest:    job.OutputDest,
		FeatureCounts: counts,
	})
}

// GetFaults returns the active fault toggles.
func (s *Server) GetFaults(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.faults.Get())
}

// PutFaults replaces the fault toggles with the JSON body.
func (s *Server) PutFaults(w http.ResponseWriter, r *http.Request) {
	var f Faults
	if err := json.NewDecoder(r.Body).Decode(&f); err != nil {
		writeError(w, fmt.Errorf("%w: %v", ErrInvalidForm, err))
		return
	}
	s.faults.Set(f)
	LoggerFrom(r).Info("faults updated", "faults", f)
	writeJSON(w, http.StatusOK, f)
}

// DeleteFaults clears every fault.
func (s *Server) DeleteFaults(w http.ResponseWriter, _ *http.Request) {
	s.faults.Reset()
	w.WriteHeader(http.StatusNoContent)
}

// Pinger is implemented by stores backed by an external service.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Readyz reports store reachability.
func (s *Server) Readyz(w http.ResponseWriter, r *http.Request) {
	type check struct {
		Name    string `json:"name"`
		OK      bool   `json:"ok"`
		Details string `json:"details,omitempty"`
	}
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	c := check{Name: "store", OK: true}
	if p, ok := s.store.(Pinger); ok {
		if err := p.Ping(ctx); err != nil {
			c.OK, c.Details = false, err.Error()
		}
	}
	st := http.StatusOK
	if !c.OK {
		st = http.StatusServiceUnavailable
	}
	writeJSON(w, st, map[string]any{"checks": []check{c}})
}
