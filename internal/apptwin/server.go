package apptwin

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"

	"github.com/fairyhunter13/detector-gadget-e2e/internal/adapter/observability"
	"github.com/fairyhunter13/detector-gadget-e2e/internal/domain"
	"github.com/fairyhunter13/detector-gadget-e2e/internal/service/ratelimiter"
)

// SubmitBucket names the rate limit bucket for job submissions.
const SubmitBucket = "submit_job"

// Options configures a twin Server.
type Options struct {
	Store         Store
	SessionSecret string
	// RateLimitPerMin bounds POST /register and /login per client IP; zero
	// disables limiting.
	RateLimitPerMin int
	// CORSOrigins is a comma-separated allow list for /api; empty means "*".
	CORSOrigins string
	// SubmitLimiter, when set, bounds job submissions per user in the
	// SubmitBucket bucket.
	SubmitLimiter ratelimiter.Limiter
	// Seed accounts exist before the first request.
	Seed   []domain.Credentials
	Logger *slog.Logger
}

// Server is the twin application.
type Server struct {
	store     Store
	sessions  *SessionManager
	tmpl      *template.Template
	faults    FaultSet
	log       *slog.Logger
	rateLimit int
	origins   []string
	limiter   ratelimiter.Limiter
}

// New builds a Server and registers the seed accounts.
func New(ctx context.Context, opts Options) (*Server, error) {
	if opts.Store == nil {
		opts.Store = NewMemoryStore()
	}
	if opts.SessionSecret == "" {
		return nil, fmt.Errorf("op=apptwin.New: %w: empty session secret", domain.ErrInvalidArgument)
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	tmpl, err := parseTemplates()
	if err != nil {
		return nil, fmt.Errorf("op=apptwin.New: %w", err)
	}
	s := &Server{
		store:     opts.Store,
		sessions:  NewSessionManager(opts.SessionSecret),
		tmpl:      tmpl,
		log:       opts.Logger.With(slog.String("component", "apptwin")),
		rateLimit: opts.RateLimitPerMin,
		origins:   ParseOrigins(opts.CORSOrigins),
		limiter:   opts.SubmitLimiter,
	}
	for _, c := range opts.Seed {
		if err := s.createUser(ctx, c.Username, c.Password); err != nil && !errors.Is(err, ErrUserExists) {
			return nil, fmt.Errorf("op=apptwin.New: seed %q: %w", c.Username, err)
		}
	}
	return s, nil
}

// Faults exposes the fault toggles.
func (s *Server) Faults() *FaultSet { return &s.faults }

// Store returns the backing store.
func (s *Server) Store() Store { return s.store }

// Handler returns the routed, instrumented http.Handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(Tracing)
	r.Use(Recoverer)
	r.Use(RequestID(s.log))
	r.Use(AccessLog)
	r.Use(observability.HTTPMetricsMiddleware)

	r.Get("/", s.IndexPage)
	r.Get("/register", s.RegisterPage)
	r.Get("/login", s.LoginPage)
	r.Get("/logout", s.Logout)
	r.Group(func(wr chi.Router) {
		if s.rateLimit > 0 {
			wr.Use(httprate.LimitByIP(s.rateLimit, 1*time.Minute))
		}
		wr.Post("/register", s.Register)
		wr.Post("/login", s.Login)
	})

	r.Group(func(pr chi.Router) {
		pr.Use(s.requireSession)
		pr.Get("/dashboard", s.DashboardPage)
		pr.Get("/submit_job", s.SubmitJobPage)
		pr.Post("/submit_job", s.SubmitJob)
		pr.Get("/job/{id}", s.JobPage)
		pr.Route("/api", func(ar chi.Router) {
			ar.Use(cors.Handler(cors.Options{
				AllowedOrigins:   s.origins,
				AllowedMethods:   []string{"GET", "OPTIONS"},
				AllowedHeaders:   []string{"*"},
				ExposedHeaders:   []string{"X-Request-Id"},
				AllowCredentials: false,
				MaxAge:           300,
			}))
			ar.Get("/job_stats/{id}", s.JobStats)
		})
	})

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Get("/readyz", s.Readyz)
	r.Handle("/metrics", observability.Handler())
	r.Route("/admin", func(ar chi.Router) {
		ar.Get("/faults", s.GetFaults)
		ar.Put("/faults", s.PutFaults)
		ar.Delete("/faults", s.DeleteFaults)
	})

	return SecurityHeaders(r)
}

// requireSession applies AuthRequired unless the OpenDashboard fault is on.
func (s *Server) requireSession(next http.Handler) http.Handler {
	guarded := s.sessions.AuthRequired(next)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.faults.Get().OpenDashboard {
			next.ServeHTTP(w, r)
			return
		}
		guarded.ServeHTTP(w, r)
	})
}

// SecurityHeaders adds conservative headers suitable for server-rendered pages.
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "no-referrer")
		next.ServeHTTP(w, r)
	})
}

// ParseOrigins splits a comma-separated origin list, trimming spaces. Empty
// input yields ["*"].
func ParseOrigins(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}

// Serve runs the handler on addr until ctx is cancelled, then shuts down
// gracefully.
func Serve(ctx context.Context, addr string, h http.Handler, log *slog.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info("twin listening", slog.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("op=apptwin.Serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("op=apptwin.Serve: shutdown: %w", err)
	}
	return nil
}
