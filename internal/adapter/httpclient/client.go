// Package httpclient issues requests against the application under test.
//
// Every request is relative to one base URL, carries the scenario's session
// cookies when a session is supplied, and by default does not follow
// redirects so callers can observe 3xx responses directly. There is no
// implicit retry: a transport failure is returned to the caller as-is.
package httpclient

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/fairyhunter13/detector-gadget-e2e/internal/adapter/observability"
	"github.com/fairyhunter13/detector-gadget-e2e/internal/domain"
	obsctx "github.com/fairyhunter13/detector-gadget-e2e/internal/observability"
	"github.com/fairyhunter13/detector-gadget-e2e/internal/session"
)

const (
	defaultTimeout   = 15 * time.Second
	defaultUserAgent = "detector-gadget-e2e/1.0"
	maxBodyBytes     = 32 << 20
)

// Client is safe for concurrent use; the per-scenario state lives in the
// session.Store passed with each Request.
type Client struct {
	baseURL   string
	noFollow  *http.Client
	follow    *http.Client
	userAgent string
}

// Option customizes a Client.
type Option func(*clientOptions)

type clientOptions struct {
	timeout   time.Duration
	transport http.RoundTripper
	userAgent string
}

// WithTimeout sets the per-request timeout enforced by the transport.
func WithTimeout(d time.Duration) Option {
	return func(o *clientOptions) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithTransport replaces the underlying round tripper. It is still wrapped
// for tracing.
func WithTransport(rt http.RoundTripper) Option {
	return func(o *clientOptions) { o.transport = rt }
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(o *clientOptions) {
		if ua != "" {
			o.userAgent = ua
		}
	}
}

// New constructs a client bound to baseURL.
func New(baseURL string, opts ...Option) *Client {
	o := clientOptions{timeout: defaultTimeout, userAgent: defaultUserAgent}
	for _, opt := range opts {
		opt(&o)
	}
	base := o.transport
	if base == nil {
		base = http.DefaultTransport.(*http.Transport).Clone()
	}
	rt := otelhttp.NewTransport(base)
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		noFollow: &http.Client{
			Timeout:   o.timeout,
			Transport: rt,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse // Don't follow redirects
			},
		},
		follow:    &http.Client{Timeout: o.timeout, Transport: rt},
		userAgent: o.userAgent,
	}
}

// BaseURL returns the configured base URL.
func (c *Client) BaseURL() string { return c.baseURL }

// URL resolves path against the base URL. Absolute URLs pass through.
func (c *Client) URL(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	return c.baseURL + "/" + strings.TrimLeft(path, "/")
}

// Request describes the optional parts of a call.
type Request struct {
	// Form is sent url-encoded when Multipart is nil.
	Form      url.Values
	Multipart *Multipart
	// Header is applied before the session cookie; it cannot replace it.
	Header  http.Header
	Session *session.Store
	// FollowRedirects opts this request into following 3xx responses.
	FollowRedirects bool
}

// Do issues one request and returns the observed response.
func (c *Client) Do(ctx context.Context, method, path string, r Request) (domain.Response, error) {
	body, contentType, err := encodeBody(r)
	if err != nil {
		return domain.Response{}, fmt.Errorf("op=httpclient.Do: %w", err)
	}
	target := c.URL(path)
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return domain.Response{}, fmt.Errorf("op=httpclient.Do: %w: %w", domain.ErrInvalidArgument, err)
	}
	reqID := uuid.NewString()
	req.Header.Set("X-Request-Id", reqID)
	req.Header.Set("User-Agent", c.userAgent)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for k, vs := range r.Header {
		if http.CanonicalHeaderKey(k) == "Cookie" && r.Session.Len() > 0 {
			continue
		}
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if r.Session != nil {
		r.Session.Apply(req)
	}

	hc := c.noFollow
	if r.FollowRedirects {
		hc = c.follow
	}
	lg := obsctx.LoggerFromContext(ctx).With(
		slog.String("method", method),
		slog.String("path", path),
		slog.String("request_id", reqID),
	)

	start := time.Now()
	resp, err := hc.Do(req)
	if err != nil {
		dur := time.Since(start)
		observability.ObserveRequest(method, req.URL.Path, 0, dur)
		lg.Warn("request failed", slog.Any("error", err), slog.Duration("duration", dur))
		return domain.Response{}, fmt.Errorf("op=httpclient.Do: %w: %s %s: %w", domain.ErrTransport, method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	b, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	dur := time.Since(start)
	observability.ObserveRequest(method, req.URL.Path, resp.StatusCode, dur)
	if err != nil {
		lg.Warn("reading response body failed", slog.Any("error", err))
		return domain.Response{}, fmt.Errorf("op=httpclient.Do: %w: reading body of %s %s: %w", domain.ErrTransport, method, path, err)
	}
	lg.Debug("request completed",
		slog.Int("status", resp.StatusCode),
		slog.Int("bytes", len(b)),
		slog.Duration("duration", dur))

	return domain.Response{
		Method:     method,
		URL:        target,
		StatusCode: resp.StatusCode,
		Header:     resp.Header.Clone(),
		Body:       b,
		Duration:   dur,
	}, nil
}

// Get issues a GET, attaching sess when non-nil.
func (c *Client) Get(ctx context.Context, path string, sess *session.Store) (domain.Response, error) {
	return c.Do(ctx, http.MethodGet, path, Request{Session: sess})
}

// PostForm issues a url-encoded POST.
func (c *Client) PostForm(ctx context.Context, path string, form url.Values, sess *session.Store) (domain.Response, error) {
	return c.Do(ctx, http.MethodPost, path, Request{Form: form, Session: sess})
}

// PostMultipart issues a multipart/form-data POST.
func (c *Client) PostMultipart(ctx context.Context, path string, mp *Multipart, sess *session.Store) (domain.Response, error) {
	return c.Do(ctx, http.MethodPost, path, Request{Multipart: mp, Session: sess})
}

func encodeBody(r Request) (io.Reader, string, error) {
	switch {
	case r.Multipart != nil:
		return r.Multipart.encode()
	case r.Form != nil:
		return strings.NewReader(r.Form.Encode()), "application/x-www-form-urlencoded", nil
	default:
		return http.NoBody, "", nil
	}
}
