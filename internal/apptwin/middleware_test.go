package apptwin

import (
	"bytes"
	"context"
	"log"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"github.com/fairyhunter13/detector-gadget-e2e/internal/domain"
)

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestHandler_NoDuplicateWriteHeader(t *testing.T) {
	s, err := New(context.Background(), Options{SessionSecret: "test-secret", Seed: []domain.Credentials{seedUser}})
	require.NoError(t, err)

	var errLog lockedBuffer
	ts := httptest.NewUnstartedServer(s.Handler())
	ts.Config.ErrorLog = log.New(&errLog, "", 0)
	ts.Start()
	t.Cleanup(ts.Close)

	cookie := login(t, ts, seedUser)
	for _, path := range []string{"/", "/login", "/register", "/dashboard", "/submit_job"} {
		resp, _ := get(t, ts, path, cookie)
		assert.Less(t, resp.StatusCode, 500, path)
	}
	resp, body := postForm(t, ts, "/login", url.Values{"username": {"nobody"}, "password": {"x"}}, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Invalid username or password")

	assert.NotContains(t, errLog.String(), "superfluous")
}

func TestTracing_ServerSpanPerRoute(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(prev)
		_ = tp.Shutdown(context.Background())
	})

	_, ts := newTwin(t, Options{})
	resp, _ := get(t, ts, "/job/42", nil)
	assert.Equal(t, http.StatusFound, resp.StatusCode)

	spans := sr.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, trace.SpanKindServer, spans[0].SpanKind())
	assert.Equal(t, "GET /job/{id}", spans[0].Name())
}
