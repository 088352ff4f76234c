package observability

import (
	"io"
	"log/slog"
	"os"

	"github.com/fairyhunter13/detector-gadget-e2e/internal/config"
)

// SetupLogger configures a JSON slog logger with environment fields. Logs go
// to stderr so stdout stays free for the run report.
func SetupLogger(cfg config.Config) *slog.Logger {
	return NewLogger(cfg, os.Stderr)
}

// NewLogger is SetupLogger with an explicit destination.
func NewLogger(cfg config.Config, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{}
	// In dev, show debug level; otherwise default to info
	if cfg.IsDev() {
		opts.Level = slog.LevelDebug
	}
	h := slog.NewJSONHandler(w, opts)
	return slog.New(h).With(
		slog.String("service", cfg.OTELServiceName),
		slog.String("env", cfg.AppEnv),
		slog.String("base_url", cfg.BaseURL),
	)
}
