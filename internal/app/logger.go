package app

import (
	"log/slog"
	"os"
)

// NewLogger builds the process logger. JSON output is meant for deployed
// environments; LOG_FORMAT=text gives the readable handler for local
// work. Every record carries the service name so aggregated logs stay
// attributable.
func NewLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{AddSource: true}
	var handler slog.Handler
	if cfg != nil && cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(handler).With(slog.String("service", "probookkeeper"))
}
