package telemetry

import (
	"log/slog"
	"os"
)

// InitSlog sets the process-wide slog handler. Pass debug to enable
// per-request logging from the bank clients.
func InitSlog(debug bool) {
	level := slog.LevelInfo
	if debug || os.Getenv("BANKFEED_DEBUG") != "" {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})))
}
