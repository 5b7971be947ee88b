package main

import (
	"log/slog"

	"bankfeed/cmd/bankfeed/commands"
	"bankfeed/lib/serviceutil"
	"bankfeed/lib/telemetry"
)

func main() {
	ctx := serviceutil.SignalContext()
	telemetry.InitSlog(false)

	// telemetry.json5 is optional for a local run
	tel, err := telemetry.SetupFromEnv(ctx, "bankfeed")
	if err != nil {
		slog.Debug("telemetry export disabled", "err", err)
	} else {
		defer tel.Shutdown(ctx)
		telemetry.InstrumentPerfStats(ctx)
	}

	commands.ExecuteContext(ctx)
}
