package main

import (
	"context"
	"errors"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/anthillnet/sinain-hud/internal/config"
	"github.com/anthillnet/sinain-hud/internal/metrics"
	"github.com/anthillnet/sinain-hud/internal/orchestrator"
	"github.com/anthillnet/sinain-hud/internal/screen"
)

// configError marks a failure loading configuration as unrecoverable,
// distinct from the loader's own internal fall-back-to-defaults path.
type configError struct{ cause error }

func (e *configError) Error() string { return "config: " + e.cause.Error() }
func (e *configError) Unwrap() error { return e.cause }

// captureError marks a failure acquiring the capture backend as
// unrecoverable: there is nothing downstream of capture that can run.
type captureError struct{ cause error }

func (e *captureError) Error() string { return "capture: " + e.cause.Error() }
func (e *captureError) Unwrap() error { return e.cause }

func errIsConfig(err error) bool {
	var e *configError
	return errors.As(err, &e)
}

func errIsCapture(err error) bool {
	var e *captureError
	return errors.As(err, &e)
}

func runSensed() error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return &configError{cause: err}
	}
	applyTransportOverride(cfg)

	cap := screen.New()
	if cap == nil {
		return &captureError{cause: errors.New("no capture backend available on this platform")}
	}
	defer cap.Close()

	met := metrics.New()
	orch := orchestrator.New(cfg, orchestrator.Deps{Capture: cap}, met, controlFile)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("sensed starting", "relay", cfg.Relay.URL, "fps", cfg.Capture.FPS)
	orch.Run(ctx)
	slog.Info("sensed stopped")
	return nil
}

// applyTransportOverride lets --use-websocket/--no-websocket win over
// whatever the config file says, matching cobra's usual "flag beats file"
// precedence.
func applyTransportOverride(cfg *config.Config) {
	if useWS {
		cfg.Relay.UseWebSocket = true
	}
	if noWS {
		cfg.Relay.UseWebSocket = false
	}
}
