package main

import (
	"errors"
	"testing"

	"github.com/anthillnet/sinain-hud/internal/config"
)

func TestExitCodeForConfigError(t *testing.T) {
	err := &configError{cause: errors.New("bad json")}
	if got := exitCodeFor(err); got != 1 {
		t.Errorf("exitCodeFor(configError) = %d, want 1", got)
	}
}

func TestExitCodeForCaptureError(t *testing.T) {
	err := &captureError{cause: errors.New("no display")}
	if got := exitCodeFor(err); got != 2 {
		t.Errorf("exitCodeFor(captureError) = %d, want 2", got)
	}
}

func TestExitCodeForOtherError(t *testing.T) {
	if got := exitCodeFor(errors.New("boom")); got != 1 {
		t.Errorf("exitCodeFor(other) = %d, want 1", got)
	}
}

func TestApplyTransportOverrideUseWebSocket(t *testing.T) {
	cfg := config.Default()
	cfg.Relay.UseWebSocket = false
	useWS, noWS = true, false
	defer func() { useWS, noWS = false, false }()

	applyTransportOverride(cfg)
	if !cfg.Relay.UseWebSocket {
		t.Error("expected --use-websocket to force UseWebSocket=true")
	}
}

func TestApplyTransportOverrideNoWebSocket(t *testing.T) {
	cfg := config.Default()
	cfg.Relay.UseWebSocket = true
	useWS, noWS = false, true
	defer func() { useWS, noWS = false, false }()

	applyTransportOverride(cfg)
	if cfg.Relay.UseWebSocket {
		t.Error("expected --no-websocket to force UseWebSocket=false")
	}
}
