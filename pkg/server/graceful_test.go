package server

import (
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/imabhichow/duvet/pkg/logging"
)

func newTestGracefulServer() *GracefulServer {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return NewGracefulServer(":0", handler, logging.NopLogger{})
}

func TestGracefulServerReload(t *testing.T) {
	gs := newTestGracefulServer()

	reloadCalled := false
	gs.SetReloadFunc(func() error {
		reloadCalled = true
		return nil
	})

	if err := gs.Reload(); err != nil {
		t.Errorf("reload failed: %v", err)
	}
	if !reloadCalled {
		t.Error("reload function was not called")
	}
}

func TestGracefulServerReloadError(t *testing.T) {
	gs := newTestGracefulServer()

	sentinel := errors.New("bad config")
	gs.SetReloadFunc(func() error { return sentinel })

	if err := gs.Reload(); !errors.Is(err, sentinel) {
		t.Errorf("err = %v, want sentinel", err)
	}
}

func TestGracefulServerReloadWithoutFunc(t *testing.T) {
	gs := newTestGracefulServer()
	if err := gs.Reload(); err != nil {
		t.Errorf("reload without function should be a no-op, got %v", err)
	}
}

func TestGracefulServerShutdownIdempotent(t *testing.T) {
	gs := newTestGracefulServer()

	go func() { gs.Start() }()
	time.Sleep(50 * time.Millisecond)

	if gs.IsShuttingDown() {
		t.Fatal("server reports shutting down before shutdown")
	}
	if err := gs.Shutdown(time.Second); err != nil {
		t.Errorf("shutdown failed: %v", err)
	}
	if !gs.IsShuttingDown() {
		t.Error("server does not report shutting down")
	}
	// Second shutdown is a no-op.
	if err := gs.Shutdown(time.Second); err != nil {
		t.Errorf("second shutdown failed: %v", err)
	}

	select {
	case <-gs.ShutdownChannel():
	default:
		t.Error("shutdown channel still open")
	}
}
