package api_test

import (
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/vectorquant/strategy-engine/internal/api"
)

func TestHubStopTerminatesRunLoop(t *testing.T) {
	hub := api.NewHub(zap.NewNop())

	done := make(chan struct{})
	go func() {
		hub.Run()
		close(done)
	}()

	hub.Stop()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after Stop")
	}

	// Stop is idempotent.
	hub.Stop()
}
