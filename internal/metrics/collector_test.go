package metrics

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestSample(t *testing.T) {
	c := NewCollector(time.Second, zap.NewNop())

	m := c.Sample()
	if m.Goroutines < 1 {
		t.Errorf("Goroutines = %d, want >= 1", m.Goroutines)
	}
	if m.Timestamp.IsZero() {
		t.Error("Timestamp not set")
	}
	if c.GetMetrics() != m {
		t.Error("GetMetrics should return the last sample")
	}
}

func TestNewCollectorMinimumInterval(t *testing.T) {
	c := NewCollector(10*time.Millisecond, zap.NewNop())
	if c.interval != 30*time.Second {
		t.Errorf("interval = %v, want 30s", c.interval)
	}
}

func TestLogIncludesStage(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	c := NewCollector(time.Second, zap.New(core))
	c.SetStage("join")

	c.log(c.Sample())

	entries := logs.FilterMessage("System metrics").All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 metrics entry, got %d", len(entries))
	}
	if got := entries[0].ContextMap()["stage"]; got != "join" {
		t.Errorf("stage = %v, want join", got)
	}
}

func TestStartStopsOnCancel(t *testing.T) {
	c := NewCollector(time.Second, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		c.Start(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Start did not return after cancel")
	}
}

func TestFormatGB(t *testing.T) {
	if got := formatGB(1.25); got != "1.2 GB" && got != "1.3 GB" {
		t.Errorf("formatGB(1.25) = %q", got)
	}
	if got := formatGB(0); got != "0.0 GB" {
		t.Errorf("formatGB(0) = %q", got)
	}
}
