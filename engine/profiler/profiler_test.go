package profiler

import (
	"testing"
	"time"
)

func TestTickDoesNotLogBeforeInterval(t *testing.T) {
	p := NewProfiler()
	p.lastTime = time.Now()
	if p.Tick() {
		t.Fatalf("expected no stats logged before the update interval elapses")
	}
}

func TestTickLogsAfterIntervalAndResetsCounters(t *testing.T) {
	p := NewProfiler()
	p.updateInterval = time.Millisecond
	p.lastTime = time.Now().Add(-time.Second)

	if !p.Tick() {
		t.Fatalf("expected stats logged once the update interval has elapsed")
	}
	if p.frameCount != 0 {
		t.Fatalf("expected frameCount reset to 0 after logging, got %d", p.frameCount)
	}
}
