package pipeline

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestForEachLimitBoundsConcurrency(t *testing.T) {
	var inFlight, peak atomic.Int32
	items := make([]int, 12)

	errs := ForEachLimit(context.Background(), items, 3, func(ctx context.Context, i int, _ int) error {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		inFlight.Add(-1)
		return nil
	})

	if got := peak.Load(); got > 3 {
		t.Fatalf("peak concurrency = %d, want <= 3", got)
	}
	for i, err := range errs {
		if err != nil {
			t.Errorf("task %d: %v", i, err)
		}
	}
}

func TestForEachLimitIsolatesFailures(t *testing.T) {
	boom := errors.New("boom")
	var ran atomic.Int32

	errs := ForEachLimit(context.Background(), []string{"a", "b", "c", "d"}, 2, func(ctx context.Context, i int, s string) error {
		ran.Add(1)
		switch s {
		case "b":
			return boom
		case "c":
			panic("bad feed")
		}
		return nil
	})

	if ran.Load() != 4 {
		t.Fatalf("ran %d tasks, want 4", ran.Load())
	}
	if errs[0] != nil || errs[3] != nil {
		t.Errorf("healthy tasks reported errors: %v", errs)
	}
	if !errors.Is(errs[1], boom) {
		t.Errorf("errs[1] = %v", errs[1])
	}
	if errs[2] == nil {
		t.Error("panic was not converted into an error")
	}
}
