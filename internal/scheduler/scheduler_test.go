package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestRunKeepsGoingAfterErrors(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls atomic.Int32
	job := func(ctx context.Context) error {
		if calls.Add(1) == 3 {
			cancel()
		}
		return errors.New("source down")
	}

	done := make(chan struct{})
	go func() {
		New(5*time.Millisecond, job, nil).Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
	if n := calls.Load(); n != 3 {
		t.Errorf("calls = %d, want 3", n)
	}
}

func TestRunDisabled(t *testing.T) {
	called := false
	job := func(context.Context) error {
		called = true
		return nil
	}
	New(0, job, nil).Run(context.Background())
	if called {
		t.Error("job ran with a zero interval")
	}
}
