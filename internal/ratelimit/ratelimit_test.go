package ratelimit

import (
	"errors"
	"testing"
	"time"
)

func TestUseEnforcesDailyLimit(t *testing.T) {
	rl := NewAIRateLimiter(2, nil)

	if err := rl.Use("gpt-4.1-mini"); err != nil {
		t.Fatalf("first use: %v", err)
	}
	if err := rl.Use("gpt-4o-mini"); err != nil {
		t.Fatalf("second use: %v", err)
	}
	if rl.CanUse() {
		t.Error("CanUse = true at the limit")
	}
	if err := rl.Use("gpt-4.1-mini"); !errors.Is(err, ErrLimitExceeded) {
		t.Fatalf("third use: err = %v, want ErrLimitExceeded", err)
	}

	stats := rl.GetStats()
	if stats["total_used"] != 2 || stats["rejected"] != 1 {
		t.Errorf("stats = %v", stats)
	}
	if per := stats["models"].(map[string]int); per["gpt-4.1-mini"] != 1 || per["gpt-4o-mini"] != 1 {
		t.Errorf("per model = %v", per)
	}
}

func TestCountersResetAfterADay(t *testing.T) {
	now := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	rl := NewAIRateLimiter(1, nil)
	rl.now = func() time.Time { return now }
	rl.resetTime = now.Add(24 * time.Hour)

	if err := rl.Use("m"); err != nil {
		t.Fatal(err)
	}
	if err := rl.Use("m"); err == nil {
		t.Fatal("expected limit error")
	}

	now = now.Add(25 * time.Hour)
	if err := rl.Use("m"); err != nil {
		t.Fatalf("after reset: %v", err)
	}
	if got := rl.GetStats()["total_used"]; got != 1 {
		t.Errorf("total_used = %v, want 1", got)
	}
}

func TestZeroLimitIsUnlimited(t *testing.T) {
	rl := NewAIRateLimiter(0, nil)
	for i := 0; i < 100; i++ {
		if err := rl.Use("m"); err != nil {
			t.Fatalf("use %d: %v", i, err)
		}
	}
	if !rl.CanUse() {
		t.Error("CanUse = false without a limit")
	}
}
