package services

import (
	"testing"
	"time"
)

func testPolicy() StabilityPolicy {
	return StabilityPolicy{
		GracePeriod: 2 * time.Minute,
		BaseDelay:   45 * time.Second,
		MaxDelay:    30 * time.Minute,
		MaxAttempts: 30,
	}
}

func TestEvaluateFirstSightingRetries(t *testing.T) {
	sp := testPolicy()
	now := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)

	v := sp.Evaluate(nil, Observation{Size: 100, MTime: now.Add(-time.Hour)}, now)
	if v.Action != ActionRetry {
		t.Fatalf("action = %s, want retry on first sighting", v.Action)
	}
	if v.Delay != sp.BaseDelay {
		t.Errorf("delay = %v, want base delay %v", v.Delay, sp.BaseDelay)
	}
	if v.Next.Attempts != 1 {
		t.Errorf("attempts = %d, want 1", v.Next.Attempts)
	}
}

func TestEvaluateStableFileIsReady(t *testing.T) {
	sp := testPolicy()
	now := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	obs := Observation{Size: 100, MTime: now.Add(-10 * time.Minute)}

	prev := &PathState{Last: obs, Attempts: 3}
	v := sp.Evaluate(prev, obs, now)
	if v.Action != ActionReady {
		t.Fatalf("action = %s, want ready", v.Action)
	}
}

func TestEvaluateGrowingFileResetsAttempts(t *testing.T) {
	sp := testPolicy()
	now := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)

	prev := &PathState{
		Last:     Observation{Size: 100, MTime: now.Add(-time.Hour)},
		Attempts: 10,
	}
	v := sp.Evaluate(prev, Observation{Size: 200, MTime: now.Add(-time.Second)}, now)
	if v.Action != ActionRetry {
		t.Fatalf("action = %s, want retry", v.Action)
	}
	if v.Next.Attempts != 1 {
		t.Errorf("attempts = %d, want reset to 1 after size change", v.Next.Attempts)
	}
	if v.Delay != sp.BaseDelay {
		t.Errorf("delay = %v, want base delay after reset", v.Delay)
	}
}

func TestEvaluateRecentMTimeBlocksReadiness(t *testing.T) {
	sp := testPolicy()
	now := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	obs := Observation{Size: 100, MTime: now.Add(-30 * time.Second)}

	prev := &PathState{Last: obs, Attempts: 1}
	v := sp.Evaluate(prev, obs, now)
	if v.Action != ActionRetry {
		t.Fatalf("action = %s, want retry inside grace period", v.Action)
	}
	if v.Next.Attempts != 2 {
		t.Errorf("attempts = %d, want 2", v.Next.Attempts)
	}
}

func TestEvaluateBackoffDoublesAndCaps(t *testing.T) {
	sp := testPolicy()
	now := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	obs := Observation{Size: 100, MTime: now.Add(-time.Second)}

	state := &PathState{Last: obs, Attempts: 0}
	wantDelays := []time.Duration{
		45 * time.Second,
		90 * time.Second,
		3 * time.Minute,
		6 * time.Minute,
		12 * time.Minute,
		24 * time.Minute,
		30 * time.Minute, // capped
		30 * time.Minute,
	}
	for i, want := range wantDelays {
		v := sp.Evaluate(state, obs, now)
		if v.Action != ActionRetry {
			t.Fatalf("attempt %d: action = %s, want retry", i+1, v.Action)
		}
		if v.Delay != want {
			t.Errorf("attempt %d: delay = %v, want %v", i+1, v.Delay, want)
		}
		next := v.Next
		state = &next
	}
}

func TestEvaluateAbandonsAfterBudget(t *testing.T) {
	sp := testPolicy()
	sp.MaxAttempts = 3
	now := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	obs := Observation{Size: 100, MTime: now.Add(-time.Second)}

	var state *PathState
	var v Verdict
	for i := 0; i < 4; i++ {
		v = sp.Evaluate(state, obs, now)
		next := v.Next
		state = &next
	}
	if v.Action != ActionAbandon {
		t.Fatalf("action = %s, want abandon after budget exhausted", v.Action)
	}
}

func TestEvaluateDeterministic(t *testing.T) {
	sp := testPolicy()
	now := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	obs := Observation{Size: 100, MTime: now.Add(-time.Minute)}
	prev := &PathState{Last: obs, Attempts: 2}

	first := sp.Evaluate(prev, obs, now)
	for i := 0; i < 5; i++ {
		if got := sp.Evaluate(prev, obs, now); got != first {
			t.Fatalf("verdict differs on identical inputs: %+v vs %+v", got, first)
		}
	}
}
