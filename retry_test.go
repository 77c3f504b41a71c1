package statum

import (
	"testing"
	"time"
)

func TestConflictRetry_NegativeMeansUnbounded(t *testing.T) {
	p := ConflictRetry(-5).Policy()
	if !p.Enabled || p.MaxRetries != 0 || !p.Unbounded() {
		t.Fatalf("expected enabled unbounded policy, got %+v", p)
	}

	p = ConflictRetry(2).Policy()
	if p.Unbounded() || p.MaxRetries != 2 {
		t.Fatalf("expected bounded policy with 2 retries, got %+v", p)
	}
}

// Ensure WithExponentialBackoff wires fields correctly and default multiplier is applied.
func TestConflictRetry_WithExponentialBackoff_UsesDefaults(t *testing.T) {
	initial := 10 * time.Millisecond
	limit := 50 * time.Millisecond

	p := ConflictRetry(5).
		WithExponentialBackoff(initial, 0, limit).
		Policy()

	if p.Backoff != initial || p.MaxBackoff != limit {
		t.Fatalf("unexpected backoff fields: %+v", p)
	}
	if p.BackoffMultiplier != 2.0 {
		t.Fatalf("expected default multiplier 2.0, got %v", p.BackoffMultiplier)
	}

	want := []time.Duration{0, 10 * time.Millisecond, 20 * time.Millisecond, 40 * time.Millisecond, 50 * time.Millisecond}
	for conflicts, d := range want {
		if got := p.Delay(conflicts); got != d {
			t.Errorf("Delay(%d) = %v, want %v", conflicts, got, d)
		}
	}
}

func TestConflictRetry_WithConstantBackoff(t *testing.T) {
	p := ConflictRetry(3).WithConstantBackoff(5 * time.Millisecond).Policy()

	for conflicts := 1; conflicts <= 3; conflicts++ {
		if got := p.Delay(conflicts); got != 5*time.Millisecond {
			t.Fatalf("Delay(%d) = %v, want 5ms", conflicts, got)
		}
		if !p.Allows(conflicts) {
			t.Fatalf("expected retry %d to be allowed", conflicts)
		}
	}
	if p.Allows(4) {
		t.Fatalf("expected the fourth conflict to give up")
	}
}

func TestConflictRetry_Immediate(t *testing.T) {
	p := ConflictRetry(1).
		WithExponentialBackoff(time.Second, 3, time.Minute).
		Immediate().
		Policy()

	if p.Delay(1) != 0 || p.Delay(10) != 0 {
		t.Fatalf("expected no delay, got %+v", p)
	}
	if !p.Enabled || p.MaxRetries != 1 {
		t.Fatalf("Immediate must keep the retry bound, got %+v", p)
	}
}
