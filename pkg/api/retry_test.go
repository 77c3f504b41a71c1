package api

import (
	"testing"
	"time"
)

func TestRetryPolicy_Allows(t *testing.T) {
	cases := []struct {
		name      string
		policy    RetryPolicy
		conflicts int
		want      bool
	}{
		{"disabled", RetryPolicy{}, 1, false},
		{"unbounded", RetryPolicy{Enabled: true}, 1000, true},
		{"bounded within", RetryPolicy{Enabled: true, MaxRetries: 3}, 3, true},
		{"bounded exhausted", RetryPolicy{Enabled: true, MaxRetries: 3}, 4, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.policy.Allows(tc.conflicts); got != tc.want {
				t.Fatalf("Allows(%d) = %v, want %v", tc.conflicts, got, tc.want)
			}
		})
	}
}

func TestRetryPolicy_Delay(t *testing.T) {
	p := RetryPolicy{Enabled: true, Backoff: 10 * time.Millisecond, BackoffMultiplier: 2, MaxBackoff: 50 * time.Millisecond}

	want := []time.Duration{10 * time.Millisecond, 20 * time.Millisecond, 40 * time.Millisecond, 50 * time.Millisecond}
	for i, w := range want {
		if got := p.Delay(i + 1); got != w {
			t.Fatalf("Delay(%d) = %s, want %s", i+1, got, w)
		}
	}

	constant := RetryPolicy{Enabled: true, Backoff: 5 * time.Millisecond}
	if got := constant.Delay(7); got != 5*time.Millisecond {
		t.Fatalf("constant Delay = %s, want 5ms", got)
	}
	if got := (RetryPolicy{Enabled: true}).Delay(3); got != 0 {
		t.Fatalf("immediate Delay = %s, want 0", got)
	}
}

func TestRetryPolicy_Unbounded(t *testing.T) {
	if (RetryPolicy{}).Unbounded() {
		t.Fatalf("disabled policy must not be unbounded")
	}
	if !(RetryPolicy{Enabled: true}).Unbounded() {
		t.Fatalf("enabled policy without a bound should be unbounded")
	}
}
