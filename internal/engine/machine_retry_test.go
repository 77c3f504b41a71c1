package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/petrijr/statum/pkg/api"
)

func withRetry(t *testing.T, policy api.RetryPolicy) *api.Schematic[string, string] {
	t.Helper()

	def := turnstile(t, nil).Definition()
	def.RetryPolicy = policy
	s, err := api.NewSchematic(def)
	if err != nil {
		t.Fatalf("NewSchematic failed: %v", err)
	}
	return s
}

func TestConflictSurfacesWhenRetriesDisabled(t *testing.T) {
	ctx := context.Background()
	metrics := &api.BasicMetrics{}
	eng, store := newConflictingEngine(t, 1, WithObserver(metrics))

	m, err := eng.CreateMachine(ctx, turnstile(t, nil), nil)
	if err != nil {
		t.Fatalf("CreateMachine failed: %v", err)
	}

	_, err = m.Send(ctx, "coin")
	if !errors.Is(err, api.ErrConcurrencyConflict) {
		t.Fatalf("expected ErrConcurrencyConflict, got %v", err)
	}
	if api.KindOf(err) != api.KindConcurrencyConflict {
		t.Fatalf("expected conflict kind, got %q", api.KindOf(err))
	}
	if got := store.attempts.Load(); got != 1 {
		t.Fatalf("expected a single commit attempt, got %d", got)
	}
	if got := metrics.Snapshot().Conflicts; got != 1 {
		t.Fatalf("expected 1 observed conflict, got %d", got)
	}

	// The next send reads a fresh tag and wins.
	st, err := m.Send(ctx, "coin")
	if err != nil {
		t.Fatalf("Send after conflict failed: %v", err)
	}
	if st.Value != "Unlocked" {
		t.Fatalf("expected Unlocked, got %q", st.Value)
	}
}

func TestBoundedRetriesAbsorbConflicts(t *testing.T) {
	ctx := context.Background()
	eng, store := newConflictingEngine(t, 2)

	m, err := eng.CreateMachine(ctx, withRetry(t, api.RetryPolicy{Enabled: true, MaxRetries: 2}), nil)
	if err != nil {
		t.Fatalf("CreateMachine failed: %v", err)
	}

	st, err := m.Send(ctx, "coin")
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if st.Value != "Unlocked" {
		t.Fatalf("expected Unlocked, got %q", st.Value)
	}
	if got := store.attempts.Load(); got != 3 {
		t.Fatalf("expected 3 commit attempts, got %d", got)
	}
}

func TestBoundedRetriesGiveUp(t *testing.T) {
	ctx := context.Background()
	eng, store := newConflictingEngine(t, 5)

	m, err := eng.CreateMachine(ctx, withRetry(t, api.RetryPolicy{Enabled: true, MaxRetries: 2}), nil)
	if err != nil {
		t.Fatalf("CreateMachine failed: %v", err)
	}

	_, err = m.Send(ctx, "coin")
	if !errors.Is(err, api.ErrConcurrencyConflict) {
		t.Fatalf("expected ErrConcurrencyConflict, got %v", err)
	}
	if got := store.attempts.Load(); got != 3 {
		t.Fatalf("expected 3 commit attempts, got %d", got)
	}
}

func TestUnboundedRetriesWithBackoff(t *testing.T) {
	ctx := context.Background()
	eng, store := newConflictingEngine(t, 4)

	policy := api.RetryPolicy{Enabled: true, Backoff: time.Millisecond, BackoffMultiplier: 2, MaxBackoff: 4 * time.Millisecond}
	m, err := eng.CreateMachine(ctx, withRetry(t, policy), nil)
	if err != nil {
		t.Fatalf("CreateMachine failed: %v", err)
	}

	start := time.Now()
	if _, err := m.Send(ctx, "coin"); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	// 1ms + 2ms + 4ms + 4ms
	if elapsed := time.Since(start); elapsed < 11*time.Millisecond {
		t.Fatalf("expected backoff delays to be applied, took %v", elapsed)
	}
	if got := store.attempts.Load(); got != 5 {
		t.Fatalf("expected 5 commit attempts, got %d", got)
	}
}

func TestCancelDuringBackoff(t *testing.T) {
	eng, _ := newConflictingEngine(t, 1000)

	m, err := eng.CreateMachine(context.Background(), withRetry(t, api.RetryPolicy{Enabled: true, Backoff: time.Hour}), nil)
	if err != nil {
		t.Fatalf("CreateMachine failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = m.Send(ctx, "coin")
	if api.KindOf(err) != api.KindCancelled {
		t.Fatalf("expected cancelled, got %v", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected the deadline to be the cause, got %v", err)
	}
}

func TestConcurrentSendsHaveExactlyOneWinner(t *testing.T) {
	ctx := context.Background()
	eng := newTestEngine(t)

	m, err := eng.CreateMachine(ctx, turnstile(t, nil), nil)
	if err != nil {
		t.Fatalf("CreateMachine failed: %v", err)
	}

	const senders = 8
	var (
		wg        sync.WaitGroup
		start     = make(chan struct{})
		wins      atomic.Int32
		conflicts atomic.Int32
		other     = make(chan error, senders)
	)
	for range senders {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := m.Send(ctx, "coin")
			switch {
			case err == nil:
				wins.Add(1)
			case errors.Is(err, api.ErrConcurrencyConflict):
				conflicts.Add(1)
			default:
				other <- err
			}
		}()
	}
	close(start)
	wg.Wait()
	close(other)

	for err := range other {
		t.Fatalf("unexpected error: %v", err)
	}
	if wins.Load() < 1 {
		t.Fatalf("expected at least one sender to commit")
	}
	if wins.Load()+conflicts.Load() != senders {
		t.Fatalf("every sender should either win or conflict: wins=%d conflicts=%d", wins.Load(), conflicts.Load())
	}
}

func TestSemaphoreScenario(t *testing.T) {
	ctx := context.Background()
	eng, err := NewInMemoryEngine[int, int]()
	if err != nil {
		t.Fatalf("NewInMemoryEngine failed: %v", err)
	}

	m, err := eng.CreateMachine(ctx, semaphore(t, 3, api.RetryPolicy{Enabled: true}), nil)
	if err != nil {
		t.Fatalf("CreateMachine failed: %v", err)
	}

	st, err := m.Send(ctx, 1)
	if err != nil || st.Value != 1 {
		t.Fatalf("expected 0 -> 1, got %v, %v", st, err)
	}
	st, err = m.Send(ctx, -1)
	if err != nil || st.Value != 0 {
		t.Fatalf("expected 1 -> 0, got %v, %v", st, err)
	}
	for range 3 {
		if _, err := m.Send(ctx, 1); err != nil {
			t.Fatalf("filling slots failed: %v", err)
		}
	}
	if _, err := m.Send(ctx, 1); !errors.Is(err, api.ErrNoTransitionDefined) {
		t.Fatalf("expected a full semaphore to reject +1, got %v", err)
	}
	for range 3 {
		if _, err := m.Send(ctx, -1); err != nil {
			t.Fatalf("draining slots failed: %v", err)
		}
	}

	var maxSeen atomic.Int32
	g, gctx := errgroup.WithContext(ctx)
	for w := range 5 {
		hold := time.Duration(w+1) * time.Millisecond
		g.Go(func() error {
			for {
				st, err := m.Send(gctx, 1)
				if errors.Is(err, api.ErrNoTransitionDefined) {
					time.Sleep(time.Millisecond)
					continue
				}
				if err != nil {
					return err
				}
				for {
					cur := maxSeen.Load()
					if int32(st.Value) <= cur || maxSeen.CompareAndSwap(cur, int32(st.Value)) {
						break
					}
				}
				time.Sleep(hold)
				_, err = m.Send(gctx, -1)
				return err
			}
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("worker failed: %v", err)
	}

	if maxSeen.Load() > 3 {
		t.Fatalf("semaphore exceeded its capacity: %d", maxSeen.Load())
	}
	final, err := m.CurrentState(ctx)
	if err != nil {
		t.Fatalf("CurrentState failed: %v", err)
	}
	if final.Value != 0 {
		t.Fatalf("expected all slots released, got %d", final.Value)
	}
}
