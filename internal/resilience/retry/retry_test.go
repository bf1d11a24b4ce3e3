package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"grantpath/internal/resilience"
	"grantpath/internal/resilience/classify"
)

func testConfig() Config {
	return Config{
		MaxRetries:     3,
		Base:           time.Millisecond,
		Ceiling:        10 * time.Millisecond,
		AttemptTimeout: time.Second,
	}
}

func TestDo_SucceedsFirstAttempt(t *testing.T) {
	calls := 0
	outcome := Do(context.Background(), testConfig(), classify.Default(), func(ctx context.Context) error {
		calls++
		return nil
	})

	if outcome.Class != resilience.ClassSuccess {
		t.Fatalf("expected success, got %s (%v)", outcome.Class, outcome.Err)
	}
	if calls != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
}

func TestDo_RetriesTransientUntilSuccess(t *testing.T) {
	calls := 0
	outcome := Do(context.Background(), testConfig(), classify.Default(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return &resilience.TransientError{Err: errors.New("blip")}
		}
		return nil
	})

	if outcome.Class != resilience.ClassSuccess {
		t.Fatalf("expected success after retries, got %s", outcome.Class)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}

func TestDo_ExhaustsRetryBudget(t *testing.T) {
	calls := 0
	cfg := testConfig()
	outcome := Do(context.Background(), cfg, classify.Default(), func(ctx context.Context) error {
		calls++
		return &resilience.TransientError{Err: errors.New("still down")}
	})

	if outcome.Class != resilience.ClassTransient {
		t.Fatalf("expected transient after exhaustion, got %s", outcome.Class)
	}
	if want := cfg.MaxRetries + 1; calls != want {
		t.Fatalf("expected %d calls, got %d", want, calls)
	}
}

func TestDo_PermanentNeverRetried(t *testing.T) {
	calls := 0
	outcome := Do(context.Background(), testConfig(), classify.Default(), func(ctx context.Context) error {
		calls++
		return &resilience.PermanentError{Err: errors.New("bad request")}
	})

	if outcome.Class != resilience.ClassPermanent {
		t.Fatalf("expected permanent, got %s", outcome.Class)
	}
	if calls != 1 {
		t.Fatalf("permanent failure must not be retried: got %d calls", calls)
	}
}

func TestDo_ZeroRetriesMeansSingleAttempt(t *testing.T) {
	calls := 0
	cfg := testConfig()
	cfg.MaxRetries = 0
	outcome := Do(context.Background(), cfg, classify.Default(), func(ctx context.Context) error {
		calls++
		return &resilience.TransientError{Err: errors.New("blip")}
	})

	if calls != 1 {
		t.Fatalf("expected exactly one attempt, got %d", calls)
	}
	if outcome.Class != resilience.ClassTransient {
		t.Fatalf("expected transient, got %s", outcome.Class)
	}
}

func TestDo_StopsAtCallerDeadline(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	cfg := Config{
		MaxRetries:     100,
		Base:           20 * time.Millisecond,
		Ceiling:        100 * time.Millisecond,
		AttemptTimeout: time.Second,
	}

	calls := 0
	start := time.Now()
	outcome := Do(ctx, cfg, classify.Default(), func(ctx context.Context) error {
		calls++
		return &resilience.TransientError{Err: errors.New("blip")}
	})
	elapsed := time.Since(start)

	if calls > 3 {
		t.Fatalf("deadline must bound attempts: got %d calls", calls)
	}
	if outcome.Class == resilience.ClassSuccess {
		t.Fatal("expected a failure outcome")
	}
	if elapsed > 500*time.Millisecond {
		t.Fatalf("retry loop overran the deadline: %v", elapsed)
	}
}

func TestDo_AttemptTimeoutClassifiedAsTimeout(t *testing.T) {
	cfg := Config{
		MaxRetries:     0,
		Base:           time.Millisecond,
		Ceiling:        10 * time.Millisecond,
		AttemptTimeout: 10 * time.Millisecond,
	}

	outcome := Do(context.Background(), cfg, classify.Default(), func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	if outcome.Class != resilience.ClassTimeout {
		t.Fatalf("expected timeout, got %s", outcome.Class)
	}
}

func TestConfig_DelayBounds(t *testing.T) {
	cfg := Config{Base: 100 * time.Millisecond, Ceiling: time.Second}

	for n := 0; n < 10; n++ {
		for i := 0; i < 50; i++ {
			d := cfg.Delay(n)
			floor := cfg.Base << uint(n)
			if floor > cfg.Ceiling {
				floor = cfg.Ceiling
			}
			if d < floor {
				t.Fatalf("Delay(%d) = %v below deterministic floor %v", n, d, floor)
			}
			if d > cfg.Ceiling {
				t.Fatalf("Delay(%d) = %v exceeds ceiling %v", n, d, cfg.Ceiling)
			}
			if d > floor+cfg.Base {
				t.Fatalf("Delay(%d) = %v exceeds floor plus one jitter unit", n, d)
			}
		}
	}
}

func TestFromDescriptor(t *testing.T) {
	desc := resilience.DefaultDescriptor("svc", resilience.CapabilityCompletion)

	want := Config{
		MaxRetries:     desc.MaxRetries,
		Base:           desc.BackoffBase,
		Ceiling:        desc.BackoffCeiling,
		AttemptTimeout: desc.Timeout,
	}
	if diff := cmp.Diff(want, FromDescriptor(desc)); diff != "" {
		t.Fatalf("config does not mirror descriptor (-want +got):\n%s", diff)
	}
}
