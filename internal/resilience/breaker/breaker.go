// Package breaker implements the per-service circuit breaker state machine.
//
// Each guarded dependency owns exactly one Breaker, shared by every caller.
// The state is a tagged value (Closed, Open, HalfOpen) with its own counters
// and timestamps, so illegal combinations cannot be represented. Routing
// reads are lock-free; transitions and counter updates are serialized by a
// per-service mutex so concurrent callers cannot corrupt counters or
// double-transition.
package breaker

import (
	"sync"
	"sync/atomic"
	"time"

	"grantpath/internal/resilience"
)

// State is the breaker's routing state.
type State int32

const (
	// StateClosed passes calls through; consecutive failures are counted.
	StateClosed State = iota

	// StateOpen rejects calls fast-fail until the cool-down elapses.
	StateOpen

	// StateHalfOpen lets a bounded number of trial calls through.
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Snapshot is a point-in-time view of one breaker.
type Snapshot struct {
	Name           string
	State          State
	Failures       int
	Successes      int
	LastTransition time.Time
	RetryAt        time.Time // zero unless open
}

// ChangeHook is invoked after every state transition, outside the caller's
// request path but under the breaker's lock; keep it cheap.
type ChangeHook func(name string, from, to State)

// Breaker is the state machine for one service.
type Breaker struct {
	desc resilience.Descriptor
	now  func() time.Time

	// state and retryAt are duplicated as atomics so routing decisions and
	// observers never take the mutex.
	state   atomic.Int32
	retryAt atomic.Int64 // unix nanos of next trial eligibility

	mu               sync.Mutex
	failures         int
	successes        int
	coolDown         time.Duration // current cool-down, escalates after failed trials
	halfOpenInFlight int
	lastTransition   time.Time

	onChange ChangeHook
}

// Option configures a Breaker.
type Option func(*Breaker)

// WithClock substitutes the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(b *Breaker) { b.now = now }
}

// WithChangeHook registers a transition observer (logging, metrics).
func WithChangeHook(hook ChangeHook) Option {
	return func(b *Breaker) { b.onChange = hook }
}

// New creates a closed breaker for the given descriptor.
func New(desc resilience.Descriptor, opts ...Option) *Breaker {
	b := &Breaker{
		desc:           desc,
		now:            time.Now,
		coolDown:       desc.CoolDown,
		lastTransition: time.Now(),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.lastTransition = b.now()
	return b
}

// Name returns the guarded service name.
func (b *Breaker) Name() string { return b.desc.Name }

// State returns the current routing state without locking.
func (b *Breaker) State() State { return State(b.state.Load()) }

// Allow reports whether a real call may proceed right now, returning the
// state the caller observed. While open it flips to half-open once the
// cool-down has elapsed; while half-open it admits at most the configured
// number of concurrent trial calls.
func (b *Breaker) Allow() (State, bool) {
	switch b.State() {
	case StateClosed:
		return StateClosed, true
	case StateOpen:
		if b.now().UnixNano() < b.retryAt.Load() {
			return StateOpen, false
		}
	}

	// Open-but-eligible or half-open: both need the lock.
	b.mu.Lock()
	defer b.mu.Unlock()

	switch State(b.state.Load()) {
	case StateClosed:
		// Another caller closed it while we waited for the lock.
		return StateClosed, true
	case StateOpen:
		if b.now().UnixNano() < b.retryAt.Load() {
			return StateOpen, false
		}
		b.transitionLocked(StateHalfOpen)
	}

	if b.halfOpenInFlight >= b.desc.HalfOpenMaxCalls {
		return StateHalfOpen, false
	}
	b.halfOpenInFlight++
	return StateHalfOpen, true
}

// RecordSuccess registers a successful logical call. In the closed state it
// resets the failure counter; in the half-open state it advances the success
// counter and closes the breaker once the threshold is met.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch State(b.state.Load()) {
	case StateClosed:
		b.failures = 0
	case StateHalfOpen:
		b.releaseTrialLocked()
		b.successes++
		if b.successes >= b.desc.SuccessThreshold {
			b.coolDown = b.desc.CoolDown
			b.transitionLocked(StateClosed)
		}
	case StateOpen:
		// Late result from a call admitted before the trip. Ignore.
	}
}

// RecordFailure registers a failed logical call: a permanent failure, or a
// transient/timeout failure whose retry budget is exhausted. In the closed
// state it trips the breaker at the failure threshold; any half-open failure
// reopens it with an escalated cool-down, bounded by the ceiling, to avoid
// flapping against a still-unhealthy dependency.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch State(b.state.Load()) {
	case StateClosed:
		b.failures++
		if b.failures >= b.desc.FailureThreshold {
			b.tripLocked()
		}
	case StateHalfOpen:
		b.releaseTrialLocked()
		b.coolDown = minDuration(b.coolDown*2, b.desc.CoolDownCeiling)
		b.tripLocked()
	case StateOpen:
		// Already open; the rejection was never a real call.
	}
}

// Snapshot returns a consistent view of the breaker.
func (b *Breaker) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	snap := Snapshot{
		Name:           b.desc.Name,
		State:          State(b.state.Load()),
		Failures:       b.failures,
		Successes:      b.successes,
		LastTransition: b.lastTransition,
	}
	if snap.State == StateOpen {
		snap.RetryAt = time.Unix(0, b.retryAt.Load())
	}
	return snap
}

// tripLocked moves to open and schedules the next trial.
func (b *Breaker) tripLocked() {
	b.retryAt.Store(b.now().Add(b.coolDown).UnixNano())
	b.transitionLocked(StateOpen)
}

// transitionLocked applies a state change and resets per-state counters.
// Callers hold b.mu.
func (b *Breaker) transitionLocked(to State) {
	from := State(b.state.Load())
	if from == to {
		return
	}
	b.state.Store(int32(to))
	b.lastTransition = b.now()
	b.failures = 0
	b.successes = 0
	b.halfOpenInFlight = 0
	if to != StateOpen {
		b.retryAt.Store(0)
	}
	if b.onChange != nil {
		b.onChange(b.desc.Name, from, to)
	}
}

// releaseTrialLocked returns a half-open trial permit.
func (b *Breaker) releaseTrialLocked() {
	if b.halfOpenInFlight > 0 {
		b.halfOpenInFlight--
	}
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}
