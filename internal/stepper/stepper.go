// Package stepper runs native simulation steps on a dedicated goroutine.
//
// The consuming goroutine requests one step at a time with the current
// (min, max) timestep bounds and waits for the Tick. While a step is in
// flight the consumer must not touch the native scene; all mutation happens
// between Wait returning and the next Request.
package stepper

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/roach88/physync/internal/native"
)

// maxSleepChunk bounds a single pacing sleep so Stop stays responsive.
const maxSleepChunk = 4 * time.Millisecond

var (
	// ErrStopped is returned by Request and Wait once Stop has been called.
	ErrStopped = errors.New("stepper stopped")

	// ErrStepInFlight is returned by Request while the previous step has not
	// been collected with Wait.
	ErrStepInFlight = errors.New("step already in flight")
)

// Clock is the time source used for pacing.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

// SystemClock is the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time        { return time.Now() }
func (SystemClock) Sleep(d time.Duration) { time.Sleep(d) }

// Tick reports one completed step. Delta is the simulated time.
type Tick struct {
	Delta time.Duration
	Seq   int64
}

type request struct {
	min, max time.Duration
}

// Option configures a Stepper.
type Option func(*Stepper)

// WithClock replaces the wall clock.
func WithClock(c Clock) Option {
	return func(s *Stepper) { s.clock = c }
}

// WithLogger sets the logger for per-step debug output.
func WithLogger(l *slog.Logger) Option {
	return func(s *Stepper) { s.logger = l }
}

// Stepper owns the simulation goroutine for one native scene.
//
// States: Idle (no step requested) and Running (a step is being paced or
// simulated). At most one step is in flight.
type Stepper struct {
	scene  native.Scene
	clock  Clock
	logger *slog.Logger

	requests chan request
	done     chan Tick
	quit     chan struct{}
	exited   chan struct{}

	startOnce sync.Once
	stopOnce  sync.Once
	started   atomic.Bool
	stopped   atomic.Bool
	inFlight  atomic.Bool
	seq       atomic.Int64

	// Owned by the simulation goroutine.
	timerStarted bool
	last         time.Time
}

// New creates a stepper for scene. Start must be called before Request.
func New(scene native.Scene, opts ...Option) *Stepper {
	s := &Stepper{
		scene:    scene,
		clock:    SystemClock{},
		logger:   slog.Default(),
		requests: make(chan request, 1),
		done:     make(chan Tick, 1),
		quit:     make(chan struct{}),
		exited:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start launches the simulation goroutine. Calling it again is a no-op.
func (s *Stepper) Start() {
	s.startOnce.Do(func() {
		s.started.Store(true)
		go s.loop()
	})
}

// Request asks for one step paced to at least min and clamped to max.
// Bounds are expected to satisfy 0 <= min <= max.
func (s *Stepper) Request(min, max time.Duration) error {
	if s.stopped.Load() || !s.started.Load() {
		return ErrStopped
	}
	if !s.inFlight.CompareAndSwap(false, true) {
		return ErrStepInFlight
	}
	s.requests <- request{min: min, max: max}
	return nil
}

// InFlight reports whether a requested step has not been collected yet.
func (s *Stepper) InFlight() bool {
	return s.inFlight.Load()
}

// Wait blocks until the in-flight step completes.
func (s *Stepper) Wait(ctx context.Context) (Tick, error) {
	select {
	case t := <-s.done:
		s.inFlight.Store(false)
		return t, nil
	case <-s.quit:
		return Tick{}, ErrStopped
	case <-ctx.Done():
		return Tick{}, ctx.Err()
	}
}

// Stop ends the simulation goroutine and joins it. A step that is already
// simulating completes first. Safe to call more than once.
func (s *Stepper) Stop() {
	s.stopOnce.Do(func() {
		s.stopped.Store(true)
		close(s.quit)
		if s.started.Load() {
			<-s.exited
		}
	})
}

func (s *Stepper) loop() {
	defer close(s.exited)
	for {
		select {
		case <-s.quit:
			return
		case req := <-s.requests:
			tick, ok := s.step(req)
			if !ok {
				return
			}
			select {
			case s.done <- tick:
			case <-s.quit:
				return
			}
		}
	}
}

// step paces, simulates and fetches one frame. It returns false when the
// stepper was stopped while pacing.
func (s *Stepper) step(req request) (Tick, bool) {
	if !s.timerStarted {
		s.last = s.clock.Now()
		s.timerStarted = true
	}

	elapsed := s.clock.Now().Sub(s.last)
	for elapsed < req.min {
		select {
		case <-s.quit:
			return Tick{}, false
		default:
		}
		s.clock.Sleep(min(req.min-elapsed, maxSleepChunk))
		elapsed = s.clock.Now().Sub(s.last)
	}
	s.last = s.clock.Now()

	delta := min(elapsed, req.max)
	s.scene.Simulate(float32(delta.Seconds()))
	s.scene.FetchResults(true)

	tick := Tick{Delta: delta, Seq: s.seq.Add(1)}
	s.logger.Debug("step", "seq", tick.Seq, "delta", delta, "elapsed", elapsed)
	return tick, true
}
