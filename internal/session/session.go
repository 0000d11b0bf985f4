// Package session runs interactive recompute sessions. Each session owns one
// computation slot: a trigger while a computation is in flight is rejected,
// results are published as events on the session's channel, and closing the
// session cancels whatever is running.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/jyannick/OrbitPlot/internal/ephemeris"
	"github.com/jyannick/OrbitPlot/internal/maneuver"
	"github.com/jyannick/OrbitPlot/internal/metrics"
)

var (
	// ErrBusy is returned by Recompute while a computation is in flight.
	ErrBusy = errors.New("a computation is already in flight")
	// ErrClosed is returned by Recompute after the session has been closed.
	ErrClosed = errors.New("session closed")
)

// State is the session's computation state.
type State int

const (
	Idle State = iota
	Computing
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Computing:
		return "computing"
	default:
		return "unknown"
	}
}

// EventType names what an Event carries.
type EventType string

const (
	EventState     EventType = "state"
	EventEphemeris EventType = "ephemeris"
	EventError     EventType = "error"
)

// Event is published to the session's consumer. Table is set for
// EventEphemeris, Err for EventError.
type Event struct {
	Type       EventType
	Generation uint64
	State      State
	Table      *ephemeris.Table
	Err        error
}

// Request is one recompute trigger.
type Request struct {
	Line1     string
	Line2     string
	Duration  time.Duration
	Step      time.Duration
	Maneuvers []maneuver.Maneuver
}

// Computer produces ephemeris tables. *ephemeris.Generator implements it.
type Computer interface {
	Generate(ctx context.Context, line1, line2 string, duration, step time.Duration, maneuvers []maneuver.Maneuver) (*ephemeris.Table, error)
}

const eventBuffer = 16

// Session is one interactive client's computation context.
type Session struct {
	id       string
	created  time.Time
	computer Computer
	logger   *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	events chan Event
	wg     sync.WaitGroup

	// mu guards the fields below and serializes sends on events, so the
	// consumer observes state transitions in the order they happen.
	mu         sync.Mutex
	state      State
	generation uint64
	closed     bool
}

func newSession(id string, c Computer, logger *slog.Logger) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		id:       id,
		created:  time.Now(),
		computer: c,
		logger:   logger.With("session", id),
		ctx:      ctx,
		cancel:   cancel,
		events:   make(chan Event, eventBuffer),
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Events returns the channel results are published on. It is closed when the
// session closes.
func (s *Session) Events() <-chan Event { return s.events }

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Generation returns the number of the most recently accepted trigger.
func (s *Session) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

// Recompute starts a computation for req and returns its generation number.
// It returns ErrBusy while a computation is in flight and ErrClosed after
// Close.
func (s *Session) Recompute(req Request) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, ErrClosed
	}
	if s.state == Computing {
		metrics.IncRecompute("busy")
		return 0, ErrBusy
	}

	s.generation++
	gen := s.generation
	s.state = Computing
	s.publishLocked(Event{Type: EventState, Generation: gen, State: Computing})

	s.wg.Add(1)
	go s.run(gen, req)

	s.logger.Debug("recompute accepted", "generation", gen)
	return gen, nil
}

func (s *Session) run(gen uint64, req Request) {
	defer s.wg.Done()

	start := time.Now()
	table, err := s.computer.Generate(s.ctx, req.Line1, req.Line2, req.Duration, req.Step, req.Maneuvers)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = Idle

	if s.closed || s.ctx.Err() != nil || gen != s.generation {
		metrics.IncRecompute("discarded")
		s.logger.Debug("recompute result discarded", "generation", gen)
		return
	}

	if err != nil {
		metrics.IncRecompute("failed")
		s.logger.Info("recompute failed", "generation", gen, "error", err)
		s.publishLocked(Event{Type: EventError, Generation: gen, Err: err})
	} else {
		metrics.IncRecompute("succeeded")
		s.logger.Debug("recompute finished",
			"generation", gen,
			"rows", len(table.Rows),
			"duration_ms", time.Since(start).Milliseconds(),
		)
		s.publishLocked(Event{Type: EventEphemeris, Generation: gen, Table: table})
	}
	s.publishLocked(Event{Type: EventState, Generation: gen, State: Idle})
}

// publishLocked blocks until the consumer takes ev or the session is
// cancelled. s.mu must be held.
func (s *Session) publishLocked(ev Event) {
	select {
	case s.events <- ev:
	case <-s.ctx.Done():
	}
}

// Close cancels any running computation, waits for it to return and closes
// the event channel. Calling Close more than once is a no-op.
func (s *Session) Close() {
	s.cancel()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.generation++
	s.mu.Unlock()

	s.wg.Wait()
	close(s.events)
	s.logger.Debug("session closed", "age_ms", time.Since(s.created).Milliseconds())
}
