package roomtimer

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Clock is the interface we use for time operations.
// In production, use clockwork.NewRealClock(). In tests, a FakeClock.
type Clock interface {
	Now() time.Time
	NewTicker(d time.Duration) clockwork.Ticker
}

// Timer is the countdown state machine of a single room.
// All transitions and ticks of one timer are serialized by mu; timers of
// different rooms share nothing.
type Timer struct {
	id              RoomID
	clock           Clock
	emitter         Emitter
	defaultDuration time.Duration
	tickInterval    time.Duration

	mu        sync.Mutex
	remaining time.Duration
	running   bool
	startTime time.Time
	closed    bool

	// Tick resource, set only while running
	ticker clockwork.Ticker
	done   chan struct{}
}

func newTimer(id RoomID, clock Clock, emitter Emitter, defaultDuration, tickInterval time.Duration) *Timer {
	return &Timer{
		id:              id,
		clock:           clock,
		emitter:         emitter,
		defaultDuration: defaultDuration,
		tickInterval:    tickInterval,
		remaining:       defaultDuration,
	}
}

// ID returns the room this timer belongs to
func (t *Timer) ID() RoomID {
	return t.id
}

// Start begins counting down from the frozen remaining time
func (t *Timer) Start() (Snapshot, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return t.snapshotLocked(t.clock.Now()), ErrClosed
	}
	if t.running {
		return t.snapshotLocked(t.clock.Now()), ErrAlreadyRunning
	}

	t.running = true
	t.startTime = t.clock.Now()
	t.ticker = t.clock.NewTicker(t.tickInterval)
	t.done = make(chan struct{})
	go t.tickLoop(t.ticker, t.done)

	snap := t.snapshotLocked(t.startTime)
	t.emit(EventState, snap.StatePayload())

	log.Info().
		Str("room_id", string(t.id)).
		Dur("remaining", t.remaining).
		Msg("timer started")

	return snap, nil
}

// Pause freezes the remaining time and stops ticking
func (t *Timer) Pause() (Snapshot, error) {
	return t.halt(EventPaused)
}

// Stop has the same effect as Pause but announces room:stopped.
// The remaining time is frozen, not reset.
func (t *Timer) Stop() (Snapshot, error) {
	return t.halt(EventStopped)
}

func (t *Timer) halt(event EventName) (Snapshot, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.running {
		return t.snapshotLocked(t.clock.Now()), ErrNotRunning
	}

	elapsed := t.clock.Now().Sub(t.startTime)
	t.releaseLocked()
	t.remaining = clampRemaining(t.remaining - elapsed)
	t.running = false
	t.startTime = time.Time{}

	snap := Snapshot{RoomID: t.id, Remaining: t.remaining}
	t.emit(EventState, snap.StatePayload())
	t.emit(event, TimePayload{RoomID: t.id, Time: Milliseconds(t.remaining)})

	log.Info().
		Str("room_id", string(t.id)).
		Str("event", string(event)).
		Dur("remaining", t.remaining).
		Msg("timer halted")

	return snap, nil
}

// Reset discards any running countdown and restores the default duration
func (t *Timer) Reset() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.running {
		t.releaseLocked()
	}
	t.remaining = t.defaultDuration
	t.running = false
	t.startTime = time.Time{}

	snap := Snapshot{RoomID: t.id, Remaining: t.remaining}
	t.emit(EventState, snap.StatePayload())

	log.Info().Str("room_id", string(t.id)).Msg("timer reset")
	return snap
}

// Read returns the effective state without changing it
func (t *Timer) Read() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked(t.clock.Now())
}

// close freezes a running timer without emitting anything and refuses later
// starts. Used at shutdown.
func (t *Timer) close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	if !t.running {
		return
	}
	elapsed := t.clock.Now().Sub(t.startTime)
	t.releaseLocked()
	t.remaining = clampRemaining(t.remaining - elapsed)
	t.running = false
	t.startTime = time.Time{}
}

func (t *Timer) snapshotLocked(now time.Time) Snapshot {
	snap := Snapshot{RoomID: t.id, Remaining: t.remaining, Running: t.running}
	if t.running {
		snap.Remaining = clampRemaining(t.remaining - now.Sub(t.startTime))
	}
	return snap
}

// releaseLocked stops the ticker and cancels the tick loop of the current run
func (t *Timer) releaseLocked() {
	if t.ticker != nil {
		t.ticker.Stop()
		t.ticker = nil
	}
	if t.done != nil {
		close(t.done)
		t.done = nil
	}
}

func (t *Timer) tickLoop(ticker clockwork.Ticker, done chan struct{}) {
	for {
		select {
		case <-done:
			return
		case <-ticker.Chan():
			t.tick(done)
		}
	}
}

func (t *Timer) tick(done chan struct{}) {
	t.mu.Lock()
	defer t.mu.Unlock()

	// A tick from a run that has already been released
	if t.done != done {
		return
	}
	if !t.running || t.startTime.IsZero() {
		log.Error().
			Str("room_id", string(t.id)).
			Bool("running", t.running).
			Msg("tick fired for a timer without an active run")
		t.releaseLocked()
		t.running = false
		t.startTime = time.Time{}
		return
	}

	timeLeft := clampRemaining(t.remaining - t.clock.Now().Sub(t.startTime))
	if timeLeft == 0 {
		t.releaseLocked()
		t.running = false
		t.remaining = 0
		t.startTime = time.Time{}

		t.emit(EventState, StatePayload{RoomID: t.id, Time: 0, IsRunning: false})
		t.emit(EventFinished, FinishedPayload{RoomID: t.id})

		log.Info().Str("room_id", string(t.id)).Msg("timer finished")
		return
	}

	ms := Milliseconds(timeLeft)
	t.emit(EventState, StatePayload{RoomID: t.id, Time: ms, IsRunning: true})
	t.emit(EventUpdate, TimePayload{RoomID: t.id, Time: ms})
}

func (t *Timer) emit(event EventName, payload any) {
	if t.emitter == nil {
		return
	}
	t.emitter.EmitToRoom(t.id, event, payload)
}

// clampRemaining keeps remaining time non-negative and in whole milliseconds,
// the unit every payload reports
func clampRemaining(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	return d.Truncate(time.Millisecond)
}
