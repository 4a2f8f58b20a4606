package roomtimer

import (
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Registry is the fixed set of room timers. The map is written once in
// NewRegistry and only read afterwards, so lookups need no locking.
type Registry struct {
	timers map[RoomID]*Timer
	order  []RoomID
}

type options struct {
	clock           Clock
	defaultDuration time.Duration
	tickInterval    time.Duration
}

// Option configures a Registry
type Option func(*options)

// WithClock sets the clock used by every timer
func WithClock(clock Clock) Option {
	return func(o *options) { o.clock = clock }
}

// WithDefaultDuration sets the duration timers start with and reset to
func WithDefaultDuration(d time.Duration) Option {
	return func(o *options) { o.defaultDuration = d }
}

// WithTickInterval sets the broadcast cadence of running timers
func WithTickInterval(d time.Duration) Option {
	return func(o *options) { o.tickInterval = d }
}

// NewRegistry creates one idle timer per room id
func NewRegistry(ids []RoomID, emitter Emitter, opts ...Option) (*Registry, error) {
	o := options{
		clock:           clockwork.NewRealClock(),
		defaultDuration: DefaultDuration,
		tickInterval:    DefaultTickInterval,
	}
	for _, opt := range opts {
		opt(&o)
	}

	if len(ids) == 0 {
		return nil, fmt.Errorf("at least one room is required")
	}
	if o.defaultDuration < time.Millisecond {
		return nil, fmt.Errorf("default duration must be at least 1ms, got %s", o.defaultDuration)
	}
	o.defaultDuration = o.defaultDuration.Truncate(time.Millisecond)
	if o.tickInterval <= 0 {
		return nil, fmt.Errorf("tick interval must be positive, got %s", o.tickInterval)
	}

	r := &Registry{
		timers: make(map[RoomID]*Timer, len(ids)),
		order:  make([]RoomID, 0, len(ids)),
	}
	for _, id := range ids {
		if id == "" {
			return nil, fmt.Errorf("room id must not be empty")
		}
		if _, exists := r.timers[id]; exists {
			return nil, fmt.Errorf("duplicate room id %q", id)
		}
		r.timers[id] = newTimer(id, o.clock, emitter, o.defaultDuration, o.tickInterval)
		r.order = append(r.order, id)
	}

	log.Info().
		Int("rooms", len(r.order)).
		Dur("default_duration", o.defaultDuration).
		Dur("tick_interval", o.tickInterval).
		Msg("room registry created")

	return r, nil
}

// Lookup returns the timer of a room
func (r *Registry) Lookup(id RoomID) (*Timer, error) {
	t, ok := r.timers[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRoom, id)
	}
	return t, nil
}

// Rooms returns the room ids in configuration order
func (r *Registry) Rooms() []RoomID {
	rooms := make([]RoomID, len(r.order))
	copy(rooms, r.order)
	return rooms
}

// Close releases the tick resource of every running timer. Timers refuse to
// start afterwards.
func (r *Registry) Close() {
	for _, id := range r.order {
		r.timers[id].close()
	}
	log.Info().Msg("room registry closed")
}
