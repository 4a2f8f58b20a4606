package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mcdev12/roomclock/go/internal/roomtimer"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
)

// JetStreamConfig holds configuration for mirroring room events to JetStream
type JetStreamConfig struct {
	URL             string
	StreamName      string
	SubjectPrefix   string
	MaxReconnects   int
	ReconnectWait   time.Duration
	MaxAge          time.Duration // How long to keep messages
	DuplicateWindow time.Duration // Window for duplicate detection
	QueueSize       int           // Events buffered while publishing
	PublishTimeout  time.Duration
}

// DefaultJetStreamConfig returns default JetStream configuration
func DefaultJetStreamConfig() JetStreamConfig {
	return JetStreamConfig{
		URL:             nats.DefaultURL,
		StreamName:      "ROOM_EVENTS",
		SubjectPrefix:   "rooms.events",
		MaxReconnects:   -1, // Infinite
		ReconnectWait:   2 * time.Second,
		MaxAge:          24 * time.Hour,
		DuplicateWindow: 2 * time.Minute,
		QueueSize:       1000,
		PublishTimeout:  5 * time.Second,
	}
}

// JetStreamPublisher publishes room events to a JetStream stream. PublishEvent
// only enqueues; Run does the network work.
type JetStreamPublisher struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	config JetStreamConfig
	queue  chan *RoomEvent

	// Non-transient events that did not fit in queue. While it is non-empty
	// every new event goes here too, so publish order is kept.
	mu       sync.Mutex
	overflow []*RoomEvent
}

// NewJetStreamPublisher connects to NATS and makes sure the stream exists
func NewJetStreamPublisher(ctx context.Context, cfg JetStreamConfig) (*JetStreamPublisher, error) {
	opts := []nats.Option{
		nats.Name("roomclock"),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	p := &JetStreamPublisher{
		nc:     nc,
		js:     js,
		config: cfg,
		queue:  make(chan *RoomEvent, cfg.QueueSize),
	}

	if err := p.ensureStream(ctx); err != nil {
		nc.Close()
		return nil, fmt.Errorf("ensure stream: %w", err)
	}

	return p, nil
}

func (p *JetStreamPublisher) ensureStream(ctx context.Context) error {
	sc := jetstream.StreamConfig{
		Name:        p.config.StreamName,
		Description: "Room timer events",
		Subjects:    []string{fmt.Sprintf("%s.>", p.config.SubjectPrefix)},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      p.config.MaxAge,
		Storage:     jetstream.FileStorage,
		Duplicates:  p.config.DuplicateWindow,
	}

	stream, err := p.js.CreateOrUpdateStream(ctx, sc)
	if err != nil {
		return fmt.Errorf("create or update stream: %w", err)
	}

	log.Info().
		Str("stream", stream.CachedInfo().Config.Name).
		Msg("JetStream stream ready")
	return nil
}

// PublishEvent queues an event for publishing. It never blocks: transient
// events are dropped when the queue is full, others wait in the overflow.
func (p *JetStreamPublisher) PublishEvent(event *RoomEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.overflow) == 0 {
		select {
		case p.queue <- event:
			return
		default:
		}
	}

	if event.transient {
		log.Warn().
			Str("room_id", string(event.RoomID)).
			Str("event", string(event.Event)).
			Msg("JetStream queue full, dropping event")
		return
	}
	p.overflow = append(p.overflow, event)
}

// takeOverflow returns the overflowed events once everything queued ahead of
// them has been taken
func (p *JetStreamPublisher) takeOverflow() []*RoomEvent {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.queue) > 0 || len(p.overflow) == 0 {
		return nil
	}
	events := p.overflow
	p.overflow = nil
	return events
}

// Run publishes queued events until ctx is cancelled
func (p *JetStreamPublisher) Run(ctx context.Context) {
	log.Info().Str("stream", p.config.StreamName).Msg("JetStream publisher started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("JetStream publisher shutting down")
			return
		case event := <-p.queue:
			p.publishLogged(ctx, event)
			for _, event := range p.takeOverflow() {
				p.publishLogged(ctx, event)
			}
		}
	}
}

func (p *JetStreamPublisher) publishLogged(ctx context.Context, event *RoomEvent) {
	if err := p.publish(ctx, event); err != nil {
		log.Error().
			Err(err).
			Str("event_id", event.ID).
			Str("room_id", string(event.RoomID)).
			Msg("failed to publish room event")
	}
}

func (p *JetStreamPublisher) publish(ctx context.Context, event *RoomEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	pubCtx, cancel := context.WithTimeout(ctx, p.config.PublishTimeout)
	defer cancel()

	subject := eventSubject(p.config.SubjectPrefix, event.RoomID, event.Event)
	ack, err := p.js.PublishMsg(pubCtx, &nats.Msg{
		Subject: subject,
		Data:    data,
		Header: nats.Header{
			"Event-Type": []string{string(event.Event)},
			"Room-ID":    []string{string(event.RoomID)},
			"Event-ID":   []string{event.ID},
		},
	},
		jetstream.WithMsgID(event.ID),
		jetstream.WithExpectStream(p.config.StreamName),
	)
	if err != nil {
		return fmt.Errorf("publish to JetStream: %w", err)
	}

	log.Debug().
		Str("subject", subject).
		Str("event_id", event.ID).
		Uint64("sequence", ack.Sequence).
		Msg("published to JetStream")

	return nil
}

// Close drains the NATS connection
func (p *JetStreamPublisher) Close() error {
	if p.nc != nil {
		return p.nc.Drain()
	}
	return nil
}

// Connected reports whether the NATS connection is up
func (p *JetStreamPublisher) Connected() bool {
	return p.nc != nil && p.nc.IsConnected()
}

// eventSubject builds <prefix>.<room>.<event>, e.g. rooms.events.room1.finished
func eventSubject(prefix string, roomID roomtimer.RoomID, event roomtimer.EventName) string {
	name := strings.TrimPrefix(string(event), "room:")
	return fmt.Sprintf("%s.%s.%s", prefix, subjectToken(string(roomID)), subjectToken(name))
}

// subjectToken replaces characters that are not allowed inside a subject token
func subjectToken(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\r', '\n':
			return '_'
		}
		return r
	}, s)
}
