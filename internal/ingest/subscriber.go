// Package ingest consumes the orchestrator's mission event stream over a
// websocket and feeds it into the timeline store. The engine itself never
// touches the transport: this package owns connection lifecycle, the engine
// owns reduction.
package ingest

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"overmind/internal/eventhub"
	"overmind/internal/observability"
	"overmind/internal/shared/logging"
	"overmind/internal/timeline"
)

// Conn is the slice of a websocket connection the read loop needs.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	Close() error
}

// Dialer opens a stream connection; injectable for tests.
type Dialer func(ctx context.Context, url string) (Conn, error)

func defaultDialer(ctx context.Context, url string) (Conn, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// Recorder receives per-event outcomes for metrics. Implemented by
// observability.MetricsCollector; nil disables recording.
type Recorder interface {
	RecordEvent(ctx context.Context, outcome timeline.Outcome, latency time.Duration)
}

// Tracer is the slice of the tracing provider the subscriber uses.
// Implemented by observability.TracerProvider; nil disables spans.
type Tracer interface {
	StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span)
}

// Subscriber reads mission events from the orchestrator stream and applies
// them to the store, publishing a fresh snapshot on every visible change.
type Subscriber struct {
	url          string
	store        *timeline.Store
	hub          *eventhub.Hub
	logger       logging.Logger
	recorder     Recorder
	tracer       Tracer
	dial         Dialer
	reconnectMin time.Duration
	reconnectMax time.Duration
}

// Option customizes a Subscriber.
type Option func(*Subscriber)

// WithLogger sets the subscriber logger.
func WithLogger(logger logging.Logger) Option {
	return func(s *Subscriber) { s.logger = logging.OrNop(logger) }
}

// WithRecorder sets the outcome recorder.
func WithRecorder(recorder Recorder) Option {
	return func(s *Subscriber) { s.recorder = recorder }
}

// WithTracer sets the span source.
func WithTracer(tracer Tracer) Option {
	return func(s *Subscriber) { s.tracer = tracer }
}

// WithDialer overrides the websocket dialer.
func WithDialer(dial Dialer) Option {
	return func(s *Subscriber) { s.dial = dial }
}

// WithReconnectWindow bounds the reconnect backoff.
func WithReconnectWindow(min, max time.Duration) Option {
	return func(s *Subscriber) {
		if min > 0 {
			s.reconnectMin = min
		}
		if max >= s.reconnectMin {
			s.reconnectMax = max
		}
	}
}

// NewSubscriber creates a subscriber for the given stream URL.
func NewSubscriber(url string, store *timeline.Store, hub *eventhub.Hub, opts ...Option) *Subscriber {
	s := &Subscriber{
		url:          url,
		store:        store,
		hub:          hub,
		logger:       logging.NewIngestLogger("Subscriber"),
		dial:         defaultDialer,
		reconnectMin: time.Second,
		reconnectMax: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Subscription is the caller-owned handle for a running subscriber.
// Stop tears the read loop down deterministically and waits for it.
type Subscription struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Stop cancels the subscription and blocks until the loop has exited.
func (s *Subscription) Stop() {
	s.cancel()
	<-s.done
}

// Done is closed once the read loop has exited.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Start launches the read loop and returns its subscription handle.
func (s *Subscriber) Start(ctx context.Context) *Subscription {
	ctx, cancel := context.WithCancel(ctx)
	sub := &Subscription{cancel: cancel, done: make(chan struct{})}

	go func() {
		defer close(sub.done)
		s.run(ctx)
	}()

	return sub
}

func (s *Subscriber) run(ctx context.Context) {
	backoff := s.reconnectMin
	for {
		if ctx.Err() != nil {
			return
		}

		conn, err := s.dialTraced(ctx)
		if err != nil {
			s.logger.Warn("Stream dial failed (%s), retrying in %s: %v", s.url, backoff, err)
			if !sleepCtx(ctx, backoff) {
				return
			}
			backoff *= 2
			if backoff > s.reconnectMax {
				backoff = s.reconnectMax
			}
			continue
		}

		s.logger.Info("Connected to mission event stream %s", s.url)
		backoff = s.reconnectMin
		s.readLoop(ctx, conn)

		if ctx.Err() != nil {
			return
		}
		s.logger.Warn("Stream connection lost, reconnecting")
	}
}

func (s *Subscriber) dialTraced(ctx context.Context) (Conn, error) {
	if s.tracer == nil {
		return s.dial(ctx, s.url)
	}
	dialCtx, span := s.tracer.StartSpan(ctx, observability.SpanIngestConnect,
		attribute.String("overmind.stream_url", s.url))
	defer span.End()

	conn, err := s.dial(dialCtx, s.url)
	if err != nil {
		span.SetAttributes(observability.ErrorAttrs(err)...)
	}
	return conn, err
}

func (s *Subscriber) readLoop(ctx context.Context, conn Conn) {
	// Unblock ReadMessage when the subscription stops.
	closed := make(chan struct{})
	defer close(closed)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-closed:
		}
	}()
	defer func() { _ = conn.Close() }()

	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			return
		}
		s.Process(ctx, frame)
	}
}

// sleepCtx waits for d or until ctx is cancelled, whichever comes first.
// Returns false on cancellation.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// Process decodes and applies one raw frame. Malformed frames are dropped;
// the engine is total, so nothing here can fail the loop.
func (s *Subscriber) Process(ctx context.Context, frame []byte) {
	ev, ok := timeline.Decode(frame)
	if !ok {
		s.logger.Debug("Dropping undecodable frame (%d bytes)", len(frame))
		return
	}

	var span trace.Span
	if s.tracer != nil {
		ctx, span = s.tracer.StartSpan(ctx, observability.SpanEventApply,
			observability.EventAttrs(ev.Type, ev.RunID, ev.Phase)...)
	}

	start := time.Now()
	outcome, changed := s.store.Apply(ev)
	if s.recorder != nil {
		s.recorder.RecordEvent(ctx, outcome, time.Since(start))
	}
	if span != nil {
		span.SetAttributes(observability.OutcomeAttrs(outcome.String())...)
		span.End()
	}

	switch outcome {
	case timeline.OutcomeApplied, timeline.OutcomeReset:
	default:
		s.logger.Debug("Event %s dropped: %s", ev.Type, outcome)
	}

	if changed && s.hub != nil {
		s.hub.Publish(s.store.Snapshot())
	}
}
