// Package realtime is an in-process topic broker that pushes order events to
// connected subscribers. Delivery is at-most-once: nothing is persisted or
// retried, and a subscriber whose buffer is full misses the message.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/cafe/internal/config"
	"github.com/Additional-Code/cafe/internal/observability"
)

var hubTracer = otel.Tracer("github.com/Additional-Code/cafe/realtime")

// Channel names subscribers can listen on.
const (
	ChannelNewOrders    = "orders.new"
	ChannelKitchen      = "kitchen.orders"
	ChannelOrderUpdates = "orders.updates"
)

// TableChannel is the per-table feed a customer's table view listens on.
func TableChannel(tableID string) string {
	return "tables." + tableID + ".orders"
}

const wildcard = "*"

var (
	// ErrHubClosed is returned when subscribing after shutdown.
	ErrHubClosed = errors.New("realtime hub closed")
	// ErrInvalidChannel rejects empty names, empty segments and wildcards in
	// publish targets.
	ErrInvalidChannel = errors.New("invalid channel")
)

// Envelope is the frame delivered to subscribers.
type Envelope struct {
	Channel string          `json:"channel"`
	Payload json.RawMessage `json:"payload"`
	SentAt  time.Time       `json:"sentAt"`
}

// Module provides the hub, exports its gauges and closes it on shutdown.
var Module = fx.Options(
	fx.Provide(NewHub),
	fx.Invoke(func(hub *Hub, obs *observability.Manager) error {
		return hub.RegisterMetrics(obs.Registerer())
	}),
	fx.Invoke(func(lc fx.Lifecycle, hub *Hub) {
		lc.Append(fx.Hook{
			OnStop: func(context.Context) error {
				hub.Close()
				return nil
			},
		})
	}),
)

// Hub fans published payloads out to every subscriber whose patterns match.
type Hub struct {
	mu     sync.RWMutex
	subs   map[uint64]*Subscriber
	nextID uint64
	closed bool

	dropped atomic.Uint64
	buffer  int
	logger  *zap.Logger
	now     func() time.Time
}

// NewHub builds a hub using the configured per-subscriber buffer.
func NewHub(cfg config.Config, logger *zap.Logger) *Hub {
	return newHub(cfg.Realtime.SendBuffer, logger)
}

func newHub(buffer int, logger *zap.Logger) *Hub {
	if buffer <= 0 {
		buffer = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		subs:   make(map[uint64]*Subscriber),
		buffer: buffer,
		logger: logger.Named("realtime"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Subscribe registers a subscriber listening on the given channel patterns.
// A pattern segment of "*" matches exactly one segment, so "tables.*.orders"
// follows every table.
func (h *Hub) Subscribe(patterns ...string) (*Subscriber, error) {
	for _, p := range patterns {
		if err := validatePattern(p); err != nil {
			return nil, err
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, ErrHubClosed
	}

	h.nextID++
	sub := &Subscriber{
		id:       h.nextID,
		hub:      h,
		patterns: make(map[string]struct{}, len(patterns)),
		send:     make(chan []byte, h.buffer),
	}
	for _, p := range patterns {
		sub.patterns[p] = struct{}{}
	}
	h.subs[sub.id] = sub

	h.logger.Debug("subscriber joined", zap.Uint64("subscriber", sub.id), zap.Strings("patterns", patterns))
	return sub, nil
}

// Publish encodes payload once and offers it to every matching subscriber
// without blocking. It only fails when the channel or payload is unusable;
// having no listeners is not an error.
func (h *Hub) Publish(ctx context.Context, channel string, payload any) error {
	_, span := hubTracer.Start(ctx, "Hub.Publish", trace.WithAttributes(attribute.String("realtime.channel", channel)))
	defer span.End()

	if err := validateTarget(channel); err != nil {
		return err
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode payload for %s: %w", channel, err)
	}
	frame, err := json.Marshal(Envelope{Channel: channel, Payload: body, SentAt: h.now()})
	if err != nil {
		return fmt.Errorf("encode envelope for %s: %w", channel, err)
	}

	var delivered, dropped int
	h.mu.RLock()
	for _, sub := range h.subs {
		if !sub.matches(channel) {
			continue
		}
		select {
		case sub.send <- frame:
			delivered++
		default:
			sub.dropped.Add(1)
			h.dropped.Add(1)
			dropped++
		}
	}
	h.mu.RUnlock()

	span.SetAttributes(attribute.Int("realtime.delivered", delivered), attribute.Int("realtime.dropped", dropped))
	if dropped > 0 {
		h.logger.Warn("slow subscribers missed a message", zap.String("channel", channel), zap.Int("dropped", dropped))
	}
	return nil
}

// Subscribers returns the number of connected subscribers.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Dropped counts deliveries skipped across all subscribers.
func (h *Hub) Dropped() uint64 { return h.dropped.Load() }

// RegisterMetrics exposes subscriber and drop counts on reg.
func (h *Hub) RegisterMetrics(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "cafe",
			Subsystem: "realtime",
			Name:      "subscribers",
			Help:      "Connected realtime subscribers.",
		}, func() float64 { return float64(h.Subscribers()) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: "cafe",
			Subsystem: "realtime",
			Name:      "dropped_total",
			Help:      "Messages skipped because a subscriber buffer was full.",
		}, func() float64 { return float64(h.Dropped()) }),
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return fmt.Errorf("register realtime metrics: %w", err)
		}
	}
	return nil
}

// Close disconnects every subscriber and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	subs := h.subs
	h.subs = make(map[uint64]*Subscriber)
	h.closed = true
	h.mu.Unlock()

	for _, sub := range subs {
		sub.closeOnce.Do(func() { close(sub.send) })
	}
}

func (h *Hub) remove(sub *Subscriber) {
	h.mu.Lock()
	_, ok := h.subs[sub.id]
	delete(h.subs, sub.id)
	h.mu.Unlock()

	if ok {
		sub.closeOnce.Do(func() { close(sub.send) })
		h.logger.Debug("subscriber left", zap.Uint64("subscriber", sub.id), zap.Uint64("dropped", sub.dropped.Load()))
	}
}

// Subscriber is one connected listener.
type Subscriber struct {
	id        uint64
	hub       *Hub
	mu        sync.RWMutex
	patterns  map[string]struct{}
	send      chan []byte
	dropped   atomic.Uint64
	closeOnce sync.Once
}

// ID identifies the subscriber within its hub.
func (s *Subscriber) ID() uint64 { return s.id }

// Messages yields encoded Envelope frames. The channel is closed when the
// subscriber or the hub is closed.
func (s *Subscriber) Messages() <-chan []byte { return s.send }

// Dropped counts messages skipped because the buffer was full.
func (s *Subscriber) Dropped() uint64 { return s.dropped.Load() }

// Add starts listening on pattern.
func (s *Subscriber) Add(pattern string) error {
	if err := validatePattern(pattern); err != nil {
		return err
	}
	s.mu.Lock()
	s.patterns[pattern] = struct{}{}
	s.mu.Unlock()
	return nil
}

// Remove stops listening on pattern.
func (s *Subscriber) Remove(pattern string) {
	s.mu.Lock()
	delete(s.patterns, pattern)
	s.mu.Unlock()
}

// Patterns returns the current subscriptions.
func (s *Subscriber) Patterns() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.patterns))
	for p := range s.patterns {
		out = append(out, p)
	}
	return out
}

// Close unregisters the subscriber. Safe to call more than once.
func (s *Subscriber) Close() {
	s.hub.remove(s)
}

func (s *Subscriber) matches(channel string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.patterns[channel]; ok {
		return true
	}
	for p := range s.patterns {
		if strings.Contains(p, wildcard) && Match(p, channel) {
			return true
		}
	}
	return false
}

// Match reports whether channel satisfies pattern.
func Match(pattern, channel string) bool {
	ps := strings.Split(pattern, ".")
	cs := strings.Split(channel, ".")
	if len(ps) != len(cs) {
		return false
	}
	for i := range ps {
		if ps[i] != wildcard && ps[i] != cs[i] {
			return false
		}
	}
	return true
}

func validatePattern(pattern string) error {
	if pattern == "" {
		return fmt.Errorf("%w: empty", ErrInvalidChannel)
	}
	for _, seg := range strings.Split(pattern, ".") {
		if seg == "" {
			return fmt.Errorf("%w: %q has an empty segment", ErrInvalidChannel, pattern)
		}
	}
	return nil
}

func validateTarget(channel string) error {
	if err := validatePattern(channel); err != nil {
		return err
	}
	if strings.Contains(channel, wildcard) {
		return fmt.Errorf("%w: cannot publish to pattern %q", ErrInvalidChannel, channel)
	}
	return nil
}
