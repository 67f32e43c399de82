package channels

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/DrayChou/personal-ai-assistant/pkg/models"
)

// Bus is the Channel Bus: it normalizes inbound traffic from registered
// adapters, applies per-channel allow-lists, and fans it out to
// subscriber Handlers. It also routes outbound sends to the adapter
// registered for the target channel.
type Bus struct {
	logger *slog.Logger

	mu        sync.RWMutex
	adapters  map[string]Adapter
	allowList map[string]AllowList
	dropped   map[string]int64

	subMu    sync.RWMutex
	handlers []Handler
}

// NewBus constructs an empty Bus. If logger is nil, slog.Default() is used.
func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		logger:    logger,
		adapters:  make(map[string]Adapter),
		allowList: make(map[string]AllowList),
		dropped:   make(map[string]int64),
	}
}

// Register adds an adapter to the bus under its own channel type, with an
// optional allow-list (nil or empty permits every sender).
func (b *Bus) Register(adapter Adapter, allow AllowList) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.adapters[adapter.Channel()] = adapter
	b.allowList[adapter.Channel()] = allow
}

// Unregister removes a previously registered adapter.
func (b *Bus) Unregister(channel string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.adapters, channel)
	delete(b.allowList, channel)
}

// Adapter returns the registered adapter for channel, if any.
func (b *Bus) Adapter(channel string) (Adapter, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	a, ok := b.adapters[channel]
	return a, ok
}

// Subscribe registers a Handler that receives every InboundMessage
// admitted by the bus, across all channels.
func (b *Bus) Subscribe(h Handler) {
	b.subMu.Lock()
	defer b.subMu.Unlock()
	b.handlers = append(b.handlers, h)
}

// Publish is called by an adapter when it receives an InboundMessage. It
// applies the channel's allow-list (silently counting and dropping
// disallowed senders, per spec.md §4.2) and then fans the message out to
// every subscriber synchronously up to the point of invocation — handlers
// that need to run concurrently with each other should do so internally.
func (b *Bus) Publish(ctx context.Context, msg models.InboundMessage) {
	b.mu.RLock()
	allow, hasAllowList := b.allowList[msg.Channel]
	b.mu.RUnlock()

	if hasAllowList && !allow.Allows(msg.SenderID) {
		b.mu.Lock()
		b.dropped[msg.Channel]++
		b.mu.Unlock()
		b.logger.Info("dropped inbound message: sender not in allow-list",
			"channel", msg.Channel, "sender", msg.SenderID)
		return
	}

	b.subMu.RLock()
	handlers := make([]Handler, len(b.handlers))
	copy(handlers, b.handlers)
	b.subMu.RUnlock()

	for _, h := range handlers {
		h(ctx, msg)
	}
}

// Dropped returns how many inbound messages were silently dropped for
// channel due to the allow-list.
func (b *Bus) Dropped(channel string) int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.dropped[channel]
}

// Send routes an OutboundMessage to the adapter registered for its
// channel. It does not retry or persist; durable at-least-once delivery
// is the Delivery Queue's responsibility, layered on top of Send.
func (b *Bus) Send(ctx context.Context, msg models.OutboundMessage) error {
	adapter, ok := b.Adapter(msg.Channel)
	if !ok {
		return fmt.Errorf("channels: no adapter registered for channel %q", msg.Channel)
	}
	return adapter.Send(ctx, msg)
}

// StartAll starts every registered adapter, returning the first error
// encountered (and leaving already-started adapters running).
func (b *Bus) StartAll(ctx context.Context) error {
	b.mu.RLock()
	adapters := make([]Adapter, 0, len(b.adapters))
	for _, a := range b.adapters {
		adapters = append(adapters, a)
	}
	b.mu.RUnlock()

	for _, a := range adapters {
		if err := a.Start(ctx); err != nil {
			return fmt.Errorf("channels: start %q: %w", a.Channel(), err)
		}
	}
	return nil
}

// StopAll stops every registered adapter, collecting but not stopping on
// individual errors.
func (b *Bus) StopAll(ctx context.Context) []error {
	b.mu.RLock()
	adapters := make([]Adapter, 0, len(b.adapters))
	for _, a := range b.adapters {
		adapters = append(adapters, a)
	}
	b.mu.RUnlock()

	var errs []error
	for _, a := range adapters {
		if err := a.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("channels: stop %q: %w", a.Channel(), err))
		}
	}
	return errs
}
