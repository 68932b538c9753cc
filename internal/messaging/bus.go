package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// inboxSize is the per-endpoint delivery queue depth. Envelopes beyond
// it are dropped, matching the at-most-once channel contract.
const inboxSize = 64

// Address names a registered endpoint on the bus. The background
// coordinator and the popup are singletons; each page-load context
// registers under its tab's address.
type Address string

const (
	// AddrBackground is the background coordinator endpoint.
	AddrBackground Address = "background"

	// AddrPopup is the popup controller endpoint.
	AddrPopup Address = "popup"
)

// ContentAddress returns the endpoint address for the page-load context
// in the given tab.
func ContentAddress(tabID int) Address {
	return Address(fmt.Sprintf("content:%d", tabID))
}

// RespondFunc completes a call. It must be invoked exactly once per
// envelope; the second and later invocations return ErrAlreadyResponded
// and deliver nothing. The payload is marshaled to JSON.
type RespondFunc func(payload any) error

// Handler processes one envelope delivered to an endpoint. Handlers for
// a sequential endpoint run one at a time in delivery order. respond is
// never nil: fire-and-forget deliveries carry a completion that
// discards the payload, so handlers need not distinguish the two paths.
type Handler func(env Envelope, respond RespondFunc)

// Bus connects the three execution contexts. It is safe for concurrent
// use; every method may be called from any goroutine.
type Bus struct {
	mu        sync.RWMutex
	endpoints map[Address]*Endpoint
	logger    *slog.Logger
}

// Option configures a Bus.
type Option func(*Bus)

// WithLogger sets the bus logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(b *Bus) {
		b.logger = logger
	}
}

// New creates an empty Bus.
func New(opts ...Option) *Bus {
	b := &Bus{
		endpoints: make(map[Address]*Endpoint),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// delivery pairs an envelope with its completion.
type delivery struct {
	env     Envelope
	respond RespondFunc
}

// Endpoint is one context's attachment to the bus. It owns an inbox and
// a dispatch loop; closing it models the context being torn down.
type Endpoint struct {
	bus         *Bus
	addr        Address
	inbox       chan delivery
	handlers    map[Command]Handler
	handlersMu  sync.RWMutex
	closed      chan struct{}
	closeOnce   sync.Once
	concurrency int
	done        chan struct{}
}

// EndpointOption configures an Endpoint at registration.
type EndpointOption func(*Endpoint)

// WithConcurrency lets an endpoint dispatch up to n handlers at once.
// The default of 1 models a single-threaded event loop. The background
// coordinator registers with a higher limit: it is stateless and its
// operations are idempotent re-derivations, so serializing them would
// only add latency to callers that are each holding a timeout.
func WithConcurrency(n int) EndpointOption {
	return func(e *Endpoint) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

// Register attaches a new endpoint at addr and starts its dispatch
// loop. Registering over a live endpoint closes the old one first, the
// way a reloaded context replaces its predecessor.
func (b *Bus) Register(addr Address, opts ...EndpointOption) *Endpoint {
	e := &Endpoint{
		bus:         b,
		addr:        addr,
		inbox:       make(chan delivery, inboxSize),
		handlers:    make(map[Command]Handler),
		closed:      make(chan struct{}),
		concurrency: 1,
		done:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}

	b.mu.Lock()
	old := b.endpoints[addr]
	b.endpoints[addr] = e
	b.mu.Unlock()
	if old != nil {
		old.close(false)
	}

	go e.loop()
	return e
}

// Handle registers the handler for a command. Envelopes carrying a
// command with no handler are dropped with a warning; the caller's
// timeout reports the loss.
func (e *Endpoint) Handle(command Command, handler Handler) {
	e.handlersMu.Lock()
	defer e.handlersMu.Unlock()
	e.handlers[command] = handler
}

// Close detaches the endpoint from the bus and stops its dispatch loop
// after in-flight handlers finish. Envelopes still queued are dropped;
// their callers observe a timeout, exactly as with a real torn-down
// context.
func (e *Endpoint) Close() {
	e.close(true)
}

func (e *Endpoint) close(unregister bool) {
	e.closeOnce.Do(func() {
		if unregister {
			e.bus.mu.Lock()
			if e.bus.endpoints[e.addr] == e {
				delete(e.bus.endpoints, e.addr)
			}
			e.bus.mu.Unlock()
		}
		close(e.closed)
		<-e.done
	})
}

// loop dispatches deliveries until the endpoint closes.
func (e *Endpoint) loop() {
	defer close(e.done)

	g := new(errgroup.Group)
	g.SetLimit(e.concurrency)
	defer g.Wait() //nolint:errcheck // handlers report through respond, not errors

	for {
		select {
		case <-e.closed:
			return
		case d := <-e.inbox:
			e.handlersMu.RLock()
			handler, ok := e.handlers[d.env.Command]
			e.handlersMu.RUnlock()
			if !ok {
				e.bus.logger.Warn("no handler for command",
					"address", string(e.addr), "command", string(d.env.Command))
				continue
			}
			if e.concurrency == 1 {
				handler(d.env, d.respond)
				continue
			}
			g.Go(func() error {
				handler(d.env, d.respond)
				return nil
			})
		}
	}
}

// discardRespond is the completion attached to fire-and-forget sends.
func discardRespond(any) error { return nil }

// Send delivers an envelope without expecting a response. It returns
// ErrNoReceiver when no endpoint is registered at the destination and
// ErrInboxOverflow when the destination's queue is full; in both cases
// the envelope is gone, never retried.
func (b *Bus) Send(to Address, env Envelope) error {
	return b.deliver(to, delivery{env: env, respond: discardRespond})
}

// Call delivers an envelope and waits for its single response. The
// context must carry the caller's deadline: the channel has no inherent
// timeout, and a responder that never completes is indistinguishable
// from a lost envelope. A deadline expiry is reported as ErrTimeout.
func (b *Bus) Call(ctx context.Context, to Address, env Envelope) (json.RawMessage, error) {
	type outcome struct {
		payload json.RawMessage
		err     error
	}
	resultCh := make(chan outcome, 1)

	var completed atomic.Bool
	respond := func(payload any) error {
		if !completed.CompareAndSwap(false, true) {
			return ErrAlreadyResponded
		}
		data, err := json.Marshal(payload)
		if err != nil {
			resultCh <- outcome{err: fmt.Errorf("marshal %s response: %w", env.Command, err)}
			return err
		}
		resultCh <- outcome{payload: data}
		return nil
	}

	if err := b.deliver(to, delivery{env: env, respond: respond}); err != nil {
		return nil, err
	}

	select {
	case r := <-resultCh:
		return r.payload, r.err
	case <-ctx.Done():
		if ctx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("%w: %s to %s", ErrTimeout, env.Command, to)
		}
		return nil, ctx.Err()
	}
}

// deliver queues a delivery at the destination endpoint.
func (b *Bus) deliver(to Address, d delivery) error {
	b.mu.RLock()
	e, ok := b.endpoints[to]
	b.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoReceiver, to)
	}

	select {
	case <-e.closed:
		return fmt.Errorf("%w: %s", ErrNoReceiver, to)
	case e.inbox <- d:
		return nil
	default:
		return fmt.Errorf("%w: %s", ErrInboxOverflow, to)
	}
}
