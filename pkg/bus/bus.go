// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package bus

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	internallog "github.com/riverrun/msgbus/internal/log"
	"github.com/riverrun/msgbus/pkg/buserrors"
)

// State is a lifecycle stage of the Bus.
type State int

const (
	StateUninitialized State = iota
	StateInitialized
	StateStarting
	StateStarted
	StateStopping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitialized:
		return "initialized"
	case StateStarting:
		return "starting"
	case StateStarted:
		return "started"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// MetricsCollector receives dispatch-loop observations. Bus instances built
// without WithMetrics use a no-op implementation.
type MetricsCollector interface {
	MessageDispatched(messageName string)
	HandlerError(messageName string)
	HandlerDuration(messageName string, seconds float64)
}

type noopMetrics struct{}

func (noopMetrics) MessageDispatched(string)        {}
func (noopMetrics) HandlerError(string)             {}
func (noopMetrics) HandlerDuration(string, float64) {}

// Bus is the message bus core: lifecycle, publish/send entry points, the
// dispatch loop, and the hook emitter. Construct one with Configure.
type Bus struct {
	mu    sync.Mutex
	state State

	transport  Transport
	serializer Serializer
	logger     *slog.Logger
	metrics    MetricsCollector
	dispatch   *internallog.DispatchMiddleware

	registry *Registry
	hooks    *hooks

	concurrency int
	initHooks   []func(ctx context.Context) error

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Builder installs dependencies onto a Bus before Initialize. It is the
// only legal way to wire a transport, serializer, logger, handlers, and
// workflow engines.
type Builder struct {
	bus *Bus
}

// Configure starts building a new Bus.
func Configure() *Builder {
	logger := internallog.New(internallog.FromEnv())
	return &Builder{
		bus: &Bus{
			state:       StateUninitialized,
			logger:      logger,
			metrics:     noopMetrics{},
			registry:    NewRegistry(logger),
			hooks:       newHooks(),
			concurrency: 1,
			dispatch:    internallog.NewDispatchMiddleware(logger),
		},
	}
}

// WithTransport installs the Transport the dispatch loop reads from and the
// Publish/Send calls enqueue onto.
func (b *Builder) WithTransport(t Transport) *Builder {
	b.bus.transport = t
	return b
}

// WithSerializer installs the Serializer used to decode transport payloads
// into domain messages.
func (b *Builder) WithSerializer(s Serializer) *Builder {
	b.bus.serializer = s
	return b
}

// WithLogger replaces the default structured logger.
func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.bus.logger = logger
	b.bus.registry = NewRegistry(logger)
	b.bus.dispatch = internallog.NewDispatchMiddleware(logger)
	return b
}

// WithMetrics installs a MetricsCollector. Without this call the bus uses a
// no-op collector.
func (b *Builder) WithMetrics(m MetricsCollector) *Builder {
	b.bus.metrics = m
	return b
}

// WithConcurrency sets how many in-flight messages the dispatch loop
// processes at once. Default 1.
func (b *Builder) WithConcurrency(n int) *Builder {
	if n < 1 {
		n = 1
	}
	b.bus.concurrency = n
	return b
}

// WithHandler registers handler for messages named ctor().MessageName().
// Fails Initialize if the same handler function is already registered for
// that name.
func (b *Builder) WithHandler(ctor MessageConstructor, handler Handler) *Builder {
	return b.withHandler(ctor, handler, nil, "")
}

// WithResolverHandler registers handler both by name (as WithHandler does)
// and as a predicate resolver, so messages lacking a recognized $name but
// matching predicate are also routed to handler. topicIdentifier is an
// optional diagnostic label for the transport topic/subject predicate
// inspects.
func (b *Builder) WithResolverHandler(ctor MessageConstructor, handler Handler, predicate func(Message) bool, topicIdentifier string) *Builder {
	return b.withHandler(ctor, handler, predicate, topicIdentifier)
}

func (b *Builder) withHandler(ctor MessageConstructor, handler Handler, predicate func(Message) bool, topicIdentifier string) *Builder {
	name := ctor().MessageName()
	if err := b.bus.registry.Register(name, ctor, handler, predicate, topicIdentifier); err != nil {
		// HandlerAlreadyRegistered is fatal at config time: panic rather
		// than thread an error through every builder method, matching the
		// contract that double-registration is a programming error caught
		// long before Start ever runs.
		panic(err)
	}
	return b
}

// WithInitHook registers a function run once during Initialize, after all
// handlers have been wired, in registration order. The saga engine uses
// this to call Persistence.InitializeWorkflow for each registered
// workflow definition.
func (b *Builder) WithInitHook(hook func(ctx context.Context) error) *Builder {
	b.bus.initHooks = append(b.bus.initHooks, hook)
	return b
}

// Registry exposes the handler registry being built, so that packages like
// saga can register their own synthetic handlers before Initialize.
func (b *Builder) Registry() *Registry {
	return b.bus.registry
}

// Initialize finalizes configuration, runs any registered init hooks, and
// transitions Uninitialized -> Initialized. It may be called only once.
func (b *Builder) Initialize(ctx context.Context) (*Bus, error) {
	bus := b.bus

	bus.mu.Lock()
	if bus.state != StateUninitialized {
		bus.mu.Unlock()
		return nil, &buserrors.LifecycleViolationError{Operation: "initialize", State: bus.state.String()}
	}
	bus.mu.Unlock()

	if bus.transport == nil {
		return nil, fmt.Errorf("bus: no transport configured")
	}
	if bus.serializer == nil {
		return nil, fmt.Errorf("bus: no serializer configured")
	}

	for _, hook := range bus.initHooks {
		if err := hook(ctx); err != nil {
			return nil, err
		}
	}

	bus.mu.Lock()
	bus.state = StateInitialized
	bus.mu.Unlock()

	return bus, nil
}

// State returns the bus's current lifecycle state.
func (b *Bus) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Registry exposes the handler registry for read-only inspection
// (GetMessageNames, UnhandledMessageNames) after initialization.
func (b *Bus) Registry() *Registry {
	return b.registry
}

// On registers a hook listener for event.
func (b *Bus) On(event HookEvent, listener HookListener) {
	b.hooks.on(event, listener)
}

// Off removes a previously registered hook listener for event.
func (b *Bus) Off(event HookEvent, listener HookListener) {
	b.hooks.off(event, listener)
}

// Publish forwards event to the transport and emits the HookPublish hook
// exactly once, before the transport call. If ctx carries a frame (i.e.
// Publish is called from within a handler), attrs inherits its sticky
// attributes and correlation id unless attrs already sets them.
func (b *Bus) Publish(ctx context.Context, event Message, attrs MessageAttributes) error {
	attrs = applyFrame(ctx, attrs)
	b.hooks.emit(ctx, HookPayload{Event: HookPublish, Message: event, Attributes: attrs})

	if err := b.transport.Publish(ctx, event, attrs); err != nil {
		return &buserrors.TransportError{Operation: "publish", Cause: err}
	}
	return nil
}

// Send forwards command to the transport and emits the HookSend hook
// exactly once, before the transport call. See Publish for sticky
// attribute inheritance.
func (b *Bus) Send(ctx context.Context, command Message, attrs MessageAttributes) error {
	attrs = applyFrame(ctx, attrs)
	b.hooks.emit(ctx, HookPayload{Event: HookSend, Message: command, Attributes: attrs})

	if err := b.transport.Send(ctx, command, attrs); err != nil {
		return &buserrors.TransportError{Operation: "send", Cause: err}
	}
	return nil
}

// Start begins the dispatch loop. Fails unless the bus is Initialized or
// Stopped.
func (b *Bus) Start(ctx context.Context) error {
	b.mu.Lock()
	if b.state != StateInitialized && b.state != StateStopped {
		state := b.state
		b.mu.Unlock()
		return &buserrors.LifecycleViolationError{Operation: "start", State: state.String()}
	}
	b.state = StateStarting
	b.mu.Unlock()

	if err := b.transport.Start(ctx); err != nil {
		return &buserrors.TransportError{Operation: "start", Cause: err}
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	b.cancel = cancel

	for i := 0; i < b.concurrency; i++ {
		b.wg.Add(1)
		go b.dispatchWorker(loopCtx)
	}

	b.mu.Lock()
	b.state = StateStarted
	b.mu.Unlock()

	return nil
}

// Stop signals the dispatch loop to stop accepting new messages and waits
// for in-flight handlers to drain. There is no hard cancellation: a
// handler that never returns blocks Stop forever.
func (b *Bus) Stop(ctx context.Context) error {
	b.mu.Lock()
	if b.state != StateStarted {
		state := b.state
		b.mu.Unlock()
		return &buserrors.LifecycleViolationError{Operation: "stop", State: state.String()}
	}
	b.state = StateStopping
	b.mu.Unlock()

	b.cancel()
	b.wg.Wait()

	if err := b.transport.Stop(ctx); err != nil {
		return &buserrors.TransportError{Operation: "stop", Cause: err}
	}

	b.mu.Lock()
	b.state = StateStopped
	b.mu.Unlock()

	return nil
}

// dispatchWorker pulls messages from the transport until loopCtx is
// cancelled, processing one at a time. A bounded wait inside
// ReadNextMessage lets the worker notice cancellation without polling.
func (b *Bus) dispatchWorker(loopCtx context.Context) {
	defer b.wg.Done()

	for {
		if loopCtx.Err() != nil {
			return
		}

		tm, err := b.transport.ReadNextMessage(loopCtx)
		if err != nil {
			if loopCtx.Err() != nil {
				return
			}
			b.logger.Error("reading next message failed", internallog.Error(err))
			continue
		}
		if tm == nil {
			continue
		}

		b.process(loopCtx, tm)
	}
}

// process dispatches a single transport message to its resolved handlers,
// deleting it on success and returning it to the transport on failure.
func (b *Bus) process(ctx context.Context, tm *TransportMessage) {
	handlers := b.registry.Get(tm.Message)
	if len(handlers) == 0 {
		if err := b.transport.DeleteMessage(ctx, tm.Raw); err != nil {
			b.logger.Error("deleting unhandled message failed", internallog.Error(err))
		}
		return
	}

	handlerCtx := withFrame(ctx, frame{
		correlationID: tm.Attributes.CorrelationID,
		sticky:        tm.Attributes.StickyAttributes,
	})

	name := tm.Message.MessageName()
	req := &internallog.DispatchRequest{
		MessageName:        name,
		CorrelationID:      tm.Attributes.CorrelationID,
		TransportMessageID: tm.ID,
		SeenCount:          tm.SeenCount,
	}

	start := time.Now()
	firstErr := b.dispatch.Wrap(req, func() error {
		var err error
		for _, handler := range handlers {
			if herr := handler(handlerCtx, tm.Message, tm.Attributes); herr != nil && err == nil {
				err = herr
			}
		}
		return err
	})

	b.metrics.HandlerDuration(name, time.Since(start).Seconds())
	b.metrics.MessageDispatched(name)

	if firstErr == nil {
		if err := b.transport.DeleteMessage(ctx, tm.Raw); err != nil {
			b.logger.Error("deleting handled message failed", internallog.Error(err))
		}
		return
	}

	b.metrics.HandlerError(name)
	handlerErr := &buserrors.HandlerError{MessageName: name, Cause: firstErr}

	if !buserrors.IsOptimisticConcurrency(firstErr) {
		b.hooks.emit(ctx, HookPayload{
			Event:      HookError,
			Message:    tm.Message,
			Attributes: tm.Attributes,
			Err:        handlerErr,
			Transport:  tm,
		})
	}

	if err := b.transport.ReturnMessage(ctx, tm.Raw); err != nil {
		b.logger.Error("returning failed message failed", internallog.Error(err))
	}
}
