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

// Package memory provides an in-process bus.Transport backed by a FIFO
// queue, for tests and single-process demos.
package memory

import (
	"context"
	"sync"

	"github.com/riverrun/msgbus/pkg/bus"
)

// envelope is the Raw payload handed back to the bus core between
// ReadNextMessage and DeleteMessage/ReturnMessage.
type envelope struct {
	message   bus.Message
	attrs     bus.MessageAttributes
	seenCount int
}

// Transport is an in-memory bus.Transport. Messages that fail handling are
// requeued at the back, incrementing SeenCount, exactly like a real broker's
// visibility-timeout expiry would.
type Transport struct {
	mu     sync.Mutex
	queue  []*envelope
	signal chan struct{}

	closedMu sync.RWMutex
	closed   bool
}

// New creates an empty in-memory transport. Call Start before use.
func New() *Transport {
	return &Transport{signal: make(chan struct{}, 1)}
}

func (t *Transport) Start(ctx context.Context) error {
	t.closedMu.Lock()
	defer t.closedMu.Unlock()
	t.closed = false
	return nil
}

func (t *Transport) Stop(ctx context.Context) error {
	t.closedMu.Lock()
	defer t.closedMu.Unlock()
	t.closed = true
	return nil
}

// Publish and Send are equivalent on this transport: there is no separate
// topic/queue distinction, only a single FIFO.
func (t *Transport) Publish(ctx context.Context, event bus.Message, attrs bus.MessageAttributes) error {
	return t.enqueue(&envelope{message: event, attrs: attrs})
}

func (t *Transport) Send(ctx context.Context, command bus.Message, attrs bus.MessageAttributes) error {
	return t.enqueue(&envelope{message: command, attrs: attrs})
}

func (t *Transport) enqueue(e *envelope) error {
	t.closedMu.RLock()
	if t.closed {
		t.closedMu.RUnlock()
		return errClosed
	}
	t.closedMu.RUnlock()

	t.mu.Lock()
	t.queue = append(t.queue, e)
	t.mu.Unlock()

	select {
	case t.signal <- struct{}{}:
	default:
	}
	return nil
}

// ReadNextMessage blocks until a message is available or ctx is cancelled.
func (t *Transport) ReadNextMessage(ctx context.Context) (*bus.TransportMessage, error) {
	for {
		t.closedMu.RLock()
		closed := t.closed
		t.closedMu.RUnlock()
		if closed {
			return nil, errClosed
		}

		t.mu.Lock()
		if len(t.queue) > 0 {
			e := t.queue[0]
			t.queue = t.queue[1:]
			t.mu.Unlock()

			e.seenCount++
			return &bus.TransportMessage{
				ID:         e.message.MessageName(),
				Raw:        e,
				Message:    e.message,
				Attributes: e.attrs,
				SeenCount:  e.seenCount,
			}, nil
		}
		t.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-t.signal:
		}
	}
}

// DeleteMessage is a no-op: raw was already removed from the queue by
// ReadNextMessage.
func (t *Transport) DeleteMessage(ctx context.Context, raw any) error {
	return nil
}

// ReturnMessage requeues raw at the back of the FIFO.
func (t *Transport) ReturnMessage(ctx context.Context, raw any) error {
	e, ok := raw.(*envelope)
	if !ok {
		return errBadEnvelope
	}

	t.mu.Lock()
	t.queue = append(t.queue, e)
	t.mu.Unlock()

	select {
	case t.signal <- struct{}{}:
	default:
	}
	return nil
}

// Len reports the number of messages currently queued. Test helper.
func (t *Transport) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.queue)
}

type transportError string

func (e transportError) Error() string { return string(e) }

const (
	errClosed      = transportError("memory transport is closed")
	errBadEnvelope = transportError("memory transport: raw is not one of its own envelopes")
)
