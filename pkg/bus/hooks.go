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
	"reflect"
	"sync"
)

// HookEvent names the observable moments the bus core exposes.
type HookEvent string

const (
	// HookSend fires once per Send call, before the transport call.
	HookSend HookEvent = "send"

	// HookPublish fires once per Publish call, before the transport call.
	HookPublish HookEvent = "publish"

	// HookError fires once per failed dispatch, after the handlers return.
	// It does not fire when the failure is an optimistic-concurrency
	// conflict (buserrors.IsOptimisticConcurrency).
	HookError HookEvent = "error"
)

// HookPayload is passed to every hook listener. Which fields are populated
// depends on Event: Send/Publish populate Message and Attributes; Error
// additionally populates Err and Transport.
type HookPayload struct {
	Event      HookEvent
	Message    Message
	Attributes MessageAttributes
	Err        error
	Transport  *TransportMessage
}

// HookListener observes a hook firing.
type HookListener func(ctx context.Context, payload HookPayload)

// hooks is a synchronous, registration-order multi-listener emitter for
// send/publish/error. There is no priority or error isolation: a listener
// that panics propagates to the caller of Emit, which is the same
// goroutine that triggered the operation.
type hooks struct {
	mu        sync.RWMutex
	listeners map[HookEvent][]HookListener
}

func newHooks() *hooks {
	return &hooks{listeners: make(map[HookEvent][]HookListener)}
}

// on registers listener for event.
func (h *hooks) on(event HookEvent, listener HookListener) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.listeners[event] = append(h.listeners[event], listener)
}

// off removes every previously registered listener for event whose
// underlying function is identical to listener.
func (h *hooks) off(event HookEvent, listener HookListener) {
	h.mu.Lock()
	defer h.mu.Unlock()

	target := reflect.ValueOf(listener).Pointer()
	existing := h.listeners[event]
	kept := existing[:0:0]
	for _, l := range existing {
		if reflect.ValueOf(l).Pointer() != target {
			kept = append(kept, l)
		}
	}
	h.listeners[event] = kept
}

// emit fires event synchronously against a snapshot of the listener list
// taken under the read lock, so listeners registered by an earlier listener
// in the same firing are not invoked until the next Emit call.
func (h *hooks) emit(ctx context.Context, payload HookPayload) {
	h.mu.RLock()
	snapshot := make([]HookListener, len(h.listeners[payload.Event]))
	copy(snapshot, h.listeners[payload.Event])
	h.mu.RUnlock()

	for _, listener := range snapshot {
		listener(ctx, payload)
	}
}
