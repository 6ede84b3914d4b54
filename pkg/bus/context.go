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

import "context"

// frameKey is the unexported context key for the sticky-attribute frame.
// Using context.Context rather than a goroutine-local keeps propagation
// explicit across any user code the handler calls, including across
// goroutines the handler itself spawns and passes ctx to.
type frameKey struct{}

// frame carries the correlation id and sticky attributes of the message
// currently being handled, so that any Send/Publish issued from within the
// handler inherits them automatically.
type frame struct {
	correlationID string
	sticky        map[string]any
}

// withFrame returns a context carrying f, replacing any existing frame.
func withFrame(ctx context.Context, f frame) context.Context {
	return context.WithValue(ctx, frameKey{}, f)
}

// frameFromContext returns the frame attached to ctx, and false if ctx
// carries none (e.g. a call to Send/Publish made outside any handler).
func frameFromContext(ctx context.Context) (frame, bool) {
	f, ok := ctx.Value(frameKey{}).(frame)
	return f, ok
}

// applyFrame fills in attrs.CorrelationID and merges attrs.StickyAttributes
// from the ctx's frame, when attrs does not already specify them. Explicit
// values passed by the caller always win over inherited ones.
func applyFrame(ctx context.Context, attrs MessageAttributes) MessageAttributes {
	f, ok := frameFromContext(ctx)
	if !ok {
		return attrs
	}

	if attrs.CorrelationID == "" {
		attrs.CorrelationID = f.correlationID
	}

	if len(f.sticky) > 0 {
		merged := make(map[string]any, len(f.sticky)+len(attrs.StickyAttributes))
		for k, v := range f.sticky {
			merged[k] = v
		}
		for k, v := range attrs.StickyAttributes {
			merged[k] = v
		}
		attrs.StickyAttributes = merged
	}

	return attrs
}
