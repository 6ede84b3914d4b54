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

package log

import (
	"log/slog"
	"time"
)

// DispatchRequest describes a single message handoff to a handler, for
// logging purposes only.
type DispatchRequest struct {
	// MessageName is the message's $name discriminator.
	MessageName string

	// CorrelationID is the correlation id carried on the message, if any.
	CorrelationID string

	// TransportMessageID is the transport's id for the underlying message.
	TransportMessageID string

	// SeenCount is how many times the transport has redelivered this message.
	SeenCount int
}

// DispatchResult describes the outcome of a dispatched handler call.
type DispatchResult struct {
	// Success indicates whether the handler returned a nil error.
	Success bool

	// Error is the handler's error message, if any.
	Error string

	// DurationMs is how long the handler took to run.
	DurationMs int64
}

// LogDispatchStart logs a message entering a handler.
func LogDispatchStart(logger *slog.Logger, req *DispatchRequest) {
	attrs := []any{
		EventKey, "dispatch_start",
		MessageNameKey, req.MessageName,
		"transport_message_id", req.TransportMessageID,
	}
	if req.CorrelationID != "" {
		attrs = append(attrs, CorrelationIDKey, req.CorrelationID)
	}
	if req.SeenCount > 1 {
		attrs = append(attrs, "seen_count", req.SeenCount)
	}
	logger.Info("dispatching message to handler", attrs...)
}

// LogDispatchEnd logs a handler call completing, successfully or not.
func LogDispatchEnd(logger *slog.Logger, req *DispatchRequest, res *DispatchResult) {
	attrs := []any{
		EventKey, "dispatch_end",
		MessageNameKey, req.MessageName,
		"transport_message_id", req.TransportMessageID,
		"success", res.Success,
		DurationKey, res.DurationMs,
	}
	if req.CorrelationID != "" {
		attrs = append(attrs, CorrelationIDKey, req.CorrelationID)
	}
	if res.Error != "" {
		attrs = append(attrs, "error", res.Error)
	}

	level := slog.LevelInfo
	msg := "handler completed"
	if !res.Success {
		level = slog.LevelWarn
		msg = "handler returned error"
	}
	logger.Log(nil, level, msg, attrs...)
}

// DispatchMiddleware wraps handler invocation with start/end logging and
// duration measurement, the way the bus's dispatch loop instruments every
// handler call without each handler needing to do it itself.
type DispatchMiddleware struct {
	logger *slog.Logger
}

// NewDispatchMiddleware creates a dispatch logging middleware.
func NewDispatchMiddleware(logger *slog.Logger) *DispatchMiddleware {
	return &DispatchMiddleware{logger: logger}
}

// Wrap runs handler, logging its start and completion.
func (m *DispatchMiddleware) Wrap(req *DispatchRequest, handler func() error) error {
	start := time.Now()

	LogDispatchStart(m.logger, req)

	err := handler()

	res := &DispatchResult{
		Success:    err == nil,
		DurationMs: time.Since(start).Milliseconds(),
	}
	if err != nil {
		res.Error = err.Error()
	}

	LogDispatchEnd(m.logger, req, res)

	return err
}
