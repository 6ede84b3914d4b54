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

// Package nats is a bus.Transport backed by NATS JetStream. Redelivery
// (the visibility-timeout retry the bus core relies on for
// at-least-once delivery) comes from JetStream's AckWait: a message
// neither Acked nor Nak'd within AckWait is redelivered automatically,
// and one explicitly Nak'd (ReturnMessage) is redelivered immediately.
package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/riverrun/msgbus/pkg/bus"
	"github.com/riverrun/msgbus/pkg/buserrors"
)

// Options configures the JetStream transport.
type Options struct {
	// URL is the NATS server URL, e.g. "nats://localhost:4222".
	URL string

	// Stream is the JetStream stream name backing Subject.
	Stream string

	// Subject is the single subject this transport publishes to and
	// consumes from.
	Subject string

	// Consumer names the durable pull consumer.
	Consumer string

	// AckWait bounds how long a delivered message may go un-acked before
	// JetStream redelivers it. Defaults to 30s.
	AckWait time.Duration

	// FetchWait bounds how long a single ReadNextMessage pull waits for a
	// message to become available. Defaults to 5s.
	FetchWait time.Duration
}

func (o Options) withDefaults() Options {
	if o.AckWait <= 0 {
		o.AckWait = 30 * time.Second
	}
	if o.FetchWait <= 0 {
		o.FetchWait = 5 * time.Second
	}
	return o
}

// wireEnvelope is the JSON frame published to the subject. Data holds the
// message body in whatever form bus.Serializer.Serialize produced.
type wireEnvelope struct {
	Name             string         `json:"$name"`
	CorrelationID    string         `json:"correlationId,omitempty"`
	Attributes       map[string]any `json:"attributes,omitempty"`
	StickyAttributes map[string]any `json:"stickyAttributes,omitempty"`
	Data             string         `json:"data"`
}

// Transport is a bus.Transport over a single JetStream subject and durable
// pull consumer.
type Transport struct {
	opts       Options
	registry   *bus.Registry
	serializer bus.Serializer

	conn *nats.Conn
	js   nats.JetStreamContext
	sub  *nats.Subscription
}

// New creates a transport that will publish/consume through opts once
// Start is called. registry resolves message constructors by $name;
// serializer encodes/decodes message bodies.
func New(opts Options, registry *bus.Registry, serializer bus.Serializer) *Transport {
	return &Transport{opts: opts.withDefaults(), registry: registry, serializer: serializer}
}

func (t *Transport) Start(ctx context.Context) error {
	conn, err := nats.Connect(t.opts.URL)
	if err != nil {
		return &buserrors.TransportError{Operation: "connect", Cause: err}
	}
	t.conn = conn

	js, err := conn.JetStream()
	if err != nil {
		return &buserrors.TransportError{Operation: "jetstream", Cause: err}
	}
	t.js = js

	_, err = js.AddStream(&nats.StreamConfig{
		Name:     t.opts.Stream,
		Subjects: []string{t.opts.Subject},
		Storage:  nats.FileStorage,
	})
	if err != nil && err != nats.ErrStreamNameAlreadyInUse {
		return &buserrors.TransportError{Operation: "add stream", Cause: err}
	}

	sub, err := js.PullSubscribe(t.opts.Subject, t.opts.Consumer, nats.AckWait(t.opts.AckWait))
	if err != nil {
		return &buserrors.TransportError{Operation: "pull subscribe", Cause: err}
	}
	t.sub = sub

	return nil
}

func (t *Transport) Stop(ctx context.Context) error {
	if t.conn != nil {
		t.conn.Close()
	}
	return nil
}

func (t *Transport) Publish(ctx context.Context, event bus.Message, attrs bus.MessageAttributes) error {
	return t.publish(event, attrs)
}

func (t *Transport) Send(ctx context.Context, command bus.Message, attrs bus.MessageAttributes) error {
	return t.publish(command, attrs)
}

func (t *Transport) publish(msg bus.Message, attrs bus.MessageAttributes) error {
	data, err := t.serializer.Serialize(msg)
	if err != nil {
		return &buserrors.SerializationError{Name: msg.MessageName(), Cause: err}
	}

	env := wireEnvelope{
		Name:             msg.MessageName(),
		CorrelationID:    attrs.CorrelationID,
		Attributes:       attrs.Attributes,
		StickyAttributes: attrs.StickyAttributes,
		Data:             data,
	}
	payload, err := json.Marshal(env)
	if err != nil {
		return &buserrors.SerializationError{Name: msg.MessageName(), Cause: err}
	}

	if _, err := t.js.Publish(t.opts.Subject, payload); err != nil {
		return &buserrors.TransportError{Operation: "publish", Cause: err}
	}
	return nil
}

// ReadNextMessage pulls a single message, decoding it via the registry's
// constructor for its $name and the serializer.
func (t *Transport) ReadNextMessage(ctx context.Context) (*bus.TransportMessage, error) {
	msgs, err := t.sub.Fetch(1, nats.MaxWait(t.opts.FetchWait))
	if err != nil {
		if err == nats.ErrTimeout {
			return nil, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &buserrors.TransportError{Operation: "fetch", Cause: err}
	}
	if len(msgs) == 0 {
		return nil, nil
	}
	raw := msgs[0]

	var env wireEnvelope
	if err := json.Unmarshal(raw.Data, &env); err != nil {
		return nil, &buserrors.SerializationError{Cause: err}
	}

	ctor, ok := t.registry.GetMessageConstructor(env.Name)
	if !ok {
		return nil, &buserrors.TransportError{Operation: "decode", Cause: fmt.Errorf("nats transport: no constructor registered for message %q", env.Name)}
	}

	decoded, err := t.serializer.Deserialize(env.Data, func() any { return ctor() })
	if err != nil {
		return nil, &buserrors.SerializationError{Name: env.Name, Cause: err}
	}

	meta, err := raw.Metadata()
	seenCount := 1
	if err == nil {
		seenCount = int(meta.NumDelivered)
	}

	return &bus.TransportMessage{
		ID:      env.Name,
		Raw:     raw,
		Message: decoded.(bus.Message),
		Attributes: bus.MessageAttributes{
			CorrelationID:    env.CorrelationID,
			Attributes:       env.Attributes,
			StickyAttributes: env.StickyAttributes,
		},
		SeenCount: seenCount,
	}, nil
}

func (t *Transport) DeleteMessage(ctx context.Context, raw any) error {
	msg, ok := raw.(*nats.Msg)
	if !ok {
		return &buserrors.TransportError{Operation: "delete", Cause: fmt.Errorf("nats transport: raw is not *nats.Msg")}
	}
	if err := msg.Ack(); err != nil {
		return &buserrors.TransportError{Operation: "ack", Cause: err}
	}
	return nil
}

func (t *Transport) ReturnMessage(ctx context.Context, raw any) error {
	msg, ok := raw.(*nats.Msg)
	if !ok {
		return &buserrors.TransportError{Operation: "return", Cause: fmt.Errorf("nats transport: raw is not *nats.Msg")}
	}
	if err := msg.Nak(); err != nil {
		return &buserrors.TransportError{Operation: "nak", Cause: err}
	}
	return nil
}

var _ bus.Transport = (*Transport)(nil)
