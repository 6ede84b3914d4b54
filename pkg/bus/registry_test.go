package bus

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type widgetCreated struct{ ID string }

func (widgetCreated) MessageName() string { return "widget.created" }

func noopHandler(ctx context.Context, msg Message, attrs MessageAttributes) error { return nil }

func TestRegistry_GetReturnsHandlersByName(t *testing.T) {
	r := NewRegistry(nil)
	require.NoError(t, r.Register("widget.created", func() Message { return widgetCreated{} }, noopHandler, nil, ""))

	handlers := r.Get(widgetCreated{ID: "1"})
	assert.Len(t, handlers, 1)
}

func TestRegistry_RegisterSameHandlerTwiceFails(t *testing.T) {
	r := NewRegistry(nil)
	ctor := func() Message { return widgetCreated{} }

	require.NoError(t, r.Register("widget.created", ctor, noopHandler, nil, ""))
	err := r.Register("widget.created", ctor, noopHandler, nil, "")
	require.Error(t, err)
}

func TestRegistry_DistinctHandlerClosuresBothRegister(t *testing.T) {
	r := NewRegistry(nil)
	ctor := func() Message { return widgetCreated{} }

	h1 := func(ctx context.Context, msg Message, attrs MessageAttributes) error { return nil }
	h2 := func(ctx context.Context, msg Message, attrs MessageAttributes) error { return nil }

	require.NoError(t, r.Register("widget.created", ctor, h1, nil, ""))
	require.NoError(t, r.Register("widget.created", ctor, h2, nil, ""))

	assert.Len(t, r.Get(widgetCreated{}), 2)
}

func TestRegistry_NameAndResolverBothMatchReturnHandlerTwice(t *testing.T) {
	r := NewRegistry(nil)
	require.NoError(t, r.Register("widget.created", func() Message { return widgetCreated{} }, noopHandler, func(msg Message) bool {
		return msg.MessageName() == "widget.created"
	}, "widgets"))

	handlers := r.Get(widgetCreated{})
	// The named registration and the resolver both match, so the same
	// handler is returned twice: once by name, once by predicate.
	assert.Len(t, handlers, 2)
}

func TestRegistry_GetNotesUnhandledMessageOnce(t *testing.T) {
	r := NewRegistry(nil)
	r.Get(widgetCreated{})
	r.Get(widgetCreated{})

	names := r.UnhandledMessageNames()
	assert.Equal(t, []string{"widget.created"}, names)
}

func TestRegistry_GetMessageConstructorUnknownNameReturnsFalse(t *testing.T) {
	r := NewRegistry(nil)
	_, ok := r.GetMessageConstructor("nope")
	assert.False(t, ok)
}

func TestRegistry_ResetClearsRegistrationsAndUnhandled(t *testing.T) {
	r := NewRegistry(nil)
	require.NoError(t, r.Register("widget.created", func() Message { return widgetCreated{} }, noopHandler, nil, ""))
	r.Get(widgetCreated{})

	r.Reset()

	assert.Empty(t, r.GetMessageNames())
	assert.Empty(t, r.Get(widgetCreated{}))
}
