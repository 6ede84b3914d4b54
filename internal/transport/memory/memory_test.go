package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riverrun/msgbus/internal/transport/memory"
	"github.com/riverrun/msgbus/pkg/bus"
)

type orderPlaced struct{ OrderID string }

func (orderPlaced) MessageName() string { return "order.placed" }

func TestTransport_SendThenReadThenDelete(t *testing.T) {
	tr := memory.New()
	ctx := context.Background()
	require.NoError(t, tr.Start(ctx))

	require.NoError(t, tr.Send(ctx, orderPlaced{OrderID: "o-1"}, bus.MessageAttributes{}))
	assert.Equal(t, 1, tr.Len())

	tm, err := tr.ReadNextMessage(ctx)
	require.NoError(t, err)
	require.NotNil(t, tm)
	assert.Equal(t, 1, tm.SeenCount)
	assert.Equal(t, 0, tr.Len())

	require.NoError(t, tr.DeleteMessage(ctx, tm.Raw))
	assert.Equal(t, 0, tr.Len())
}

func TestTransport_ReturnMessageRequeuesWithIncrementedSeenCount(t *testing.T) {
	tr := memory.New()
	ctx := context.Background()
	require.NoError(t, tr.Start(ctx))
	require.NoError(t, tr.Send(ctx, orderPlaced{OrderID: "o-2"}, bus.MessageAttributes{}))

	tm, err := tr.ReadNextMessage(ctx)
	require.NoError(t, err)
	require.NoError(t, tr.ReturnMessage(ctx, tm.Raw))
	assert.Equal(t, 1, tr.Len())

	tm2, err := tr.ReadNextMessage(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, tm2.SeenCount)
}

func TestTransport_ReadNextMessageBlocksUntilCancelled(t *testing.T) {
	tr := memory.New()
	ctx := context.Background()
	require.NoError(t, tr.Start(ctx))

	readCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()

	_, err := tr.ReadNextMessage(readCtx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestTransport_StopRejectsFurtherOperations(t *testing.T) {
	tr := memory.New()
	ctx := context.Background()
	require.NoError(t, tr.Start(ctx))
	require.NoError(t, tr.Stop(ctx))

	err := tr.Send(ctx, orderPlaced{OrderID: "o-3"}, bus.MessageAttributes{})
	assert.Error(t, err)
}
