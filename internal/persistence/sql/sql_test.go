package sql_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	jsonserializer "github.com/riverrun/msgbus/internal/serializer/json"
	sagasql "github.com/riverrun/msgbus/internal/persistence/sql"
	"github.com/riverrun/msgbus/pkg/bus"
	"github.com/riverrun/msgbus/pkg/buserrors"
	"github.com/riverrun/msgbus/pkg/saga"
)

type orderSaga struct {
	saga.Meta
	OrderID string `json:"orderId"`
}

func newOrderSaga() saga.State { return &orderSaga{} }

type orderUpdated struct{ OrderID string }

func (orderUpdated) MessageName() string { return "order.updated" }

// withLookup registers a no-op OnWhen entry so InitializeWorkflow creates
// the generated mapsTo column the lookup tests query against.
func withLookup(def *saga.Definition) *saga.Definition {
	return def.OnWhen(
		func() bus.Message { return orderUpdated{} },
		func(msg bus.Message, attrs bus.MessageAttributes) any { return msg.(orderUpdated).OrderID },
		"orderId",
		func(ctx context.Context, snapshot saga.State, msg bus.Message, attrs bus.MessageAttributes) (map[string]any, error) {
			return nil, nil
		},
	)
}

func newBackend(t *testing.T) *sagasql.Backend {
	t.Helper()
	backend, err := sagasql.New(sagasql.Config{Path: ":memory:"}, jsonserializer.New())
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })
	return backend
}

func TestBackend_SaveAndLookupByMapsToField(t *testing.T) {
	ctx := context.Background()
	backend := newBackend(t)

	def := withLookup(saga.NewDefinition("order-saga-2", newOrderSaga))
	require.NoError(t, backend.InitializeWorkflow(ctx, def))

	state := &orderSaga{OrderID: "X"}
	state.WorkflowID = "wf-1"
	state.Version = 1
	state.Status = saga.StatusRunning
	require.NoError(t, backend.SaveWorkflowState(ctx, def, state))

	found, err := backend.GetWorkflowState(ctx, def, "orderId", "X", false)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "wf-1", found[0].WorkflowMeta().WorkflowID)
}

func TestBackend_SaveWithStaleVersionReturnsNotFound(t *testing.T) {
	ctx := context.Background()
	backend := newBackend(t)

	def := withLookup(saga.NewDefinition("order-saga-3", newOrderSaga))
	require.NoError(t, backend.InitializeWorkflow(ctx, def))

	state := &orderSaga{OrderID: "X"}
	state.WorkflowID = "wf-2"
	state.Version = 1
	state.Status = saga.StatusRunning
	require.NoError(t, backend.SaveWorkflowState(ctx, def, state))

	stale := &orderSaga{OrderID: "X"}
	stale.WorkflowID = "wf-2"
	stale.Version = 9
	stale.Status = saga.StatusRunning

	err := backend.SaveWorkflowState(ctx, def, stale)
	require.Error(t, err)
	assert.True(t, buserrors.IsOptimisticConcurrency(err))
}
