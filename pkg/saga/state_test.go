package saga_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/riverrun/msgbus/pkg/saga"
)

type orderState struct {
	saga.Meta
	OrderID string `json:"orderId"`
}

func TestMeta_WorkflowMetaReturnsEmbeddedPointer(t *testing.T) {
	state := &orderState{OrderID: "o-1"}
	state.Meta.WorkflowID = "wf-1"

	meta := state.WorkflowMeta()
	meta.Status = saga.StatusComplete

	assert.Equal(t, saga.StatusComplete, state.Status)
	assert.Equal(t, "wf-1", meta.WorkflowID)
}

func TestStatus_Constants(t *testing.T) {
	assert.Equal(t, saga.Status("Running"), saga.StatusRunning)
	assert.Equal(t, saga.Status("Complete"), saga.StatusComplete)
	assert.Equal(t, saga.Status("Discard"), saga.StatusDiscard)
}
