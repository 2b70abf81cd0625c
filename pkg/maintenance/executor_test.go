package maintenance

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sansten/memoryos/pkg/models"
)

func TestExecuteUnknownTaskTypeFails(t *testing.T) {
	e := &Executor{}
	result := e.Execute(context.Background(), &models.PipelineTask{TaskType: "something_else"})
	assert.Equal(t, models.PipelineTaskFailed, result.Status)
	assert.Error(t, result.Err)
}

func TestExecuteAccessUpdateMissingMemoryIDFails(t *testing.T) {
	e := &Executor{}
	result := e.executeAccessUpdate(context.Background(), &models.PipelineTask{TaskType: "access_update", Metadata: map[string]any{}})
	assert.Equal(t, models.PipelineTaskFailed, result.Status)
	assert.Error(t, result.Err)
}

func TestExecuteCoactivationUpdateMissingFieldsFails(t *testing.T) {
	e := &Executor{}
	result := e.executeCoactivationUpdate(context.Background(), &models.PipelineTask{TaskType: "coactivation_update", Metadata: map[string]any{}})
	assert.Equal(t, models.PipelineTaskFailed, result.Status)
	assert.Error(t, result.Err)
}
