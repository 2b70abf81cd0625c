package agentrunner

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sansten/memoryos/pkg/models"
)

func TestTaskExecutorFailsFastOnMissingMetadata(t *testing.T) {
	e := &TaskExecutor{runner: &Runner{}}
	result := e.Execute(context.Background(), &models.PipelineTask{ID: "t1", Metadata: map[string]any{}})
	assert.Equal(t, models.PipelineTaskFailed, result.Status)
	assert.Error(t, result.Err)
}

func TestNewTaskExecutorPanicsOnNilRunner(t *testing.T) {
	assert.Panics(t, func() { NewTaskExecutor(nil) })
}
