package taskqueue

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sansten/memoryos/pkg/models"
)

type stubExecutor struct {
	result *ExecutionResult
}

func (s *stubExecutor) Execute(context.Context, *models.PipelineTask) *ExecutionResult {
	return s.result
}

func TestDispatchExecutorRoutesByTaskType(t *testing.T) {
	matched := &stubExecutor{result: &ExecutionResult{Status: models.PipelineTaskSucceeded}}
	d := NewDispatchExecutor(map[string]TaskExecutor{"access_update": matched}, nil)

	result := d.Execute(context.Background(), &models.PipelineTask{TaskType: "access_update"})
	assert.Equal(t, models.PipelineTaskSucceeded, result.Status)
}

func TestDispatchExecutorFallsBackWhenUnmatched(t *testing.T) {
	fallback := &stubExecutor{result: &ExecutionResult{Status: models.PipelineTaskSucceeded}}
	d := NewDispatchExecutor(map[string]TaskExecutor{}, fallback)

	result := d.Execute(context.Background(), &models.PipelineTask{TaskType: "agent_run"})
	assert.Equal(t, models.PipelineTaskSucceeded, result.Status)
}

func TestDispatchExecutorFailsWhenUnmatchedAndNoFallback(t *testing.T) {
	d := NewDispatchExecutor(map[string]TaskExecutor{}, nil)

	result := d.Execute(context.Background(), &models.PipelineTask{TaskType: "unknown"})
	assert.Equal(t, models.PipelineTaskFailed, result.Status)
	assert.Error(t, result.Err)
}
