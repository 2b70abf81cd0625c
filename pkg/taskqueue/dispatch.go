package taskqueue

import (
	"context"
	"fmt"

	"github.com/sansten/memoryos/pkg/models"
)

// DispatchExecutor routes a claimed PipelineTask to one of several
// TaskExecutors by its TaskType, so a single Pool can serve both the
// maintenance workers' fixed task types and the agent pipeline's runs.
type DispatchExecutor struct {
	routes   map[string]TaskExecutor
	fallback TaskExecutor
}

// NewDispatchExecutor builds a DispatchExecutor. routes maps an exact
// TaskType to the executor that handles it; any TaskType absent from routes
// goes to fallback. fallback may be nil, in which case an unmatched task
// type fails immediately.
func NewDispatchExecutor(routes map[string]TaskExecutor, fallback TaskExecutor) *DispatchExecutor {
	return &DispatchExecutor{routes: routes, fallback: fallback}
}

// Execute satisfies TaskExecutor by dispatching on task.TaskType.
func (d *DispatchExecutor) Execute(ctx context.Context, task *models.PipelineTask) *ExecutionResult {
	if exec, ok := d.routes[task.TaskType]; ok {
		return exec.Execute(ctx, task)
	}
	if d.fallback != nil {
		return d.fallback.Execute(ctx, task)
	}
	return &ExecutionResult{
		Status: models.PipelineTaskFailed,
		Err:    fmt.Errorf("taskqueue: no executor registered for task type %q", task.TaskType),
	}
}
