package agentrunner

import (
	"context"
	"fmt"

	"github.com/sansten/memoryos/pkg/models"
	"github.com/sansten/memoryos/pkg/taskqueue"
	"github.com/sansten/memoryos/pkg/tenant"
)

// TaskExecutor adapts a Runner to taskqueue.TaskExecutor, so the SLA-ordered
// scheduler can dispatch agent-pipeline work alongside its other task
// types. A claimed PipelineTask's Metadata carries the agent_name,
// memory_id, and (optionally) strategy/model the scheduler otherwise has no
// typed field for.
type TaskExecutor struct {
	runner *Runner
}

// NewTaskExecutor wraps runner as a taskqueue.TaskExecutor.
func NewTaskExecutor(runner *Runner) *TaskExecutor {
	if runner == nil {
		panic("agentrunner: NewTaskExecutor requires a non-nil runner")
	}
	return &TaskExecutor{runner: runner}
}

// Execute runs one agent-pipeline task to completion, translating the
// resulting AgentRun (or error) into a taskqueue.ExecutionResult.
func (e *TaskExecutor) Execute(ctx context.Context, task *models.PipelineTask) *taskqueue.ExecutionResult {
	agentName, _ := task.Metadata["agent_name"].(string)
	memoryID, _ := task.Metadata["memory_id"].(string)
	if agentName == "" || memoryID == "" {
		return &taskqueue.ExecutionResult{
			Status: models.PipelineTaskFailed,
			Err:    fmt.Errorf("agentrunner: task %s metadata missing agent_name/memory_id", task.ID),
		}
	}
	strategy := StrategyDeterministic
	if s, ok := task.Metadata["strategy"].(string); ok && s != "" {
		strategy = Strategy(s)
	}
	model, _ := task.Metadata["model"].(string)

	tc := tenant.SystemContext(task.OrganizationID)
	run, err := e.runner.Run(ctx, tc, RunRequest{
		MemoryID:    memoryID,
		AgentName:   agentName,
		Strategy:    strategy,
		Model:       model,
		Attempt:     task.Attempts + 1,
		MaxAttempts: task.MaxAttempts,
	}, nil)
	if err != nil {
		return &taskqueue.ExecutionResult{Status: models.PipelineTaskFailed, Err: err}
	}

	status := models.PipelineTaskSucceeded
	var execErr error
	switch run.Status {
	case models.AgentRunStatusFailed:
		status = models.PipelineTaskFailed
		if len(run.Errors) > 0 {
			execErr = fmt.Errorf("agentrunner: %s", run.Errors[0])
		} else {
			execErr = fmt.Errorf("agentrunner: run %s failed", run.ID)
		}
	case models.AgentRunStatusRetry:
		status = models.PipelineTaskFailed
		execErr = fmt.Errorf("agentrunner: run %s requests retry", run.ID)
	}

	durationMS := 0
	if run.FinishedAt != nil {
		durationMS = int(run.FinishedAt.Sub(run.StartedAt).Milliseconds())
	}

	return &taskqueue.ExecutionResult{
		Status:     status,
		DurationMS: durationMS,
		Err:        execErr,
	}
}
