package config

import "time"

// QueueConfig contains task-queue and worker pool configuration.
// These values control how PipelineTasks are polled, claimed, and processed.
type QueueConfig struct {
	// WorkerCount is the number of worker goroutines per replica/pod.
	// Each worker independently polls and claims tasks.
	WorkerCount int `yaml:"worker_count"`

	// MaxConcurrentTasks is the limit of concurrently-running tasks in one
	// organization's queue across all replicas, enforced by a database
	// COUNT(*) check that row-level security scopes to that organization.
	MaxConcurrentTasks int `yaml:"max_concurrent_tasks"`

	// PollInterval is the base interval for checking runnable tasks.
	PollInterval time.Duration `yaml:"poll_interval"`

	// PollIntervalJitter is the random jitter added to PollInterval, so
	// multiple workers don't thunder the queue in lockstep.
	PollIntervalJitter time.Duration `yaml:"poll_interval_jitter"`

	// TaskTimeout is loaded into the config but not read by the worker; each
	// run's timeout is max(60s, 5x the task's estimated_latency_ms), after
	// which the run is recorded as failed.
	TaskTimeout time.Duration `yaml:"task_timeout"`

	// GracefulShutdownTimeout is loaded into the config but not read;
	// Pool.Stop waits for in-flight tasks with no time limit.
	GracefulShutdownTimeout time.Duration `yaml:"graceful_shutdown_timeout"`

	// MaxRetries is loaded into the config but not read; a task's attempt
	// limit is its own max_attempts column (default 3), after which it moves
	// to the dead-letter queue.
	MaxRetries int `yaml:"max_retries"`

	// RetryBackoffBase is the base duration for exponential retry backoff.
	RetryBackoffBase time.Duration `yaml:"retry_backoff_base"`

	// ReconcileInterval is how often the scheduler re-evaluates
	// dependency-blocked tasks whose dependencies have completed.
	ReconcileInterval time.Duration `yaml:"reconcile_interval"`
}

// DefaultQueueConfig returns the built-in queue defaults.
func DefaultQueueConfig() *QueueConfig {
	return &QueueConfig{
		WorkerCount:             5,
		MaxConcurrentTasks:      20,
		PollInterval:            1 * time.Second,
		PollIntervalJitter:      250 * time.Millisecond,
		TaskTimeout:             10 * time.Minute,
		GracefulShutdownTimeout: 30 * time.Second,
		MaxRetries:              3,
		RetryBackoffBase:        5 * time.Second,
		ReconcileInterval:       30 * time.Second,
	}
}
