package runner

import (
	"context"
	"fmt"
	"sync"

	"github.com/sweetpotato0/toolbridge/tool"
)

// Runner executes tool calls
type Runner interface {
	// Run validates args and invokes t
	Run(ctx context.Context, t *tool.Tool, args map[string]any) (*tool.Result, error)
}

// runner is the default implementation of Runner
type runner struct {
	maxConcurrency int
	semaphore      chan struct{}
}

// New creates a new runner
func New(maxConcurrency int) Runner {
	if maxConcurrency <= 0 {
		maxConcurrency = 10 // Default concurrency
	}
	return &runner{
		maxConcurrency: maxConcurrency,
		semaphore:      make(chan struct{}, maxConcurrency),
	}
}

// Run executes a tool with the given arguments
func (r *runner) Run(ctx context.Context, t *tool.Tool, args map[string]any) (*tool.Result, error) {
	if t == nil {
		return nil, fmt.Errorf("runner: tool cannot be nil")
	}

	// Acquire semaphore
	select {
	case r.semaphore <- struct{}{}:
		defer func() { <-r.semaphore }()
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	return t.Execute(ctx, args)
}

// ParallelRunner executes multiple tool calls in parallel
type ParallelRunner struct {
	runner Runner
}

// NewParallelRunner creates a new parallel runner
func NewParallelRunner(maxConcurrency int) *ParallelRunner {
	return &ParallelRunner{
		runner: New(maxConcurrency),
	}
}

// Task represents one tool call
type Task struct {
	ID   string
	Tool *tool.Tool
	Args map[string]any
}

// Result represents the result of a task execution
type Result struct {
	TaskID string
	Output *tool.Result
	Error  error
}

// RunParallel executes multiple tasks in parallel. Results keep task order.
func (pr *ParallelRunner) RunParallel(ctx context.Context, tasks []*Task) []*Result {
	results := make([]*Result, len(tasks))
	var wg sync.WaitGroup

	for i, task := range tasks {
		wg.Add(1)
		go func(index int, t *Task) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					results[index] = &Result{
						TaskID: t.ID,
						Error:  fmt.Errorf("panic in task %s: %v", t.ID, r),
					}
				}
			}()

			output, err := pr.runner.Run(ctx, t.Tool, t.Args)
			results[index] = &Result{
				TaskID: t.ID,
				Output: output,
				Error:  err,
			}
		}(i, task)
	}

	wg.Wait()
	return results
}

// SequentialRunner executes tool calls one after another
type SequentialRunner struct {
	runner Runner
}

// NewSequentialRunner creates a new sequential runner
func NewSequentialRunner() *SequentialRunner {
	return &SequentialRunner{
		runner: New(1), // Single concurrency for sequential execution
	}
}

// RunSequential executes tasks in order and stops at the first failure
func (sr *SequentialRunner) RunSequential(ctx context.Context, tasks []*Task) ([]*Result, error) {
	results := make([]*Result, 0, len(tasks))
	for _, task := range tasks {
		output, err := sr.runner.Run(ctx, task.Tool, task.Args)
		results = append(results, &Result{
			TaskID: task.ID,
			Output: output,
			Error:  err,
		})
		if err != nil {
			return results, err
		}
	}
	return results, nil
}

// ConditionalRunner executes tool calls based on conditions
type ConditionalRunner struct {
	runner Runner
}

// NewConditionalRunner creates a new conditional runner
func NewConditionalRunner() *ConditionalRunner {
	return &ConditionalRunner{
		runner: New(1),
	}
}

// ConditionFunc evaluates whether a task should be executed
type ConditionFunc func(ctx context.Context, previousResult *Result) (bool, error)

// ConditionalTask represents a task with a condition
type ConditionalTask struct {
	Task      *Task
	Condition ConditionFunc
}

// RunConditional executes tasks based on conditions
func (cr *ConditionalRunner) RunConditional(ctx context.Context, tasks []*ConditionalTask) ([]*Result, error) {
	results := make([]*Result, 0, len(tasks))
	var lastResult *Result

	for _, ctask := range tasks {
		shouldRun := true
		if ctask.Condition != nil {
			var err error
			shouldRun, err = ctask.Condition(ctx, lastResult)
			if err != nil {
				return results, fmt.Errorf("condition evaluation failed: %w", err)
			}
		}

		if !shouldRun {
			continue
		}

		output, err := cr.runner.Run(ctx, ctask.Task.Tool, ctask.Task.Args)
		result := &Result{
			TaskID: ctask.Task.ID,
			Output: output,
			Error:  err,
		}
		results = append(results, result)
		lastResult = result

		if err != nil {
			return results, err
		}
	}

	return results, nil
}
