package runner

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/opsforge/opsforge/pkg/stores"
)

// Handle tracks one asynchronous script run. Done is closed when the task
// row carries its terminal status.
type Handle struct {
	TaskID string

	done   chan struct{}
	result *ScriptResult
	err    error
}

// Done returns a channel closed when the run finished.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Wait blocks until the run finishes or ctx is cancelled.
func (h *Handle) Wait(ctx context.Context) (*ScriptResult, error) {
	select {
	case <-h.done:
		return h.result, h.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// ExecuteScriptAsync starts a script run in the background, tracked through
// the task whose ID is given. Precondition failures, a missing interpreter
// or empty script content, fail the task immediately without starting a
// goroutine worth tracking further.
func (r *Runner) ExecuteScriptAsync(ctx context.Context, taskID, content string, hosts []*stores.Host, timeout time.Duration) (*Handle, error) {
	h := &Handle{TaskID: taskID, done: make(chan struct{})}

	if content == "" {
		err := fmt.Errorf("runner: script content is empty")
		r.failTask(ctx, taskID, err, []string{err.Error()})
		h.err = err
		close(h.done)
		return h, nil
	}
	if err := r.InterpreterAvailable(); err != nil {
		r.failTask(ctx, taskID, err, []string{err.Error()})
		h.err = err
		close(h.done)
		return h, nil
	}

	if err := r.markTaskRunning(ctx, taskID); err != nil {
		return nil, err
	}

	go func() {
		defer close(h.done)
		defer func() {
			if rec := recover(); rec != nil {
				err := fmt.Errorf("runner: script run panicked: %v", rec)
				r.log.Error().Str("task_id", taskID).Msg(err.Error())
				r.failTask(context.Background(), taskID, err, []string{err.Error()})
				h.err = err
			}
		}()

		result, err := r.ExecuteScript(ctx, content, hosts, timeout)
		h.result = result
		h.err = err

		// Task updates outlive a cancelled run context.
		bg := context.Background()
		if err != nil {
			r.failTask(bg, taskID, err, []string{err.Error()})
			return
		}
		r.finishTask(bg, taskID, result)
		r.logScriptOutcomes(bg, taskID, hosts, result.Summary)
	}()
	return h, nil
}

// logScriptOutcomes writes one command history row per target host with its
// bucket from the transcript summary. Hosts absent from every bucket count
// as success, matching a playbook that never addressed them.
func (r *Runner) logScriptOutcomes(ctx context.Context, taskID string, hosts []*stores.Host, summary Summary) {
	failed := make(map[string]struct{}, len(summary.Failed))
	for _, address := range summary.Failed {
		failed[address] = struct{}{}
	}
	unreachable := make(map[string]struct{}, len(summary.Unreachable))
	for _, address := range summary.Unreachable {
		unreachable[address] = struct{}{}
	}

	resultStr := fmt.Sprintf(`{"task_id":%q}`, taskID)
	for _, host := range hosts {
		status := "success"
		if _, ok := failed[host.Address]; ok {
			status = "failed"
		} else if _, ok := unreachable[host.Address]; ok {
			status = "unreachable"
		}

		entry := &stores.CommandLog{
			HostID:  host.ID,
			Command: "playbook execution",
			Result:  resultStr,
			Status:  status,
		}
		if err := r.store.AppendCommandLog(ctx, entry); err != nil {
			r.log.Warn().Err(err).Int64("host_id", host.ID).Msg("failed to append command log")
		}
	}
}

func (r *Runner) markTaskRunning(ctx context.Context, taskID string) error {
	status := stores.TaskStatusRunning
	if err := r.store.UpdateTask(ctx, taskID, stores.TaskUpdate{Status: &status}); err != nil {
		return fmt.Errorf("failed to mark task running: %w", err)
	}
	return nil
}

func (r *Runner) finishTask(ctx context.Context, taskID string, result *ScriptResult) {
	status := stores.TaskStatusCompleted
	if !result.Success {
		status = stores.TaskStatusFailed
	}

	blob, err := json.Marshal(result.Summary)
	if err != nil {
		blob = []byte("{}")
	}
	resultStr := string(blob)

	logsBlob, err := json.Marshal(result.Logs)
	if err != nil {
		logsBlob = []byte("[]")
	}
	logsStr := string(logsBlob)

	now := time.Now().UTC()
	update := stores.TaskUpdate{
		Status:      &status,
		Result:      &resultStr,
		Logs:        &logsStr,
		CompletedAt: &now,
	}
	if err := r.store.UpdateTask(ctx, taskID, update); err != nil {
		r.log.Error().Err(err).Str("task_id", taskID).Msg("failed to persist task result")
	}
	if r.metrics != nil {
		r.metrics.TasksTotal.WithLabelValues(string(status)).Inc()
	}
}

func (r *Runner) failTask(ctx context.Context, taskID string, cause error, logs []string) {
	status := stores.TaskStatusFailed
	resultStr := fmt.Sprintf(`{"error":%q}`, cause.Error())

	logsBlob, err := json.Marshal(logs)
	if err != nil {
		logsBlob = []byte("[]")
	}
	logsStr := string(logsBlob)

	now := time.Now().UTC()
	update := stores.TaskUpdate{
		Status:      &status,
		Result:      &resultStr,
		Logs:        &logsStr,
		CompletedAt: &now,
	}
	if err := r.store.UpdateTask(ctx, taskID, update); err != nil {
		r.log.Error().Err(err).Str("task_id", taskID).Msg("failed to persist task failure")
	}
	if r.metrics != nil {
		r.metrics.TasksTotal.WithLabelValues(string(stores.TaskStatusFailed)).Inc()
	}
}
