package runner

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsforge/opsforge/pkg/stores"
)

// writeStubInterpreter creates an executable standing in for the automation
// interpreter so subprocess plumbing can be tested without one installed.
func writeStubInterpreter(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("stub interpreter requires a POSIX shell")
	}

	path := filepath.Join(t.TempDir(), "stub-interpreter")
	script := "#!/bin/sh\n" + body
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

func scriptTestHosts(t *testing.T, store *stores.SQLiteStore) []*stores.Host {
	t.Helper()
	return []*stores.Host{createTestHost(t, store, "10.3.0.1")}
}

func TestExecuteScriptSuccess(t *testing.T) {
	stub := writeStubInterpreter(t, `
echo "PLAY RECAP *****"
echo "10.3.0.1 : ok=2    changed=1    unreachable=0    failed=0"
exit 0
`)
	r, store := setupRunnerTest(t, &fakeTransport{}, Config{InterpreterBin: stub})

	result, err := r.ExecuteScript(context.Background(), "- hosts: all\n", scriptTestHosts(t, store), time.Minute)
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, 0, result.ReturnCode)
	assert.Contains(t, result.Logs, "PLAY RECAP *****")
	assert.Equal(t, []string{"10.3.0.1"}, result.Summary.Success)
}

func TestExecuteScriptNonZeroExit(t *testing.T) {
	stub := writeStubInterpreter(t, `
echo "10.3.0.1 : ok=1    changed=0    unreachable=0    failed=1"
exit 2
`)
	r, store := setupRunnerTest(t, &fakeTransport{}, Config{InterpreterBin: stub})

	result, err := r.ExecuteScript(context.Background(), "- hosts: all\n", scriptTestHosts(t, store), time.Minute)
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Equal(t, 2, result.ReturnCode)
	assert.Equal(t, []string{"10.3.0.1"}, result.Summary.Failed)
}

func TestExecuteScriptTimeout(t *testing.T) {
	stub := writeStubInterpreter(t, `
echo "starting"
sleep 30
`)
	r, store := setupRunnerTest(t, &fakeTransport{}, Config{InterpreterBin: stub})

	start := time.Now()
	result, err := r.ExecuteScript(context.Background(), "- hosts: all\n", scriptTestHosts(t, store), 500*time.Millisecond)
	require.NoError(t, err)

	assert.Less(t, time.Since(start), 10*time.Second)
	assert.False(t, result.Success)
	assert.Contains(t, result.Logs, "Execution timed out.")
}

func TestExecuteScriptEmptyContent(t *testing.T) {
	r, _ := setupRunnerTest(t, &fakeTransport{}, Config{})

	_, err := r.ExecuteScript(context.Background(), "", nil, time.Minute)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty")
}

func TestExecuteScriptPassesInventory(t *testing.T) {
	// the stub echoes its inventory file back into the transcript
	stub := writeStubInterpreter(t, `
cat "$2"
exit 0
`)
	r, store := setupRunnerTest(t, &fakeTransport{}, Config{InterpreterBin: stub})

	result, err := r.ExecuteScript(context.Background(), "- hosts: all\n", scriptTestHosts(t, store), time.Minute)
	require.NoError(t, err)

	joined := ""
	for _, line := range result.Logs {
		joined += line + "\n"
	}
	assert.Contains(t, joined, "10.3.0.1")
	assert.Contains(t, joined, "ansible_user=root")
}

func TestExecuteScriptAsyncWritesCommandHistory(t *testing.T) {
	stub := writeStubInterpreter(t, `
echo "PLAY RECAP *****"
echo "10.3.0.1 : ok=2    changed=1    unreachable=0    failed=0"
exit 0
`)
	r, store := setupRunnerTest(t, &fakeTransport{}, Config{InterpreterBin: stub})
	ctx := context.Background()
	createTestTask(t, store, "task-history")
	hosts := scriptTestHosts(t, store)

	h, err := r.ExecuteScriptAsync(ctx, "task-history", "- hosts: all\n", hosts, time.Minute)
	require.NoError(t, err)

	result, err := h.Wait(ctx)
	require.NoError(t, err)
	assert.True(t, result.Success)

	task, err := store.GetTask(ctx, "task-history")
	require.NoError(t, err)
	assert.Equal(t, stores.TaskStatusCompleted, task.Status)
	require.NotNil(t, task.CompletedAt)

	entries, err := store.ListCommandLogs(ctx, hosts[0].ID, 10, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "playbook execution", entries[0].Command)
	assert.Equal(t, "success", entries[0].Status)
	assert.Contains(t, entries[0].Result, "task-history")
}
