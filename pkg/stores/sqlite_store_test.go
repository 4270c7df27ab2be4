package stores

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsforge/opsforge/pkg/secrets"
)

// setupTestStore creates an in-memory SQLite store for testing.
func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	cipher := secrets.New()
	require.NoError(t, cipher.Initialize("test-passphrase"))

	store, err := NewSQLiteStore(Config{Path: ":memory:"}, cipher)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, store.Init(ctx))
	require.NoError(t, store.Migrate(ctx))

	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestStoreLifecycle(t *testing.T) {
	store := setupTestStore(t)
	require.NoError(t, store.HealthCheck(context.Background()))
}

func TestHostCRUD(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	host := &Host{
		Comment:    "web server",
		Address:    "10.0.0.5",
		Username:   "root",
		Port:       22,
		Password:   "Abc12345",
		AuthMethod: AuthMethodPassword,
		GroupName:  "web",
	}
	require.NoError(t, store.CreateHost(ctx, host))
	require.NotZero(t, host.ID)

	got, err := store.GetHost(ctx, host.ID)
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.5", got.Address)
	assert.Equal(t, "Abc12345", got.Password)
	assert.Equal(t, HostStatusUnknown, got.Status)

	byAddr, err := store.GetHostByAddress(ctx, "10.0.0.5")
	require.NoError(t, err)
	assert.Equal(t, host.ID, byAddr.ID)

	got.Username = "ubuntu"
	got.GroupName = "workflow_created"
	require.NoError(t, store.UpdateHost(ctx, got))

	updated, err := store.GetHost(ctx, host.ID)
	require.NoError(t, err)
	assert.Equal(t, "ubuntu", updated.Username)
	assert.Equal(t, "workflow_created", updated.GroupName)

	require.NoError(t, store.UpdateHostStatus(ctx, host.ID, HostStatusSuccess))
	updated, err = store.GetHost(ctx, host.ID)
	require.NoError(t, err)
	assert.Equal(t, HostStatusSuccess, updated.Status)

	require.NoError(t, store.DeleteHost(ctx, host.ID))
	_, err = store.GetHost(ctx, host.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestHostCredentialEncryptedAtRest(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	host := &Host{Address: "10.0.0.9", Username: "root", Password: "Sup3rSecret", AuthMethod: AuthMethodPassword}
	require.NoError(t, store.CreateHost(ctx, host))

	var raw string
	require.NoError(t, store.db.QueryRowContext(ctx, "SELECT password FROM hosts WHERE id = ?", host.ID).Scan(&raw))
	assert.NotEqual(t, "Sup3rSecret", raw)
	assert.NotContains(t, raw, "Sup3rSecret")
}

func TestReencryptHostCredentials(t *testing.T) {
	cipher := secrets.New()
	require.NoError(t, cipher.Initialize("old-key"))

	store, err := NewSQLiteStore(Config{Path: ":memory:"}, cipher)
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, store.Init(ctx))
	require.NoError(t, store.Migrate(ctx))
	defer store.Close()

	host := &Host{Address: "10.0.0.4", Username: "root", Password: "secret", AuthMethod: AuthMethodPassword}
	require.NoError(t, store.CreateHost(ctx, host))

	require.NoError(t, cipher.Rotate("new-key"))
	require.NoError(t, store.ReencryptHostCredentials(ctx))

	got, err := store.GetHost(ctx, host.ID)
	require.NoError(t, err)
	assert.Equal(t, "secret", got.Password)
}

func TestTaskLifecycle(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	task := &Task{
		ID:          "task-1",
		Type:        "playbook",
		Name:        "deploy",
		TargetHosts: "[1,2]",
	}
	require.NoError(t, store.CreateTask(ctx, task))

	got, err := store.GetTask(ctx, "task-1")
	require.NoError(t, err)
	assert.Equal(t, TaskStatusPending, got.Status)
	assert.Equal(t, "[]", got.Logs)

	running := TaskStatusRunning
	require.NoError(t, store.UpdateTask(ctx, "task-1", TaskUpdate{Status: &running}))

	completed := TaskStatusCompleted
	result := `{"success":true,"return_code":0}`
	logs := `["PLAY [all]","ok: [10.0.0.5]"]`
	now := time.Now().UTC()
	require.NoError(t, store.UpdateTask(ctx, "task-1", TaskUpdate{
		Status:      &completed,
		Result:      &result,
		Logs:        &logs,
		CompletedAt: &now,
	}))

	got, err = store.GetTask(ctx, "task-1")
	require.NoError(t, err)
	assert.Equal(t, TaskStatusCompleted, got.Status)
	require.NotNil(t, got.Result)
	assert.JSONEq(t, result, *got.Result)
	require.NotNil(t, got.CompletedAt)

	tasks, err := store.ListTasks(ctx, 10, 0)
	require.NoError(t, err)
	assert.Len(t, tasks, 1)
}

func TestWorkflowContextMergeIsAppendOnly(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	wf := &Workflow{
		ID:      "wf-1",
		Name:    "provision web",
		Context: `{"Region":"r1","Zone":"z1"}`,
	}
	require.NoError(t, store.CreateWorkflow(ctx, wf))

	require.NoError(t, store.MergeWorkflowContext(ctx, "wf-1", map[string]any{
		"InstanceId": "ins-1",
	}))
	require.NoError(t, store.MergeWorkflowContext(ctx, "wf-1", map[string]any{
		"PublicIp": "1.2.3.4",
		"Zone":     "z2",
	}))

	got, err := store.GetWorkflow(ctx, "wf-1")
	require.NoError(t, err)

	var context map[string]any
	require.NoError(t, json.Unmarshal([]byte(got.Context), &context))
	assert.Equal(t, "r1", context["Region"])
	assert.Equal(t, "z2", context["Zone"])
	assert.Equal(t, "ins-1", context["InstanceId"])
	assert.Equal(t, "1.2.3.4", context["PublicIp"])
}

func TestWorkflowLogsPreserveInsertionOrder(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	wf := &Workflow{ID: "wf-2", Name: "provision"}
	require.NoError(t, store.CreateWorkflow(ctx, wf))

	stages := []string{"validation", "resource_creation", "wait_for_ready"}
	for _, stage := range stages {
		require.NoError(t, store.AppendWorkflowLog(ctx, &WorkflowLog{
			WorkflowID: "wf-2",
			Stage:      stage,
			Status:     LogStatusRunning,
			Message:    stage + " started",
		}))
	}

	entries, err := store.ListWorkflowLogs(ctx, "wf-2")
	require.NoError(t, err)
	require.Len(t, entries, 3)
	for i, stage := range stages {
		assert.Equal(t, stage, entries[i].Stage)
	}
}

func TestCommandLogAppendAndList(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	host := &Host{Address: "10.0.0.7", Username: "root", AuthMethod: AuthMethodKey}
	require.NoError(t, store.CreateHost(ctx, host))

	require.NoError(t, store.AppendCommandLog(ctx, &CommandLog{
		HostID:  host.ID,
		Command: "uptime",
		Result:  `{"stdout":"up 3 days","rc":0}`,
		Status:  "success",
	}))
	require.NoError(t, store.AppendCommandLog(ctx, &CommandLog{
		HostID:  host.ID,
		Command: "ping",
		Result:  `{"msg":"timed out"}`,
		Status:  "unreachable",
	}))

	entries, err := store.ListCommandLogs(ctx, host.ID, 10, 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	// Newest first.
	assert.Equal(t, "ping", entries[0].Command)
	assert.Equal(t, "uptime", entries[1].Command)
}
