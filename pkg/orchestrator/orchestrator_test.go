package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsforge/opsforge/pkg/cloud"
	"github.com/opsforge/opsforge/pkg/runner"
	"github.com/opsforge/opsforge/pkg/secrets"
	"github.com/opsforge/opsforge/pkg/stores"
	"github.com/opsforge/opsforge/pkg/telemetry"
)

type fakeProber struct {
	mu        sync.Mutex
	allowUser string
	attempts  int
}

func (p *fakeProber) CanConnect(_ string, _ int, user, _ string, _ time.Duration) bool {
	p.mu.Lock()
	p.attempts++
	p.mu.Unlock()
	return p.allowUser != "" && user == p.allowUser
}

type fakeScriptRunner struct {
	mu         sync.Mutex
	result     *runner.ScriptResult
	err        error
	calls      int
	gotContent string
	gotHosts   []*stores.Host
	pings      int
	pingStatus stores.HostStatus
}

func (f *fakeScriptRunner) ExecuteScript(_ context.Context, content string, hosts []*stores.Host, _ time.Duration) (*runner.ScriptResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.gotContent = content
	f.gotHosts = hosts
	return f.result, f.err
}

func (f *fakeScriptRunner) Ping(_ context.Context, hosts []*stores.Host) (map[int64]stores.HostStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pings++
	statuses := make(map[int64]stores.HostStatus, len(hosts))
	for _, h := range hosts {
		statuses[h.ID] = f.pingStatus
	}
	return statuses, nil
}

type orchestratorFixture struct {
	orch   *Orchestrator
	store  *stores.SQLiteStore
	cloud  *cloud.Fake
	prober *fakeProber
	runner *fakeScriptRunner
}

func setupOrchestratorTest(t *testing.T) *orchestratorFixture {
	t.Helper()

	cipher := secrets.New()
	require.NoError(t, cipher.Initialize("test-passphrase"))

	store, err := stores.NewSQLiteStore(stores.Config{Path: ":memory:"}, cipher)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, store.Init(ctx))
	require.NoError(t, store.Migrate(ctx))
	t.Cleanup(func() { _ = store.Close() })

	fx := &orchestratorFixture{
		store:  store,
		cloud:  cloud.NewFake(),
		prober: &fakeProber{allowUser: "root"},
		runner: &fakeScriptRunner{
			result:     &runner.ScriptResult{Success: true},
			pingStatus: stores.HostStatusSuccess,
		},
	}

	cfg := Config{
		PollInterval:   5 * time.Millisecond,
		PollTimeout:    250 * time.Millisecond,
		ConnectTimeout: 5 * time.Millisecond,
		DeployTimeout:  time.Second,
		SettleDelay:    time.Millisecond,
		PingRetries:    1,
	}
	metrics := telemetry.NewMetrics(prometheus.NewRegistry())
	fx.orch = New(store, fx.cloud, fx.runner, fx.prober, metrics, cfg)
	return fx
}

func validParams() map[string]any {
	return map[string]any{
		"Region":       "fsn1",
		"Zone":         "fsn1-dc14",
		"ImageId":      "ubuntu-22.04",
		"InstanceType": "cx22",
		"Password":     "Secret123!",
	}
}

func runWorkflow(t *testing.T, fx *orchestratorFixture, params map[string]any) (*stores.Workflow, error) {
	t.Helper()
	ctx := context.Background()

	wf, err := fx.orch.CreateWorkflow(ctx, "test-workflow", "created by test", params)
	require.NoError(t, err)

	h, err := fx.orch.StartWorkflow(ctx, wf.ID)
	require.NoError(t, err)

	waitCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	runErr := h.Wait(waitCtx)
	require.NotErrorIs(t, runErr, context.DeadlineExceeded)

	reloaded, err := fx.store.GetWorkflow(ctx, wf.ID)
	require.NoError(t, err)
	return reloaded, runErr
}

func TestWorkflowHappyPath(t *testing.T) {
	fx := setupOrchestratorTest(t)
	ctx := context.Background()

	wf, runErr := runWorkflow(t, fx, validParams())
	require.NoError(t, runErr)

	assert.Equal(t, stores.WorkflowStatusCompleted, wf.Status)
	assert.Equal(t, StageCompleted, wf.CurrentStage)

	var wfCtx map[string]any
	require.NoError(t, json.Unmarshal([]byte(wf.Context), &wfCtx))
	assert.Equal(t, "ins-1", wfCtx["InstanceId"])
	assert.Equal(t, "1.2.3.4", wfCtx["PublicIp"])
	assert.Equal(t, "root", wfCtx["Username"])

	// the created instance is registered as a managed host
	host, err := fx.store.GetHostByAddress(ctx, "1.2.3.4")
	require.NoError(t, err)
	assert.Equal(t, "root", host.Username)
	assert.Equal(t, HostGroup, host.GroupName)
	assert.Equal(t, fmt.Sprintf("Auto-created from Workflow %s", wf.ID), host.Comment)
	assert.Equal(t, stores.HostStatusSuccess, host.Status)
	assert.Equal(t, "Secret123!", host.Password)

	// nothing was rolled back
	assert.Empty(t, fx.cloud.TerminatedIDs)

	// no playbook content means the deployment stage skips the runner
	assert.Zero(t, fx.runner.calls)
}

func TestWorkflowStagesAdvanceInOrder(t *testing.T) {
	fx := setupOrchestratorTest(t)

	wf, runErr := runWorkflow(t, fx, validParams())
	require.NoError(t, runErr)

	logs, err := fx.store.ListWorkflowLogs(context.Background(), wf.ID)
	require.NoError(t, err)
	require.NotEmpty(t, logs)

	index := map[string]int{}
	for i, stage := range StageOrder {
		index[stage] = i
	}

	last := 0
	for _, entry := range logs {
		pos, ok := index[entry.Stage]
		require.True(t, ok, "unexpected stage %q", entry.Stage)
		assert.GreaterOrEqual(t, pos, last, "stage %q logged after %q", entry.Stage, StageOrder[last])
		if pos > last {
			last = pos
		}
	}
	assert.Equal(t, StageCompleted, logs[len(logs)-1].Stage)
}

func TestWorkflowValidationFailure(t *testing.T) {
	fx := setupOrchestratorTest(t)

	params := validParams()
	delete(params, "Password")

	wf, runErr := runWorkflow(t, fx, params)
	require.Error(t, runErr)
	assert.Contains(t, runErr.Error(), "Password")

	assert.Equal(t, stores.WorkflowStatusFailed, wf.Status)
	assert.Equal(t, StageValidation, wf.CurrentStage)

	// nothing was created, nothing to roll back
	assert.Empty(t, fx.cloud.CreateCalls)
	assert.Empty(t, fx.cloud.TerminatedIDs)
}

func TestWorkflowCreateFailureHasNoRollback(t *testing.T) {
	fx := setupOrchestratorTest(t)
	fx.cloud.CreateErr = errors.New("quota exceeded")

	wf, runErr := runWorkflow(t, fx, validParams())
	require.Error(t, runErr)

	assert.Equal(t, stores.WorkflowStatusFailed, wf.Status)
	assert.Equal(t, StageResourceCreation, wf.CurrentStage)
	assert.Empty(t, fx.cloud.TerminatedIDs)
}

func TestWorkflowProbeTimeoutDefaultsToRoot(t *testing.T) {
	fx := setupOrchestratorTest(t)
	fx.prober.allowUser = "" // ssh auth never succeeds

	wf, runErr := runWorkflow(t, fx, validParams())
	require.NoError(t, runErr)

	// a probe timeout alone never fails the workflow
	assert.Equal(t, stores.WorkflowStatusCompleted, wf.Status)
	assert.Empty(t, fx.cloud.TerminatedIDs)

	// every candidate username was tried
	assert.GreaterOrEqual(t, fx.prober.attempts, len(candidateUsers))

	// the host was registered with the fallback username
	host, err := fx.store.GetHostByAddress(context.Background(), "1.2.3.4")
	require.NoError(t, err)
	assert.Equal(t, "root", host.Username)

	// the timeout left a warning in the workflow log
	logs, err := fx.store.ListWorkflowLogs(context.Background(), wf.ID)
	require.NoError(t, err)
	var warned bool
	for _, entry := range logs {
		if entry.Status == stores.LogStatusWarning {
			assert.Contains(t, entry.Message, "defaulting to user root")
			warned = true
		}
	}
	assert.True(t, warned, "expected a warning log entry")
}

func TestWorkflowReadyTimeoutRollsBack(t *testing.T) {
	fx := setupOrchestratorTest(t)
	fx.cloud.StateSequence = []cloud.InstanceDetails{
		{State: cloud.StatePending},
	}

	wf, runErr := runWorkflow(t, fx, validParams())
	require.Error(t, runErr)

	assert.Equal(t, stores.WorkflowStatusFailed, wf.Status)
	assert.Equal(t, StageWaitForReady, wf.CurrentStage)

	// the created instance was terminated
	require.Len(t, fx.cloud.TerminatedIDs, 1)
	assert.Equal(t, []string{"ins-1"}, fx.cloud.TerminatedIDs[0])

	// no host row survives
	_, err := fx.store.GetHostByAddress(context.Background(), "1.2.3.4")
	assert.ErrorIs(t, err, stores.ErrNotFound)
}

func TestWorkflowTerminalInstanceStateFailsFast(t *testing.T) {
	fx := setupOrchestratorTest(t)
	fx.cloud.StateSequence = []cloud.InstanceDetails{
		{State: cloud.StateCreationFailed},
	}

	wf, runErr := runWorkflow(t, fx, validParams())
	require.Error(t, runErr)
	assert.Contains(t, runErr.Error(), "CREATION_FAILED")

	assert.Equal(t, stores.WorkflowStatusFailed, wf.Status)
	require.Len(t, fx.cloud.TerminatedIDs, 1)
}

func TestWorkflowDeploymentFailureRollsBack(t *testing.T) {
	fx := setupOrchestratorTest(t)
	fx.runner.result = &runner.ScriptResult{
		Success:    false,
		ReturnCode: 2,
		Logs:       []string{"fatal: [1.2.3.4]: FAILED!"},
	}

	params := validParams()
	params["PlaybookContent"] = "- hosts: all\n  tasks: []\n"

	wf, runErr := runWorkflow(t, fx, params)
	require.Error(t, runErr)
	assert.Contains(t, runErr.Error(), "return code 2")

	assert.Equal(t, stores.WorkflowStatusFailed, wf.Status)
	assert.Equal(t, StageAnsibleDeployment, wf.CurrentStage)

	// instance terminated and the registered host removed again
	require.Len(t, fx.cloud.TerminatedIDs, 1)
	_, err := fx.store.GetHostByAddress(context.Background(), "1.2.3.4")
	assert.ErrorIs(t, err, stores.ErrNotFound)

	// the failure entry carries transcript detail
	logs, err := fx.store.ListWorkflowLogs(context.Background(), wf.ID)
	require.NoError(t, err)
	var found bool
	for _, entry := range logs {
		if entry.Status == stores.LogStatusFailed && entry.Detail != nil {
			assert.Contains(t, *entry.Detail, "FAILED!")
			found = true
		}
	}
	assert.True(t, found, "expected a failed log entry with detail")
}

func TestWorkflowDeploymentRunsPlaybook(t *testing.T) {
	fx := setupOrchestratorTest(t)
	fx.prober.allowUser = "ubuntu"

	params := validParams()
	params["PlaybookContent"] = "- hosts: all\n"

	wf, runErr := runWorkflow(t, fx, params)
	require.NoError(t, runErr)

	assert.Equal(t, stores.WorkflowStatusCompleted, wf.Status)
	assert.Equal(t, 1, fx.runner.calls)
	assert.Equal(t, "- hosts: all\n", fx.runner.gotContent)
	require.Len(t, fx.runner.gotHosts, 1)
	assert.Equal(t, "1.2.3.4", fx.runner.gotHosts[0].Address)
	assert.Equal(t, "ubuntu", fx.runner.gotHosts[0].Username)

	// connectivity was confirmed before the script ran
	assert.GreaterOrEqual(t, fx.runner.pings, 1)
}

func TestStartWorkflowRejectsNonPending(t *testing.T) {
	fx := setupOrchestratorTest(t)
	ctx := context.Background()

	wf, runErr := runWorkflow(t, fx, validParams())
	require.NoError(t, runErr)

	_, err := fx.orch.StartWorkflow(ctx, wf.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "only pending workflows")
}

func TestStartWorkflowUnknownID(t *testing.T) {
	fx := setupOrchestratorTest(t)

	_, err := fx.orch.StartWorkflow(context.Background(), "no-such-workflow")
	require.Error(t, err)
}

func TestWorkflowPreservesExistingHost(t *testing.T) {
	fx := setupOrchestratorTest(t)
	ctx := context.Background()

	// a host with the instance address already exists before the run
	existing := &stores.Host{
		Comment:    "manually registered",
		Address:    "1.2.3.4",
		Username:   "admin",
		Port:       22,
		Password:   "old-secret",
		AuthMethod: stores.AuthMethodPassword,
		GroupName:  "managed_hosts",
		Status:     stores.HostStatusUnknown,
	}
	require.NoError(t, fx.store.CreateHost(ctx, existing))

	// deployment fails, forcing a rollback
	fx.runner.result = &runner.ScriptResult{Success: false, ReturnCode: 1}
	params := validParams()
	params["PlaybookContent"] = "- hosts: all\n"

	_, runErr := runWorkflow(t, fx, params)
	require.Error(t, runErr)

	// the pre-existing row was refreshed, not deleted
	host, err := fx.store.GetHostByAddress(ctx, "1.2.3.4")
	require.NoError(t, err)
	assert.Equal(t, existing.ID, host.ID)
	assert.Equal(t, "root", host.Username)
	assert.Equal(t, HostGroup, host.GroupName)
}
