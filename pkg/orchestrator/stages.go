package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/qmuntal/stateless"
	"github.com/sethvargo/go-retry"

	"github.com/opsforge/opsforge/pkg/cloud"
	"github.com/opsforge/opsforge/pkg/stores"
)

const stateFailed = "failed"

const (
	triggerAdvance = "advance"
	triggerFail    = "fail"
)

// workflowRun holds the in-flight state of one workflow execution. The state
// machine enforces that stages only ever move one step forward or to the
// failed state.
type workflowRun struct {
	o   *Orchestrator
	wf  *stores.Workflow
	fsm *stateless.StateMachine

	params map[string]any

	instanceID  string
	address     string
	username    string
	hostID      int64
	hostCreated bool
	rolledBack  bool

	stage       string
	failedStage string
	stageErr    error
	failDetail  *string
	note        string
}

func newWorkflowRun(o *Orchestrator, wf *stores.Workflow) *workflowRun {
	r := &workflowRun{o: o, wf: wf, stage: StageValidation}

	fsm := stateless.NewStateMachine(StageValidation)
	fsm.Configure(StageValidation).
		Permit(triggerAdvance, StageResourceCreation).
		Permit(triggerFail, stateFailed)
	fsm.Configure(StageResourceCreation).
		Permit(triggerAdvance, StageWaitForReady).
		Permit(triggerFail, stateFailed)
	fsm.Configure(StageWaitForReady).
		Permit(triggerAdvance, StageAnsibleDeployment).
		Permit(triggerFail, stateFailed)
	fsm.Configure(StageAnsibleDeployment).
		Permit(triggerAdvance, StageCompleted).
		Permit(triggerFail, stateFailed)
	fsm.Configure(StageCompleted)
	fsm.Configure(stateFailed)

	r.fsm = fsm
	return r
}

func (r *workflowRun) currentStage() string {
	if r.failedStage != "" {
		return r.failedStage
	}
	return r.stage
}

// execute drives the workflow to a terminal status. The returned error is
// non-nil exactly when the workflow failed.
func (r *workflowRun) execute(ctx context.Context) error {
	if err := r.parseParams(); err != nil {
		r.recordFailure(ctx, StageValidation, err)
		return err
	}

	stageFuncs := map[string]func(context.Context) error{
		StageValidation:        r.runValidation,
		StageResourceCreation:  r.runResourceCreation,
		StageWaitForReady:      r.runWaitForReady,
		StageAnsibleDeployment: r.runDeployment,
	}

	for {
		state := r.fsm.MustState().(string)
		switch state {
		case StageCompleted:
			r.complete(ctx)
			return nil
		case stateFailed:
			// failure bookkeeping and rollback must outlive a cancelled run
			r.recordFailure(context.WithoutCancel(ctx), r.failedStage, r.stageErr)
			return r.stageErr
		}
		r.stage = state

		r.appendLog(ctx, state, stores.LogStatusRunning, stageStartMessages[state], nil)
		r.setStatus(ctx, stores.WorkflowStatusRunning, state)

		start := time.Now()
		err := stageFuncs[state](ctx)
		if r.o.metrics != nil {
			r.o.metrics.StageDuration.WithLabelValues(state).Observe(time.Since(start).Seconds())
		}

		if err != nil {
			r.failedStage = state
			r.stageErr = err
			if fireErr := r.fsm.Fire(triggerFail); fireErr != nil {
				return fmt.Errorf("failed to transition workflow state: %w", fireErr)
			}
			continue
		}

		r.appendLog(ctx, state, stores.LogStatusSuccess, r.successMessage(state), nil)
		if fireErr := r.fsm.Fire(triggerAdvance); fireErr != nil {
			return fmt.Errorf("failed to transition workflow state: %w", fireErr)
		}
	}
}

var stageStartMessages = map[string]string{
	StageValidation:        "validating provisioning parameters",
	StageResourceCreation:  "creating cloud instance",
	StageWaitForReady:      "waiting for instance to become ready",
	StageAnsibleDeployment: "registering instance into the managed inventory",
}

func (r *workflowRun) successMessage(stage string) string {
	if r.note != "" {
		note := r.note
		r.note = ""
		return note
	}
	switch stage {
	case StageValidation:
		return "provisioning parameters validated"
	case StageResourceCreation:
		return fmt.Sprintf("instance %s created", r.instanceID)
	case StageWaitForReady:
		return fmt.Sprintf("instance %s running at %s", r.instanceID, r.address)
	case StageAnsibleDeployment:
		return "deployment script succeeded"
	}
	return "stage completed"
}

func (r *workflowRun) parseParams() error {
	params := map[string]any{}
	if r.wf.Context != "" {
		if err := json.Unmarshal([]byte(r.wf.Context), &params); err != nil {
			return fmt.Errorf("failed to decode workflow context: %w", err)
		}
	}
	r.params = params
	return nil
}

func (r *workflowRun) stringParam(key string) string {
	if v, ok := r.params[key].(string); ok {
		return v
	}
	return ""
}

func (r *workflowRun) intParam(key string, fallback int) int {
	switch v := r.params[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return fallback
}

func (r *workflowRun) runValidation(_ context.Context) error {
	for _, key := range requiredParams {
		if r.stringParam(key) == "" {
			return fmt.Errorf("missing required parameter: %s", key)
		}
	}
	return nil
}

func (r *workflowRun) runResourceCreation(ctx context.Context) error {
	name := r.stringParam("InstanceName")
	if name == "" {
		name = r.wf.Name
	}
	chargeType := r.stringParam("InstanceChargeType")
	if chargeType == "" {
		chargeType = "POSTPAID_BY_HOUR"
	}

	params := cloud.CreateParams{
		Region:                  r.stringParam("Region"),
		Zone:                    r.stringParam("Zone"),
		ImageID:                 r.stringParam("ImageId"),
		InstanceType:            r.stringParam("InstanceType"),
		InstanceName:            name,
		Password:                r.stringParam("Password"),
		InstanceChargeType:      chargeType,
		SystemDiskSize:          r.intParam("SystemDiskSize", 50),
		SystemDiskType:          r.stringParam("SystemDiskType"),
		VpcID:                   r.stringParam("VpcId"),
		SubnetID:                r.stringParam("SubnetId"),
		InternetAccessible:      true,
		InternetMaxBandwidthOut: r.intParam("InternetMaxBandwidthOut", 10),
		InstanceCount:           1,
	}

	result, err := r.o.cloud.CreateInstance(ctx, params)
	if err != nil {
		return fmt.Errorf("failed to create instance: %w", err)
	}
	if len(result.InstanceIDSet) == 0 {
		return fmt.Errorf("provider accepted the request but returned no instance IDs")
	}
	r.instanceID = result.InstanceIDSet[0]

	if err := r.o.store.MergeWorkflowContext(ctx, r.wf.ID, map[string]any{"InstanceId": r.instanceID}); err != nil {
		return fmt.Errorf("failed to record instance id: %w", err)
	}
	return nil
}

func (r *workflowRun) runWaitForReady(ctx context.Context) error {
	region := r.stringParam("Region")

	var publicIP, privateIP string
	pollErr := retry.Do(ctx,
		retry.WithMaxDuration(r.o.cfg.PollTimeout, retry.NewConstant(r.o.cfg.PollInterval)),
		func(ctx context.Context) error {
			details, err := r.o.cloud.DescribeInstance(ctx, r.instanceID, region)
			if err != nil {
				return retry.RetryableError(err)
			}
			if details.State.IsTerminal() {
				return fmt.Errorf("instance %s entered state %s", r.instanceID, details.State)
			}
			if details.State == cloud.StateRunning {
				if len(details.PublicIPs) > 0 {
					publicIP = details.PublicIPs[0]
				}
				if len(details.PrivateIPs) > 0 {
					privateIP = details.PrivateIPs[0]
				}
				return nil
			}
			return retry.RetryableError(fmt.Errorf("instance %s not ready, state %s", r.instanceID, details.State))
		})
	if pollErr != nil {
		return fmt.Errorf("instance did not become ready: %w", pollErr)
	}

	// Instances on a private network may never get a public address.
	r.address = publicIP
	if r.address == "" {
		r.address = privateIP
	}

	merge := map[string]any{"PublicIp": publicIP, "PrivateIp": privateIP}
	if err := r.o.store.MergeWorkflowContext(ctx, r.wf.ID, merge); err != nil {
		return fmt.Errorf("failed to record instance addresses: %w", err)
	}
	return nil
}

// detectUsername probes the candidate logins until one authenticates. A
// probe timeout is not fatal: the run logs a warning and falls back to
// root.
func (r *workflowRun) detectUsername(ctx context.Context, password string) error {
	probeErr := retry.Do(ctx,
		retry.WithMaxDuration(r.o.cfg.PollTimeout, retry.NewConstant(r.o.cfg.PollInterval)),
		func(ctx context.Context) error {
			for _, user := range candidateUsers {
				if r.o.metrics != nil {
					r.o.metrics.ProbeAttempts.Inc()
				}
				if r.o.prober.CanConnect(r.address, r.o.cfg.ProbePort, user, password, r.o.cfg.ConnectTimeout) {
					r.username = user
					return nil
				}
			}
			return retry.RetryableError(fmt.Errorf("ssh not yet reachable on %s", r.address))
		})
	if probeErr != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		r.appendLog(ctx, StageAnsibleDeployment, stores.LogStatusWarning, "ssh probe timed out, defaulting to user root", nil)
		r.username = "root"
		return nil
	}

	r.appendLog(ctx, StageAnsibleDeployment, stores.LogStatusRunning, fmt.Sprintf("ssh connection confirmed as %s", r.username), nil)
	return nil
}

// confirmReachable pings the host before handing it to the interpreter.
// Persistent ping failures are not fatal here, the script run itself
// delivers the authoritative verdict.
func (r *workflowRun) confirmReachable(ctx context.Context, host *stores.Host) {
	for attempt := 0; attempt <= r.o.cfg.PingRetries; attempt++ {
		if attempt > 0 {
			if err := sleepCtx(ctx, r.o.cfg.PollInterval); err != nil {
				return
			}
		}
		statuses, err := r.o.runner.Ping(ctx, []*stores.Host{host})
		if err != nil {
			r.o.log.Warn().Err(err).Str("workflow_id", r.wf.ID).Msg("connectivity check failed")
			continue
		}
		if statuses[host.ID] == stores.HostStatusSuccess {
			return
		}
	}
	r.appendLog(ctx, StageAnsibleDeployment, stores.LogStatusWarning, "host still unreachable after connectivity retries, attempting deployment anyway", nil)
}

// registerHost records the new instance as a managed host. An existing host
// row with the same address is refreshed in place rather than duplicated,
// and is not deleted by a later rollback.
func (r *workflowRun) registerHost(ctx context.Context, password string) error {
	comment := fmt.Sprintf("Auto-created from Workflow %s", r.wf.ID)

	existing, err := r.o.store.GetHostByAddress(ctx, r.address)
	switch {
	case err == nil:
		existing.Comment = comment
		existing.Username = r.username
		existing.Port = r.o.cfg.ProbePort
		existing.Password = password
		existing.AuthMethod = stores.AuthMethodPassword
		existing.GroupName = HostGroup
		existing.Status = stores.HostStatusSuccess
		if err := r.o.store.UpdateHost(ctx, existing); err != nil {
			return fmt.Errorf("failed to update existing host: %w", err)
		}
		r.hostID = existing.ID
	case errors.Is(err, stores.ErrNotFound):
		host := &stores.Host{
			Comment:    comment,
			Address:    r.address,
			Username:   r.username,
			Port:       r.o.cfg.ProbePort,
			Password:   password,
			AuthMethod: stores.AuthMethodPassword,
			GroupName:  HostGroup,
			Status:     stores.HostStatusSuccess,
		}
		if err := r.o.store.CreateHost(ctx, host); err != nil {
			return fmt.Errorf("failed to register host: %w", err)
		}
		r.hostID = host.ID
		r.hostCreated = true
	default:
		return fmt.Errorf("failed to look up host by address: %w", err)
	}
	return nil
}

func (r *workflowRun) runDeployment(ctx context.Context) error {
	if r.address == "" {
		return fmt.Errorf("no IP address available for SSH connection")
	}

	password := r.stringParam("Password")
	if err := r.detectUsername(ctx, password); err != nil {
		return err
	}
	if err := r.registerHost(ctx, password); err != nil {
		return err
	}

	merge := map[string]any{"Username": r.username, "HostId": r.hostID}
	if err := r.o.store.MergeWorkflowContext(ctx, r.wf.ID, merge); err != nil {
		return fmt.Errorf("failed to record registered host: %w", err)
	}

	content := r.stringParam("PlaybookContent")
	if content == "" {
		r.note = "no playbook content provided, skipping deployment"
		return nil
	}

	host, err := r.o.store.GetHost(ctx, r.hostID)
	if err != nil {
		return fmt.Errorf("failed to load deployment target host: %w", err)
	}

	// Fresh instances accept SSH logins a little before they can
	// actually run anything.
	if err := sleepCtx(ctx, r.o.cfg.SettleDelay); err != nil {
		return err
	}
	r.confirmReachable(ctx, host)

	result, err := r.o.runner.ExecuteScript(ctx, content, []*stores.Host{host}, r.o.cfg.DeployTimeout)
	if err != nil {
		return fmt.Errorf("failed to run deployment script: %w", err)
	}
	if !result.Success {
		detail := strings.Join(tail(result.Logs, 20), "\n")
		r.failDetail = &detail
		return fmt.Errorf("deployment script failed with return code %d", result.ReturnCode)
	}

	if err := r.o.store.MergeWorkflowContext(ctx, r.wf.ID, map[string]any{"DeploySummary": result.Summary}); err != nil {
		return fmt.Errorf("failed to record deployment summary: %w", err)
	}
	return nil
}

func tail(lines []string, n int) []string {
	if len(lines) <= n {
		return lines
	}
	return lines[len(lines)-n:]
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (r *workflowRun) complete(ctx context.Context) {
	r.appendLog(ctx, StageCompleted, stores.LogStatusSuccess, "workflow completed", nil)
	r.setStatus(ctx, stores.WorkflowStatusCompleted, StageCompleted)
	if r.o.metrics != nil {
		r.o.metrics.WorkflowsCompleted.Inc()
	}
	r.o.log.Info().Str("workflow_id", r.wf.ID).Msg("workflow completed")
}

// recordFailure writes the failure audit entry, rolls back created resources
// when the failure happened after resource creation, and finally marks the
// workflow failed. The audit entry always lands before the status change.
func (r *workflowRun) recordFailure(ctx context.Context, stage string, cause error) {
	if stage == "" {
		stage = StageValidation
	}
	msg := "stage failed"
	if cause != nil {
		msg = cause.Error()
	}
	r.appendLog(ctx, stage, stores.LogStatusFailed, msg, r.failDetail)

	if r.instanceID != "" && (stage == StageWaitForReady || stage == StageAnsibleDeployment) {
		r.rollback(ctx, stage)
	}

	r.setStatus(ctx, stores.WorkflowStatusFailed, stage)
	if r.o.metrics != nil {
		r.o.metrics.WorkflowsFailed.Inc()
	}
	r.o.log.Error().Err(cause).Str("workflow_id", r.wf.ID).Str("stage", stage).Msg("workflow failed")
}

// rollback terminates the created instance and removes the host row this run
// registered. Both steps are best-effort; errors are recorded and swallowed.
func (r *workflowRun) rollback(ctx context.Context, stage string) {
	if r.rolledBack {
		return
	}
	r.rolledBack = true

	ctx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	r.appendLog(ctx, stage, stores.LogStatusWarning, fmt.Sprintf("rolling back: terminating instance %s", r.instanceID), nil)

	region := r.stringParam("Region")
	if err := r.o.cloud.TerminateInstances(ctx, []string{r.instanceID}, region); err != nil {
		r.appendLog(ctx, stage, stores.LogStatusWarning, fmt.Sprintf("failed to terminate instance %s: %v", r.instanceID, err), nil)
	} else {
		r.appendLog(ctx, stage, stores.LogStatusWarning, fmt.Sprintf("instance %s terminated", r.instanceID), nil)
	}

	if r.hostCreated && r.hostID != 0 {
		if err := r.o.store.DeleteHost(ctx, r.hostID); err != nil {
			r.appendLog(ctx, stage, stores.LogStatusWarning, fmt.Sprintf("failed to remove host %d: %v", r.hostID, err), nil)
		}
	}
}

func (r *workflowRun) appendLog(ctx context.Context, stage string, status stores.LogStatus, message string, detail *string) {
	entry := &stores.WorkflowLog{
		WorkflowID: r.wf.ID,
		Stage:      stage,
		Status:     status,
		Message:    message,
		Detail:     detail,
	}
	if err := r.o.store.AppendWorkflowLog(ctx, entry); err != nil {
		r.o.log.Warn().Err(err).Str("workflow_id", r.wf.ID).Msg("failed to append workflow log")
	}
}

func (r *workflowRun) setStatus(ctx context.Context, status stores.WorkflowStatus, stage string) {
	if err := r.o.store.UpdateWorkflowStatus(ctx, r.wf.ID, status, stage); err != nil {
		r.o.log.Warn().Err(err).Str("workflow_id", r.wf.ID).Msg("failed to update workflow status")
	}
}
