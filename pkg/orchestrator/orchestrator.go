// Package orchestrator drives provisioning workflows through a fixed stage
// sequence, persisting every transition and audit entry to the ledger and
// rolling created resources back when a post-creation stage fails.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/opsforge/opsforge/pkg/cloud"
	"github.com/opsforge/opsforge/pkg/runner"
	"github.com/opsforge/opsforge/pkg/stores"
	"github.com/opsforge/opsforge/pkg/telemetry"
)

// Stage names, in execution order.
const (
	StageValidation        = "validation"
	StageResourceCreation  = "resource_creation"
	StageWaitForReady      = "wait_for_ready"
	StageAnsibleDeployment = "ansible_deployment"
	StageCompleted         = "completed"
)

// StageOrder is the fixed forward sequence every workflow follows.
var StageOrder = []string{
	StageValidation,
	StageResourceCreation,
	StageWaitForReady,
	StageAnsibleDeployment,
	StageCompleted,
}

// requiredParams must be present and non-empty before any resource is
// touched.
var requiredParams = []string{"Region", "Zone", "ImageId", "InstanceType", "Password"}

// candidateUsers are tried in order when probing a fresh instance over SSH.
var candidateUsers = []string{"root", "ubuntu", "lighthouse"}

// HostGroup is the inventory group assigned to hosts registered by a
// workflow.
const HostGroup = "workflow_created"

// ScriptRunner is the execution engine surface the deployment stage needs.
// *runner.Runner is the production implementation.
type ScriptRunner interface {
	ExecuteScript(ctx context.Context, content string, hosts []*stores.Host, timeout time.Duration) (*runner.ScriptResult, error)
	Ping(ctx context.Context, hosts []*stores.Host) (map[int64]stores.HostStatus, error)
}

// Prober checks SSH reachability of a freshly created instance.
type Prober interface {
	CanConnect(address string, port int, user, password string, timeout time.Duration) bool
}

// Config holds orchestrator timing knobs.
type Config struct {
	// PollInterval is the delay between instance state / SSH probe checks.
	PollInterval time.Duration

	// PollTimeout bounds each polling phase as a whole.
	PollTimeout time.Duration

	// ProbePort is the SSH port probed on new instances.
	ProbePort int

	// ConnectTimeout is the per-attempt SSH probe timeout.
	ConnectTimeout time.Duration

	// DeployTimeout bounds the deployment script run.
	DeployTimeout time.Duration

	// SettleDelay is the pause between registering a fresh host and
	// handing it to the deployment script.
	SettleDelay time.Duration

	// PingRetries bounds the connectivity re-checks before the
	// deployment script runs.
	PingRetries int
}

func (c *Config) applyDefaults() {
	if c.PollInterval <= 0 {
		c.PollInterval = 5 * time.Second
	}
	if c.PollTimeout <= 0 {
		c.PollTimeout = 300 * time.Second
	}
	if c.ProbePort <= 0 {
		c.ProbePort = 22
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 10 * time.Second
	}
	if c.DeployTimeout <= 0 {
		c.DeployTimeout = 30 * time.Minute
	}
	if c.SettleDelay <= 0 {
		c.SettleDelay = 10 * time.Second
	}
	if c.PingRetries <= 0 {
		c.PingRetries = 5
	}
}

// Orchestrator creates and runs provisioning workflows.
type Orchestrator struct {
	store   stores.Store
	cloud   cloud.Provisioner
	runner  ScriptRunner
	prober  Prober
	metrics *telemetry.Metrics
	cfg     Config
	log     zerolog.Logger
}

// New wires an orchestrator to its collaborators.
func New(store stores.Store, provisioner cloud.Provisioner, scriptRunner ScriptRunner, prober Prober, metrics *telemetry.Metrics, cfg Config) *Orchestrator {
	cfg.applyDefaults()
	return &Orchestrator{
		store:   store,
		cloud:   provisioner,
		runner:  scriptRunner,
		prober:  prober,
		metrics: metrics,
		cfg:     cfg,
		log:     telemetry.ComponentLogger("orchestrator"),
	}
}

// CreateWorkflow persists a new pending workflow whose context carries the
// provisioning parameters. Nothing is validated or executed yet.
func (o *Orchestrator) CreateWorkflow(ctx context.Context, name, description string, params map[string]any) (*stores.Workflow, error) {
	if params == nil {
		params = map[string]any{}
	}
	blob, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("failed to encode workflow context: %w", err)
	}

	wf := &stores.Workflow{
		ID:           uuid.NewString(),
		Name:         name,
		Description:  description,
		Status:       stores.WorkflowStatusPending,
		CurrentStage: StageValidation,
		Context:      string(blob),
	}
	if err := o.store.CreateWorkflow(ctx, wf); err != nil {
		return nil, fmt.Errorf("failed to create workflow: %w", err)
	}

	o.log.Info().Str("workflow_id", wf.ID).Str("name", name).Msg("workflow created")
	return wf, nil
}

// Handle tracks one background workflow run.
type Handle struct {
	WorkflowID string

	done chan struct{}
	err  error
}

// Done returns a channel closed when the run reached a terminal status.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Wait blocks until the run finishes or ctx is cancelled. A non-nil error
// means the workflow failed.
func (h *Handle) Wait(ctx context.Context) error {
	select {
	case <-h.done:
		return h.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// StartWorkflow launches a pending workflow in the background. The run
// itself never returns an error through StartWorkflow; failures land on the
// workflow row and the returned handle.
func (o *Orchestrator) StartWorkflow(ctx context.Context, id string) (*Handle, error) {
	wf, err := o.store.GetWorkflow(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load workflow: %w", err)
	}
	if wf.Status != stores.WorkflowStatusPending {
		return nil, fmt.Errorf("workflow %s is %s, only pending workflows can be started", id, wf.Status)
	}

	if o.metrics != nil {
		o.metrics.WorkflowsStarted.Inc()
	}

	h := &Handle{WorkflowID: id, done: make(chan struct{})}
	run := newWorkflowRun(o, wf)

	go func() {
		defer close(h.done)
		defer func() {
			if rec := recover(); rec != nil {
				err := fmt.Errorf("workflow run panicked: %v", rec)
				o.log.Error().Str("workflow_id", id).Msg(err.Error())
				run.recordFailure(context.Background(), run.currentStage(), err)
				h.err = err
			}
		}()
		h.err = run.execute(ctx)
	}()
	return h, nil
}
