package stores

import (
	"context"
	"time"
)

// AuthMethod is how the execution engine authenticates against a host.
type AuthMethod string

const (
	AuthMethodPassword AuthMethod = "password"
	AuthMethodKey      AuthMethod = "key"
)

// HostStatus is the last observed connectivity state of a host.
type HostStatus string

const (
	HostStatusUnknown     HostStatus = "unknown"
	HostStatusSuccess     HostStatus = "success"
	HostStatusFailed      HostStatus = "failed"
	HostStatusUnreachable HostStatus = "unreachable"
)

// TaskStatus represents the lifecycle of a tracked execution task.
type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
)

// WorkflowStatus represents the lifecycle of a provisioning workflow.
type WorkflowStatus string

const (
	WorkflowStatusPending   WorkflowStatus = "pending"
	WorkflowStatusRunning   WorkflowStatus = "running"
	WorkflowStatusCompleted WorkflowStatus = "completed"
	WorkflowStatusFailed    WorkflowStatus = "failed"
)

// LogStatus is the outcome recorded by a single workflow log entry.
type LogStatus string

const (
	LogStatusRunning LogStatus = "running"
	LogStatusSuccess LogStatus = "success"
	LogStatusWarning LogStatus = "warning"
	LogStatusFailed  LogStatus = "failed"
)

// Host is a managed remote machine. Address is the effective dedup key used
// by the orchestrator when registering newly created instances.
type Host struct {
	ID             int64      `json:"id"`
	Comment        string     `json:"comment"`
	Address        string     `json:"address"`
	Username       string     `json:"username"`
	Port           int        `json:"port"`
	Password       string     `json:"-"` // decrypted in memory, encrypted at rest
	PrivateKeyPath string     `json:"private_key_path,omitempty"`
	AuthMethod     AuthMethod `json:"auth_method"`
	GroupName      string     `json:"group_name"`
	Status         HostStatus `json:"status"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// Task is one tracked ad-hoc/script execution request. TargetHosts and Logs
// are stored as JSON blobs; the target set is immutable after creation.
type Task struct {
	ID          string     `json:"id"`
	Type        string     `json:"type"`
	Name        string     `json:"name"`
	Status      TaskStatus `json:"status"`
	TargetHosts string     `json:"target_hosts"` // JSON array of host IDs
	Params      string     `json:"params"`       // JSON blob
	Result      *string    `json:"result,omitempty"`
	Logs        string     `json:"logs"` // JSON array of lines
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// TaskUpdate carries the mutable fields of a task. Nil fields are left
// untouched.
type TaskUpdate struct {
	Status      *TaskStatus
	Result      *string
	Logs        *string
	CompletedAt *time.Time
}

// Workflow is one provisioning run through the fixed stage sequence.
// Context is a JSON key/value mapping that later stages append to.
type Workflow struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	Description  string         `json:"description"`
	Status       WorkflowStatus `json:"status"`
	CurrentStage string         `json:"current_stage"`
	Context      string         `json:"context"` // JSON blob
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// WorkflowLog is an append-only audit entry for one workflow stage event.
type WorkflowLog struct {
	ID         int64     `json:"id"`
	WorkflowID string    `json:"workflow_id"`
	Stage      string    `json:"stage"`
	Status     LogStatus `json:"status"`
	Message    string    `json:"message"`
	Detail     *string   `json:"detail,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// CommandLog records one per-host outcome of an ad-hoc or script execution.
type CommandLog struct {
	ID        int64     `json:"id"`
	HostID    int64     `json:"host_id"`
	Command   string    `json:"command"`
	Result    string    `json:"result"` // JSON blob
	Status    string    `json:"status"` // success, failed, unreachable
	CreatedAt time.Time `json:"created_at"`
}

// Store defines the persistence contract shared by the orchestrator and the
// execution engine. Every call is atomic and immediately durable.
type Store interface {
	// Lifecycle
	Init(ctx context.Context) error
	Close() error
	Migrate(ctx context.Context) error
	HealthCheck(ctx context.Context) error

	// Host operations
	CreateHost(ctx context.Context, host *Host) error
	GetHost(ctx context.Context, id int64) (*Host, error)
	GetHostByAddress(ctx context.Context, address string) (*Host, error)
	ListHosts(ctx context.Context) ([]*Host, error)
	UpdateHost(ctx context.Context, host *Host) error
	UpdateHostStatus(ctx context.Context, id int64, status HostStatus) error
	DeleteHost(ctx context.Context, id int64) error
	ReencryptHostCredentials(ctx context.Context) error

	// Task operations
	CreateTask(ctx context.Context, task *Task) error
	GetTask(ctx context.Context, id string) (*Task, error)
	UpdateTask(ctx context.Context, id string, update TaskUpdate) error
	ListTasks(ctx context.Context, limit, offset int) ([]*Task, error)

	// Workflow operations
	CreateWorkflow(ctx context.Context, wf *Workflow) error
	GetWorkflow(ctx context.Context, id string) (*Workflow, error)
	UpdateWorkflowStatus(ctx context.Context, id string, status WorkflowStatus, stage string) error
	MergeWorkflowContext(ctx context.Context, id string, values map[string]any) error
	ListWorkflows(ctx context.Context, limit, offset int) ([]*Workflow, error)

	// Workflow log operations (append-only)
	AppendWorkflowLog(ctx context.Context, entry *WorkflowLog) error
	ListWorkflowLogs(ctx context.Context, workflowID string) ([]*WorkflowLog, error)

	// Command log operations (append-only)
	AppendCommandLog(ctx context.Context, entry *CommandLog) error
	ListCommandLogs(ctx context.Context, hostID int64, limit, offset int) ([]*CommandLog, error)
}
