package stores

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/opsforge/opsforge/pkg/secrets"

	// SQLite driver
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// SQLiteStore implements the Store interface using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	cfg    Config
	cipher *secrets.Cipher
}

// Config holds SQLite store configuration.
type Config struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// NewSQLiteStore creates a new SQLite store. The cipher protects host
// credentials at rest and must be initialized before host writes.
func NewSQLiteStore(cfg Config, cipher *secrets.Cipher) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}
	if cipher == nil {
		return nil, fmt.Errorf("credential cipher is required")
	}

	if cfg.MaxOpenConns <= 0 {
		cfg.MaxOpenConns = 25
	}
	if cfg.MaxIdleConns <= 0 {
		cfg.MaxIdleConns = 5
	}
	if cfg.ConnMaxLifetime <= 0 {
		cfg.ConnMaxLifetime = 5 * time.Minute
	}
	// a second pooled connection to :memory: would open a fresh database
	if cfg.Path == ":memory:" {
		cfg.MaxOpenConns = 1
		cfg.MaxIdleConns = 1
	}

	return &SQLiteStore{
		cfg:    cfg,
		cipher: cipher,
	}, nil
}

// Init opens the database connection and enables WAL mode.
func (s *SQLiteStore) Init(ctx context.Context) error {
	dsn := fmt.Sprintf("%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL&_txlock=immediate", s.cfg.Path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(s.cfg.MaxOpenConns)
	db.SetMaxIdleConns(s.cfg.MaxIdleConns)
	db.SetConnMaxLifetime(s.cfg.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s.db = db
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Migrate runs the embedded database migrations.
func (s *SQLiteStore) Migrate(_ context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	driver, err := sqlite3.WithInstance(s.db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// HealthCheck verifies the database connection is healthy.
func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}
	return s.db.PingContext(ctx)
}

// CreateHost inserts a new host. The credential is encrypted before it
// touches the database; the in-memory host keeps the plaintext.
func (s *SQLiteStore) CreateHost(ctx context.Context, host *Host) error {
	sealed, err := s.sealCredential(host.Password)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	host.CreatedAt = now
	host.UpdatedAt = now
	if host.Status == "" {
		host.Status = HostStatusUnknown
	}
	if host.Port == 0 {
		host.Port = 22
	}

	query := `
		INSERT INTO hosts (comment, address, username, port, password, private_key_path, auth_method, group_name, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := s.db.ExecContext(ctx, query,
		host.Comment,
		host.Address,
		host.Username,
		host.Port,
		sealed,
		host.PrivateKeyPath,
		host.AuthMethod,
		host.GroupName,
		host.Status,
		host.CreatedAt,
		host.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create host: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get host ID: %w", err)
	}
	host.ID = id
	return nil
}

const hostColumns = "id, comment, address, username, port, password, private_key_path, auth_method, group_name, status, created_at, updated_at"

func (s *SQLiteStore) scanHost(row interface{ Scan(...any) error }) (*Host, error) {
	host := &Host{}
	var sealed string
	err := row.Scan(
		&host.ID,
		&host.Comment,
		&host.Address,
		&host.Username,
		&host.Port,
		&sealed,
		&host.PrivateKeyPath,
		&host.AuthMethod,
		&host.GroupName,
		&host.Status,
		&host.CreatedAt,
		&host.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if sealed != "" {
		plain, err := s.cipher.Decrypt(sealed)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt credential for host %d: %w", host.ID, err)
		}
		host.Password = plain
	}
	return host, nil
}

// GetHost retrieves a host by ID.
func (s *SQLiteStore) GetHost(ctx context.Context, id int64) (*Host, error) {
	query := `SELECT ` + hostColumns + ` FROM hosts WHERE id = ?`

	host, err := s.scanHost(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("host %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get host: %w", err)
	}
	return host, nil
}

// GetHostByAddress retrieves a host by its address, the dedup key used when
// registering provisioned instances.
func (s *SQLiteStore) GetHostByAddress(ctx context.Context, address string) (*Host, error) {
	query := `SELECT ` + hostColumns + ` FROM hosts WHERE address = ? ORDER BY id LIMIT 1`

	host, err := s.scanHost(s.db.QueryRowContext(ctx, query, address))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("host %s: %w", address, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get host by address: %w", err)
	}
	return host, nil
}

// ListHosts lists all hosts ordered by ID.
func (s *SQLiteStore) ListHosts(ctx context.Context) ([]*Host, error) {
	query := `SELECT ` + hostColumns + ` FROM hosts ORDER BY id ASC`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list hosts: %w", err)
	}
	defer rows.Close()

	hosts := []*Host{}
	for rows.Next() {
		host, err := s.scanHost(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan host: %w", err)
		}
		hosts = append(hosts, host)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating hosts: %w", err)
	}
	return hosts, nil
}

// UpdateHost updates all mutable host fields. Last writer wins.
func (s *SQLiteStore) UpdateHost(ctx context.Context, host *Host) error {
	sealed, err := s.sealCredential(host.Password)
	if err != nil {
		return err
	}

	host.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE hosts
		SET comment = ?, address = ?, username = ?, port = ?, password = ?,
			private_key_path = ?, auth_method = ?, group_name = ?, status = ?, updated_at = ?
		WHERE id = ?
	`

	result, err := s.db.ExecContext(ctx, query,
		host.Comment,
		host.Address,
		host.Username,
		host.Port,
		sealed,
		host.PrivateKeyPath,
		host.AuthMethod,
		host.GroupName,
		host.Status,
		host.UpdatedAt,
		host.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update host: %w", err)
	}
	return s.requireRow(result, fmt.Sprintf("host %d", host.ID))
}

// UpdateHostStatus records the last observed connectivity state of a host.
func (s *SQLiteStore) UpdateHostStatus(ctx context.Context, id int64, status HostStatus) error {
	query := `UPDATE hosts SET status = ?, updated_at = ? WHERE id = ?`

	result, err := s.db.ExecContext(ctx, query, status, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update host status: %w", err)
	}
	return s.requireRow(result, fmt.Sprintf("host %d", id))
}

// DeleteHost removes a host by ID.
func (s *SQLiteStore) DeleteHost(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM hosts WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete host: %w", err)
	}
	return s.requireRow(result, fmt.Sprintf("host %d", id))
}

// ReencryptHostCredentials rewrites every stored credential with the current
// encryption key. Called after a cipher rotation.
func (s *SQLiteStore) ReencryptHostCredentials(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx, `SELECT id, password FROM hosts WHERE password != ''`)
	if err != nil {
		return fmt.Errorf("failed to list credentials: %w", err)
	}
	defer rows.Close()

	type row struct {
		id     int64
		sealed string
	}
	var pending []row
	for rows.Next() {
		var r row
		if err := rows.Scan(&r.id, &r.sealed); err != nil {
			return fmt.Errorf("failed to scan credential: %w", err)
		}
		pending = append(pending, r)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating credentials: %w", err)
	}

	for _, r := range pending {
		plain, err := s.cipher.Decrypt(r.sealed)
		if err != nil {
			return fmt.Errorf("failed to decrypt credential for host %d: %w", r.id, err)
		}
		sealed, err := s.cipher.Encrypt(plain)
		if err != nil {
			return fmt.Errorf("failed to re-encrypt credential for host %d: %w", r.id, err)
		}
		if _, err := s.db.ExecContext(ctx, `UPDATE hosts SET password = ? WHERE id = ?`, sealed, r.id); err != nil {
			return fmt.Errorf("failed to store re-encrypted credential for host %d: %w", r.id, err)
		}
	}
	return nil
}

// CreateTask inserts a new task record.
func (s *SQLiteStore) CreateTask(ctx context.Context, task *Task) error {
	now := time.Now().UTC()
	task.CreatedAt = now
	task.UpdatedAt = now
	if task.Status == "" {
		task.Status = TaskStatusPending
	}
	if task.TargetHosts == "" {
		task.TargetHosts = "[]"
	}
	if task.Params == "" {
		task.Params = "{}"
	}
	if task.Logs == "" {
		task.Logs = "[]"
	}

	query := `
		INSERT INTO tasks (id, type, name, status, target_hosts, params, result, logs, created_at, updated_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		task.ID,
		task.Type,
		task.Name,
		task.Status,
		task.TargetHosts,
		task.Params,
		task.Result,
		task.Logs,
		task.CreatedAt,
		task.UpdatedAt,
		task.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}
	return nil
}

// GetTask retrieves a task by ID.
func (s *SQLiteStore) GetTask(ctx context.Context, id string) (*Task, error) {
	query := `
		SELECT id, type, name, status, target_hosts, params, result, logs, created_at, updated_at, completed_at
		FROM tasks
		WHERE id = ?
	`

	task := &Task{}
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&task.ID,
		&task.Type,
		&task.Name,
		&task.Status,
		&task.TargetHosts,
		&task.Params,
		&task.Result,
		&task.Logs,
		&task.CreatedAt,
		&task.UpdatedAt,
		&task.CompletedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("task %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	return task, nil
}

// UpdateTask applies the non-nil fields of the update to a task.
func (s *SQLiteStore) UpdateTask(ctx context.Context, id string, update TaskUpdate) error {
	query := `
		UPDATE tasks
		SET status = COALESCE(?, status),
			result = COALESCE(?, result),
			logs = COALESCE(?, logs),
			completed_at = COALESCE(?, completed_at),
			updated_at = ?
		WHERE id = ?
	`

	result, err := s.db.ExecContext(ctx, query,
		update.Status,
		update.Result,
		update.Logs,
		update.CompletedAt,
		time.Now().UTC(),
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to update task: %w", err)
	}
	return s.requireRow(result, fmt.Sprintf("task %s", id))
}

// ListTasks lists tasks ordered by creation time, newest first.
func (s *SQLiteStore) ListTasks(ctx context.Context, limit, offset int) ([]*Task, error) {
	query := `
		SELECT id, type, name, status, target_hosts, params, result, logs, created_at, updated_at, completed_at
		FROM tasks
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?
	`

	rows, err := s.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	tasks := []*Task{}
	for rows.Next() {
		task := &Task{}
		err := rows.Scan(
			&task.ID,
			&task.Type,
			&task.Name,
			&task.Status,
			&task.TargetHosts,
			&task.Params,
			&task.Result,
			&task.Logs,
			&task.CreatedAt,
			&task.UpdatedAt,
			&task.CompletedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, task)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tasks: %w", err)
	}
	return tasks, nil
}

// CreateWorkflow inserts a new workflow record.
func (s *SQLiteStore) CreateWorkflow(ctx context.Context, wf *Workflow) error {
	now := time.Now().UTC()
	wf.CreatedAt = now
	wf.UpdatedAt = now
	if wf.Status == "" {
		wf.Status = WorkflowStatusPending
	}
	if wf.CurrentStage == "" {
		wf.CurrentStage = "init"
	}
	if wf.Context == "" {
		wf.Context = "{}"
	}

	query := `
		INSERT INTO workflows (id, name, description, status, current_stage, context, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		wf.ID,
		wf.Name,
		wf.Description,
		wf.Status,
		wf.CurrentStage,
		wf.Context,
		wf.CreatedAt,
		wf.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create workflow: %w", err)
	}
	return nil
}

// GetWorkflow retrieves a workflow by ID.
func (s *SQLiteStore) GetWorkflow(ctx context.Context, id string) (*Workflow, error) {
	query := `
		SELECT id, name, description, status, current_stage, context, created_at, updated_at
		FROM workflows
		WHERE id = ?
	`

	wf := &Workflow{}
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&wf.ID,
		&wf.Name,
		&wf.Description,
		&wf.Status,
		&wf.CurrentStage,
		&wf.Context,
		&wf.CreatedAt,
		&wf.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("workflow %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get workflow: %w", err)
	}
	return wf, nil
}

// UpdateWorkflowStatus sets the status and current stage of a workflow.
func (s *SQLiteStore) UpdateWorkflowStatus(ctx context.Context, id string, status WorkflowStatus, stage string) error {
	query := `UPDATE workflows SET status = ?, current_stage = ?, updated_at = ? WHERE id = ?`

	result, err := s.db.ExecContext(ctx, query, status, stage, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update workflow status: %w", err)
	}
	return s.requireRow(result, fmt.Sprintf("workflow %s", id))
}

// MergeWorkflowContext merges values into the workflow context. Existing keys
// are overwritten, absent keys are preserved; keys are never removed.
func (s *SQLiteStore) MergeWorkflowContext(ctx context.Context, id string, values map[string]any) error {
	wf, err := s.GetWorkflow(ctx, id)
	if err != nil {
		return err
	}

	merged := map[string]any{}
	if err := json.Unmarshal([]byte(wf.Context), &merged); err != nil {
		return fmt.Errorf("failed to decode workflow context: %w", err)
	}
	for k, v := range values {
		merged[k] = v
	}

	blob, err := json.Marshal(merged)
	if err != nil {
		return fmt.Errorf("failed to encode workflow context: %w", err)
	}

	query := `UPDATE workflows SET context = ?, updated_at = ? WHERE id = ?`
	result, err := s.db.ExecContext(ctx, query, string(blob), time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update workflow context: %w", err)
	}
	return s.requireRow(result, fmt.Sprintf("workflow %s", id))
}

// ListWorkflows lists workflows ordered by creation time, newest first.
func (s *SQLiteStore) ListWorkflows(ctx context.Context, limit, offset int) ([]*Workflow, error) {
	query := `
		SELECT id, name, description, status, current_stage, context, created_at, updated_at
		FROM workflows
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?
	`

	rows, err := s.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}
	defer rows.Close()

	workflows := []*Workflow{}
	for rows.Next() {
		wf := &Workflow{}
		err := rows.Scan(
			&wf.ID,
			&wf.Name,
			&wf.Description,
			&wf.Status,
			&wf.CurrentStage,
			&wf.Context,
			&wf.CreatedAt,
			&wf.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow: %w", err)
		}
		workflows = append(workflows, wf)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating workflows: %w", err)
	}
	return workflows, nil
}

// AppendWorkflowLog appends an entry to a workflow's audit log.
func (s *SQLiteStore) AppendWorkflowLog(ctx context.Context, entry *WorkflowLog) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	query := `
		INSERT INTO workflow_logs (workflow_id, stage, status, message, detail, timestamp)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	result, err := s.db.ExecContext(ctx, query,
		entry.WorkflowID,
		entry.Stage,
		entry.Status,
		entry.Message,
		entry.Detail,
		entry.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to append workflow log: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get workflow log ID: %w", err)
	}
	entry.ID = id
	return nil
}

// ListWorkflowLogs returns a workflow's log entries in insertion order.
func (s *SQLiteStore) ListWorkflowLogs(ctx context.Context, workflowID string) ([]*WorkflowLog, error) {
	query := `
		SELECT id, workflow_id, stage, status, message, detail, timestamp
		FROM workflow_logs
		WHERE workflow_id = ?
		ORDER BY id ASC
	`

	rows, err := s.db.QueryContext(ctx, query, workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to list workflow logs: %w", err)
	}
	defer rows.Close()

	entries := []*WorkflowLog{}
	for rows.Next() {
		entry := &WorkflowLog{}
		err := rows.Scan(
			&entry.ID,
			&entry.WorkflowID,
			&entry.Stage,
			&entry.Status,
			&entry.Message,
			&entry.Detail,
			&entry.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow log: %w", err)
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating workflow logs: %w", err)
	}
	return entries, nil
}

// AppendCommandLog records a per-host execution outcome.
func (s *SQLiteStore) AppendCommandLog(ctx context.Context, entry *CommandLog) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO command_logs (host_id, command, result, status, created_at)
		VALUES (?, ?, ?, ?, ?)
	`

	result, err := s.db.ExecContext(ctx, query,
		entry.HostID,
		entry.Command,
		entry.Result,
		entry.Status,
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append command log: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get command log ID: %w", err)
	}
	entry.ID = id
	return nil
}

// ListCommandLogs returns a host's command log, newest first.
func (s *SQLiteStore) ListCommandLogs(ctx context.Context, hostID int64, limit, offset int) ([]*CommandLog, error) {
	query := `
		SELECT id, host_id, command, result, status, created_at
		FROM command_logs
		WHERE host_id = ?
		ORDER BY id DESC
		LIMIT ? OFFSET ?
	`

	rows, err := s.db.QueryContext(ctx, query, hostID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list command logs: %w", err)
	}
	defer rows.Close()

	entries := []*CommandLog{}
	for rows.Next() {
		entry := &CommandLog{}
		err := rows.Scan(
			&entry.ID,
			&entry.HostID,
			&entry.Command,
			&entry.Result,
			&entry.Status,
			&entry.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan command log: %w", err)
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating command logs: %w", err)
	}
	return entries, nil
}

func (s *SQLiteStore) sealCredential(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	sealed, err := s.cipher.Encrypt(plaintext)
	if err != nil {
		return "", fmt.Errorf("failed to encrypt credential: %w", err)
	}
	return sealed, nil
}

func (s *SQLiteStore) requireRow(result sql.Result, what string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return nil
}
