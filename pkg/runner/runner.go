// Package runner implements the execution engine: parallel ad-hoc commands
// over SSH, automation-script runs through an external interpreter, and the
// tracked asynchronous variant that reports through the task ledger.
package runner

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/opsforge/opsforge/pkg/stores"
	"github.com/opsforge/opsforge/pkg/telemetry"
	sshx "github.com/opsforge/opsforge/pkg/transports/ssh"
)

// Transport abstracts the remote shell used for probes and ad-hoc commands.
// *ssh.Dialer is the production implementation.
type Transport interface {
	CanConnect(address string, port int, user, password string, timeout time.Duration) bool
	Run(ctx context.Context, cfg *sshx.Config, command string) (*sshx.CommandResult, error)
}

// Config holds execution engine settings.
type Config struct {
	// Parallelism bounds concurrent SSH connections during fan-out.
	Parallelism int

	// ConnectTimeout is the per-connection dial/auth timeout.
	ConnectTimeout time.Duration

	// CommandTimeout bounds a single ad-hoc command on one host.
	CommandTimeout time.Duration

	// InterpreterBin is the automation interpreter executable.
	InterpreterBin string

	// TempDir is where transient scripts and inventories are written.
	// Empty means the system temp directory.
	TempDir string
}

func (c *Config) applyDefaults() {
	if c.Parallelism <= 0 {
		c.Parallelism = 50
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 10 * time.Second
	}
	if c.CommandTimeout <= 0 {
		c.CommandTimeout = 5 * time.Minute
	}
	if c.InterpreterBin == "" {
		c.InterpreterBin = "ansible-playbook"
	}
}

// Runner is the execution engine.
type Runner struct {
	store     stores.Store
	transport Transport
	metrics   *telemetry.Metrics
	cfg       Config
	log       zerolog.Logger
}

// NewRunner creates an execution engine bound to the given ledger and
// transport.
func NewRunner(store stores.Store, transport Transport, metrics *telemetry.Metrics, cfg Config) *Runner {
	cfg.applyDefaults()
	return &Runner{
		store:     store,
		transport: transport,
		metrics:   metrics,
		cfg:       cfg,
		log:       telemetry.ComponentLogger("runner"),
	}
}

// CommandOutput is the per-host payload of a successful command.
type CommandOutput struct {
	Stdout string `json:"stdout"`
	Stderr string `json:"stderr"`
	RC     int    `json:"rc"`
}

// CommandFailure is the per-host payload of a command that ran and failed.
type CommandFailure struct {
	Msg string `json:"msg"`
	RC  int    `json:"rc"`
}

// UnreachableInfo is the per-host payload of a host that could not be reached.
type UnreachableInfo struct {
	Msg string `json:"msg"`
}

// Result partitions the targeted hosts by outcome, keyed by address. Every
// targeted host lands in exactly one bucket.
type Result struct {
	Success     map[string]CommandOutput   `json:"success"`
	Failed      map[string]CommandFailure  `json:"failed"`
	Unreachable map[string]UnreachableInfo `json:"unreachable"`
}

// evict removes any prior entry for address and reports whether one existed.
func (r *Result) evict(address string) bool {
	_, inSuccess := r.Success[address]
	_, inFailed := r.Failed[address]
	_, inUnreachable := r.Unreachable[address]
	delete(r.Success, address)
	delete(r.Failed, address)
	delete(r.Unreachable, address)
	return inSuccess || inFailed || inUnreachable
}

// ExecuteCommand runs one command against every host in parallel, bounded
// by the configured parallelism, and records one command log entry per host.
func (r *Runner) ExecuteCommand(ctx context.Context, command string, hosts []*stores.Host) (*Result, error) {
	if len(hosts) == 0 {
		return nil, fmt.Errorf("runner: no target hosts")
	}

	result := &Result{
		Success:     map[string]CommandOutput{},
		Failed:      map[string]CommandFailure{},
		Unreachable: map[string]UnreachableInfo{},
	}

	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		sem = make(chan struct{}, r.cfg.Parallelism)
	)

	for _, host := range hosts {
		wg.Add(1)
		go func(host *stores.Host) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			outcome, output, failure, unreachable := r.runOnHost(ctx, command, host)

			mu.Lock()
			// Buckets are keyed by address, so two host rows sharing one
			// address overwrite each other here. The per-host command logs
			// still record both outcomes.
			if result.evict(host.Address) {
				r.log.Warn().Str("address", host.Address).Int64("host_id", host.ID).
					Msg("duplicate target address, result map keeps the last outcome")
			}
			switch outcome {
			case "success":
				result.Success[host.Address] = *output
			case "failed":
				result.Failed[host.Address] = *failure
			case "unreachable":
				result.Unreachable[host.Address] = *unreachable
			}
			mu.Unlock()

			if r.metrics != nil {
				r.metrics.AdHocHosts.WithLabelValues(outcome).Inc()
			}
			r.logOutcome(ctx, host, command, outcome, output, failure, unreachable)
		}(host)
	}
	wg.Wait()

	return result, nil
}

func (r *Runner) runOnHost(ctx context.Context, command string, host *stores.Host) (outcome string, output *CommandOutput, failure *CommandFailure, unreachable *UnreachableInfo) {
	cfg := r.sshConfig(host)

	cmdCtx, cancel := context.WithTimeout(ctx, r.cfg.CommandTimeout)
	defer cancel()

	res, err := r.transport.Run(cmdCtx, cfg, command)
	switch {
	case err != nil:
		return "unreachable", nil, nil, &UnreachableInfo{Msg: err.Error()}
	case res.ExitCode != 0:
		msg := res.Stderr
		if msg == "" {
			msg = res.Stdout
		}
		return "failed", nil, &CommandFailure{Msg: msg, RC: res.ExitCode}, nil
	default:
		return "success", &CommandOutput{Stdout: res.Stdout, Stderr: res.Stderr, RC: 0}, nil, nil
	}
}

func (r *Runner) sshConfig(host *stores.Host) *sshx.Config {
	cfg := &sshx.Config{
		Host:              host.Address,
		Port:              host.Port,
		User:              host.Username,
		ConnectionTimeout: r.cfg.ConnectTimeout,
		CommandTimeout:    r.cfg.CommandTimeout,
	}
	switch host.AuthMethod {
	case stores.AuthMethodKey:
		cfg.AuthMethod = sshx.AuthMethodKey
		cfg.PrivateKeyPath = host.PrivateKeyPath
	default:
		cfg.AuthMethod = sshx.AuthMethodPassword
		cfg.Password = host.Password
	}
	return cfg
}

func (r *Runner) logOutcome(ctx context.Context, host *stores.Host, command, outcome string, output *CommandOutput, failure *CommandFailure, unreachable *UnreachableInfo) {
	var payload any
	switch outcome {
	case "success":
		payload = output
	case "failed":
		payload = failure
	case "unreachable":
		payload = unreachable
	}

	blob, err := json.Marshal(payload)
	if err != nil {
		blob = []byte("{}")
	}

	entry := &stores.CommandLog{
		HostID:  host.ID,
		Command: command,
		Result:  string(blob),
		Status:  outcome,
	}
	if err := r.store.AppendCommandLog(ctx, entry); err != nil {
		r.log.Warn().Err(err).Int64("host_id", host.ID).Msg("failed to append command log")
	}
}

// Ping checks SSH reachability for every host, persists the observed status
// on each host row, and returns the per-host status map.
func (r *Runner) Ping(ctx context.Context, hosts []*stores.Host) (map[int64]stores.HostStatus, error) {
	if len(hosts) == 0 {
		return map[int64]stores.HostStatus{}, nil
	}

	result, err := r.ExecuteCommand(ctx, "true", hosts)
	if err != nil {
		return nil, err
	}

	statuses := make(map[int64]stores.HostStatus, len(hosts))
	for _, host := range hosts {
		status := stores.HostStatusFailed
		if _, ok := result.Success[host.Address]; ok {
			status = stores.HostStatusSuccess
		} else if _, ok := result.Unreachable[host.Address]; ok {
			status = stores.HostStatusUnreachable
		}

		if err := r.store.UpdateHostStatus(ctx, host.ID, status); err != nil {
			r.log.Warn().Err(err).Int64("host_id", host.ID).Msg("failed to update host status")
		}
		statuses[host.ID] = status
	}
	return statuses, nil
}
