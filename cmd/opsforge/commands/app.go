package commands

import (
	"context"
	"fmt"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/opsforge/opsforge/pkg/cloud"
	"github.com/opsforge/opsforge/pkg/config"
	"github.com/opsforge/opsforge/pkg/orchestrator"
	"github.com/opsforge/opsforge/pkg/runner"
	"github.com/opsforge/opsforge/pkg/secrets"
	"github.com/opsforge/opsforge/pkg/stores"
	"github.com/opsforge/opsforge/pkg/telemetry"
	sshx "github.com/opsforge/opsforge/pkg/transports/ssh"
)

// app bundles the wired application services behind a command.
type app struct {
	cfg    *config.Config
	store  *stores.SQLiteStore
	dialer *sshx.Dialer
	runner *runner.Runner

	metrics *telemetry.Metrics
}

// openApp loads the configuration and opens the ledger. Callers must Close.
func openApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	if verbose {
		cfg.Logging.Level = "debug"
	}
	if err := telemetry.SetupLogging(cfg.Logging); err != nil {
		return nil, err
	}
	if verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	passphrase, err := cfg.Secrets.Passphrase()
	if err != nil {
		return nil, fmt.Errorf("credential passphrase unavailable: %w", err)
	}
	cipher := secrets.New()
	if err := cipher.Initialize(passphrase); err != nil {
		return nil, err
	}

	store, err := stores.NewSQLiteStore(stores.Config{Path: cfg.Database.Path}, cipher)
	if err != nil {
		return nil, err
	}
	if err := store.Init(ctx); err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}

	metrics := telemetry.NewMetrics(prometheus.NewRegistry())
	dialer := sshx.NewDialer()

	r := runner.NewRunner(store, dialer, metrics, runner.Config{
		Parallelism:    cfg.Runner.Parallelism,
		ConnectTimeout: cfg.Runner.ConnectTimeout.Std(),
		CommandTimeout: cfg.Runner.CommandTimeout.Std(),
		InterpreterBin: cfg.Runner.Interpreter,
		TempDir:        cfg.Runner.TempDir,
	})

	return &app{
		cfg:     cfg,
		store:   store,
		dialer:  dialer,
		runner:  r,
		metrics: metrics,
	}, nil
}

func (a *app) Close() {
	if a.store != nil {
		_ = a.store.Close()
	}
}

// orchestrator builds the workflow orchestrator, including the cloud
// provider. Commands that never touch the cloud skip this so they work
// without an API token.
func (a *app) orchestrator() (*orchestrator.Orchestrator, error) {
	var provisioner cloud.Provisioner
	switch a.cfg.Cloud.Provider {
	case "fake":
		provisioner = cloud.NewFake()
	default:
		p, err := cloud.NewHCloudProvisioner(a.cfg.Cloud.Token())
		if err != nil {
			return nil, err
		}
		provisioner = p
	}

	return orchestrator.New(a.store, provisioner, a.runner, a.dialer, a.metrics, orchestrator.Config{
		PollInterval:   a.cfg.Orchestrator.PollInterval.Std(),
		PollTimeout:    a.cfg.Orchestrator.PollTimeout.Std(),
		ConnectTimeout: a.cfg.Runner.ConnectTimeout.Std(),
		DeployTimeout:  a.cfg.Orchestrator.DeployTimeout.Std(),
	}), nil
}

// resolveTargets turns command line target selectors into host rows.
func (a *app) resolveTargets(ctx context.Context, ids []string, group string, all bool) ([]*stores.Host, error) {
	if all || group != "" {
		hosts, err := a.store.ListHosts(ctx)
		if err != nil {
			return nil, err
		}
		if all {
			return hosts, nil
		}
		var filtered []*stores.Host
		for _, h := range hosts {
			if h.GroupName == group {
				filtered = append(filtered, h)
			}
		}
		if len(filtered) == 0 {
			return nil, fmt.Errorf("no hosts in group %q", group)
		}
		return filtered, nil
	}

	if len(ids) == 0 {
		return nil, fmt.Errorf("no targets selected, use --host, --group or --all")
	}

	var hosts []*stores.Host
	for _, raw := range ids {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			// fall back to address lookup
			h, lookupErr := a.store.GetHostByAddress(ctx, raw)
			if lookupErr != nil {
				return nil, fmt.Errorf("unknown host %q", raw)
			}
			hosts = append(hosts, h)
			continue
		}
		h, err := a.store.GetHost(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("unknown host id %d", id)
		}
		hosts = append(hosts, h)
	}
	return hosts, nil
}
