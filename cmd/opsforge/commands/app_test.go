package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/opsforge/opsforge/pkg/secrets"
	"github.com/opsforge/opsforge/pkg/stores"
)

// writeTestConfig creates a config file pointing at a throwaway ledger and
// the fake cloud provider, with timings small enough for tests. It returns
// the config path and the database path.
func writeTestConfig(t *testing.T, interpreter string) (string, string) {
	t.Helper()
	t.Setenv("OPSFORGE_PASSPHRASE", "test-passphrase")

	dir := t.TempDir()
	dbPath := filepath.Join(dir, "opsforge.db")

	runnerBlock := "runner:\n  connect_timeout: 10ms\n"
	if interpreter != "" {
		runnerBlock += fmt.Sprintf("  interpreter: %s\n", interpreter)
	}

	cfgYAML := fmt.Sprintf(`database:
  path: %s
cloud:
  provider: fake
%sorchestrator:
  poll_interval: 5ms
  poll_timeout: 100ms
logging:
  level: error
`, dbPath, runnerBlock)

	cfgPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfgYAML), 0o600))
	return cfgPath, dbPath
}

// runCLI executes one opsforge invocation against the given config file.
func runCLI(t *testing.T, cfgPath string, args ...string) error {
	t.Helper()

	cmd := newRootCommand("test", "none", "now")
	cmd.SetArgs(append([]string{"--config", cfgPath}, args...))
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	return cmd.ExecuteContext(context.Background())
}

// openTestStore opens the ledger a CLI invocation left behind.
func openTestStore(t *testing.T, dbPath string) *stores.SQLiteStore {
	t.Helper()

	cipher := secrets.New()
	require.NoError(t, cipher.Initialize("test-passphrase"))

	store, err := stores.NewSQLiteStore(stores.Config{Path: dbPath}, cipher)
	require.NoError(t, err)
	require.NoError(t, store.Init(context.Background()))

	t.Cleanup(func() { _ = store.Close() })
	return store
}
