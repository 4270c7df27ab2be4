package commands

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsforge/opsforge/pkg/stores"
)

func TestProvisionCreateWaitsForTerminalStatus(t *testing.T) {
	cfgPath, dbPath := writeTestConfig(t, "")

	err := runCLI(t, cfgPath,
		"provision", "create", "--name", "cli-test",
		"-p", "Region=fsn1", "-p", "Zone=fsn1-dc14",
		"-p", "ImageId=ubuntu-22.04", "-p", "InstanceType=cx22",
		"-p", "Password=Secret123!",
	)
	require.NoError(t, err)

	// the command must not return before the run reached a durable
	// terminal status
	store := openTestStore(t, dbPath)
	workflows, err := store.ListWorkflows(context.Background(), 10, 0)
	require.NoError(t, err)
	require.Len(t, workflows, 1)
	assert.Equal(t, stores.WorkflowStatusCompleted, workflows[0].Status)
	assert.Equal(t, "completed", workflows[0].CurrentStage)
}

func TestProvisionCreateReportsValidationFailure(t *testing.T) {
	cfgPath, dbPath := writeTestConfig(t, "")

	err := runCLI(t, cfgPath,
		"provision", "create", "--name", "cli-test",
		"-p", "Region=fsn1",
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "workflow failed")

	store := openTestStore(t, dbPath)
	workflows, err := store.ListWorkflows(context.Background(), 10, 0)
	require.NoError(t, err)
	require.Len(t, workflows, 1)
	assert.Equal(t, stores.WorkflowStatusFailed, workflows[0].Status)
}
