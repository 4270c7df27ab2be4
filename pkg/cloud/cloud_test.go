package cloud

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/hetznercloud/hcloud-go/v2/hcloud"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewHCloudProvisionerRequiresToken(t *testing.T) {
	_, err := NewHCloudProvisioner("")
	require.Error(t, err)
	assert.True(t, IsCredentialsError(err))
}

func TestProviderErrorUnwraps(t *testing.T) {
	inner := fmt.Errorf("boom")
	err := &ProviderError{Kind: ErrKindUnavailable, Op: "create", Err: inner}

	assert.ErrorIs(t, err, inner)
	assert.Contains(t, err.Error(), "create")
	assert.Contains(t, err.Error(), "unavailable")
	assert.False(t, IsCredentialsError(err))
}

func TestInstanceStateIsTerminal(t *testing.T) {
	assert.True(t, StateTerminated.IsTerminal())
	assert.True(t, StateCreationFailed.IsTerminal())
	assert.False(t, StatePending.IsTerminal())
	assert.False(t, StateRunning.IsTerminal())
	assert.False(t, StateStopped.IsTerminal())
}

func TestMapServerStatus(t *testing.T) {
	cases := map[hcloud.ServerStatus]InstanceState{
		hcloud.ServerStatusRunning:      StateRunning,
		hcloud.ServerStatusInitializing: StatePending,
		hcloud.ServerStatusStarting:     StatePending,
		hcloud.ServerStatusOff:          StateStopped,
		hcloud.ServerStatusStopping:     StateStopped,
		hcloud.ServerStatusDeleting:     StateTerminated,
		hcloud.ServerStatusUnknown:      StatePending,
	}
	for status, want := range cases {
		assert.Equal(t, want, mapServerStatus(status), "status %s", status)
	}
}

func TestFakeScriptsStateSequence(t *testing.T) {
	f := NewFake()
	f.StateSequence = []InstanceDetails{
		{State: StatePending},
		{State: StateRunning, PublicIPs: []string{"1.2.3.4"}},
	}
	ctx := context.Background()

	first, err := f.DescribeInstance(ctx, "ins-1", "fsn1")
	require.NoError(t, err)
	assert.Equal(t, StatePending, first.State)

	second, err := f.DescribeInstance(ctx, "ins-1", "fsn1")
	require.NoError(t, err)
	assert.Equal(t, StateRunning, second.State)

	// the last entry repeats once exhausted
	third, err := f.DescribeInstance(ctx, "ins-1", "fsn1")
	require.NoError(t, err)
	assert.Equal(t, StateRunning, third.State)
	assert.Equal(t, 3, f.DescribeCalls)
}

func TestFakeRecordsTermination(t *testing.T) {
	f := NewFake()
	f.TerminateErr = errors.New("api down")

	err := f.TerminateInstances(context.Background(), []string{"ins-1"}, "fsn1")
	require.Error(t, err)
	require.Len(t, f.TerminatedIDs, 1)
	assert.Equal(t, []string{"ins-1"}, f.TerminatedIDs[0])
}
