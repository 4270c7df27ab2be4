package cloud

import (
	"context"
	"fmt"
	"sync"
)

// Fake is an in-memory Provisioner for tests. Instance state transitions are
// scripted through StateSequence; Describe consumes one entry per call and
// repeats the last one once exhausted.
type Fake struct {
	mu sync.Mutex

	// NextInstanceIDs is returned by the next CreateInstance call.
	NextInstanceIDs []string

	// CreateErr, DescribeErr, TerminateErr force the corresponding call
	// to fail when non-nil.
	CreateErr    error
	DescribeErr  error
	TerminateErr error

	// StateSequence scripts DescribeInstance responses.
	StateSequence []InstanceDetails

	// Recorded calls.
	CreateCalls    []CreateParams
	DescribeCalls  int
	TerminatedIDs  [][]string
	describeCursor int
}

// NewFake returns a fake that creates "ins-1" and immediately reports it
// RUNNING at 1.2.3.4.
func NewFake() *Fake {
	return &Fake{
		NextInstanceIDs: []string{"ins-1"},
		StateSequence: []InstanceDetails{
			{InstanceID: "ins-1", State: StateRunning, PublicIPs: []string{"1.2.3.4"}},
		},
	}
}

func (f *Fake) CreateInstance(_ context.Context, params CreateParams) (*CreateResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.CreateCalls = append(f.CreateCalls, params)
	if f.CreateErr != nil {
		return nil, f.CreateErr
	}
	return &CreateResult{InstanceIDSet: append([]string(nil), f.NextInstanceIDs...)}, nil
}

func (f *Fake) DescribeInstance(_ context.Context, instanceID, _ string) (*InstanceDetails, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.DescribeCalls++
	if f.DescribeErr != nil {
		return nil, f.DescribeErr
	}
	if len(f.StateSequence) == 0 {
		return nil, fmt.Errorf("fake: no scripted state for instance %s", instanceID)
	}

	details := f.StateSequence[f.describeCursor]
	if f.describeCursor < len(f.StateSequence)-1 {
		f.describeCursor++
	}
	details.InstanceID = instanceID
	return &details, nil
}

func (f *Fake) TerminateInstances(_ context.Context, instanceIDs []string, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.TerminatedIDs = append(f.TerminatedIDs, append([]string(nil), instanceIDs...))
	return f.TerminateErr
}
