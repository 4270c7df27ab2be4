// Package cloud defines the provisioning collaborator contract consumed by
// the workflow orchestrator, together with a Hetzner Cloud implementation
// and an in-memory fake for tests.
package cloud

import (
	"context"
	"errors"
	"fmt"
)

// InstanceState is the provider-independent lifecycle vocabulary the
// orchestrator polls against.
type InstanceState string

const (
	StatePending        InstanceState = "PENDING"
	StateRunning        InstanceState = "RUNNING"
	StateStopped        InstanceState = "STOPPED"
	StateTerminated     InstanceState = "TERMINATED"
	StateCreationFailed InstanceState = "CREATION_FAILED"
)

// IsTerminal reports whether the state means the instance will never reach
// RUNNING.
func (s InstanceState) IsTerminal() bool {
	return s == StateTerminated || s == StateCreationFailed
}

// CreateParams is the filtered provisioning parameter subset passed to
// CreateInstance.
type CreateParams struct {
	Region                  string
	Zone                    string
	ImageID                 string
	InstanceType            string
	InstanceName            string
	Password                string
	InstanceChargeType      string
	SystemDiskSize          int
	SystemDiskType          string
	VpcID                   string
	SubnetID                string
	InternetAccessible      bool
	InternetMaxBandwidthOut int
	InstanceCount           int
	DryRun                  bool
}

// CreateResult is the outcome of a create call. An accepted request with an
// empty InstanceIDSet is treated as a failure by the orchestrator.
type CreateResult struct {
	InstanceIDSet []string
}

// InstanceDetails is a point-in-time description of one instance.
type InstanceDetails struct {
	InstanceID  string
	State       InstanceState
	PublicIPs   []string
	PrivateIPs  []string
}

// ErrorKind classifies provider errors.
type ErrorKind string

const (
	// ErrKindCredentials means credentials are absent or rejected.
	ErrKindCredentials ErrorKind = "credentials"

	// ErrKindInvalidParams means the provider rejected the request parameters.
	ErrKindInvalidParams ErrorKind = "invalid_params"

	// ErrKindUnavailable means a transient provider/API failure.
	ErrKindUnavailable ErrorKind = "unavailable"
)

// ProviderError wraps a provider failure with its classification.
type ProviderError struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("cloud %s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// IsCredentialsError reports whether err is a credentials failure.
func IsCredentialsError(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe) && pe.Kind == ErrKindCredentials
}

// Provisioner is the cloud control-plane contract.
type Provisioner interface {
	// CreateInstance creates exactly one instance batch from params and
	// returns the provider-assigned identifiers.
	CreateInstance(ctx context.Context, params CreateParams) (*CreateResult, error)

	// DescribeInstance returns the current state and addresses of an instance.
	DescribeInstance(ctx context.Context, instanceID, region string) (*InstanceDetails, error)

	// TerminateInstances releases the given instances. Best-effort; the
	// caller treats failures as log-only.
	TerminateInstances(ctx context.Context, instanceIDs []string, region string) error
}
