package cloud

import (
	"context"
	"fmt"
	"strconv"

	"github.com/hetznercloud/hcloud-go/v2/hcloud"
	"github.com/rs/zerolog/log"
)

// HCloudProvisioner implements Provisioner on the Hetzner Cloud API.
// The generic parameter vocabulary maps as: Zone -> location,
// InstanceType -> server type, ImageID -> image name or ID. Region is
// carried for interface compatibility; Hetzner scopes by location only.
type HCloudProvisioner struct {
	client *hcloud.Client
}

// NewHCloudProvisioner creates a provisioner with the given API token.
func NewHCloudProvisioner(token string) (*HCloudProvisioner, error) {
	if token == "" {
		return nil, &ProviderError{
			Kind: ErrKindCredentials,
			Op:   "init",
			Err:  fmt.Errorf("API token not configured"),
		}
	}
	return &HCloudProvisioner{
		client: hcloud.NewClient(hcloud.WithToken(token)),
	}, nil
}

// CreateInstance creates one server from the filtered parameter subset.
func (p *HCloudProvisioner) CreateInstance(ctx context.Context, params CreateParams) (*CreateResult, error) {
	serverType, _, err := p.client.ServerType.Get(ctx, params.InstanceType)
	if err != nil {
		return nil, p.classify("create", err)
	}
	if serverType == nil {
		return nil, &ProviderError{Kind: ErrKindInvalidParams, Op: "create", Err: fmt.Errorf("server type not found: %s", params.InstanceType)}
	}

	image, _, err := p.client.Image.Get(ctx, params.ImageID)
	if err != nil {
		return nil, p.classify("create", err)
	}
	if image == nil {
		return nil, &ProviderError{Kind: ErrKindInvalidParams, Op: "create", Err: fmt.Errorf("image not found: %s", params.ImageID)}
	}

	location, _, err := p.client.Location.Get(ctx, params.Zone)
	if err != nil {
		return nil, p.classify("create", err)
	}
	if location == nil {
		return nil, &ProviderError{Kind: ErrKindInvalidParams, Op: "create", Err: fmt.Errorf("location not found: %s", params.Zone)}
	}

	opts := hcloud.ServerCreateOpts{
		Name:       params.InstanceName,
		ServerType: serverType,
		Image:      image,
		Location:   location,
	}

	// Hetzner has no create-time password parameter; seed the root
	// credential through cloud-init so the orchestrator's SSH probe can
	// authenticate against it.
	if params.Password != "" {
		opts.UserData = fmt.Sprintf(
			"#cloud-config\nchpasswd:\n  expire: false\n  users:\n    - name: root\n      password: %q\n      type: text\nssh_pwauth: true\n",
			params.Password,
		)
	}

	if params.DryRun {
		// The API has no dry-run flag; validation above is all we can offer.
		return &CreateResult{}, nil
	}

	result, _, err := p.client.Server.Create(ctx, opts)
	if err != nil {
		return nil, p.classify("create", err)
	}

	log.Info().Int64("server_id", result.Server.ID).Str("name", params.InstanceName).Msg("instance created")
	return &CreateResult{
		InstanceIDSet: []string{strconv.FormatInt(result.Server.ID, 10)},
	}, nil
}

// DescribeInstance returns the current state and addresses of a server.
func (p *HCloudProvisioner) DescribeInstance(ctx context.Context, instanceID, _ string) (*InstanceDetails, error) {
	id, err := strconv.ParseInt(instanceID, 10, 64)
	if err != nil {
		return nil, &ProviderError{Kind: ErrKindInvalidParams, Op: "describe", Err: fmt.Errorf("malformed instance id %q: %w", instanceID, err)}
	}

	server, _, err := p.client.Server.GetByID(ctx, id)
	if err != nil {
		return nil, p.classify("describe", err)
	}
	if server == nil {
		// A deleted server simply stops existing.
		return &InstanceDetails{InstanceID: instanceID, State: StateTerminated}, nil
	}

	details := &InstanceDetails{
		InstanceID: instanceID,
		State:      mapServerStatus(server.Status),
	}
	if server.PublicNet.IPv4.IP != nil {
		details.PublicIPs = append(details.PublicIPs, server.PublicNet.IPv4.IP.String())
	}
	for _, privNet := range server.PrivateNet {
		if privNet.IP != nil {
			details.PrivateIPs = append(details.PrivateIPs, privNet.IP.String())
		}
	}
	return details, nil
}

// TerminateInstances deletes the given servers.
func (p *HCloudProvisioner) TerminateInstances(ctx context.Context, instanceIDs []string, _ string) error {
	for _, instanceID := range instanceIDs {
		id, err := strconv.ParseInt(instanceID, 10, 64)
		if err != nil {
			return &ProviderError{Kind: ErrKindInvalidParams, Op: "terminate", Err: fmt.Errorf("malformed instance id %q: %w", instanceID, err)}
		}
		if _, _, err := p.client.Server.DeleteWithResult(ctx, &hcloud.Server{ID: id}); err != nil {
			return p.classify("terminate", err)
		}
		log.Info().Str("instance_id", instanceID).Msg("instance terminated")
	}
	return nil
}

func (p *HCloudProvisioner) classify(op string, err error) error {
	switch {
	case hcloud.IsError(err, hcloud.ErrorCodeUnauthorized):
		return &ProviderError{Kind: ErrKindCredentials, Op: op, Err: err}
	case hcloud.IsError(err, hcloud.ErrorCodeInvalidInput):
		return &ProviderError{Kind: ErrKindInvalidParams, Op: op, Err: err}
	default:
		return &ProviderError{Kind: ErrKindUnavailable, Op: op, Err: err}
	}
}

func mapServerStatus(status hcloud.ServerStatus) InstanceState {
	switch status {
	case hcloud.ServerStatusRunning:
		return StateRunning
	case hcloud.ServerStatusInitializing, hcloud.ServerStatusStarting:
		return StatePending
	case hcloud.ServerStatusOff, hcloud.ServerStatusStopping:
		return StateStopped
	case hcloud.ServerStatusDeleting:
		return StateTerminated
	default:
		return StatePending
	}
}
