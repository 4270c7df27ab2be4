// Package inventory builds the ephemeral grouped host-definition files
// consumed by the automation interpreter. Inventories are write-once, hold
// secret material, and must be removed by the caller once the execution that
// needed them has finished.
package inventory

import (
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/opsforge/opsforge/pkg/stores"
)

// DefaultGroup is used for hosts without an explicit group name.
const DefaultGroup = "managed_hosts"

// sshCommonArgs disables host key prompts and enables connection reuse for
// interpreter runs against freshly provisioned machines.
const sshCommonArgs = "-o StrictHostKeyChecking=no -o ControlMaster=auto -o ControlPersist=60s"

// ErrNoHosts is returned when an inventory is requested for an empty host set.
var ErrNoHosts = fmt.Errorf("inventory: no target hosts")

// Write renders the hosts into a grouped INI inventory in dir (os.TempDir()
// when empty) and returns the file path along with a cleanup function that
// removes it. The file is mode 0600 because it may embed passwords; its
// contents are never logged.
func Write(dir string, hosts []*stores.Host) (string, func(), error) {
	if len(hosts) == 0 {
		return "", nil, ErrNoHosts
	}

	content := Render(hosts)

	file, err := os.CreateTemp(dir, "opsforge_inventory_*")
	if err != nil {
		return "", nil, fmt.Errorf("inventory: creating temp file: %w", err)
	}
	path := file.Name()

	if err := file.Chmod(0o600); err != nil {
		_ = file.Close()
		_ = os.Remove(path)
		return "", nil, fmt.Errorf("inventory: restricting permissions: %w", err)
	}
	if _, err := file.WriteString(content); err != nil {
		_ = file.Close()
		_ = os.Remove(path)
		return "", nil, fmt.Errorf("inventory: writing file: %w", err)
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(path)
		return "", nil, fmt.Errorf("inventory: closing file: %w", err)
	}

	cleanup := func() {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			log.Warn().Err(err).Str("path", path).Msg("failed to remove inventory file")
		}
	}

	log.Debug().Str("path", path).Int("hosts", len(hosts)).Msg("inventory written")
	return path, cleanup, nil
}

// Render produces the inventory text for the given hosts, grouped by
// group_name. Group order follows the first occurrence of each group in the
// input; host order within a group is preserved.
func Render(hosts []*stores.Host) string {
	groups := map[string][]*stores.Host{}
	order := []string{}

	for _, host := range hosts {
		group := host.GroupName
		if group == "" {
			group = DefaultGroup
		}
		if _, seen := groups[group]; !seen {
			order = append(order, group)
		}
		groups[group] = append(groups[group], host)
	}

	var b strings.Builder
	for _, group := range order {
		fmt.Fprintf(&b, "[%s]\n", group)
		for _, host := range groups[group] {
			b.WriteString(hostLine(host))
			b.WriteByte('\n')
		}
		b.WriteByte('\n')
	}
	return b.String()
}

func hostLine(host *stores.Host) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s ansible_user=%s ansible_port=%d ", host.Address, host.Username, host.Port)

	switch host.AuthMethod {
	case stores.AuthMethodKey:
		keyPath := host.PrivateKeyPath
		if keyPath == "" {
			keyPath = os.ExpandEnv("$HOME/.ssh/id_ed25519")
		}
		fmt.Fprintf(&b, "ansible_ssh_private_key_file=%s ", keyPath)
	case stores.AuthMethodPassword:
		if host.Password != "" {
			fmt.Fprintf(&b, "ansible_ssh_pass=%s ", host.Password)
		}
	}

	fmt.Fprintf(&b, "ansible_ssh_common_args='%s'", sshCommonArgs)
	return b.String()
}
