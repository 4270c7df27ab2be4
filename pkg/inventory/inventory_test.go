package inventory

import (
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsforge/opsforge/pkg/stores"
)

func TestRenderGroupsHosts(t *testing.T) {
	hosts := []*stores.Host{
		{Address: "10.0.0.1", Username: "root", Port: 22, AuthMethod: stores.AuthMethodKey, PrivateKeyPath: "/root/.ssh/id_ed25519", GroupName: "web"},
		{Address: "10.0.0.2", Username: "ubuntu", Port: 2222, AuthMethod: stores.AuthMethodPassword, Password: "s3cret", GroupName: ""},
		{Address: "10.0.0.3", Username: "root", Port: 22, AuthMethod: stores.AuthMethodKey, PrivateKeyPath: "/root/.ssh/id_ed25519", GroupName: "web"},
	}

	content := Render(hosts)

	assert.Contains(t, content, "[web]")
	assert.Contains(t, content, "["+DefaultGroup+"]")
	assert.Contains(t, content, "10.0.0.1 ansible_user=root ansible_port=22 ansible_ssh_private_key_file=/root/.ssh/id_ed25519")
	assert.Contains(t, content, "10.0.0.2 ansible_user=ubuntu ansible_port=2222 ansible_ssh_pass=s3cret")
	assert.Contains(t, content, "StrictHostKeyChecking=no")

	// Group sections keep first-occurrence order.
	assert.Less(t, strings.Index(content, "[web]"), strings.Index(content, "["+DefaultGroup+"]"))
}

func TestWriteAndCleanup(t *testing.T) {
	hosts := []*stores.Host{
		{Address: "10.0.0.1", Username: "root", Port: 22, AuthMethod: stores.AuthMethodPassword, Password: "pw"},
	}

	path, cleanup, err := Write(t.TempDir(), hosts)
	require.NoError(t, err)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "10.0.0.1")

	cleanup()
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestWriteRefusesEmptyHostSet(t *testing.T) {
	_, _, err := Write(t.TempDir(), nil)
	assert.ErrorIs(t, err, ErrNoHosts)
}
