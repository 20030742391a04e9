package netplan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllocateSequential(t *testing.T) {
	assigns, err := Allocate([]string{"k3s-1", "k3s-2", "web"})
	require.NoError(t, err)
	require.Len(t, assigns, 3)

	assert.Equal(t, "10.0.2.100", assigns[0].MgmtIP4)
	assert.Equal(t, "10.11.0.10", assigns[0].LANIP4)
	assert.Equal(t, "10.0.2.102", assigns[2].MgmtIP4)
	assert.Equal(t, "10.11.0.12", assigns[2].LANIP4)
}

func TestAllocateRejectsTooManyVMs(t *testing.T) {
	names := make([]string, 200)
	for i := range names {
		names[i] = "vm"
	}
	_, err := Allocate(names)
	assert.Error(t, err)
}

func TestConfigIncludesLANInterfaceWhenPresent(t *testing.T) {
	cfg := Config("52:54:00:00:00:01", "10.0.2.100", &LANInterface{MAC: "52:54:00:00:01:01", IP4: "10.11.0.10"})
	assert.Contains(t, cfg, "mgmt0")
	assert.Contains(t, cfg, "lan0")
	assert.Contains(t, cfg, "10.11.0.10/24")
}

func TestConfigOmitsLANInterfaceWhenAbsent(t *testing.T) {
	cfg := Config("52:54:00:00:00:01", "10.0.2.100", nil)
	assert.NotContains(t, cfg, "lan0")
}

func TestHostsFileAddsK3sServerAlias(t *testing.T) {
	assigns, err := Allocate([]string{"k3s-1", "web"})
	require.NoError(t, err)

	hosts := HostsFile(assigns)
	assert.Contains(t, hosts, "k3s-server.intar")
	assert.Contains(t, hosts, "web.intar")
}
