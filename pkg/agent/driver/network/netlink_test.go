package network

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cuemby/vcp/pkg/types"
)

func TestBridgeNameForVLAN(t *testing.T) {
	vlan := 42
	net := &types.Network{ID: "net-12345678", VLANID: &vlan}
	require.Equal(t, "br-vlan42", bridgeNameFor(net))
}

func TestBridgeNameForDefaultNetwork(t *testing.T) {
	net := &types.Network{ID: "net-12345678"}
	require.Equal(t, "br-net-1234", bridgeNameFor(net))
}

func TestVlanIfaceName(t *testing.T) {
	require.Equal(t, "vlan7", vlanIfaceName(7))
}
