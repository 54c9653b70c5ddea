// Package network implements the node agent's layer-2 materialization:
// ensuring a Linux bridge (optionally VLAN-tagged) exists for a
// controller-defined Network before a VM's NIC can be wired to it.
package network

import (
	"context"

	"github.com/cuemby/vcp/pkg/types"
)

// Driver is the node agent's contract for bringing a Network's bridge
// into existence on this host. Ensure is idempotent: calling it again
// for a network whose bridge already exists is a no-op success, since
// every VM NIC attach on that network re-invokes it.
type Driver interface {
	// Ensure brings net's bridge up: a plain bridge when net.VLANID is
	// nil, or a VLAN sub-interface of uplink plus a per-VLAN bridge
	// when it is set. Returns the bridge name the hypervisor driver
	// should reference in the domain's <interface> element.
	Ensure(ctx context.Context, net *types.Network) (bridgeName string, err error)

	// EnsureNAT installs a masquerade rule so VMs on net's CIDR can
	// reach the outside world through this node, used for networks
	// with a gateway configured for outbound access.
	EnsureNAT(ctx context.Context, net *types.Network) error

	// Teardown removes net's bridge (and VLAN sub-interface, if any)
	// when the last VM leaves it. Safe to call on a bridge that is
	// already gone.
	Teardown(ctx context.Context, net *types.Network) error
}
