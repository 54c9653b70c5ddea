package network

import (
	"context"
	"fmt"
	"net"
	"strings"

	"github.com/coreos/go-iptables/iptables"
	"github.com/vishvananda/netlink"

	"github.com/cuemby/vcp/pkg/apperr"
	"github.com/cuemby/vcp/pkg/types"
)

const defaultUplink = "eth0"

// LinkDriver implements Driver with vishvananda/netlink for interface
// and bridge management and coreos/go-iptables for NAT.
type LinkDriver struct {
	// Uplink is the physical interface VLAN sub-interfaces are created
	// on top of. Defaults to defaultUplink when empty.
	Uplink string
}

func (d *LinkDriver) uplink() string {
	if d.Uplink != "" {
		return d.Uplink
	}
	return defaultUplink
}

func bridgeNameFor(net *types.Network) string {
	if net.VLANID != nil {
		return fmt.Sprintf("br-vlan%d", *net.VLANID)
	}
	return fmt.Sprintf("br-%s", net.ID[:min(8, len(net.ID))])
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func (d *LinkDriver) Ensure(ctx context.Context, net *types.Network) (string, error) {
	brName := bridgeNameFor(net)

	if net.VLANID != nil {
		if err := d.ensureVLANSubinterface(*net.VLANID); err != nil {
			return "", err
		}
	}

	if err := d.ensureBridge(brName, net.MTU); err != nil {
		return "", err
	}

	if net.VLANID != nil {
		vlanIface := vlanIfaceName(*net.VLANID)
		if err := d.attachToBridge(vlanIface, brName); err != nil {
			return "", err
		}
	}

	if net.Gateway != "" {
		if err := d.ensureBridgeAddress(brName, net.Gateway, net.CIDR); err != nil {
			return "", err
		}
	}

	return brName, nil
}

func vlanIfaceName(vlanID int) string {
	return fmt.Sprintf("vlan%d", vlanID)
}

func (d *LinkDriver) ensureVLANSubinterface(vlanID int) error {
	name := vlanIfaceName(vlanID)
	if _, err := netlink.LinkByName(name); err == nil {
		return nil
	}

	parent, err := netlink.LinkByName(d.uplink())
	if err != nil {
		return apperr.Wrap(apperr.NetworkError, apperr.KindDriver, err, "look up uplink %s", d.uplink())
	}

	vlan := &netlink.Vlan{
		LinkAttrs: netlink.LinkAttrs{Name: name, ParentIndex: parent.Attrs().Index},
		VlanId:    vlanID,
	}
	if err := netlink.LinkAdd(vlan); err != nil {
		return apperr.Wrap(apperr.NetworkError, apperr.KindDriver, err, "create vlan interface %s", name)
	}
	link, err := netlink.LinkByName(name)
	if err != nil {
		return apperr.Wrap(apperr.NetworkError, apperr.KindDriver, err, "look up vlan interface %s", name)
	}
	if err := netlink.LinkSetUp(link); err != nil {
		return apperr.Wrap(apperr.NetworkError, apperr.KindDriver, err, "bring up vlan interface %s", name)
	}
	return nil
}

func (d *LinkDriver) ensureBridge(name string, mtu int) error {
	if _, err := netlink.LinkByName(name); err == nil {
		return nil
	}

	attrs := netlink.LinkAttrs{Name: name}
	if mtu > 0 {
		attrs.MTU = mtu
	}
	br := &netlink.Bridge{LinkAttrs: attrs}
	if err := netlink.LinkAdd(br); err != nil {
		return apperr.Wrap(apperr.NetworkError, apperr.KindDriver, err, "create bridge %s", name)
	}
	link, err := netlink.LinkByName(name)
	if err != nil {
		return apperr.Wrap(apperr.NetworkError, apperr.KindDriver, err, "look up bridge %s", name)
	}
	if err := netlink.LinkSetUp(link); err != nil {
		return apperr.Wrap(apperr.NetworkError, apperr.KindDriver, err, "bring up bridge %s", name)
	}
	return nil
}

func (d *LinkDriver) attachToBridge(ifaceName, bridgeName string) error {
	iface, err := netlink.LinkByName(ifaceName)
	if err != nil {
		return apperr.Wrap(apperr.NetworkError, apperr.KindDriver, err, "look up interface %s", ifaceName)
	}
	if iface.Attrs().MasterIndex != 0 {
		return nil // already enslaved
	}
	br, err := netlink.LinkByName(bridgeName)
	if err != nil {
		return apperr.Wrap(apperr.NetworkError, apperr.KindDriver, err, "look up bridge %s", bridgeName)
	}
	if err := netlink.LinkSetMaster(iface, br); err != nil {
		return apperr.Wrap(apperr.NetworkError, apperr.KindDriver, err, "attach %s to bridge %s", ifaceName, bridgeName)
	}
	return nil
}

func (d *LinkDriver) ensureBridgeAddress(bridgeName, gateway, cidr string) error {
	_, ipnet, err := net.ParseCIDR(cidr)
	if err != nil {
		return apperr.Wrap(apperr.InvalidRequest, apperr.KindValidation, err, "parse cidr %s", cidr)
	}
	addr := &netlink.Addr{IPNet: &net.IPNet{IP: net.ParseIP(gateway), Mask: ipnet.Mask}}

	link, err := netlink.LinkByName(bridgeName)
	if err != nil {
		return apperr.Wrap(apperr.NetworkError, apperr.KindDriver, err, "look up bridge %s", bridgeName)
	}
	existing, err := netlink.AddrList(link, netlink.FAMILY_V4)
	if err == nil {
		for _, a := range existing {
			if a.IP.Equal(addr.IP) {
				return nil
			}
		}
	}
	if err := netlink.AddrAdd(link, addr); err != nil && !strings.Contains(err.Error(), "exists") {
		return apperr.Wrap(apperr.NetworkError, apperr.KindDriver, err, "assign gateway %s to bridge %s", gateway, bridgeName)
	}
	return nil
}

func (d *LinkDriver) EnsureNAT(ctx context.Context, net *types.Network) error {
	if net.Gateway == "" {
		return nil
	}
	brName := bridgeNameFor(net)
	ipt, err := iptables.New()
	if err != nil {
		return apperr.Wrap(apperr.NetworkError, apperr.KindDriver, err, "open iptables")
	}
	if err := ipt.AppendUnique("nat", "POSTROUTING", "-s", net.CIDR, "!", "-o", brName, "-j", "MASQUERADE"); err != nil {
		return apperr.Wrap(apperr.NetworkError, apperr.KindDriver, err, "install masquerade rule for %s", net.CIDR)
	}
	return nil
}

func (d *LinkDriver) Teardown(ctx context.Context, net *types.Network) error {
	brName := bridgeNameFor(net)
	link, err := netlink.LinkByName(brName)
	if err != nil {
		return nil // already gone
	}
	if err := netlink.LinkDel(link); err != nil {
		return apperr.Wrap(apperr.NetworkError, apperr.KindDriver, err, "delete bridge %s", brName)
	}
	if net.VLANID != nil {
		if vlanLink, err := netlink.LinkByName(vlanIfaceName(*net.VLANID)); err == nil {
			_ = netlink.LinkDel(vlanLink)
		}
	}
	return nil
}

var _ Driver = (*LinkDriver)(nil)
