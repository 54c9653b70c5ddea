package hypervisor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/digitalocean/go-libvirt"
	"github.com/digitalocean/go-libvirt/socket/dialers"

	"github.com/cuemby/vcp/pkg/apperr"
	"github.com/cuemby/vcp/pkg/types"
)

// gracefulShutdownGrace is how long Restart waits for an ACPI shutdown
// to take effect before falling back to a forced destroy.
const gracefulShutdownGrace = 30 * time.Second

// LibvirtDriver talks to the local libvirtd over its UNIX socket.
type LibvirtDriver struct {
	conn *libvirt.Libvirt
}

// NewLibvirtDriver dials libvirtd at socketPath (empty uses libvirt's
// default /var/run/libvirt/libvirt-sock).
func NewLibvirtDriver(socketPath string) (*LibvirtDriver, error) {
	var opts []dialers.LocalOption
	if socketPath != "" {
		opts = append(opts, dialers.WithSocket(socketPath))
	}
	d := dialers.NewLocal(opts...)
	conn := libvirt.NewWithDialer(d)
	if err := conn.Connect(); err != nil {
		return nil, fmt.Errorf("connect to libvirtd: %w", err)
	}
	return &LibvirtDriver{conn: conn}, nil
}

func (l *LibvirtDriver) Close() error {
	return l.conn.Disconnect()
}

func (l *LibvirtDriver) lookupDomain(vmID string) (libvirt.Domain, error) {
	dom, err := l.conn.DomainLookupByName(vmID)
	if err != nil {
		return libvirt.Domain{}, apperr.Wrap(apperr.HypervisorError, apperr.KindDriver, err, "domain %s not found", vmID)
	}
	return dom, nil
}

// DefineAndStart is idempotent: if the domain is already defined it is
// redefined with the current spec (libvirt replaces in place), and
// DomainCreate on an already-running domain returns a benign error that
// this method treats as success.
func (l *LibvirtDriver) DefineAndStart(ctx context.Context, vm *types.VM, disks []DiskAttachment) error {
	domXML, err := buildDomainXML(vm, disks)
	if err != nil {
		return apperr.Wrap(apperr.HypervisorError, apperr.KindDriver, err, "build domain xml for vm %s", vm.ID)
	}

	dom, err := l.conn.DomainDefineXML(domXML)
	if err != nil {
		return apperr.Wrap(apperr.HypervisorError, apperr.KindDriver, err, "define domain for vm %s", vm.ID)
	}

	if err := l.conn.DomainCreate(dom); err != nil {
		state, _, stateErr := l.conn.DomainGetState(dom, 0)
		if stateErr == nil && state == domainStateRunning {
			return nil
		}
		return apperr.Wrap(apperr.HypervisorError, apperr.KindDriver, err, "start domain for vm %s", vm.ID)
	}
	return nil
}

func (l *LibvirtDriver) Stop(ctx context.Context, vmID string, force bool) error {
	dom, err := l.lookupDomain(vmID)
	if err != nil {
		return err
	}
	if force {
		if err := l.conn.DomainDestroy(dom); err != nil {
			return apperr.Wrap(apperr.HypervisorError, apperr.KindDriver, err, "destroy domain %s", vmID)
		}
		return nil
	}
	if err := l.conn.DomainShutdown(dom); err != nil {
		return apperr.Wrap(apperr.HypervisorError, apperr.KindDriver, err, "shutdown domain %s", vmID)
	}
	return l.waitForShutoff(dom, gracefulShutdownGrace)
}

func (l *LibvirtDriver) waitForShutoff(dom libvirt.Domain, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		state, _, err := l.conn.DomainGetState(dom, 0)
		if err == nil && (state == domainStateShutoff || state == domainStateShutdown) {
			return nil
		}
		time.Sleep(time.Second)
	}
	// Grace period elapsed without an ACPI shutdown; fall back to a
	// forced destroy rather than leaving the caller blocked.
	return l.conn.DomainDestroy(dom)
}

func (l *LibvirtDriver) Restart(ctx context.Context, vm *types.VM, disks []DiskAttachment) error {
	if err := l.Stop(ctx, vm.ID, false); err != nil {
		return err
	}
	return l.DefineAndStart(ctx, vm, disks)
}

// Migrate live-migrates the domain to the libvirt daemon on the host at
// targetAddr, dialed as qemu+tls://<targetAddr>/system.
func (l *LibvirtDriver) Migrate(ctx context.Context, vmID, targetAddr string) error {
	dom, err := l.lookupDomain(vmID)
	if err != nil {
		return err
	}
	destURI := fmt.Sprintf("qemu+tls://%s/system", targetAddr)
	_, err = l.conn.DomainMigrate(dom, destURI, 0, "", 0)
	if err != nil {
		return apperr.Wrap(apperr.HypervisorError, apperr.KindDriver, err, "migrate domain %s to %s", vmID, targetAddr)
	}
	return nil
}

func (l *LibvirtDriver) AttachDisk(ctx context.Context, vmID string, disk DiskAttachment) error {
	dom, err := l.lookupDomain(vmID)
	if err != nil {
		return err
	}
	xmlDesc, err := l.conn.DomainGetXMLDesc(dom, 0)
	if err != nil {
		return apperr.Wrap(apperr.HypervisorError, apperr.KindDriver, err, "describe domain %s", vmID)
	}
	index := attachedDiskCount(xmlDesc)
	deviceXML := diskAttachXML(index, disk)
	if err := l.conn.DomainAttachDeviceFlags(dom, deviceXML, libvirt.DomainDeviceModifyLive|libvirt.DomainDeviceModifyConfig); err != nil {
		return apperr.Wrap(apperr.HypervisorError, apperr.KindDriver, err, "attach disk %s to vm %s", disk.VolumeID, vmID)
	}
	return nil
}

func (l *LibvirtDriver) DetachDisk(ctx context.Context, vmID, volumeID string) error {
	dom, err := l.lookupDomain(vmID)
	if err != nil {
		return err
	}
	xmlDesc, err := l.conn.DomainGetXMLDesc(dom, 0)
	if err != nil {
		return apperr.Wrap(apperr.HypervisorError, apperr.KindDriver, err, "describe domain %s", vmID)
	}
	fragment, ok := findDiskBySerial(xmlDesc, volumeID)
	if !ok {
		return apperr.New(apperr.VolumeNotFound, apperr.KindValidation, "volume %s is not attached to vm %s", volumeID, vmID)
	}
	if err := l.conn.DomainDetachDeviceFlags(dom, fragment, libvirt.DomainDeviceModifyLive|libvirt.DomainDeviceModifyConfig); err != nil {
		return apperr.Wrap(apperr.HypervisorError, apperr.KindDriver, err, "detach volume %s from vm %s", volumeID, vmID)
	}
	return nil
}

func (l *LibvirtDriver) Describe(ctx context.Context, vmID string) (types.VMStatus, error) {
	dom, err := l.conn.DomainLookupByName(vmID)
	if err != nil {
		// A domain libvirt no longer knows about is stopped from the
		// controller's point of view, not an error: it was likely
		// deleted by a concurrent operation this agent never saw.
		return types.VMStatusStopped, nil
	}
	state, _, err := l.conn.DomainGetState(dom, 0)
	if err != nil {
		return "", apperr.Wrap(apperr.HypervisorError, apperr.KindDriver, err, "get state for domain %s", vmID)
	}
	return domainStatus(state), nil
}

// SnapshotLive takes an external disk snapshot while the domain keeps
// running, via libvirt's DomainSnapshotCreateXML with the disk-only,
// no-metadata flags so the base image stays the active overlay target.
func (l *LibvirtDriver) SnapshotLive(ctx context.Context, vmID, volumeID, snapshotID string) error {
	dom, err := l.lookupDomain(vmID)
	if err != nil {
		return err
	}
	snapXML := fmt.Sprintf(`<domainsnapshot><name>%s</name></domainsnapshot>`, snapshotID)
	const diskOnly = 16  // VIR_DOMAIN_SNAPSHOT_CREATE_DISK_ONLY
	const noMetadata = 4 // VIR_DOMAIN_SNAPSHOT_CREATE_NO_METADATA
	if _, err := l.conn.DomainSnapshotCreateXML(dom, snapXML, diskOnly|noMetadata); err != nil {
		return apperr.Wrap(apperr.HypervisorError, apperr.KindDriver, err, "live snapshot volume %s on vm %s", volumeID, vmID)
	}
	return nil
}

// attachedDiskCount counts <disk> elements already in a domain's XML so
// a hot-attach picks the next free virtio target letter.
func attachedDiskCount(domainXML string) int {
	count := 0
	for i := 0; ; i++ {
		marker := diskTargetName(i)
		if !containsTarget(domainXML, marker) {
			break
		}
		count++
	}
	return count
}

func containsTarget(domainXML, target string) bool {
	needle := fmt.Sprintf("dev='%s'", target)
	needleDQ := fmt.Sprintf(`dev="%s"`, target)
	return strings.Contains(domainXML, needle) || strings.Contains(domainXML, needleDQ)
}
