// Package hypervisor defines the node agent's view of the local
// hypervisor and a libvirt-backed implementation.
package hypervisor

import (
	"context"

	"github.com/cuemby/vcp/pkg/types"
)

// DiskAttachment is one virtual disk wired into a domain definition,
// resolved from a volume's on-disk path by the storage driver before
// the hypervisor driver is invoked.
type DiskAttachment struct {
	VolumeID string `json:"volume_id"`
	Path     string `json:"path"`
	Format   string `json:"format"` // qcow2, raw
}

// Driver is the node agent's contract with the local hypervisor. Every
// method is idempotent where the operation allows it (Define/Start on an
// already-running domain is a no-op success), since a retried dispatch
// after a transport failure must not double-apply.
type Driver interface {
	// DefineAndStart materializes vm's domain XML (NICs, disks, vcpu,
	// memory) and starts it. Bridges referenced by vm's NICs are
	// ensured first via the network driver.
	DefineAndStart(ctx context.Context, vm *types.VM, disks []DiskAttachment) error

	// Stop shuts the domain down; forced requests a hard destroy
	// instead of ACPI shutdown.
	Stop(ctx context.Context, vmID string, force bool) error

	// Restart is a graceful shutdown (falling back to forced after a
	// grace period) followed by start, without undefining the domain.
	Restart(ctx context.Context, vm *types.VM, disks []DiskAttachment) error

	// Migrate live-migrates vmID to the node at targetAddr (a host
	// address, not a libvirt URI), keeping the domain running throughout.
	Migrate(ctx context.Context, vmID, targetAddr string) error

	// AttachDisk/DetachDisk hot-(un)plug a disk into a running domain.
	AttachDisk(ctx context.Context, vmID string, disk DiskAttachment) error
	DetachDisk(ctx context.Context, vmID, volumeID string) error

	// Describe reports the domain's live status, for the reconciliation
	// sweep to resolve a stuck intent state after a lost response.
	Describe(ctx context.Context, vmID string) (status types.VMStatus, err error)

	// SnapshotLive captures volumeID's current contents through the
	// domain's block-commit/external-snapshot path while vmID keeps
	// running.
	SnapshotLive(ctx context.Context, vmID, volumeID, snapshotID string) error

	// Close releases the libvirt connection.
	Close() error
}
