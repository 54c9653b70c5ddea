package agent

import (
	"context"

	"github.com/cuemby/vcp/pkg/agent/driver/hypervisor"
	"github.com/cuemby/vcp/pkg/types"
)

// fakeHypervisor records every call it receives so tests can assert on
// the arguments the handlers built from a request payload.
type fakeHypervisor struct {
	defineVM    *types.VM
	defineDisks []hypervisor.DiskAttachment
	stopVMID    string
	stopForce   bool
	restartVM   *types.VM
	migrateVM   string
	migrateAddr string
	attachVMID  string
	attachDisk  hypervisor.DiskAttachment
	detachVMID  string
	detachVol   string
	describeVM  string
	describeRet types.VMStatus
	snapVM      string
	snapVol     string
	snapID      string
	err         error
}

func (f *fakeHypervisor) DefineAndStart(ctx context.Context, vm *types.VM, disks []hypervisor.DiskAttachment) error {
	f.defineVM = vm
	f.defineDisks = disks
	return f.err
}

func (f *fakeHypervisor) Stop(ctx context.Context, vmID string, force bool) error {
	f.stopVMID = vmID
	f.stopForce = force
	return f.err
}

func (f *fakeHypervisor) Restart(ctx context.Context, vm *types.VM, disks []hypervisor.DiskAttachment) error {
	f.restartVM = vm
	return f.err
}

func (f *fakeHypervisor) Migrate(ctx context.Context, vmID, targetAddr string) error {
	f.migrateVM = vmID
	f.migrateAddr = targetAddr
	return f.err
}

func (f *fakeHypervisor) AttachDisk(ctx context.Context, vmID string, disk hypervisor.DiskAttachment) error {
	f.attachVMID = vmID
	f.attachDisk = disk
	return f.err
}

func (f *fakeHypervisor) DetachDisk(ctx context.Context, vmID, volumeID string) error {
	f.detachVMID = vmID
	f.detachVol = volumeID
	return f.err
}

func (f *fakeHypervisor) Describe(ctx context.Context, vmID string) (types.VMStatus, error) {
	f.describeVM = vmID
	if f.err != nil {
		return "", f.err
	}
	return f.describeRet, nil
}

func (f *fakeHypervisor) SnapshotLive(ctx context.Context, vmID, volumeID, snapshotID string) error {
	f.snapVM, f.snapVol, f.snapID = vmID, volumeID, snapshotID
	return f.err
}

func (f *fakeHypervisor) Close() error { return nil }

// fakeStorage records every call it receives.
type fakeStorage struct {
	createPool   *types.StoragePool
	createVol    *types.Volume
	createPath   string
	resizePool   *types.StoragePool
	resizeVol    *types.Volume
	resizeSizeGB float64
	cloneSource  *types.Volume
	cloneNewID   string
	clonePath    string
	deletePool   *types.StoragePool
	deleteVol    *types.Volume
	describePool *types.StoragePool
	describeVol  *types.Volume
	describeRet  bool
	snapPool     *types.StoragePool
	snapVol      *types.Volume
	snapID       string
	err          error
}

func (f *fakeStorage) CreateVolume(ctx context.Context, pool *types.StoragePool, spec *types.Volume) (string, error) {
	f.createPool, f.createVol = pool, spec
	if f.err != nil {
		return "", f.err
	}
	return f.createPath, nil
}

func (f *fakeStorage) ResizeVolume(ctx context.Context, pool *types.StoragePool, vol *types.Volume, newSizeGB float64) error {
	f.resizePool, f.resizeVol, f.resizeSizeGB = pool, vol, newSizeGB
	return f.err
}

func (f *fakeStorage) CloneVolume(ctx context.Context, pool *types.StoragePool, source *types.Volume, newVolumeID string) (string, error) {
	f.cloneSource, f.cloneNewID = source, newVolumeID
	if f.err != nil {
		return "", f.err
	}
	return f.clonePath, nil
}

func (f *fakeStorage) DeleteVolume(ctx context.Context, pool *types.StoragePool, vol *types.Volume) error {
	f.deletePool, f.deleteVol = pool, vol
	return f.err
}

func (f *fakeStorage) Describe(ctx context.Context, pool *types.StoragePool, vol *types.Volume) (bool, error) {
	f.describePool, f.describeVol = pool, vol
	if f.err != nil {
		return false, f.err
	}
	return f.describeRet, nil
}

func (f *fakeStorage) CreateSnapshotOffline(ctx context.Context, pool *types.StoragePool, vol *types.Volume, snapshotID string) error {
	f.snapPool, f.snapVol, f.snapID = pool, vol, snapshotID
	return f.err
}

func (f *fakeStorage) DeleteSnapshot(ctx context.Context, pool *types.StoragePool, vol *types.Volume, snapshotID string) error {
	f.snapPool, f.snapVol, f.snapID = pool, vol, snapshotID
	return f.err
}

func (f *fakeStorage) RestoreSnapshot(ctx context.Context, pool *types.StoragePool, vol *types.Volume, snapshotID string) error {
	f.snapPool, f.snapVol, f.snapID = pool, vol, snapshotID
	return f.err
}

// fakeNetwork records every call it receives.
type fakeNetwork struct {
	ensured   []*types.Network
	ensureRet string
	natted    []*types.Network
	torndown  []*types.Network
	err       error
}

func (f *fakeNetwork) Ensure(ctx context.Context, net *types.Network) (string, error) {
	f.ensured = append(f.ensured, net)
	if f.err != nil {
		return "", f.err
	}
	return f.ensureRet, nil
}

func (f *fakeNetwork) EnsureNAT(ctx context.Context, net *types.Network) error {
	f.natted = append(f.natted, net)
	return f.err
}

func (f *fakeNetwork) Teardown(ctx context.Context, net *types.Network) error {
	f.torndown = append(f.torndown, net)
	return f.err
}
