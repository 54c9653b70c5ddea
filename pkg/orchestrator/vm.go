package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/cuemby/vcp/pkg/apperr"
	"github.com/cuemby/vcp/pkg/events"
	"github.com/cuemby/vcp/pkg/types"
)

// CreateVM inserts a stopped VM row. If spec.NodeID is empty the
// scheduler picks a placement node. Every NIC without an explicit IP is
// allocated one from its network's pool in the same call, and every
// referenced disk is marked in_use. No agent call happens here: the
// domain is only defined on the node when the VM is first started.
func (s *Service) CreateVM(ctx context.Context, userID string, spec *types.VM) (*types.VM, error) {
	if spec.NodeID == "" {
		node, err := s.scheduler.SelectNode(spec)
		if err != nil {
			s.audit(userID, "vm.create", "vm", "", err.Error(), false)
			return nil, apperr.Wrap(apperr.Internal, apperr.KindInfra, err, "select placement node")
		}
		spec.NodeID = node.ID
	}

	now := time.Now()
	spec.ID = uuid.NewString()
	spec.Status = types.VMStatusStopped
	spec.CreatedAt = now
	spec.UpdatedAt = now

	for _, vol := range s.volumesFor(spec.DiskIDs) {
		if vol.Status != types.VolumeStatusAvailable {
			s.audit(userID, "vm.create", "vm", spec.ID, fmt.Sprintf("volume %s not available", vol.ID), false)
			return nil, apperr.Precondition("volume %s is not available", vol.ID)
		}
	}

	var allocated []*types.IPAllocation
	for _, nic := range spec.NICs {
		network, err := s.manager.GetNetwork(nic.NetworkID)
		if err != nil {
			s.rollbackAllocations(allocated)
			s.audit(userID, "vm.create", "vm", spec.ID, err.Error(), false)
			return nil, apperr.NotFound(apperr.NetworkNotFound, "network %s not found", nic.NetworkID)
		}
		nic.Bridge = bridgeNameForNetwork(network)

		if nic.IP != "" {
			continue
		}
		alloc, err := s.ipam.Allocate(nic.NetworkID)
		if err != nil {
			s.rollbackAllocations(allocated)
			s.audit(userID, "vm.create", "vm", spec.ID, err.Error(), false)
			return nil, apperr.Wrap(apperr.IPExhausted, apperr.KindPrecondition, err, "allocate IP on network %s", nic.NetworkID)
		}
		nic.IP = alloc.IPAddress
		nic.MAC = alloc.MAC
		allocated = append(allocated, alloc)
	}

	if err := s.manager.CreateVM(spec); err != nil {
		s.rollbackAllocations(allocated)
		s.audit(userID, "vm.create", "vm", spec.ID, err.Error(), false)
		return nil, err
	}

	for _, alloc := range allocated {
		if err := s.ipam.Associate(alloc.ID, spec.ID); err != nil {
			s.logger.Error().Err(err).Str("vm_id", spec.ID).Msg("failed to associate IP allocation with new VM")
		}
	}

	for _, vol := range s.volumesFor(spec.DiskIDs) {
		vol.Status = types.VolumeStatusInUse
		vol.VMID = spec.ID
		vol.UpdatedAt = time.Now()
		if err := s.manager.UpdateVolume(vol); err != nil {
			s.logger.Error().Err(err).Str("volume_id", vol.ID).Msg("failed to mark volume in_use for new VM")
		}
	}

	s.audit(userID, "vm.create", "vm", spec.ID, "", true)
	s.publish(events.EventVMCreated, fmt.Sprintf("VM %s created", spec.Name), map[string]string{"vm_id": spec.ID})
	return spec, nil
}

func (s *Service) volumesFor(ids []string) []*types.Volume {
	vols := make([]*types.Volume, 0, len(ids))
	for _, id := range ids {
		if vol, err := s.manager.GetVolume(id); err == nil {
			vols = append(vols, vol)
		}
	}
	return vols
}

// diskFormat maps a volume's type to the image format the hypervisor
// driver's domain XML needs; every block-device-backed type (lvm, ceph,
// iscsi) is attached as a raw device.
func diskFormat(vol *types.Volume) string {
	if vol.Type == types.VolumeQCOW2 {
		return "qcow2"
	}
	return "raw"
}

// diskAttachments resolves a VM's disk ids to the path/format pairs the
// agent's hypervisor driver needs to build domain XML, so the agent
// never has to look up a Volume row the controller already holds.
func diskAttachments(vols []*types.Volume) []map[string]string {
	disks := make([]map[string]string, 0, len(vols))
	for _, vol := range vols {
		disks = append(disks, map[string]string{
			"volume_id": vol.ID,
			"path":      vol.Path,
			"format":    diskFormat(vol),
		})
	}
	return disks
}

// nicNetworks resolves each NIC's network row so the agent's network
// driver can materialize the bridge (VLAN, CIDR, gateway, MTU) without a
// lookup of its own; a NIC whose network has since been deleted is
// skipped rather than failing the whole start, since the stale NIC will
// surface as a hypervisor-side attach error instead.
func (s *Service) nicNetworks(nics []*types.NICSpec) map[string]*types.Network {
	networks := make(map[string]*types.Network, len(nics))
	for _, nic := range nics {
		if _, ok := networks[nic.NetworkID]; ok {
			continue
		}
		if network, err := s.manager.GetNetwork(nic.NetworkID); err == nil {
			networks[nic.NetworkID] = network
		}
	}
	return networks
}

// rollbackAllocations returns IPs allocated earlier in a CreateVM call
// that failed partway through directly to available: these rows were
// never associated with a VM, so ipam.Release (which matches on vm_id)
// cannot reach them.
func (s *Service) rollbackAllocations(allocs []*types.IPAllocation) {
	for _, alloc := range allocs {
		alloc.Status = types.IPStatusAvailable
		alloc.AllocatedAt = nil
		if err := s.manager.UpdateIPAllocation(alloc); err != nil {
			s.logger.Error().Err(err).Str("allocation_id", alloc.ID).Msg("failed to roll back IP allocation")
		}
	}
}

// StartVM transitions stopped|error -> starting, calls
// vm.define_and_start, and settles to running on success or error on a
// driver-reported failure. A transport failure (timeout/offline) leaves
// the VM in starting for the reconciliation sweep to resolve.
func (s *Service) StartVM(ctx context.Context, userID, vmID string) (*types.VM, error) {
	vm, err := s.manager.GetVM(vmID)
	if err != nil {
		return nil, apperr.NotFound(apperr.VMNotFound, "vm %s not found", vmID)
	}
	if vm.Status != types.VMStatusStopped && vm.Status != types.VMStatusError {
		s.audit(userID, "vm.start", "vm", vmID, "invalid state transition", false)
		return nil, apperr.Precondition("vm %s is %s, not stopped or error", vmID, vm.Status)
	}

	vm.Status = types.VMStatusStarting
	vm.UpdatedAt = time.Now()
	if err := s.manager.UpdateVM(vm); err != nil {
		return nil, err
	}

	task, err := s.newTask("vm.start", "vm", vm.ID, vm.NodeID, userID, vm)
	if err != nil {
		return nil, err
	}

	payload := map[string]any{
		"vm":       vm,
		"disks":    diskAttachments(s.volumesFor(vm.DiskIDs)),
		"networks": s.nicNetworks(vm.NICs),
	}
	outcome := s.dispatch(ctx, task, vm.NodeID, "vm.define_and_start", payload)
	if outcome.err != nil {
		if !outcome.transportFailure {
			vm.Status = types.VMStatusError
			vm.UpdatedAt = time.Now()
			_ = s.manager.UpdateVM(vm)
			s.publish(events.EventVMError, outcome.err.Error(), map[string]string{"vm_id": vm.ID})
		}
		s.audit(userID, "vm.start", "vm", vmID, outcome.err.Error(), false)
		return vm, outcome.err
	}

	now := time.Now()
	vm.Status = types.VMStatusRunning
	vm.StartedAt = &now
	vm.UpdatedAt = now
	if err := s.manager.UpdateVM(vm); err != nil {
		return nil, err
	}
	s.audit(userID, "vm.start", "vm", vmID, "", true)
	s.publish(events.EventVMStarted, fmt.Sprintf("VM %s started", vm.Name), map[string]string{"vm_id": vm.ID})
	return vm, nil
}

// StopVM transitions running|paused|error -> stopping, calls vm.stop,
// and settles to stopped. The domain stays defined on the node; the next
// start redefines it from the current row, so changes made on the
// controller take effect then.
func (s *Service) StopVM(ctx context.Context, userID, vmID string, force bool) (*types.VM, error) {
	vm, err := s.manager.GetVM(vmID)
	if err != nil {
		return nil, apperr.NotFound(apperr.VMNotFound, "vm %s not found", vmID)
	}
	if vm.Status != types.VMStatusRunning && vm.Status != types.VMStatusPaused && vm.Status != types.VMStatusError {
		s.audit(userID, "vm.stop", "vm", vmID, "invalid state transition", false)
		return nil, apperr.Precondition("vm %s is %s, not running, paused or error", vmID, vm.Status)
	}

	vm.Status = types.VMStatusStopping
	vm.UpdatedAt = time.Now()
	if err := s.manager.UpdateVM(vm); err != nil {
		return nil, err
	}

	task, err := s.newTask("vm.stop", "vm", vm.ID, vm.NodeID, userID, map[string]bool{"force": force})
	if err != nil {
		return nil, err
	}

	outcome := s.dispatch(ctx, task, vm.NodeID, "vm.stop", map[string]any{"vm_id": vm.ID, "force": force})
	if outcome.err != nil {
		if !outcome.transportFailure {
			vm.Status = types.VMStatusError
			vm.UpdatedAt = time.Now()
			_ = s.manager.UpdateVM(vm)
			s.publish(events.EventVMError, outcome.err.Error(), map[string]string{"vm_id": vm.ID})
		}
		s.audit(userID, "vm.stop", "vm", vmID, outcome.err.Error(), false)
		return vm, outcome.err
	}

	now := time.Now()
	vm.Status = types.VMStatusStopped
	vm.StoppedAt = &now
	vm.UpdatedAt = now
	if err := s.manager.UpdateVM(vm); err != nil {
		return nil, err
	}
	s.audit(userID, "vm.stop", "vm", vmID, "", true)
	s.publish(events.EventVMStopped, fmt.Sprintf("VM %s stopped", vm.Name), map[string]string{"vm_id": vm.ID})
	return vm, nil
}

// RestartVM transitions running -> restarting, calls vm.restart (a
// graceful shutdown with forced fallback, then start), and settles back
// to running on success.
func (s *Service) RestartVM(ctx context.Context, userID, vmID string) (*types.VM, error) {
	vm, err := s.manager.GetVM(vmID)
	if err != nil {
		return nil, apperr.NotFound(apperr.VMNotFound, "vm %s not found", vmID)
	}
	if vm.Status != types.VMStatusRunning {
		s.audit(userID, "vm.restart", "vm", vmID, "invalid state transition", false)
		return nil, apperr.Precondition("vm %s is %s, not running", vmID, vm.Status)
	}

	vm.Status = types.VMStatusRestarting
	vm.UpdatedAt = time.Now()
	if err := s.manager.UpdateVM(vm); err != nil {
		return nil, err
	}

	task, err := s.newTask("vm.restart", "vm", vm.ID, vm.NodeID, userID, vm)
	if err != nil {
		return nil, err
	}

	payload := map[string]any{
		"vm":       vm,
		"disks":    diskAttachments(s.volumesFor(vm.DiskIDs)),
		"networks": s.nicNetworks(vm.NICs),
	}
	outcome := s.dispatch(ctx, task, vm.NodeID, "vm.restart", payload)
	if outcome.err != nil {
		if !outcome.transportFailure {
			vm.Status = types.VMStatusError
			vm.UpdatedAt = time.Now()
			_ = s.manager.UpdateVM(vm)
			s.publish(events.EventVMError, outcome.err.Error(), map[string]string{"vm_id": vm.ID})
		}
		s.audit(userID, "vm.restart", "vm", vmID, outcome.err.Error(), false)
		return vm, outcome.err
	}

	vm.Status = types.VMStatusRunning
	vm.UpdatedAt = time.Now()
	if err := s.manager.UpdateVM(vm); err != nil {
		return nil, err
	}
	s.audit(userID, "vm.restart", "vm", vmID, "", true)
	return vm, nil
}

// DeleteVM releases the VM's IPs, frees its volumes, and removes the
// row. Deleting a running VM is rejected.
func (s *Service) DeleteVM(ctx context.Context, userID, vmID string) error {
	vm, err := s.manager.GetVM(vmID)
	if err != nil {
		return apperr.NotFound(apperr.VMNotFound, "vm %s not found", vmID)
	}
	if vm.Status == types.VMStatusRunning {
		s.audit(userID, "vm.delete", "vm", vmID, "vm is running", false)
		return apperr.Precondition("vm %s is running, stop it before deleting", vmID)
	}

	for _, nic := range vm.NICs {
		if err := s.ipam.Release(nic.NetworkID, vm.ID); err != nil {
			s.logger.Error().Err(err).Str("vm_id", vm.ID).Str("network_id", nic.NetworkID).Msg("failed to release IP on delete")
		}
	}

	for _, vol := range s.volumesFor(vm.DiskIDs) {
		vol.Status = types.VolumeStatusAvailable
		vol.VMID = ""
		vol.UpdatedAt = time.Now()
		if err := s.manager.UpdateVolume(vol); err != nil {
			s.logger.Error().Err(err).Str("volume_id", vol.ID).Msg("failed to free volume on VM delete")
		}
	}

	if err := s.manager.DeleteVM(vmID); err != nil {
		s.audit(userID, "vm.delete", "vm", vmID, err.Error(), false)
		return err
	}

	s.audit(userID, "vm.delete", "vm", vmID, "", true)
	s.publish(events.EventVMDeleted, fmt.Sprintf("VM %s deleted", vm.Name), map[string]string{"vm_id": vmID})
	return nil
}

// MigrateVM transitions running -> migrating and coordinates an
// agent-pair RPC through the source node. On success the VM's node_id
// moves to target; on a driver-reported failure it moves to error with
// node_id unchanged, and on a transport failure it stays migrating for
// the reconciliation sweep.
func (s *Service) MigrateVM(ctx context.Context, userID, vmID, targetNodeID string) (*types.VM, error) {
	vm, err := s.manager.GetVM(vmID)
	if err != nil {
		return nil, apperr.NotFound(apperr.VMNotFound, "vm %s not found", vmID)
	}
	if vm.Status != types.VMStatusRunning {
		s.audit(userID, "vm.migrate", "vm", vmID, "invalid state transition", false)
		return nil, apperr.Precondition("vm %s is %s, not running", vmID, vm.Status)
	}

	targetNode, err := s.manager.GetNode(targetNodeID)
	if err != nil {
		return nil, apperr.NotFound(apperr.NodeNotFound, "node %s not found", targetNodeID)
	}

	sourceNodeID := vm.NodeID
	vm.Status = types.VMStatusMigrating
	vm.UpdatedAt = time.Now()
	if err := s.manager.UpdateVM(vm); err != nil {
		return nil, err
	}

	task, err := s.newTask("vm.migrate", "vm", vm.ID, sourceNodeID, userID, map[string]string{"target_node_id": targetNodeID})
	if err != nil {
		return nil, err
	}

	outcome := s.dispatch(ctx, task, sourceNodeID, "vm.migrate", map[string]string{
		"vm_id": vm.ID, "target_node_id": targetNodeID, "target_address": targetNode.IPAddress,
	})
	if outcome.err != nil {
		if !outcome.transportFailure {
			vm.Status = types.VMStatusError
			vm.UpdatedAt = time.Now()
			_ = s.manager.UpdateVM(vm)
		}
		s.audit(userID, "vm.migrate", "vm", vmID, outcome.err.Error(), false)
		return vm, outcome.err
	}

	vm.NodeID = targetNodeID
	vm.Status = types.VMStatusRunning
	vm.UpdatedAt = time.Now()
	if err := s.manager.UpdateVM(vm); err != nil {
		return nil, err
	}
	s.audit(userID, "vm.migrate", "vm", vmID, "", true)
	s.publish(events.EventVMMigrated, fmt.Sprintf("VM %s migrated to %s", vm.Name, targetNodeID), map[string]string{"vm_id": vm.ID})
	return vm, nil
}

// AttachVolume attaches volID to a VM. If the VM is running, the agent
// hot-attaches the disk before the DB is updated; otherwise only the DB
// changes. The volume transitions available -> in_use.
func (s *Service) AttachVolume(ctx context.Context, userID, vmID, volID string) (*types.VM, error) {
	vm, err := s.manager.GetVM(vmID)
	if err != nil {
		return nil, apperr.NotFound(apperr.VMNotFound, "vm %s not found", vmID)
	}
	vol, err := s.manager.GetVolume(volID)
	if err != nil {
		return nil, apperr.NotFound(apperr.VolumeNotFound, "volume %s not found", volID)
	}
	if vol.Status != types.VolumeStatusAvailable {
		s.audit(userID, "vm.attach_volume", "vm", vmID, "volume not available", false)
		return nil, apperr.Precondition("volume %s is %s, not available", volID, vol.Status)
	}

	if vm.Status == types.VMStatusRunning {
		task, err := s.newTask("vm.attach_disk", "vm", vm.ID, vm.NodeID, userID, map[string]string{"volume_id": volID})
		if err != nil {
			return nil, err
		}
		outcome := s.dispatch(ctx, task, vm.NodeID, "vm.attach_disk", map[string]string{
			"vm_id": vm.ID, "volume_id": volID, "path": vol.Path, "format": diskFormat(vol),
		})
		if outcome.err != nil {
			s.audit(userID, "vm.attach_volume", "vm", vmID, outcome.err.Error(), false)
			return vm, outcome.err
		}
	}

	vol.Status = types.VolumeStatusInUse
	vol.VMID = vm.ID
	vol.UpdatedAt = time.Now()
	if err := s.manager.UpdateVolume(vol); err != nil {
		return nil, err
	}

	vm.DiskIDs = append(vm.DiskIDs, volID)
	vm.UpdatedAt = time.Now()
	if err := s.manager.UpdateVM(vm); err != nil {
		return nil, err
	}

	s.audit(userID, "vm.attach_volume", "vm", vmID, volID, true)
	return vm, nil
}

// DetachVolume mirrors AttachVolume: hot-detach if running, then the
// volume returns to available and the VM's disk list drops the id.
func (s *Service) DetachVolume(ctx context.Context, userID, vmID, volID string) (*types.VM, error) {
	vm, err := s.manager.GetVM(vmID)
	if err != nil {
		return nil, apperr.NotFound(apperr.VMNotFound, "vm %s not found", vmID)
	}
	vol, err := s.manager.GetVolume(volID)
	if err != nil {
		return nil, apperr.NotFound(apperr.VolumeNotFound, "volume %s not found", volID)
	}

	if vm.Status == types.VMStatusRunning {
		task, err := s.newTask("vm.detach_disk", "vm", vm.ID, vm.NodeID, userID, map[string]string{"volume_id": volID})
		if err != nil {
			return nil, err
		}
		outcome := s.dispatch(ctx, task, vm.NodeID, "vm.detach_disk", map[string]string{"vm_id": vm.ID, "volume_id": volID})
		if outcome.err != nil {
			s.audit(userID, "vm.detach_volume", "vm", vmID, outcome.err.Error(), false)
			return vm, outcome.err
		}
	}

	vol.Status = types.VolumeStatusAvailable
	vol.VMID = ""
	vol.UpdatedAt = time.Now()
	if err := s.manager.UpdateVolume(vol); err != nil {
		return nil, err
	}

	remaining := vm.DiskIDs[:0]
	for _, id := range vm.DiskIDs {
		if id != volID {
			remaining = append(remaining, id)
		}
	}
	vm.DiskIDs = remaining
	vm.UpdatedAt = time.Now()
	if err := s.manager.UpdateVM(vm); err != nil {
		return nil, err
	}

	s.audit(userID, "vm.detach_volume", "vm", vmID, volID, true)
	return vm, nil
}
