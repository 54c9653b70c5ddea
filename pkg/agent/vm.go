package agent

import (
	"context"
	"encoding/json"

	"github.com/cuemby/vcp/pkg/agent/driver/hypervisor"
	"github.com/cuemby/vcp/pkg/apperr"
	"github.com/cuemby/vcp/pkg/types"
)

// domainRequest is the wire shape of vm.define_and_start and vm.restart:
// the full VM row, its resolved disk attachments, and the networks its
// NICs reference, all supplied by the controller so the agent never has
// to look a Volume or Network row up on its own.
type domainRequest struct {
	VM       *types.VM                   `json:"vm"`
	Disks    []hypervisor.DiskAttachment `json:"disks"`
	Networks map[string]*types.Network   `json:"networks"`
}

// ensureNICBridges materializes the bridge for every network a domain
// request's NICs reference before the hypervisor driver builds domain
// XML, and installs NAT for any network carrying a gateway.
func (a *Agent) ensureNICBridges(ctx context.Context, req *domainRequest) error {
	for _, nic := range req.VM.NICs {
		network, ok := req.Networks[nic.NetworkID]
		if !ok {
			return apperr.NotFound(apperr.NetworkNotFound, "network %s not supplied for vm %s", nic.NetworkID, req.VM.ID)
		}
		bridge, err := a.network.Ensure(ctx, network)
		if err != nil {
			return err
		}
		nic.Bridge = bridge
		if network.Gateway != "" {
			if err := a.network.EnsureNAT(ctx, network); err != nil {
				return err
			}
		}
	}
	return nil
}

func (a *Agent) handleDefineAndStart(ctx context.Context, payload json.RawMessage) (any, error) {
	var req domainRequest
	if err := unmarshalInto(payload, &req); err != nil {
		return nil, err
	}
	if err := a.ensureNICBridges(ctx, &req); err != nil {
		return nil, err
	}
	if err := a.hypervisor.DefineAndStart(ctx, req.VM, req.Disks); err != nil {
		return nil, err
	}
	return struct{}{}, nil
}

func (a *Agent) handleRestart(ctx context.Context, payload json.RawMessage) (any, error) {
	var req domainRequest
	if err := unmarshalInto(payload, &req); err != nil {
		return nil, err
	}
	if err := a.ensureNICBridges(ctx, &req); err != nil {
		return nil, err
	}
	if err := a.hypervisor.Restart(ctx, req.VM, req.Disks); err != nil {
		return nil, err
	}
	return struct{}{}, nil
}

func (a *Agent) handleStop(ctx context.Context, payload json.RawMessage) (any, error) {
	var req struct {
		VMID  string `json:"vm_id"`
		Force bool   `json:"force"`
	}
	if err := unmarshalInto(payload, &req); err != nil {
		return nil, err
	}
	if err := a.hypervisor.Stop(ctx, req.VMID, req.Force); err != nil {
		return nil, err
	}
	return struct{}{}, nil
}

func (a *Agent) handleMigrate(ctx context.Context, payload json.RawMessage) (any, error) {
	var req struct {
		VMID          string `json:"vm_id"`
		TargetNodeID  string `json:"target_node_id"`
		TargetAddress string `json:"target_address"`
	}
	if err := unmarshalInto(payload, &req); err != nil {
		return nil, err
	}
	if err := a.hypervisor.Migrate(ctx, req.VMID, req.TargetAddress); err != nil {
		return nil, err
	}
	return struct{}{}, nil
}

func (a *Agent) handleAttachDisk(ctx context.Context, payload json.RawMessage) (any, error) {
	var req struct {
		VMID     string `json:"vm_id"`
		VolumeID string `json:"volume_id"`
		Path     string `json:"path"`
		Format   string `json:"format"`
	}
	if err := unmarshalInto(payload, &req); err != nil {
		return nil, err
	}
	disk := hypervisor.DiskAttachment{VolumeID: req.VolumeID, Path: req.Path, Format: req.Format}
	if err := a.hypervisor.AttachDisk(ctx, req.VMID, disk); err != nil {
		return nil, err
	}
	return struct{}{}, nil
}

func (a *Agent) handleDetachDisk(ctx context.Context, payload json.RawMessage) (any, error) {
	var req struct {
		VMID     string `json:"vm_id"`
		VolumeID string `json:"volume_id"`
	}
	if err := unmarshalInto(payload, &req); err != nil {
		return nil, err
	}
	if err := a.hypervisor.DetachDisk(ctx, req.VMID, req.VolumeID); err != nil {
		return nil, err
	}
	return struct{}{}, nil
}

func (a *Agent) handleVMDescribe(ctx context.Context, payload json.RawMessage) (any, error) {
	var req struct {
		VMID string `json:"vm_id"`
	}
	if err := unmarshalInto(payload, &req); err != nil {
		return nil, err
	}
	status, err := a.hypervisor.Describe(ctx, req.VMID)
	if err != nil {
		return nil, err
	}
	return struct {
		Status string `json:"status"`
	}{Status: string(status)}, nil
}
