package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/cuemby/vcp/pkg/apperr"
	"github.com/cuemby/vcp/pkg/types"
)

func (s *Server) listVMs(w http.ResponseWriter, r *http.Request) {
	vms, err := s.manager.ListVMs()
	if err != nil {
		writeError(w, err)
		return
	}
	page, pageSize := pageParams(r)
	start, end := sliceWindow(len(vms), page, pageSize)
	writePage(w, vms[start:end], len(vms), page, pageSize)
}

type createVMRequest struct {
	Name     string            `json:"name" validate:"required"`
	NodeID   string            `json:"node_id"`
	VCPU     int               `json:"vcpu" validate:"required,min=1"`
	MemoryMB int               `json:"memory_mb" validate:"required,min=1"`
	OSType   string            `json:"os_type"`
	DiskIDs  []string          `json:"disk_ids"`
	NICs     []*types.NICSpec  `json:"network_interfaces"`
	Metadata map[string]string `json:"metadata"`
}

func (s *Server) createVM(w http.ResponseWriter, r *http.Request) {
	var req createVMRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}
	p, _ := principalFrom(r.Context())
	vm, err := s.orchestrator.CreateVM(r.Context(), p.UserID, &types.VM{
		Name:     req.Name,
		NodeID:   req.NodeID,
		VCPU:     req.VCPU,
		MemoryMB: req.MemoryMB,
		OSType:   req.OSType,
		DiskIDs:  req.DiskIDs,
		NICs:     req.NICs,
		Metadata: req.Metadata,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, vm)
}

func (s *Server) getVM(w http.ResponseWriter, r *http.Request) {
	vm, err := s.manager.GetVM(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, apperr.NotFound(apperr.VMNotFound, "vm not found"))
		return
	}
	writeJSON(w, http.StatusOK, vm)
}

type updateVMRequest struct {
	Name     string            `json:"name"`
	Metadata map[string]string `json:"metadata"`
}

// updateVM only touches the caller-editable fields; state transitions
// go through the dedicated start/stop/restart/migrate routes.
func (s *Server) updateVM(w http.ResponseWriter, r *http.Request) {
	var req updateVMRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}
	vm, err := s.manager.GetVM(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, apperr.NotFound(apperr.VMNotFound, "vm not found"))
		return
	}
	if req.Name != "" {
		vm.Name = req.Name
	}
	if req.Metadata != nil {
		vm.Metadata = req.Metadata
	}
	if err := s.manager.UpdateVM(vm); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, vm)
}

func (s *Server) deleteVM(w http.ResponseWriter, r *http.Request) {
	p, _ := principalFrom(r.Context())
	if err := s.orchestrator.DeleteVM(r.Context(), p.UserID, chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) startVM(w http.ResponseWriter, r *http.Request) {
	p, _ := principalFrom(r.Context())
	vm, err := s.orchestrator.StartVM(r.Context(), p.UserID, chi.URLParam(r, "id"))
	s.respondVMAction(w, vm, err)
}

type stopVMRequest struct {
	Force bool `json:"force"`
}

func (s *Server) stopVM(w http.ResponseWriter, r *http.Request) {
	var req stopVMRequest
	_ = decodeAndValidate(r, &req) // a body is optional for stop
	p, _ := principalFrom(r.Context())
	vm, err := s.orchestrator.StopVM(r.Context(), p.UserID, chi.URLParam(r, "id"), req.Force)
	s.respondVMAction(w, vm, err)
}

func (s *Server) restartVM(w http.ResponseWriter, r *http.Request) {
	p, _ := principalFrom(r.Context())
	vm, err := s.orchestrator.RestartVM(r.Context(), p.UserID, chi.URLParam(r, "id"))
	s.respondVMAction(w, vm, err)
}

type migrateVMRequest struct {
	TargetNodeID string `json:"target_node_id" validate:"required"`
}

func (s *Server) migrateVM(w http.ResponseWriter, r *http.Request) {
	var req migrateVMRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}
	p, _ := principalFrom(r.Context())
	vm, err := s.orchestrator.MigrateVM(r.Context(), p.UserID, chi.URLParam(r, "id"), req.TargetNodeID)
	s.respondVMAction(w, vm, err)
}

type volumeActionRequest struct {
	VolumeID string `json:"volume_id" validate:"required"`
}

func (s *Server) attachVolume(w http.ResponseWriter, r *http.Request) {
	var req volumeActionRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}
	p, _ := principalFrom(r.Context())
	vm, err := s.orchestrator.AttachVolume(r.Context(), p.UserID, chi.URLParam(r, "id"), req.VolumeID)
	s.respondVMAction(w, vm, err)
}

func (s *Server) detachVolume(w http.ResponseWriter, r *http.Request) {
	var req volumeActionRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}
	p, _ := principalFrom(r.Context())
	vm, err := s.orchestrator.DetachVolume(r.Context(), p.UserID, chi.URLParam(r, "id"), req.VolumeID)
	s.respondVMAction(w, vm, err)
}

func (s *Server) vmVolumes(w http.ResponseWriter, r *http.Request) {
	vm, err := s.manager.GetVM(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, apperr.NotFound(apperr.VMNotFound, "vm not found"))
		return
	}
	vols := make([]*types.Volume, 0, len(vm.DiskIDs))
	for _, id := range vm.DiskIDs {
		if vol, err := s.manager.GetVolume(id); err == nil {
			vols = append(vols, vol)
		}
	}
	writeJSON(w, http.StatusOK, vols)
}

func (s *Server) vmNetworks(w http.ResponseWriter, r *http.Request) {
	vm, err := s.manager.GetVM(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, apperr.NotFound(apperr.VMNotFound, "vm not found"))
		return
	}
	seen := make(map[string]bool, len(vm.NICs))
	networks := make([]*types.Network, 0, len(vm.NICs))
	for _, nic := range vm.NICs {
		if seen[nic.NetworkID] {
			continue
		}
		seen[nic.NetworkID] = true
		if network, err := s.manager.GetNetwork(nic.NetworkID); err == nil {
			networks = append(networks, network)
		}
	}
	writeJSON(w, http.StatusOK, networks)
}

// respondVMAction writes the VM even on a transport-kind error, per
// apperr.KindTransport's contract: the intent already committed and
// the caller needs the in-flight VM state, not just the error.
func (s *Server) respondVMAction(w http.ResponseWriter, vm *types.VM, err error) {
	if err == nil {
		writeJSON(w, http.StatusOK, vm)
		return
	}
	ae := apperr.AsAppError(err)
	if ae.Kind == apperr.KindTransport && vm != nil {
		writeJSON(w, httpStatus(ae), vm)
		return
	}
	writeError(w, err)
}
