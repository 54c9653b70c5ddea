package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/cuemby/vcp/pkg/apperr"
	"github.com/cuemby/vcp/pkg/types"
)

func (s *Server) listPools(w http.ResponseWriter, r *http.Request) {
	pools, err := s.manager.ListStoragePools()
	if err != nil {
		writeError(w, err)
		return
	}
	page, pageSize := pageParams(r)
	start, end := sliceWindow(len(pools), page, pageSize)
	writePage(w, pools[start:end], len(pools), page, pageSize)
}

type createPoolRequest struct {
	Name        string                  `json:"name" validate:"required"`
	Type        types.StoragePoolType   `json:"type" validate:"required,oneof=nfs lvm ceph iscsi"`
	NodeID      string                  `json:"node_id" validate:"required"`
	CapacityGB  float64                 `json:"capacity_gb" validate:"required,min=0"`
	NFSConfig   *types.NFSPoolConfig    `json:"nfs_config"`
	LVMConfig   *types.LVMPoolConfig    `json:"lvm_config"`
	CephConfig  *types.CephPoolConfig   `json:"ceph_config"`
	ISCSIConfig *types.ISCSIPoolConfig  `json:"iscsi_config"`
}

// createPool registers a pool row directly from the request body,
// capacity included: unlike a volume, no agent is asked to create or
// probe anything, so there is no agent dispatch on create.
func (s *Server) createPool(w http.ResponseWriter, r *http.Request) {
	var req createPoolRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}
	now := time.Now()
	pool := &types.StoragePool{
		ID:          uuid.NewString(),
		Name:        req.Name,
		Type:        req.Type,
		Status:      types.StoragePoolActive,
		NFSConfig:   req.NFSConfig,
		LVMConfig:   req.LVMConfig,
		CephConfig:  req.CephConfig,
		ISCSIConfig: req.ISCSIConfig,
		CapacityGB:  req.CapacityGB,
		NodeID:      req.NodeID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.manager.CreateStoragePool(pool); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, pool)
}

func (s *Server) getPool(w http.ResponseWriter, r *http.Request) {
	pool, err := s.manager.GetStoragePool(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, apperr.NotFound(apperr.VolumeNotFound, "storage pool not found"))
		return
	}
	writeJSON(w, http.StatusOK, pool)
}

type updatePoolRequest struct {
	Name       string  `json:"name"`
	CapacityGB float64 `json:"capacity_gb"`
}

func (s *Server) updatePool(w http.ResponseWriter, r *http.Request) {
	var req updatePoolRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}
	pool, err := s.manager.GetStoragePool(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, apperr.NotFound(apperr.VolumeNotFound, "storage pool not found"))
		return
	}
	if req.Name != "" {
		pool.Name = req.Name
	}
	if req.CapacityGB != 0 {
		pool.CapacityGB = req.CapacityGB
	}
	pool.UpdatedAt = time.Now()
	if err := s.manager.UpdateStoragePool(pool); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pool)
}

func (s *Server) deletePool(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	volumes, err := s.manager.ListVolumesByPool(id)
	if err != nil {
		writeError(w, err)
		return
	}
	if len(volumes) > 0 {
		writeError(w, apperr.Precondition("storage pool %s has %d volumes", id, len(volumes)))
		return
	}
	if err := s.manager.DeleteStoragePool(id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) listVolumes(w http.ResponseWriter, r *http.Request) {
	vols, err := s.manager.ListVolumes()
	if err != nil {
		writeError(w, err)
		return
	}
	page, pageSize := pageParams(r)
	start, end := sliceWindow(len(vols), page, pageSize)
	writePage(w, vols[start:end], len(vols), page, pageSize)
}

type createVolumeRequest struct {
	Name   string           `json:"name" validate:"required"`
	Type   types.VolumeType `json:"type" validate:"required,oneof=qcow2 raw ceph nfs lvm"`
	SizeGB float64          `json:"size_gb" validate:"required,min=0"`
	PoolID string           `json:"pool_id" validate:"required"`
	Source string           `json:"source"`
}

func (s *Server) createVolume(w http.ResponseWriter, r *http.Request) {
	var req createVolumeRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}
	p, _ := principalFrom(r.Context())
	vol, err := s.orchestrator.CreateVolume(r.Context(), p.UserID, &types.Volume{
		Name:     req.Name,
		Type:     req.Type,
		SizeGB:   req.SizeGB,
		PoolID:   req.PoolID,
		Metadata: types.VolumeMetadata{Source: req.Source},
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, vol)
}

func (s *Server) getVolume(w http.ResponseWriter, r *http.Request) {
	vol, err := s.manager.GetVolume(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, apperr.NotFound(apperr.VolumeNotFound, "volume not found"))
		return
	}
	writeJSON(w, http.StatusOK, vol)
}

type updateVolumeRequest struct {
	Name string `json:"name"`
}

func (s *Server) updateVolume(w http.ResponseWriter, r *http.Request) {
	var req updateVolumeRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}
	vol, err := s.manager.GetVolume(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, apperr.NotFound(apperr.VolumeNotFound, "volume not found"))
		return
	}
	if req.Name != "" {
		vol.Name = req.Name
	}
	vol.UpdatedAt = time.Now()
	if err := s.manager.UpdateVolume(vol); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, vol)
}

func (s *Server) deleteVolume(w http.ResponseWriter, r *http.Request) {
	p, _ := principalFrom(r.Context())
	if err := s.orchestrator.DeleteVolume(r.Context(), p.UserID, chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type resizeVolumeRequest struct {
	SizeGB float64 `json:"size_gb" validate:"required,min=0"`
}

func (s *Server) resizeVolume(w http.ResponseWriter, r *http.Request) {
	var req resizeVolumeRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}
	p, _ := principalFrom(r.Context())
	vol, err := s.orchestrator.ResizeVolume(r.Context(), p.UserID, chi.URLParam(r, "id"), req.SizeGB)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, vol)
}

type cloneVolumeRequest struct {
	Name string `json:"name" validate:"required"`
}

func (s *Server) cloneVolume(w http.ResponseWriter, r *http.Request) {
	var req cloneVolumeRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}
	p, _ := principalFrom(r.Context())
	vol, err := s.orchestrator.CloneVolume(r.Context(), p.UserID, chi.URLParam(r, "id"), req.Name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, vol)
}

type snapshotVolumeRequest struct {
	Name string `json:"name" validate:"required"`
}

// snapshotVolume is the volume-scoped alias of POST /api/storage/snapshots
// the VM's own disk view links to; both create through the same
// orchestrator call.
func (s *Server) snapshotVolume(w http.ResponseWriter, r *http.Request) {
	var req snapshotVolumeRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}
	p, _ := principalFrom(r.Context())
	snap, err := s.orchestrator.CreateSnapshot(r.Context(), p.UserID, chi.URLParam(r, "id"), req.Name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, snap)
}
