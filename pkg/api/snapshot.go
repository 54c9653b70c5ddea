package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/cuemby/vcp/pkg/apperr"
)

type updateSnapshotRequest struct {
	Description string `json:"description"`
}

// updateSnapshot only edits the free-text description; the image
// itself is immutable once captured.
func (s *Server) updateSnapshot(w http.ResponseWriter, r *http.Request) {
	var req updateSnapshotRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}
	snap, err := s.manager.GetSnapshot(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, apperr.NotFound(apperr.VolumeNotFound, "snapshot not found"))
		return
	}
	snap.Description = req.Description
	snap.UpdatedAt = time.Now()
	if err := s.manager.UpdateSnapshot(snap); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) listSnapshots(w http.ResponseWriter, r *http.Request) {
	snaps, err := s.manager.ListSnapshots()
	if err != nil {
		writeError(w, err)
		return
	}
	page, pageSize := pageParams(r)
	start, end := sliceWindow(len(snaps), page, pageSize)
	writePage(w, snaps[start:end], len(snaps), page, pageSize)
}

type createSnapshotRequest struct {
	VolumeID string `json:"volume_id" validate:"required"`
	Name     string `json:"name" validate:"required"`
}

func (s *Server) createSnapshot(w http.ResponseWriter, r *http.Request) {
	var req createSnapshotRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}
	p, _ := principalFrom(r.Context())
	snap, err := s.orchestrator.CreateSnapshot(r.Context(), p.UserID, req.VolumeID, req.Name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, snap)
}

func (s *Server) getSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := s.manager.GetSnapshot(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, apperr.NotFound(apperr.VolumeNotFound, "snapshot not found"))
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) deleteSnapshot(w http.ResponseWriter, r *http.Request) {
	p, _ := principalFrom(r.Context())
	if err := s.orchestrator.DeleteSnapshot(r.Context(), p.UserID, chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) restoreSnapshot(w http.ResponseWriter, r *http.Request) {
	p, _ := principalFrom(r.Context())
	vol, err := s.orchestrator.RestoreSnapshot(r.Context(), p.UserID, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, vol)
}
