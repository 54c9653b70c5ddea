package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/cuemby/vcp/pkg/apperr"
	"github.com/cuemby/vcp/pkg/types"
)

func (s *Server) listNetworks(w http.ResponseWriter, r *http.Request) {
	networks, err := s.manager.ListNetworks()
	if err != nil {
		writeError(w, err)
		return
	}
	page, pageSize := pageParams(r)
	start, end := sliceWindow(len(networks), page, pageSize)
	writePage(w, networks[start:end], len(networks), page, pageSize)
}

type createNetworkRequest struct {
	Name    string          `json:"name" validate:"required"`
	Type    types.NetworkType `json:"type" validate:"required,oneof=bridge ovs"`
	CIDR    string          `json:"cidr" validate:"required"`
	Gateway string          `json:"gateway"`
	MTU     int             `json:"mtu"`
	VLANID  *int            `json:"vlan_id"`
	NodeID  string          `json:"node_id" validate:"required"`
}

func (s *Server) createNetwork(w http.ResponseWriter, r *http.Request) {
	var req createNetworkRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}
	p, _ := principalFrom(r.Context())
	mtu := req.MTU
	if mtu == 0 {
		mtu = 1500
	}
	network, err := s.orchestrator.CreateNetwork(p.UserID, &types.Network{
		Name:    req.Name,
		Type:    req.Type,
		CIDR:    req.CIDR,
		Gateway: req.Gateway,
		MTU:     mtu,
		VLANID:  req.VLANID,
		NodeID:  req.NodeID,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, network)
}

func (s *Server) getNetwork(w http.ResponseWriter, r *http.Request) {
	network, err := s.manager.GetNetwork(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, apperr.NotFound(apperr.NetworkNotFound, "network not found"))
		return
	}
	writeJSON(w, http.StatusOK, network)
}

type updateNetworkRequest struct {
	Name string `json:"name" validate:"required"`
}

func (s *Server) updateNetwork(w http.ResponseWriter, r *http.Request) {
	var req updateNetworkRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}
	p, _ := principalFrom(r.Context())
	network, err := s.orchestrator.UpdateNetwork(p.UserID, chi.URLParam(r, "id"), req.Name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, network)
}

func (s *Server) deleteNetwork(w http.ResponseWriter, r *http.Request) {
	p, _ := principalFrom(r.Context())
	if err := s.orchestrator.DeleteNetwork(p.UserID, chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) networkIPs(w http.ResponseWriter, r *http.Request) {
	allocations, err := s.manager.ListIPAllocations(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, allocations)
}

// allocateIP is the one route that can race two concurrent callers
// against the same network's address pool; ipam.Allocator's per-network
// lock resolves that and returns IP_EXHAUSTED/409 for the loser once
// the pool is empty.
func (s *Server) allocateIP(w http.ResponseWriter, r *http.Request) {
	networkID := chi.URLParam(r, "id")
	alloc, err := s.ipam.Allocate(networkID)
	if err != nil {
		writeError(w, apperr.Wrap(apperr.IPExhausted, apperr.KindPrecondition, err, "allocate IP on network %s", networkID))
		return
	}
	writeJSON(w, http.StatusOK, alloc)
}

type releaseIPRequest struct {
	VMID string `json:"vm_id" validate:"required"`
}

func (s *Server) releaseIP(w http.ResponseWriter, r *http.Request) {
	var req releaseIPRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}
	networkID := chi.URLParam(r, "id")
	if err := s.ipam.Release(networkID, req.VMID); err != nil {
		writeError(w, apperr.AsAppError(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
