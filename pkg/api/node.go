package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/cuemby/vcp/pkg/apperr"
	"github.com/cuemby/vcp/pkg/types"
)

func (s *Server) listNodes(w http.ResponseWriter, r *http.Request) {
	nodes, err := s.manager.ListNodes()
	if err != nil {
		writeError(w, err)
		return
	}
	page, pageSize := pageParams(r)
	start, end := sliceWindow(len(nodes), page, pageSize)
	writePage(w, nodes[start:end], len(nodes), page, pageSize)
}

func (s *Server) nodeStats(w http.ResponseWriter, r *http.Request) {
	nodes, err := s.manager.ListNodes()
	if err != nil {
		writeError(w, err)
		return
	}
	stats := struct {
		Total       int `json:"total"`
		Online      int `json:"online"`
		Offline     int `json:"offline"`
		Maintenance int `json:"maintenance"`
	}{Total: len(nodes)}
	for _, n := range nodes {
		switch n.Status {
		case types.NodeStatusOnline:
			stats.Online++
		case types.NodeStatusOffline:
			stats.Offline++
		case types.NodeStatusMaintenance:
			stats.Maintenance++
		}
	}
	writeJSON(w, http.StatusOK, stats)
}

type createNodeRequest struct {
	Role string `json:"role" validate:"required,oneof=agent controller"`
}

// createNode issues the join token an agent's cluster-join flow
// presents on connect; nodes self-register over the RPC transport, so
// there is no direct create here, matching the teacher's "generate
// then join" provisioning flow.
func (s *Server) createNode(w http.ResponseWriter, r *http.Request) {
	var req createNodeRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}
	token, err := s.manager.GenerateJoinToken(req.Role)
	if err != nil {
		writeError(w, apperr.Wrap(apperr.Internal, apperr.KindInfra, err, "failed to generate join token"))
		return
	}
	writeJSON(w, http.StatusCreated, struct {
		Token     string    `json:"token"`
		Role      string    `json:"role"`
		ExpiresAt time.Time `json:"expires_at"`
	}{token.Token, token.Role, token.ExpiresAt})
}

func (s *Server) getNode(w http.ResponseWriter, r *http.Request) {
	node, err := s.manager.GetNode(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, apperr.NotFound(apperr.NodeNotFound, "node not found"))
		return
	}
	writeJSON(w, http.StatusOK, node)
}

type updateNodeRequest struct {
	Maintenance *bool `json:"maintenance"`
}

// updateNode only toggles maintenance mode; nodes otherwise describe
// themselves through heartbeats, not admin-supplied fields.
func (s *Server) updateNode(w http.ResponseWriter, r *http.Request) {
	var req updateNodeRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Maintenance == nil {
		writeError(w, apperr.New(apperr.InvalidRequest, apperr.KindValidation, "maintenance is required"))
		return
	}
	p, _ := principalFrom(r.Context())
	node, err := s.orchestrator.SetMaintenance(p.UserID, chi.URLParam(r, "id"), *req.Maintenance)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, node)
}

func (s *Server) deleteNode(w http.ResponseWriter, r *http.Request) {
	p, _ := principalFrom(r.Context())
	if err := s.orchestrator.DeleteNode(p.UserID, chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// heartbeatNode lets a node report liveness over REST as an
// alternative to the RPC transport's own heartbeat frame, e.g. during
// bring-up before the websocket session is established.
func (s *Server) heartbeatNode(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	node, err := s.manager.GetNode(id)
	if err != nil {
		writeError(w, apperr.NotFound(apperr.NodeNotFound, "node not found"))
		return
	}
	node.LastHeartbeat = time.Now()
	if node.Status == types.NodeStatusOffline {
		node.Status = types.NodeStatusOnline
	}
	node.UpdatedAt = time.Now()
	if err := s.manager.UpdateNode(node); err != nil {
		writeError(w, apperr.AsAppError(err))
		return
	}
	writeJSON(w, http.StatusOK, node)
}
