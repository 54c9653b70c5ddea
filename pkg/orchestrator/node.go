package orchestrator

import (
	"fmt"
	"time"

	"github.com/cuemby/vcp/pkg/apperr"
	"github.com/cuemby/vcp/pkg/events"
	"github.com/cuemby/vcp/pkg/rpc"
	"github.com/cuemby/vcp/pkg/types"
)

// HandleNodeRegistered marks a node online, creating its row on first
// contact, when its agent's register frame is accepted. It is wired as rpc.RegisterHooks
// .OnRegister so the registry needs no orchestrator import.
func (s *Service) HandleNodeRegistered(info rpc.RegistrationInfo) {
	node, err := s.manager.GetNode(info.NodeID)
	if err != nil {
		node = &types.Node{
			ID:        info.NodeID,
			Hostname:  info.Hostname,
			IPAddress: info.IPAddress,
			Status:    types.NodeStatusOnline,
			CreatedAt: time.Now(),
		}
		node.LastHeartbeat = time.Now()
		node.UpdatedAt = time.Now()
		if err := s.manager.CreateNode(node); err != nil {
			s.logger.Error().Err(err).Str("node_id", info.NodeID).Msg("failed to register node")
			return
		}
		s.publish(events.EventNodeJoined, fmt.Sprintf("node %s joined", node.Hostname), map[string]string{"node_id": node.ID})
		return
	}

	node.Hostname = info.Hostname
	node.IPAddress = info.IPAddress
	node.Status = types.NodeStatusOnline
	node.LastHeartbeat = time.Now()
	node.UpdatedAt = time.Now()
	if err := s.manager.UpdateNode(node); err != nil {
		s.logger.Error().Err(err).Str("node_id", info.NodeID).Msg("failed to mark node online")
		return
	}
	s.publish(events.EventNodeJoined, fmt.Sprintf("node %s rejoined", node.Hostname), map[string]string{"node_id": node.ID})
}

// HandleNodeOffline transitions a node online -> offline when its
// transport connection drops, wired as rpc.RegisterHooks.OnOffline.
func (s *Service) HandleNodeOffline(nodeID string) {
	node, err := s.manager.GetNode(nodeID)
	if err != nil {
		return
	}
	if node.Status != types.NodeStatusOnline {
		return
	}
	node.Status = types.NodeStatusOffline
	node.UpdatedAt = time.Now()
	if err := s.manager.UpdateNode(node); err != nil {
		s.logger.Error().Err(err).Str("node_id", nodeID).Msg("failed to mark node offline")
		return
	}
	s.publish(events.EventNodeLeft, fmt.Sprintf("node %s went offline", node.Hostname), map[string]string{"node_id": node.ID})
}

// ReconcileStaleNodes marks nodes down whose heartbeat the registry has
// not seen within its timeout window. Called from the reconciliation
// sweep.
func (s *Service) ReconcileStaleNodes(now time.Time) {
	for _, nodeID := range s.registry.StaleNodes(now) {
		s.HandleNodeOffline(nodeID)
	}
}

// SetMaintenance toggles a node between online and maintenance by
// admin action; a node already offline cannot be put into maintenance
// since there is no agent connection to stop scheduling onto.
func (s *Service) SetMaintenance(userID, nodeID string, enable bool) (*types.Node, error) {
	node, err := s.manager.GetNode(nodeID)
	if err != nil {
		return nil, apperr.NotFound(apperr.NodeNotFound, "node %s not found", nodeID)
	}

	if enable {
		if node.Status != types.NodeStatusOnline {
			s.audit(userID, "node.maintenance", "node", nodeID, "node not online", false)
			return nil, apperr.Precondition("node %s is %s, not online", nodeID, node.Status)
		}
		node.Status = types.NodeStatusMaintenance
	} else {
		if node.Status != types.NodeStatusMaintenance {
			s.audit(userID, "node.maintenance", "node", nodeID, "node not in maintenance", false)
			return nil, apperr.Precondition("node %s is %s, not in maintenance", nodeID, node.Status)
		}
		node.Status = types.NodeStatusOnline
	}
	node.UpdatedAt = time.Now()
	if err := s.manager.UpdateNode(node); err != nil {
		s.audit(userID, "node.maintenance", "node", nodeID, err.Error(), false)
		return nil, err
	}
	s.audit(userID, "node.maintenance", "node", nodeID, "", true)
	return node, nil
}

// DeleteNode is rejected if any VM is still assigned to it.
func (s *Service) DeleteNode(userID, nodeID string) error {
	vms, err := s.manager.ListVMsByNode(nodeID)
	if err != nil {
		return err
	}
	if len(vms) > 0 {
		s.audit(userID, "node.delete", "node", nodeID, "node has assigned VMs", false)
		return apperr.Precondition("node %s has %d assigned VMs", nodeID, len(vms))
	}

	if err := s.manager.DeleteNode(nodeID); err != nil {
		s.audit(userID, "node.delete", "node", nodeID, err.Error(), false)
		return err
	}
	s.audit(userID, "node.delete", "node", nodeID, "", true)
	s.publish(events.EventNodeLeft, fmt.Sprintf("node %s deleted", nodeID), map[string]string{"node_id": nodeID})
	return nil
}
