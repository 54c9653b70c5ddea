package orchestrator

import (
	"fmt"
	"net"
	"time"

	"github.com/google/uuid"

	"github.com/cuemby/vcp/pkg/apperr"
	"github.com/cuemby/vcp/pkg/events"
	"github.com/cuemby/vcp/pkg/types"
)

// CreateNetwork validates the CIDR and optional gateway, materializes
// the network's IP pool, and persists the row. No agent dispatch
// happens here: the node's agent ensures the Linux bridge when a VM with
// a NIC on this network is started or restarted.
func (s *Service) CreateNetwork(userID string, spec *types.Network) (*types.Network, error) {
	_, ipnet, err := net.ParseCIDR(spec.CIDR)
	if err != nil {
		s.audit(userID, "network.create", "network", "", "invalid cidr", false)
		return nil, apperr.New(apperr.InvalidRequest, apperr.KindValidation, "invalid CIDR %q: %v", spec.CIDR, err)
	}
	if spec.Gateway != "" {
		gw := net.ParseIP(spec.Gateway)
		if gw == nil || !ipnet.Contains(gw) {
			s.audit(userID, "network.create", "network", "", "gateway outside cidr", false)
			return nil, apperr.New(apperr.InvalidRequest, apperr.KindValidation, "gateway %s is not within %s", spec.Gateway, spec.CIDR)
		}
	}

	now := time.Now()
	spec.ID = uuid.NewString()
	spec.Status = types.NetworkStatusActive
	spec.CreatedAt = now
	spec.UpdatedAt = now
	if err := s.manager.CreateNetwork(spec); err != nil {
		s.audit(userID, "network.create", "network", spec.ID, err.Error(), false)
		return nil, err
	}

	if err := s.ipam.MaterializeNetwork(spec); err != nil {
		s.audit(userID, "network.create", "network", spec.ID, err.Error(), false)
		return nil, err
	}

	s.audit(userID, "network.create", "network", spec.ID, "", true)
	s.publish(events.EventNetworkCreated, fmt.Sprintf("network %s created", spec.Name), map[string]string{"network_id": spec.ID})
	return spec, nil
}

// bridgeNameForNetwork derives the Linux bridge name the node agent
// materializes for network, matching pkg/agent/driver/network's own
// naming convention (br-vlan<N> when VLAN-tagged, br-<id prefix>
// otherwise) so a VM's NIC can carry its target bridge name without
// the agent needing a separate network lookup at domain-define time.
func bridgeNameForNetwork(network *types.Network) string {
	if network.VLANID != nil {
		return fmt.Sprintf("br-vlan%d", *network.VLANID)
	}
	prefixLen := 8
	if len(network.ID) < prefixLen {
		prefixLen = len(network.ID)
	}
	return fmt.Sprintf("br-%s", network.ID[:prefixLen])
}

// UpdateNetwork only renames a network; CIDR/gateway/VLAN cannot be
// changed after creation since changing them would invalidate
// already-issued addresses.
func (s *Service) UpdateNetwork(userID, networkID, newName string) (*types.Network, error) {
	network, err := s.manager.GetNetwork(networkID)
	if err != nil {
		return nil, apperr.NotFound(apperr.NetworkNotFound, "network %s not found", networkID)
	}
	network.Name = newName
	network.UpdatedAt = time.Now()
	if err := s.manager.UpdateNetwork(network); err != nil {
		s.audit(userID, "network.update", "network", networkID, err.Error(), false)
		return nil, err
	}
	s.audit(userID, "network.update", "network", networkID, "", true)
	return network, nil
}

// DeleteNetwork is rejected while any IP row is still allocated or
// reserved, since those addresses back live NICs or held reservations.
func (s *Service) DeleteNetwork(userID, networkID string) error {
	allocations, err := s.manager.ListIPAllocations(networkID)
	if err != nil {
		return err
	}
	for _, alloc := range allocations {
		if alloc.Status != types.IPStatusAvailable {
			s.audit(userID, "network.delete", "network", networkID, "network has allocated addresses", false)
			return apperr.Precondition("network %s has addresses still in use", networkID)
		}
	}

	if err := s.manager.DeleteNetwork(networkID); err != nil {
		s.audit(userID, "network.delete", "network", networkID, err.Error(), false)
		return err
	}
	s.audit(userID, "network.delete", "network", networkID, "", true)
	s.publish(events.EventNetworkDeleted, fmt.Sprintf("network %s deleted", networkID), map[string]string{"network_id": networkID})
	return nil
}
