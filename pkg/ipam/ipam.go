// Package ipam materializes and allocates the per-network IP address
// pool. A network's usable host range is enumerated once at network
// creation into one IPAllocation row per address; after that, allocate,
// associate, release and reserve only ever flip a row's status.
//
// Locking follows the per-keyed-resource discipline of the example
// corpus's warm-pool manager (oriys/nova internal/pool), here as one
// exclusive sync.Mutex per network ID, held only across the
// read-modify-write of that network's rows, so unrelated networks never
// contend.
package ipam

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/apparentlymart/go-cidr/cidr"
	"github.com/google/uuid"

	"github.com/cuemby/vcp/pkg/events"
	"github.com/cuemby/vcp/pkg/log"
	"github.com/cuemby/vcp/pkg/manager"
	"github.com/cuemby/vcp/pkg/metrics"
	"github.com/cuemby/vcp/pkg/types"
)

// Allocator owns the per-network address pool. It is safe for concurrent
// use; callers never need their own locking around Allocate/Associate/
// Release/Reserve.
type Allocator struct {
	manager *manager.Manager

	mu       sync.Mutex             // guards netLocks
	netLocks map[string]*sync.Mutex // one lock per network_id, created lazily
}

// NewAllocator creates an Allocator bound to mgr's storage and event broker.
func NewAllocator(mgr *manager.Manager) *Allocator {
	return &Allocator{
		manager:  mgr,
		netLocks: make(map[string]*sync.Mutex),
	}
}

// lockFor returns the exclusive lock for networkID, creating it on first use.
func (a *Allocator) lockFor(networkID string) *sync.Mutex {
	a.mu.Lock()
	defer a.mu.Unlock()
	l, ok := a.netLocks[networkID]
	if !ok {
		l = &sync.Mutex{}
		a.netLocks[networkID] = l
	}
	return l
}

// MaterializeNetwork enumerates every usable host address in network.CIDR
// and writes one available IPAllocation row per address. It is called
// once, when the network is created; the gateway address (if set) and the
// network/broadcast addresses are excluded from the pool.
func (a *Allocator) MaterializeNetwork(network *types.Network) error {
	_, ipnet, err := net.ParseCIDR(network.CIDR)
	if err != nil {
		return fmt.Errorf("parse cidr %q: %w", network.CIDR, err)
	}

	count := cidr.AddressCount(ipnet)
	if count < 2 {
		return fmt.Errorf("cidr %q has no usable host addresses", network.CIDR)
	}

	lock := a.lockFor(network.ID)
	lock.Lock()
	defer lock.Unlock()

	// Host index 0 is the network address, count-1 is the broadcast
	// address for IPv4; neither is ever handed to a VM.
	var last uint64 = count - 1
	for i := uint64(1); i < last; i++ {
		ip, err := cidr.Host(ipnet, int(i))
		if err != nil {
			return fmt.Errorf("enumerate host %d of %q: %w", i, network.CIDR, err)
		}
		addr := ip.String()
		if addr == network.Gateway {
			continue
		}

		alloc := &types.IPAllocation{
			ID:        uuid.NewString(),
			NetworkID: network.ID,
			IPAddress: addr,
			IPNumeric: uint32(i),
			Status:    types.IPStatusAvailable,
		}
		if err := a.manager.CreateIPAllocation(alloc); err != nil {
			return fmt.Errorf("materialize %s: %w", addr, err)
		}
	}

	log.WithComponent("ipam").Info().
		Str("network_id", network.ID).
		Str("cidr", network.CIDR).
		Uint64("host_count", last-1).
		Msg("materialized network address pool")

	return nil
}

// Allocate atomically claims one available address in networkID, marks it
// allocated and stamps allocated_at. It holds networkID's exclusive lock
// for the full read-modify-write so two concurrent callers can never be
// handed the same row.
func (a *Allocator) Allocate(networkID string) (*types.IPAllocation, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.IPAllocationDuration)

	lock := a.lockFor(networkID)
	lock.Lock()
	defer lock.Unlock()

	allocs, err := a.manager.ListIPAllocations(networkID)
	if err != nil {
		return nil, fmt.Errorf("list allocations for %s: %w", networkID, err)
	}

	var total int
	for _, alloc := range allocs {
		if alloc.Status == types.IPStatusAvailable || alloc.Status == types.IPStatusAllocated || alloc.Status == types.IPStatusReserved {
			total++
		}
		if alloc.Status != types.IPStatusAvailable {
			continue
		}

		now := time.Now()
		alloc.Status = types.IPStatusAllocated
		alloc.AllocatedAt = &now
		if err := a.manager.UpdateIPAllocation(alloc); err != nil {
			return nil, fmt.Errorf("allocate %s: %w", alloc.IPAddress, err)
		}
		return alloc, nil
	}

	a.publishExhausted(networkID)
	return nil, fmt.Errorf("network %s has no available addresses (%d total)", networkID, total)
}

// Associate links allocID to vmID. It is idempotent: calling it again with
// the same vmID on an already-associated row is a no-op.
func (a *Allocator) Associate(allocID, vmID string) error {
	alloc, err := a.manager.GetIPAllocation(allocID)
	if err != nil {
		return fmt.Errorf("get allocation %s: %w", allocID, err)
	}

	lock := a.lockFor(alloc.NetworkID)
	lock.Lock()
	defer lock.Unlock()

	if alloc.VMID == vmID {
		return nil
	}
	if alloc.Status != types.IPStatusAllocated {
		return fmt.Errorf("allocation %s is not in allocated state (status=%s)", allocID, alloc.Status)
	}

	alloc.VMID = vmID
	return a.manager.UpdateIPAllocation(alloc)
}

// Release returns every address held by vmID in networkID back to the
// available pool, clearing vm_id and allocated_at.
func (a *Allocator) Release(networkID, vmID string) error {
	lock := a.lockFor(networkID)
	lock.Lock()
	defer lock.Unlock()

	allocs, err := a.manager.ListIPAllocations(networkID)
	if err != nil {
		return fmt.Errorf("list allocations for %s: %w", networkID, err)
	}

	for _, alloc := range allocs {
		if alloc.VMID != vmID {
			continue
		}
		alloc.VMID = ""
		alloc.AllocatedAt = nil
		alloc.Status = types.IPStatusAvailable
		if err := a.manager.UpdateIPAllocation(alloc); err != nil {
			return fmt.Errorf("release %s: %w", alloc.IPAddress, err)
		}
	}

	return nil
}

// Reserve moves the row for ip within networkID from available to
// reserved. Only Release can move a reserved row back to available;
// Allocate never picks one up.
func (a *Allocator) Reserve(networkID, ip string) error {
	lock := a.lockFor(networkID)
	lock.Lock()
	defer lock.Unlock()

	allocs, err := a.manager.ListIPAllocations(networkID)
	if err != nil {
		return fmt.Errorf("list allocations for %s: %w", networkID, err)
	}

	for _, alloc := range allocs {
		if alloc.IPAddress != ip {
			continue
		}
		if alloc.Status != types.IPStatusAvailable {
			return fmt.Errorf("address %s is not available (status=%s)", ip, alloc.Status)
		}
		alloc.Status = types.IPStatusReserved
		return a.manager.UpdateIPAllocation(alloc)
	}

	return fmt.Errorf("address %s not found in network %s", ip, networkID)
}

// publishExhausted emits network.ip_exhausted on the manager's event
// broker. Called with networkID's lock already held.
func (a *Allocator) publishExhausted(networkID string) {
	broker := a.manager.GetEventBroker()
	if broker == nil {
		return
	}
	broker.Publish(&events.Event{
		ID:        uuid.NewString(),
		Type:      events.EventIPExhausted,
		Timestamp: time.Now(),
		Message:   fmt.Sprintf("network %s has no available IP addresses", networkID),
		Metadata:  map[string]string{"network_id": networkID},
	})
}
