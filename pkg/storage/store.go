package storage

import (
	"github.com/cuemby/vcp/pkg/types"
)

// Store defines the interface for control-plane state storage. It is
// implemented by BoltStore and is the only thing the Raft FSM, pkg/manager
// and pkg/security's CertAuthority talk to; pkg/orchestrator reaches state
// through pkg/manager. Callers never touch bbolt directly.
type Store interface {
	// Nodes
	CreateNode(node *types.Node) error
	GetNode(id string) (*types.Node, error)
	ListNodes() ([]*types.Node, error)
	UpdateNode(node *types.Node) error
	DeleteNode(id string) error

	// VMs
	CreateVM(vm *types.VM) error
	GetVM(id string) (*types.VM, error)
	GetVMByName(name string) (*types.VM, error)
	ListVMs() ([]*types.VM, error)
	ListVMsByNode(nodeID string) ([]*types.VM, error)
	UpdateVM(vm *types.VM) error
	DeleteVM(id string) error

	// Storage pools
	CreateStoragePool(pool *types.StoragePool) error
	GetStoragePool(id string) (*types.StoragePool, error)
	GetStoragePoolByName(name string) (*types.StoragePool, error)
	ListStoragePools() ([]*types.StoragePool, error)
	UpdateStoragePool(pool *types.StoragePool) error
	DeleteStoragePool(id string) error

	// Volumes. CreateVolume/DeleteVolume/UpdateVolume recompute the
	// owning pool's AllocatedGB transactionally rather than trust a
	// cached running total (spec invariant: Pool.allocated_gb always
	// equals the sum of its volumes' size_gb).
	CreateVolume(volume *types.Volume) error
	GetVolume(id string) (*types.Volume, error)
	GetVolumeByName(name string) (*types.Volume, error)
	ListVolumes() ([]*types.Volume, error)
	ListVolumesByPool(poolID string) ([]*types.Volume, error)
	UpdateVolume(volume *types.Volume) error
	DeleteVolume(id string) error

	// Snapshots
	CreateSnapshot(snap *types.Snapshot) error
	GetSnapshot(id string) (*types.Snapshot, error)
	ListSnapshots() ([]*types.Snapshot, error)
	ListSnapshotsByVolume(volumeID string) ([]*types.Snapshot, error)
	UpdateSnapshot(snap *types.Snapshot) error
	DeleteSnapshot(id string) error

	// Networks
	CreateNetwork(network *types.Network) error
	GetNetwork(id string) (*types.Network, error)
	GetNetworkByName(name string) (*types.Network, error)
	ListNetworks() ([]*types.Network, error)
	UpdateNetwork(network *types.Network) error
	DeleteNetwork(id string) error

	// IP allocations. Rows are pre-materialized for every usable host
	// address at network creation (CreateIPAllocation, one call per
	// address, by ipam's MaterializeNetwork) so ipam's Allocate never has
	// to enumerate a CIDR under lock.
	CreateIPAllocation(alloc *types.IPAllocation) error
	GetIPAllocation(id string) (*types.IPAllocation, error)
	ListIPAllocations(networkID string) ([]*types.IPAllocation, error)
	UpdateIPAllocation(alloc *types.IPAllocation) error
	DeleteIPAllocationsByNetwork(networkID string) error

	// Tasks
	CreateTask(task *types.Task) error
	GetTask(id string) (*types.Task, error)
	ListTasks() ([]*types.Task, error)
	ListTasksByTarget(targetType, targetID string) ([]*types.Task, error)
	ListTasksByNode(nodeID string) ([]*types.Task, error)
	UpdateTask(task *types.Task) error
	DeleteTask(id string) error

	// Users and roles
	CreateUser(user *types.User) error
	GetUser(id string) (*types.User, error)
	GetUserByUsername(username string) (*types.User, error)
	ListUsers() ([]*types.User, error)
	UpdateUser(user *types.User) error
	DeleteUser(id string) error

	CreateRole(role *types.Role) error
	GetRole(id string) (*types.Role, error)
	ListRoles() ([]*types.Role, error)
	UpdateRole(role *types.Role) error
	DeleteRole(id string) error

	// Audit log. Append-only; no update/delete.
	AppendAuditLog(entry *types.AuditLog) error
	ListAuditLogs(limit int) ([]*types.AuditLog, error)

	// Certificate authority (mTLS root material for node-agent joins)
	SaveCA(data []byte) error
	GetCA() ([]byte, error)

	Close() error
}
