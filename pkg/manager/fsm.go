package manager

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/cuemby/vcp/pkg/storage"
	"github.com/cuemby/vcp/pkg/types"
	"github.com/hashicorp/raft"
)

// stateFSM implements the Raft Finite State Machine for control-plane state.
// It applies committed log entries to the store and handles snapshots.
type stateFSM struct {
	mu    sync.RWMutex
	store storage.Store
}

// newStateFSM creates a new FSM instance.
func newStateFSM(store storage.Store) *stateFSM {
	return &stateFSM{
		store: store,
	}
}

// Command represents a state change operation in the Raft log.
type Command struct {
	Op   string          `json:"op"`
	Data json.RawMessage `json:"data"`
}

// Apply applies a Raft log entry to the FSM. Called by Raft when a log
// entry is committed.
func (f *stateFSM) Apply(log *raft.Log) interface{} {
	var cmd Command
	if err := json.Unmarshal(log.Data, &cmd); err != nil {
		return fmt.Errorf("unmarshal command: %v", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	switch cmd.Op {
	// Node operations
	case "create_node":
		var node types.Node
		if err := json.Unmarshal(cmd.Data, &node); err != nil {
			return err
		}
		return f.store.CreateNode(&node)

	case "update_node":
		var node types.Node
		if err := json.Unmarshal(cmd.Data, &node); err != nil {
			return err
		}
		return f.store.UpdateNode(&node)

	case "delete_node":
		var nodeID string
		if err := json.Unmarshal(cmd.Data, &nodeID); err != nil {
			return err
		}
		return f.store.DeleteNode(nodeID)

	// VM operations
	case "create_vm":
		var vm types.VM
		if err := json.Unmarshal(cmd.Data, &vm); err != nil {
			return err
		}
		return f.store.CreateVM(&vm)

	case "update_vm":
		var vm types.VM
		if err := json.Unmarshal(cmd.Data, &vm); err != nil {
			return err
		}
		return f.store.UpdateVM(&vm)

	case "delete_vm":
		var vmID string
		if err := json.Unmarshal(cmd.Data, &vmID); err != nil {
			return err
		}
		return f.store.DeleteVM(vmID)

	// Storage pool operations
	case "create_storage_pool":
		var pool types.StoragePool
		if err := json.Unmarshal(cmd.Data, &pool); err != nil {
			return err
		}
		return f.store.CreateStoragePool(&pool)

	case "update_storage_pool":
		var pool types.StoragePool
		if err := json.Unmarshal(cmd.Data, &pool); err != nil {
			return err
		}
		return f.store.UpdateStoragePool(&pool)

	case "delete_storage_pool":
		var poolID string
		if err := json.Unmarshal(cmd.Data, &poolID); err != nil {
			return err
		}
		return f.store.DeleteStoragePool(poolID)

	// Volume operations. Pool AllocatedGB is recomputed inside
	// storage.BoltStore's Create/Update/DeleteVolume, not here.
	case "create_volume":
		var volume types.Volume
		if err := json.Unmarshal(cmd.Data, &volume); err != nil {
			return err
		}
		return f.store.CreateVolume(&volume)

	case "update_volume":
		var volume types.Volume
		if err := json.Unmarshal(cmd.Data, &volume); err != nil {
			return err
		}
		return f.store.UpdateVolume(&volume)

	case "delete_volume":
		var volumeID string
		if err := json.Unmarshal(cmd.Data, &volumeID); err != nil {
			return err
		}
		return f.store.DeleteVolume(volumeID)

	// Snapshot operations
	case "create_snapshot":
		var snap types.Snapshot
		if err := json.Unmarshal(cmd.Data, &snap); err != nil {
			return err
		}
		return f.store.CreateSnapshot(&snap)

	case "update_snapshot":
		var snap types.Snapshot
		if err := json.Unmarshal(cmd.Data, &snap); err != nil {
			return err
		}
		return f.store.UpdateSnapshot(&snap)

	case "delete_snapshot":
		var snapID string
		if err := json.Unmarshal(cmd.Data, &snapID); err != nil {
			return err
		}
		return f.store.DeleteSnapshot(snapID)

	// Network operations
	case "create_network":
		var network types.Network
		if err := json.Unmarshal(cmd.Data, &network); err != nil {
			return err
		}
		return f.store.CreateNetwork(&network)

	case "update_network":
		var network types.Network
		if err := json.Unmarshal(cmd.Data, &network); err != nil {
			return err
		}
		return f.store.UpdateNetwork(&network)

	case "delete_network":
		var networkID string
		if err := json.Unmarshal(cmd.Data, &networkID); err != nil {
			return err
		}
		if err := f.store.DeleteIPAllocationsByNetwork(networkID); err != nil {
			return err
		}
		return f.store.DeleteNetwork(networkID)

	// IP allocation operations
	case "create_ip_allocation":
		var alloc types.IPAllocation
		if err := json.Unmarshal(cmd.Data, &alloc); err != nil {
			return err
		}
		return f.store.CreateIPAllocation(&alloc)

	case "update_ip_allocation":
		var alloc types.IPAllocation
		if err := json.Unmarshal(cmd.Data, &alloc); err != nil {
			return err
		}
		return f.store.UpdateIPAllocation(&alloc)

	// Task operations
	case "create_task":
		var task types.Task
		if err := json.Unmarshal(cmd.Data, &task); err != nil {
			return err
		}
		return f.store.CreateTask(&task)

	case "update_task":
		var task types.Task
		if err := json.Unmarshal(cmd.Data, &task); err != nil {
			return err
		}
		return f.store.UpdateTask(&task)

	case "delete_task":
		var taskID string
		if err := json.Unmarshal(cmd.Data, &taskID); err != nil {
			return err
		}
		return f.store.DeleteTask(taskID)

	// User and role operations
	case "create_user":
		var user types.User
		if err := json.Unmarshal(cmd.Data, &user); err != nil {
			return err
		}
		return f.store.CreateUser(&user)

	case "update_user":
		var user types.User
		if err := json.Unmarshal(cmd.Data, &user); err != nil {
			return err
		}
		return f.store.UpdateUser(&user)

	case "delete_user":
		var userID string
		if err := json.Unmarshal(cmd.Data, &userID); err != nil {
			return err
		}
		return f.store.DeleteUser(userID)

	case "create_role":
		var role types.Role
		if err := json.Unmarshal(cmd.Data, &role); err != nil {
			return err
		}
		return f.store.CreateRole(&role)

	case "update_role":
		var role types.Role
		if err := json.Unmarshal(cmd.Data, &role); err != nil {
			return err
		}
		return f.store.UpdateRole(&role)

	case "delete_role":
		var roleID string
		if err := json.Unmarshal(cmd.Data, &roleID); err != nil {
			return err
		}
		return f.store.DeleteRole(roleID)

	// Audit log. Append-only.
	case "append_audit_log":
		var entry types.AuditLog
		if err := json.Unmarshal(cmd.Data, &entry); err != nil {
			return err
		}
		return f.store.AppendAuditLog(&entry)

	default:
		return fmt.Errorf("unknown command: %s", cmd.Op)
	}
}

// Snapshot creates a point-in-time snapshot of the FSM. Called periodically
// by Raft to compact the log.
func (f *stateFSM) Snapshot() (raft.FSMSnapshot, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	nodes, err := f.store.ListNodes()
	if err != nil {
		return nil, fmt.Errorf("list nodes: %v", err)
	}
	vms, err := f.store.ListVMs()
	if err != nil {
		return nil, fmt.Errorf("list vms: %v", err)
	}
	pools, err := f.store.ListStoragePools()
	if err != nil {
		return nil, fmt.Errorf("list storage pools: %v", err)
	}
	volumes, err := f.store.ListVolumes()
	if err != nil {
		return nil, fmt.Errorf("list volumes: %v", err)
	}
	snapshots, err := f.store.ListSnapshots()
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %v", err)
	}
	networks, err := f.store.ListNetworks()
	if err != nil {
		return nil, fmt.Errorf("list networks: %v", err)
	}
	var ipAllocs []*types.IPAllocation
	for _, n := range networks {
		allocs, err := f.store.ListIPAllocations(n.ID)
		if err != nil {
			return nil, fmt.Errorf("list ip allocations for %s: %v", n.ID, err)
		}
		ipAllocs = append(ipAllocs, allocs...)
	}
	tasks, err := f.store.ListTasks()
	if err != nil {
		return nil, fmt.Errorf("list tasks: %v", err)
	}
	users, err := f.store.ListUsers()
	if err != nil {
		return nil, fmt.Errorf("list users: %v", err)
	}
	roles, err := f.store.ListRoles()
	if err != nil {
		return nil, fmt.Errorf("list roles: %v", err)
	}

	return &stateSnapshot{
		Nodes:         nodes,
		VMs:           vms,
		StoragePools:  pools,
		Volumes:       volumes,
		Snapshots:     snapshots,
		Networks:      networks,
		IPAllocations: ipAllocs,
		Tasks:         tasks,
		Users:         users,
		Roles:         roles,
	}, nil
}

// Restore restores the FSM from a snapshot. Called when a node restarts.
func (f *stateFSM) Restore(rc io.ReadCloser) error {
	defer rc.Close()

	var snap stateSnapshot
	if err := json.NewDecoder(rc).Decode(&snap); err != nil {
		return fmt.Errorf("decode snapshot: %v", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	for _, node := range snap.Nodes {
		if err := f.store.CreateNode(node); err != nil {
			return fmt.Errorf("restore node: %v", err)
		}
	}
	for _, pool := range snap.StoragePools {
		if err := f.store.CreateStoragePool(pool); err != nil {
			return fmt.Errorf("restore storage pool: %v", err)
		}
	}
	for _, vm := range snap.VMs {
		if err := f.store.CreateVM(vm); err != nil {
			return fmt.Errorf("restore vm: %v", err)
		}
	}
	for _, vol := range snap.Volumes {
		if err := f.store.CreateVolume(vol); err != nil {
			return fmt.Errorf("restore volume: %v", err)
		}
	}
	for _, snapshot := range snap.Snapshots {
		if err := f.store.CreateSnapshot(snapshot); err != nil {
			return fmt.Errorf("restore snapshot: %v", err)
		}
	}
	for _, network := range snap.Networks {
		if err := f.store.CreateNetwork(network); err != nil {
			return fmt.Errorf("restore network: %v", err)
		}
	}
	for _, alloc := range snap.IPAllocations {
		if err := f.store.CreateIPAllocation(alloc); err != nil {
			return fmt.Errorf("restore ip allocation: %v", err)
		}
	}
	for _, task := range snap.Tasks {
		if err := f.store.CreateTask(task); err != nil {
			return fmt.Errorf("restore task: %v", err)
		}
	}
	for _, user := range snap.Users {
		if err := f.store.CreateUser(user); err != nil {
			return fmt.Errorf("restore user: %v", err)
		}
	}
	for _, role := range snap.Roles {
		if err := f.store.CreateRole(role); err != nil {
			return fmt.Errorf("restore role: %v", err)
		}
	}

	return nil
}

// stateSnapshot is a point-in-time snapshot of cluster state.
type stateSnapshot struct {
	Nodes         []*types.Node
	VMs           []*types.VM
	StoragePools  []*types.StoragePool
	Volumes       []*types.Volume
	Snapshots     []*types.Snapshot
	Networks      []*types.Network
	IPAllocations []*types.IPAllocation
	Tasks         []*types.Task
	Users         []*types.User
	Roles         []*types.Role
}

// Persist writes the snapshot to the given SnapshotSink.
func (s *stateSnapshot) Persist(sink raft.SnapshotSink) error {
	err := func() error {
		if err := json.NewEncoder(sink).Encode(s); err != nil {
			return err
		}
		return sink.Close()
	}()

	if err != nil {
		sink.Cancel()
	}

	return err
}

// Release releases the snapshot resources.
func (s *stateSnapshot) Release() {}
