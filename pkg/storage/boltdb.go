package storage

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/cuemby/vcp/pkg/types"
	bolt "go.etcd.io/bbolt"
)

var (
	bucketNodes         = []byte("nodes")
	bucketVMs           = []byte("vms")
	bucketStoragePools  = []byte("storage_pools")
	bucketVolumes       = []byte("volumes")
	bucketSnapshots     = []byte("snapshots")
	bucketNetworks      = []byte("networks")
	bucketIPAllocations = []byte("ip_allocations")
	bucketTasks         = []byte("tasks")
	bucketUsers         = []byte("users")
	bucketRoles         = []byte("roles")
	bucketAuditLogs     = []byte("audit_logs")
	bucketCA            = []byte("ca")
)

// BoltStore implements Store using an embedded bbolt database, one bucket
// per entity, JSON-marshaled rows keyed by ID. Aggregate invariants
// (Pool.AllocatedGB) are recomputed inside the same transaction that
// mutates the rows they depend on, never cached independently.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (creating if necessary) the control-plane database
// under dataDir.
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "vcp.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	buckets := [][]byte{
		bucketNodes, bucketVMs, bucketStoragePools, bucketVolumes,
		bucketSnapshots, bucketNetworks, bucketIPAllocations, bucketTasks,
		bucketUsers, bucketRoles, bucketAuditLogs, bucketCA,
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range buckets {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// Close closes the database
func (s *BoltStore) Close() error {
	return s.db.Close()
}

func put(tx *bolt.Tx, bucket []byte, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return tx.Bucket(bucket).Put([]byte(key), data)
}

func get(tx *bolt.Tx, bucket []byte, key string, v any) error {
	data := tx.Bucket(bucket).Get([]byte(key))
	if data == nil {
		return fmt.Errorf("not found: %s", key)
	}
	return json.Unmarshal(data, v)
}

// --- Node operations ---

func (s *BoltStore) CreateNode(node *types.Node) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return put(tx, bucketNodes, node.ID, node)
	})
}

func (s *BoltStore) GetNode(id string) (*types.Node, error) {
	var node types.Node
	err := s.db.View(func(tx *bolt.Tx) error {
		return get(tx, bucketNodes, id, &node)
	})
	if err != nil {
		return nil, err
	}
	return &node, nil
}

func (s *BoltStore) ListNodes() ([]*types.Node, error) {
	var nodes []*types.Node
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketNodes).ForEach(func(k, v []byte) error {
			var node types.Node
			if err := json.Unmarshal(v, &node); err != nil {
				return err
			}
			nodes = append(nodes, &node)
			return nil
		})
	})
	return nodes, err
}

func (s *BoltStore) UpdateNode(node *types.Node) error {
	return s.CreateNode(node)
}

func (s *BoltStore) DeleteNode(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketNodes).Delete([]byte(id))
	})
}

// --- VM operations ---

func (s *BoltStore) CreateVM(vm *types.VM) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return put(tx, bucketVMs, vm.ID, vm)
	})
}

func (s *BoltStore) GetVM(id string) (*types.VM, error) {
	var vm types.VM
	err := s.db.View(func(tx *bolt.Tx) error {
		return get(tx, bucketVMs, id, &vm)
	})
	if err != nil {
		return nil, err
	}
	return &vm, nil
}

func (s *BoltStore) GetVMByName(name string) (*types.VM, error) {
	var found *types.VM
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketVMs).ForEach(func(k, v []byte) error {
			var vm types.VM
			if err := json.Unmarshal(v, &vm); err != nil {
				return err
			}
			if vm.Name == name {
				found = &vm
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, fmt.Errorf("vm not found: %s", name)
	}
	return found, nil
}

func (s *BoltStore) ListVMs() ([]*types.VM, error) {
	var vms []*types.VM
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketVMs).ForEach(func(k, v []byte) error {
			var vm types.VM
			if err := json.Unmarshal(v, &vm); err != nil {
				return err
			}
			vms = append(vms, &vm)
			return nil
		})
	})
	return vms, err
}

func (s *BoltStore) ListVMsByNode(nodeID string) ([]*types.VM, error) {
	vms, err := s.ListVMs()
	if err != nil {
		return nil, err
	}
	var filtered []*types.VM
	for _, vm := range vms {
		if vm.NodeID == nodeID {
			filtered = append(filtered, vm)
		}
	}
	return filtered, nil
}

func (s *BoltStore) UpdateVM(vm *types.VM) error {
	return s.CreateVM(vm)
}

func (s *BoltStore) DeleteVM(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketVMs).Delete([]byte(id))
	})
}

// --- Storage pool operations ---

func (s *BoltStore) CreateStoragePool(pool *types.StoragePool) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return put(tx, bucketStoragePools, pool.ID, pool)
	})
}

func (s *BoltStore) GetStoragePool(id string) (*types.StoragePool, error) {
	var pool types.StoragePool
	err := s.db.View(func(tx *bolt.Tx) error {
		return get(tx, bucketStoragePools, id, &pool)
	})
	if err != nil {
		return nil, err
	}
	return &pool, nil
}

func (s *BoltStore) GetStoragePoolByName(name string) (*types.StoragePool, error) {
	var found *types.StoragePool
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketStoragePools).ForEach(func(k, v []byte) error {
			var pool types.StoragePool
			if err := json.Unmarshal(v, &pool); err != nil {
				return err
			}
			if pool.Name == name {
				found = &pool
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, fmt.Errorf("storage pool not found: %s", name)
	}
	return found, nil
}

func (s *BoltStore) ListStoragePools() ([]*types.StoragePool, error) {
	var pools []*types.StoragePool
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketStoragePools).ForEach(func(k, v []byte) error {
			var pool types.StoragePool
			if err := json.Unmarshal(v, &pool); err != nil {
				return err
			}
			pools = append(pools, &pool)
			return nil
		})
	})
	return pools, err
}

func (s *BoltStore) UpdateStoragePool(pool *types.StoragePool) error {
	return s.CreateStoragePool(pool)
}

func (s *BoltStore) DeleteStoragePool(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketStoragePools).Delete([]byte(id))
	})
}

// --- Volume operations ---
//
// CreateVolume/UpdateVolume/DeleteVolume recompute the owning pool's
// AllocatedGB from a full scan of the pool's volumes inside the same
// transaction, so AllocatedGB can never drift from the rows it summarizes.

func recomputePoolAllocated(tx *bolt.Tx, poolID string) error {
	if poolID == "" {
		return nil
	}
	var pool types.StoragePool
	if err := get(tx, bucketStoragePools, poolID, &pool); err != nil {
		return nil // pool not tracked (e.g. already deleted); nothing to recompute
	}

	var total float64
	err := tx.Bucket(bucketVolumes).ForEach(func(k, v []byte) error {
		var vol types.Volume
		if err := json.Unmarshal(v, &vol); err != nil {
			return err
		}
		if vol.PoolID == poolID {
			total += vol.SizeGB
		}
		return nil
	})
	if err != nil {
		return err
	}

	pool.AllocatedGB = total
	pool.AvailableGB = pool.CapacityGB - total
	return put(tx, bucketStoragePools, pool.ID, &pool)
}

func (s *BoltStore) CreateVolume(volume *types.Volume) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := put(tx, bucketVolumes, volume.ID, volume); err != nil {
			return err
		}
		return recomputePoolAllocated(tx, volume.PoolID)
	})
}

func (s *BoltStore) GetVolume(id string) (*types.Volume, error) {
	var vol types.Volume
	err := s.db.View(func(tx *bolt.Tx) error {
		return get(tx, bucketVolumes, id, &vol)
	})
	if err != nil {
		return nil, err
	}
	return &vol, nil
}

func (s *BoltStore) GetVolumeByName(name string) (*types.Volume, error) {
	var found *types.Volume
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketVolumes).ForEach(func(k, v []byte) error {
			var vol types.Volume
			if err := json.Unmarshal(v, &vol); err != nil {
				return err
			}
			if vol.Name == name {
				found = &vol
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, fmt.Errorf("volume not found: %s", name)
	}
	return found, nil
}

func (s *BoltStore) ListVolumes() ([]*types.Volume, error) {
	var vols []*types.Volume
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketVolumes).ForEach(func(k, v []byte) error {
			var vol types.Volume
			if err := json.Unmarshal(v, &vol); err != nil {
				return err
			}
			vols = append(vols, &vol)
			return nil
		})
	})
	return vols, err
}

func (s *BoltStore) ListVolumesByPool(poolID string) ([]*types.Volume, error) {
	vols, err := s.ListVolumes()
	if err != nil {
		return nil, err
	}
	var filtered []*types.Volume
	for _, v := range vols {
		if v.PoolID == poolID {
			filtered = append(filtered, v)
		}
	}
	return filtered, nil
}

func (s *BoltStore) UpdateVolume(volume *types.Volume) error {
	return s.CreateVolume(volume)
}

func (s *BoltStore) DeleteVolume(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		var vol types.Volume
		if err := get(tx, bucketVolumes, id, &vol); err != nil {
			return err
		}
		if err := tx.Bucket(bucketVolumes).Delete([]byte(id)); err != nil {
			return err
		}
		return recomputePoolAllocated(tx, vol.PoolID)
	})
}

// --- Snapshot operations ---

func (s *BoltStore) CreateSnapshot(snap *types.Snapshot) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return put(tx, bucketSnapshots, snap.ID, snap)
	})
}

func (s *BoltStore) GetSnapshot(id string) (*types.Snapshot, error) {
	var snap types.Snapshot
	err := s.db.View(func(tx *bolt.Tx) error {
		return get(tx, bucketSnapshots, id, &snap)
	})
	if err != nil {
		return nil, err
	}
	return &snap, nil
}

func (s *BoltStore) ListSnapshots() ([]*types.Snapshot, error) {
	var snaps []*types.Snapshot
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSnapshots).ForEach(func(k, v []byte) error {
			var snap types.Snapshot
			if err := json.Unmarshal(v, &snap); err != nil {
				return err
			}
			snaps = append(snaps, &snap)
			return nil
		})
	})
	return snaps, err
}

func (s *BoltStore) ListSnapshotsByVolume(volumeID string) ([]*types.Snapshot, error) {
	snaps, err := s.ListSnapshots()
	if err != nil {
		return nil, err
	}
	var filtered []*types.Snapshot
	for _, sn := range snaps {
		if sn.VolumeID == volumeID {
			filtered = append(filtered, sn)
		}
	}
	return filtered, nil
}

func (s *BoltStore) UpdateSnapshot(snap *types.Snapshot) error {
	return s.CreateSnapshot(snap)
}

func (s *BoltStore) DeleteSnapshot(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSnapshots).Delete([]byte(id))
	})
}

// --- Network operations ---

func (s *BoltStore) CreateNetwork(network *types.Network) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return put(tx, bucketNetworks, network.ID, network)
	})
}

func (s *BoltStore) GetNetwork(id string) (*types.Network, error) {
	var network types.Network
	err := s.db.View(func(tx *bolt.Tx) error {
		return get(tx, bucketNetworks, id, &network)
	})
	if err != nil {
		return nil, err
	}
	return &network, nil
}

func (s *BoltStore) GetNetworkByName(name string) (*types.Network, error) {
	var found *types.Network
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketNetworks).ForEach(func(k, v []byte) error {
			var network types.Network
			if err := json.Unmarshal(v, &network); err != nil {
				return err
			}
			if network.Name == name {
				found = &network
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, fmt.Errorf("network not found: %s", name)
	}
	return found, nil
}

func (s *BoltStore) ListNetworks() ([]*types.Network, error) {
	var networks []*types.Network
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketNetworks).ForEach(func(k, v []byte) error {
			var network types.Network
			if err := json.Unmarshal(v, &network); err != nil {
				return err
			}
			networks = append(networks, &network)
			return nil
		})
	})
	return networks, err
}

func (s *BoltStore) UpdateNetwork(network *types.Network) error {
	return s.CreateNetwork(network)
}

func (s *BoltStore) DeleteNetwork(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketNetworks).Delete([]byte(id))
	})
}

// --- IP allocation operations ---

func (s *BoltStore) CreateIPAllocation(alloc *types.IPAllocation) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return put(tx, bucketIPAllocations, alloc.ID, alloc)
	})
}

func (s *BoltStore) GetIPAllocation(id string) (*types.IPAllocation, error) {
	var alloc types.IPAllocation
	err := s.db.View(func(tx *bolt.Tx) error {
		return get(tx, bucketIPAllocations, id, &alloc)
	})
	if err != nil {
		return nil, err
	}
	return &alloc, nil
}

func (s *BoltStore) ListIPAllocations(networkID string) ([]*types.IPAllocation, error) {
	var allocs []*types.IPAllocation
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketIPAllocations).ForEach(func(k, v []byte) error {
			var alloc types.IPAllocation
			if err := json.Unmarshal(v, &alloc); err != nil {
				return err
			}
			if alloc.NetworkID == networkID {
				allocs = append(allocs, &alloc)
			}
			return nil
		})
	})
	return allocs, err
}

func (s *BoltStore) UpdateIPAllocation(alloc *types.IPAllocation) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return put(tx, bucketIPAllocations, alloc.ID, alloc)
	})
}

func (s *BoltStore) DeleteIPAllocationsByNetwork(networkID string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketIPAllocations)
		var toDelete [][]byte
		err := b.ForEach(func(k, v []byte) error {
			var alloc types.IPAllocation
			if err := json.Unmarshal(v, &alloc); err != nil {
				return err
			}
			if alloc.NetworkID == networkID {
				key := make([]byte, len(k))
				copy(key, k)
				toDelete = append(toDelete, key)
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, k := range toDelete {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}

// --- Task operations ---

func (s *BoltStore) CreateTask(task *types.Task) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return put(tx, bucketTasks, task.ID, task)
	})
}

func (s *BoltStore) GetTask(id string) (*types.Task, error) {
	var task types.Task
	err := s.db.View(func(tx *bolt.Tx) error {
		return get(tx, bucketTasks, id, &task)
	})
	if err != nil {
		return nil, err
	}
	return &task, nil
}

func (s *BoltStore) ListTasks() ([]*types.Task, error) {
	var tasks []*types.Task
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketTasks).ForEach(func(k, v []byte) error {
			var task types.Task
			if err := json.Unmarshal(v, &task); err != nil {
				return err
			}
			tasks = append(tasks, &task)
			return nil
		})
	})
	return tasks, err
}

func (s *BoltStore) ListTasksByTarget(targetType, targetID string) ([]*types.Task, error) {
	tasks, err := s.ListTasks()
	if err != nil {
		return nil, err
	}
	var filtered []*types.Task
	for _, t := range tasks {
		if t.TargetType == targetType && t.TargetID == targetID {
			filtered = append(filtered, t)
		}
	}
	return filtered, nil
}

func (s *BoltStore) ListTasksByNode(nodeID string) ([]*types.Task, error) {
	tasks, err := s.ListTasks()
	if err != nil {
		return nil, err
	}
	var filtered []*types.Task
	for _, t := range tasks {
		if t.NodeID == nodeID {
			filtered = append(filtered, t)
		}
	}
	return filtered, nil
}

func (s *BoltStore) UpdateTask(task *types.Task) error {
	return s.CreateTask(task)
}

func (s *BoltStore) DeleteTask(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketTasks).Delete([]byte(id))
	})
}

// --- User operations ---

func (s *BoltStore) CreateUser(user *types.User) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return put(tx, bucketUsers, user.ID, user)
	})
}

func (s *BoltStore) GetUser(id string) (*types.User, error) {
	var user types.User
	err := s.db.View(func(tx *bolt.Tx) error {
		return get(tx, bucketUsers, id, &user)
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *BoltStore) GetUserByUsername(username string) (*types.User, error) {
	var found *types.User
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketUsers).ForEach(func(k, v []byte) error {
			var user types.User
			if err := json.Unmarshal(v, &user); err != nil {
				return err
			}
			if user.Username == username {
				found = &user
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, fmt.Errorf("user not found: %s", username)
	}
	return found, nil
}

func (s *BoltStore) ListUsers() ([]*types.User, error) {
	var users []*types.User
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketUsers).ForEach(func(k, v []byte) error {
			var user types.User
			if err := json.Unmarshal(v, &user); err != nil {
				return err
			}
			users = append(users, &user)
			return nil
		})
	})
	return users, err
}

func (s *BoltStore) UpdateUser(user *types.User) error {
	return s.CreateUser(user)
}

func (s *BoltStore) DeleteUser(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketUsers).Delete([]byte(id))
	})
}

// --- Role operations ---

func (s *BoltStore) CreateRole(role *types.Role) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return put(tx, bucketRoles, role.ID, role)
	})
}

func (s *BoltStore) GetRole(id string) (*types.Role, error) {
	var role types.Role
	err := s.db.View(func(tx *bolt.Tx) error {
		return get(tx, bucketRoles, id, &role)
	})
	if err != nil {
		return nil, err
	}
	return &role, nil
}

func (s *BoltStore) ListRoles() ([]*types.Role, error) {
	var roles []*types.Role
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketRoles).ForEach(func(k, v []byte) error {
			var role types.Role
			if err := json.Unmarshal(v, &role); err != nil {
				return err
			}
			roles = append(roles, &role)
			return nil
		})
	})
	return roles, err
}

func (s *BoltStore) UpdateRole(role *types.Role) error {
	return s.CreateRole(role)
}

func (s *BoltStore) DeleteRole(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketRoles).Delete([]byte(id))
	})
}

// --- Audit log ---
//
// Keyed by a monotonic bucket sequence rather than AuditLog.ID so that a
// bucket cursor walked backwards from Last() yields entries in
// insertion/commit order, newest first, without parsing timestamps.

func (s *BoltStore) AppendAuditLog(entry *types.AuditLog) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketAuditLogs)
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		data, err := json.Marshal(entry)
		if err != nil {
			return err
		}
		return b.Put(itob(seq), data)
	})
}

func (s *BoltStore) ListAuditLogs(limit int) ([]*types.AuditLog, error) {
	var entries []*types.AuditLog
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketAuditLogs).Cursor()
		for k, v := c.Last(); k != nil && (limit <= 0 || len(entries) < limit); k, v = c.Prev() {
			var entry types.AuditLog
			if err := json.Unmarshal(v, &entry); err != nil {
				return err
			}
			entries = append(entries, &entry)
		}
		return nil
	})
	return entries, err
}

func itob(v uint64) []byte {
	return []byte(fmt.Sprintf("%020d", v))
}

// --- Certificate authority ---

func (s *BoltStore) SaveCA(data []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketCA).Put([]byte("ca"), data)
	})
}

func (s *BoltStore) GetCA() ([]byte, error) {
	var data []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketCA).Get([]byte("ca"))
		if raw == nil {
			return fmt.Errorf("CA not found")
		}
		data = make([]byte, len(raw))
		copy(data, raw)
		return nil
	})
	return data, err
}
