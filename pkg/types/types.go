package types

import (
	"encoding/json"
	"time"
)

// Node represents a physical or virtual host running the node agent
// and a hypervisor.
type Node struct {
	ID                string            `json:"id"`
	Hostname          string            `json:"hostname"`
	IPAddress         string            `json:"ip_address"`
	Status            NodeStatus        `json:"status"`
	HypervisorType    string            `json:"hypervisor_type"`
	HypervisorVersion string            `json:"hypervisor_version"`
	CPUCores          int               `json:"cpu_cores"`
	CPUThreads        int               `json:"cpu_threads"`
	MemoryTotalBytes  int64             `json:"memory_total_bytes"`
	DiskTotalBytes    int64             `json:"disk_total_bytes"`
	Metadata          map[string]string `json:"metadata,omitempty"`
	LastHeartbeat     time.Time         `json:"last_heartbeat"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
}

// NodeStatus is the lifecycle status of a Node.
type NodeStatus string

const (
	NodeStatusOnline      NodeStatus = "online"
	NodeStatusOffline     NodeStatus = "offline"
	NodeStatusMaintenance NodeStatus = "maintenance"
	NodeStatusError       NodeStatus = "error"
)

// NICSpec describes one virtual network interface attached to a VM.
type NICSpec struct {
	NetworkID string `json:"network_id"`
	MAC       string `json:"mac,omitempty"`
	IP        string `json:"ip,omitempty"`
	Model     string `json:"model"`
	Bridge    string `json:"bridge,omitempty"`
}

// VM represents a virtual machine.
type VM struct {
	ID        string     `json:"id"`
	UUID      string     `json:"uuid"`
	Name      string     `json:"name"`
	NodeID    string     `json:"node_id,omitempty"`
	Status    VMStatus   `json:"status"`
	VCPU      int        `json:"vcpu"`
	MemoryMB  int        `json:"memory_mb"`
	OSType    string     `json:"os_type"`
	DiskIDs   []string   `json:"disk_ids"`
	NICs      []*NICSpec `json:"network_interfaces"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	StartedAt *time.Time `json:"started_at,omitempty"`
	StoppedAt *time.Time `json:"stopped_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// VMStatus is the lifecycle status of a VM.
type VMStatus string

const (
	VMStatusStopped   VMStatus = "stopped"
	VMStatusStarting  VMStatus = "starting"
	VMStatusRunning   VMStatus = "running"
	VMStatusStopping  VMStatus = "stopping"
	VMStatusPaused    VMStatus = "paused"
	VMStatusRestarting VMStatus = "restarting"
	VMStatusMigrating VMStatus = "migrating"
	VMStatusError     VMStatus = "error"
)

// StoragePoolType identifies the storage backend of a pool.
type StoragePoolType string

const (
	StoragePoolNFS   StoragePoolType = "nfs"
	StoragePoolLVM   StoragePoolType = "lvm"
	StoragePoolCeph  StoragePoolType = "ceph"
	StoragePoolISCSI StoragePoolType = "iscsi"
)

// StoragePoolStatus is the lifecycle status of a StoragePool.
type StoragePoolStatus string

const (
	StoragePoolActive   StoragePoolStatus = "active"
	StoragePoolInactive StoragePoolStatus = "inactive"
	StoragePoolErrorSt  StoragePoolStatus = "error"
)

// NFSPoolConfig is the type-tagged config for an nfs StoragePool.
type NFSPoolConfig struct {
	Server     string `json:"server"`
	ExportPath string `json:"export_path"`
}

// LVMPoolConfig is the type-tagged config for an lvm StoragePool.
type LVMPoolConfig struct {
	VolumeGroup string `json:"volume_group"`
}

// CephPoolConfig is the type-tagged config for a ceph StoragePool.
type CephPoolConfig struct {
	Monitors []string `json:"monitors"`
	PoolName string   `json:"pool_name"`
	Keyring  string   `json:"keyring,omitempty"`
}

// ISCSIPoolConfig is the type-tagged config for an iscsi StoragePool.
type ISCSIPoolConfig struct {
	Portal string `json:"portal"`
	Target string `json:"target"`
}

// StoragePool is a named storage backend on a node from which
// volumes are carved.
type StoragePool struct {
	ID            string            `json:"id"`
	Name          string            `json:"name"`
	Type          StoragePoolType   `json:"type"`
	Status        StoragePoolStatus `json:"status"`
	NFSConfig     *NFSPoolConfig    `json:"nfs_config,omitempty"`
	LVMConfig     *LVMPoolConfig    `json:"lvm_config,omitempty"`
	CephConfig    *CephPoolConfig   `json:"ceph_config,omitempty"`
	ISCSIConfig   *ISCSIPoolConfig  `json:"iscsi_config,omitempty"`
	CapacityGB    float64           `json:"capacity_gb"`
	AllocatedGB   float64           `json:"allocated_gb"`
	AvailableGB   float64           `json:"available_gb"`
	NodeID        string            `json:"node_id,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

// VolumeType identifies the on-disk format of a Volume.
type VolumeType string

const (
	VolumeQCOW2 VolumeType = "qcow2"
	VolumeRaw   VolumeType = "raw"
	VolumeCeph  VolumeType = "ceph"
	VolumeNFS   VolumeType = "nfs"
	VolumeLVM   VolumeType = "lvm"
)

// VolumeStatus is the lifecycle status of a Volume.
type VolumeStatus string

const (
	VolumeStatusCreating VolumeStatus = "creating"
	VolumeStatusAvailable VolumeStatus = "available"
	VolumeStatusInUse    VolumeStatus = "in_use"
	VolumeStatusDeleting VolumeStatus = "deleting"
	VolumeStatusError    VolumeStatus = "error"
)

// VolumeMetadata carries the open-schema extras a Volume may track,
// such as the source URL used to seed its initial contents.
type VolumeMetadata struct {
	Source string `json:"source,omitempty"`
}

// Volume is a virtual disk, addressable and attachable to VMs.
type Volume struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Type      VolumeType     `json:"type"`
	SizeGB    float64        `json:"size_gb"`
	PoolID    string         `json:"pool_id"`
	Path      string         `json:"path,omitempty"`
	Status    VolumeStatus   `json:"status"`
	VMID      string         `json:"vm_id,omitempty"`
	Metadata  VolumeMetadata `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// SnapshotStatus is the lifecycle status of a Snapshot.
type SnapshotStatus string

const (
	SnapshotStatusCreating  SnapshotStatus = "creating"
	SnapshotStatusAvailable SnapshotStatus = "available"
	SnapshotStatusDeleting  SnapshotStatus = "deleting"
	SnapshotStatusError     SnapshotStatus = "error"
)

// SnapshotMode is how a snapshot was (or will be) captured.
type SnapshotMode string

const (
	SnapshotModeLive    SnapshotMode = "live"
	SnapshotModeOffline SnapshotMode = "offline"
)

// Snapshot is a point-in-time image of a volume, live- or
// offline-captured.
type Snapshot struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	VolumeID    string         `json:"volume_id"`
	Status      SnapshotStatus `json:"status"`
	SizeGB      *float64       `json:"size_gb,omitempty"`
	SnapshotTag string         `json:"snapshot_tag,omitempty"`
	Description string         `json:"description,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// NetworkType identifies the layer-2 implementation of a Network.
type NetworkType string

const (
	NetworkBridge NetworkType = "bridge"
	NetworkOVS    NetworkType = "ovs"
)

// NetworkStatus is the lifecycle status of a Network.
type NetworkStatus string

const (
	NetworkStatusActive   NetworkStatus = "active"
	NetworkStatusInactive NetworkStatus = "inactive"
	NetworkStatusError    NetworkStatus = "error"
)

// Network is a layer-2 domain on a node, optionally VLAN-tagged, with
// a CIDR for IPAM.
type Network struct {
	ID        string        `json:"id"`
	Name      string        `json:"name"`
	Type      NetworkType   `json:"type"`
	CIDR      string        `json:"cidr"`
	Gateway   string        `json:"gateway,omitempty"`
	MTU       int           `json:"mtu"`
	VLANID    *int          `json:"vlan_id,omitempty"`
	NodeID    string        `json:"node_id"`
	Status    NetworkStatus `json:"status"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// IPAllocationStatus is the lifecycle status of a single address row.
type IPAllocationStatus string

const (
	IPStatusAvailable IPAllocationStatus = "available"
	IPStatusAllocated IPAllocationStatus = "allocated"
	IPStatusReserved  IPAllocationStatus = "reserved"
)

// IPAllocation is a single address row within a Network.
type IPAllocation struct {
	ID           string             `json:"id"`
	NetworkID    string             `json:"network_id"`
	IPAddress    string             `json:"ip_address"`
	IPNumeric    uint32             `json:"ip_numeric"`
	MAC          string             `json:"mac,omitempty"`
	VMID         string             `json:"vm_id,omitempty"`
	Status       IPAllocationStatus `json:"status"`
	AllocatedAt  *time.Time         `json:"allocated_at,omitempty"`
}

// TaskStatus is the lifecycle status of a Task.
type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
	TaskStatusCancelled TaskStatus = "cancelled"
)

// Task is the durable record of an asynchronous operation, used for
// progress reporting. Its id is not sent to the agent, whose idempotency
// cache is keyed by RPC frame id.
type Task struct {
	ID         string          `json:"id"`
	TaskType   string          `json:"task_type"`
	Status     TaskStatus      `json:"status"`
	Progress   int             `json:"progress"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	Result     json.RawMessage `json:"result,omitempty"`
	Error      string          `json:"error,omitempty"`
	TargetType string          `json:"target_type"`
	TargetID   string          `json:"target_id"`
	NodeID     string          `json:"node_id,omitempty"`
	RetryCount int             `json:"retry_count"`
	MaxRetries int             `json:"max_retries"`
	CreatedBy  string          `json:"created_by"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
	FinishedAt *time.Time      `json:"finished_at,omitempty"`
}

// Terminal reports whether the task has reached a terminal status.
func (t *Task) Terminal() bool {
	switch t.Status {
	case TaskStatusCompleted, TaskStatusFailed, TaskStatusCancelled:
		return true
	default:
		return false
	}
}

// User is an account that can authenticate against the REST API.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	RoleIDs      []string  `json:"role_ids"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Role groups a set of permissions under a name.
type Role struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Permissions []string `json:"permissions"`
}

// Well-known permission strings, "<resource>:<verb>".
const (
	PermVMRead        = "vm:read"
	PermVMWrite       = "vm:write"
	PermVolumeRead     = "volume:read"
	PermVolumeWrite    = "volume:write"
	PermNetworkRead    = "network:read"
	PermNetworkWrite   = "network:write"
	PermNodeRead       = "node:read"
	PermNodeWrite      = "node:write"
	PermAdmin          = "admin:*"
)

// AuditLog is an append-only record of a mutating action.
type AuditLog struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	Action     string    `json:"action"`
	TargetType string    `json:"target_type"`
	TargetID   string    `json:"target_id"`
	Details    string    `json:"details,omitempty"`
	Success    bool      `json:"success"`
	CreatedAt  time.Time `json:"created_at"`
}
