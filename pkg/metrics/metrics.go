package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Cluster metrics
	NodesTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "vcp_nodes_total",
			Help: "Total number of nodes by status",
		},
		[]string{"status"},
	)

	VMsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "vcp_vms_total",
			Help: "Total number of VMs by status",
		},
		[]string{"status"},
	)

	VolumesTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "vcp_volumes_total",
			Help: "Total number of volumes by status",
		},
		[]string{"status"},
	)

	SnapshotsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "vcp_snapshots_total",
			Help: "Total number of snapshots",
		},
	)

	StoragePoolsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "vcp_storage_pools_total",
			Help: "Total number of storage pools by type",
		},
		[]string{"pool_type"},
	)

	NetworksTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "vcp_networks_total",
			Help: "Total number of networks",
		},
	)

	IPPoolAllocated = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "vcp_ip_pool_allocated",
			Help: "Allocated IP addresses per network",
		},
		[]string{"network_id"},
	)

	IPPoolCapacity = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "vcp_ip_pool_capacity",
			Help: "Total addressable IP addresses per network",
		},
		[]string{"network_id"},
	)

	StoragePoolAllocatedGB = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "vcp_storage_pool_allocated_gb",
			Help: "Allocated storage per pool in GB",
		},
		[]string{"pool_id"},
	)

	// Raft metrics
	RaftLeader = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "vcp_raft_is_leader",
			Help: "Whether this node is the Raft leader (1 = leader, 0 = follower)",
		},
	)

	RaftPeers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "vcp_raft_peers_total",
			Help: "Total number of Raft peers in the cluster",
		},
	)

	RaftLogIndex = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "vcp_raft_log_index",
			Help: "Current Raft log index",
		},
	)

	RaftAppliedIndex = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "vcp_raft_applied_index",
			Help: "Last applied Raft log index",
		},
	)

	// API metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vcp_api_requests_total",
			Help: "Total number of REST API requests by route and status",
		},
		[]string{"route", "status"},
	)

	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vcp_api_request_duration_seconds",
			Help:    "REST API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)

	// RPC transport metrics (C2)
	RPCRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vcp_rpc_requests_total",
			Help: "Total number of agent RPC requests by method and outcome",
		},
		[]string{"method", "outcome"},
	)

	RPCRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vcp_rpc_request_duration_seconds",
			Help:    "Agent RPC round-trip duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	RPCTimeoutsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vcp_rpc_timeouts_total",
			Help: "Total number of agent RPC calls that hit their deadline",
		},
		[]string{"method"},
	)

	AgentConnectionsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "vcp_agent_connections_total",
			Help: "Number of node agents currently connected",
		},
	)

	AgentReconnectsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "vcp_agent_reconnects_total",
			Help: "Total number of agent transport reconnects observed by the registry",
		},
	)

	// Scheduler metrics
	SchedulingLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "vcp_scheduling_latency_seconds",
			Help:    "Time taken to place a VM on a node in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	VMsScheduled = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "vcp_vms_scheduled_total",
			Help: "Total number of VMs successfully placed",
		},
	)

	VMsSchedulingFailed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "vcp_vms_scheduling_failed_total",
			Help: "Total number of VM placements that found no eligible node",
		},
	)

	// VM lifecycle operation metrics
	VMCreateDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "vcp_vm_create_duration_seconds",
			Help:    "Time taken to create a VM in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	VMStartDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "vcp_vm_start_duration_seconds",
			Help:    "Time taken to start a VM in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	VMStopDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "vcp_vm_stop_duration_seconds",
			Help:    "Time taken to stop a VM in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	VMDeleteDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "vcp_vm_delete_duration_seconds",
			Help:    "Time taken to delete a VM in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Volume/snapshot operation metrics
	VolumeCreateDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "vcp_volume_create_duration_seconds",
			Help:    "Time taken to create a volume in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	VolumeDeleteDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "vcp_volume_delete_duration_seconds",
			Help:    "Time taken to delete a volume in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	SnapshotCreateDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "vcp_snapshot_create_duration_seconds",
			Help:    "Time taken to create a snapshot in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	SnapshotRestoreDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "vcp_snapshot_restore_duration_seconds",
			Help:    "Time taken to restore a snapshot in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// IPAM metrics
	IPAllocationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "vcp_ip_allocation_duration_seconds",
			Help:    "Time taken to allocate an IP address in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	IPExhaustedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vcp_ip_exhausted_total",
			Help: "Total number of IP allocation attempts that found no free address",
		},
		[]string{"network_id"},
	)

	// Raft operation metrics
	RaftApplyDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "vcp_raft_apply_duration_seconds",
			Help:    "Time taken to apply a Raft log entry in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	RaftCommitDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "vcp_raft_commit_duration_seconds",
			Help:    "Time taken to commit a Raft log entry in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Reconciler metrics
	ReconciliationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "vcp_reconciliation_duration_seconds",
			Help:    "Time taken for a reconciliation cycle in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	ReconciliationCyclesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "vcp_reconciliation_cycles_total",
			Help: "Total number of reconciliation cycles completed",
		},
	)

	ReconciliationDriftTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vcp_reconciliation_drift_total",
			Help: "Total number of entities found drifted from desired state during reconciliation",
		},
		[]string{"entity"},
	)

	// Task metrics
	TasksTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "vcp_tasks_total",
			Help: "Total number of tasks by status",
		},
		[]string{"status"},
	)
)

func init() {
	prometheus.MustRegister(NodesTotal)
	prometheus.MustRegister(VMsTotal)
	prometheus.MustRegister(VolumesTotal)
	prometheus.MustRegister(SnapshotsTotal)
	prometheus.MustRegister(StoragePoolsTotal)
	prometheus.MustRegister(NetworksTotal)
	prometheus.MustRegister(IPPoolAllocated)
	prometheus.MustRegister(IPPoolCapacity)
	prometheus.MustRegister(StoragePoolAllocatedGB)
	prometheus.MustRegister(RaftLeader)
	prometheus.MustRegister(RaftPeers)
	prometheus.MustRegister(RaftLogIndex)
	prometheus.MustRegister(RaftAppliedIndex)
	prometheus.MustRegister(APIRequestsTotal)
	prometheus.MustRegister(APIRequestDuration)
	prometheus.MustRegister(RPCRequestsTotal)
	prometheus.MustRegister(RPCRequestDuration)
	prometheus.MustRegister(RPCTimeoutsTotal)
	prometheus.MustRegister(AgentConnectionsTotal)
	prometheus.MustRegister(AgentReconnectsTotal)
	prometheus.MustRegister(SchedulingLatency)
	prometheus.MustRegister(VMsScheduled)
	prometheus.MustRegister(VMsSchedulingFailed)

	prometheus.MustRegister(VMCreateDuration)
	prometheus.MustRegister(VMStartDuration)
	prometheus.MustRegister(VMStopDuration)
	prometheus.MustRegister(VMDeleteDuration)
	prometheus.MustRegister(VolumeCreateDuration)
	prometheus.MustRegister(VolumeDeleteDuration)
	prometheus.MustRegister(SnapshotCreateDuration)
	prometheus.MustRegister(SnapshotRestoreDuration)
	prometheus.MustRegister(IPAllocationDuration)
	prometheus.MustRegister(IPExhaustedTotal)
	prometheus.MustRegister(RaftApplyDuration)
	prometheus.MustRegister(RaftCommitDuration)
	prometheus.MustRegister(ReconciliationDuration)
	prometheus.MustRegister(ReconciliationCyclesTotal)
	prometheus.MustRegister(ReconciliationDriftTotal)
	prometheus.MustRegister(TasksTotal)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since timer started
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
