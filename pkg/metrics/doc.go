// Package metrics defines and registers the Prometheus metrics exposed by
// the controller and agent processes: cluster inventory gauges (nodes,
// VMs, volumes, storage pools, networks, IP pool occupancy), Raft health,
// RPC transport counters/histograms, scheduler and reconciliation
// counters, and per-operation latency histograms for the VM/volume/
// snapshot lifecycle.
//
// Metrics are package-level vars registered at init via
// prometheus.MustRegister, in the teacher's style: no runtime
// registration, Handler() wraps promhttp.Handler() for mounting at
// /metrics, and Collector periodically samples manager state into the
// gauges that are cheaper to compute from a full scan than to update
// inline at every mutation (NodesTotal, VMsTotal, IPPoolAllocated, ...).
// Counters and histograms tied to a single operation (SchedulingLatency,
// IPAllocationDuration, RaftCommitDuration, ReconciliationDriftTotal) are
// instead updated inline by the callers that observe the event, using the
// Timer helper for histogram observations. RPCRequestsTotal and
// VMCreateDuration are registered but no caller updates them.
package metrics
