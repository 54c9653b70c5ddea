// Package types defines the core data structures shared across the
// control plane: nodes, VMs, storage pools, volumes, snapshots,
// networks, IP allocations, tasks, RBAC primitives, and audit entries.
//
// All types are plain structs, JSON-serializable for storage in
// pkg/storage and for wire transfer in pkg/rpc and pkg/api. Mutations
// are not synchronized by these types themselves; callers (pkg/storage,
// pkg/orchestrator) are responsible for concurrency control.
package types
