// Package storage provides BoltDB-backed persistence for control-plane
// state: nodes, VMs, storage pools, volumes, snapshots, networks, IP
// allocations, tasks, users/roles, and the audit log. Each entity lives in
// its own bucket, JSON-marshaled and keyed by ID; Store is the only
// interface its users reach it through (the Raft FSM writes, pkg/manager
// reads, pkg/security's CertAuthority keeps the CA in it), so the bbolt
// transaction boundary stays internal to this package.
//
// Aggregate invariants that span multiple rows — a storage pool's
// AllocatedGB always equal to the sum of its volumes' SizeGB — are
// recomputed from a full bucket scan inside the same transaction that
// changes the underlying rows, rather than maintained as a separately
// updatable counter that could drift.
package storage
