// Package manager implements the control-plane node: a single-node Raft
// group over pkg/storage, the cluster certificate authority, join-token
// issuance for agent nodes, and the event broker that the API and
// orchestrator subscribe to.
//
// Every mutation goes through Manager.Apply, which proposes a Command to
// Raft and blocks until the stateFSM has applied it to the store. Reads
// bypass Raft entirely and go straight to the local store, since a
// single-node group has no replica lag to account for.
//
// Multi-controller replication (adding further Raft voters) is explicitly
// out of scope: Bootstrap always forms a one-member configuration, and
// there is no Join/AddVoter path. The Raft log is kept anyway as the
// durability and crash-recovery layer for a single controller, and as a
// seam a future HA mode could extend without changing the FSM command set.
package manager
