// Package rpc implements the controller side of the agent RPC transport:
// JSON frames carried over a gorilla/websocket connection, a correlation
// table per node with per-request deadlines, and a Registry keyed by
// node id that dispatches "to node" with no cross-node fallback.
//
// The wire contract is unchanged from a conventional JSON-RPC-over-duplex
// design: id/type/method/payload/error frames, at most one response per
// request id, stream frames before a terminal one are progress-only,
// rpc.cancel is advisory notification on timeout. ServeAgent owns the
// websocket handshake and the read pump; Registry.Dispatch is what
// pkg/orchestrator calls to make a synchronous-looking RPC to a specific
// node's agent.
//
// Registry takes its node-lifecycle hooks (OnRegister/OnOffline) as
// plain function values: the hooks land in pkg/orchestrator, which
// imports pkg/rpc, so calling it directly from here would be an import
// cycle.
package rpc
