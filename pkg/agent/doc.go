// Package agent implements the node agent: the process that runs
// alongside libvirt and the local storage/network stack on every
// hypervisor host, dials the controller over a single websocket
// connection, and executes the vm.*/volume.*/snapshot.* calls the
// controller's orchestrator dispatches to it.
//
// Where pkg/rpc owns the controller side of the wire contract (the
// Registry that dispatches "to node" and blocks for a response), this
// package owns the agent side: register, reconnect with backoff,
// heartbeat, and a method table that turns an inbound request frame
// into a driver call and a response frame. The agent never originates
// a request itself — every frame it sends is either the initial
// register, a heartbeat notification, or a reply to something the
// controller asked it to do.
package agent
