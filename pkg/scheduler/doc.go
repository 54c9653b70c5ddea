// Package scheduler picks a placement node for a VM that was created
// without an explicit node_id. SelectNode filters to online nodes with
// enough free vCPU and memory (capacity minus the sum of VMs already
// placed there) and scores survivors by free memory, spreading new VMs
// onto the least-loaded candidate rather than round-robin.
//
// Unlike the teacher's continuously-reconciled service scheduler, this is
// a one-shot decision: pkg/orchestrator calls SelectNode once per VM
// create without a node_id (migration targets are caller-supplied); it
// does not run a background loop.
package scheduler
