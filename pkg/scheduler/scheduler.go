package scheduler

import (
	"fmt"

	"github.com/cuemby/vcp/pkg/log"
	"github.com/cuemby/vcp/pkg/manager"
	"github.com/cuemby/vcp/pkg/metrics"
	"github.com/cuemby/vcp/pkg/types"
	"github.com/rs/zerolog"
)

// Scheduler selects a placement node for a VM. It is invoked synchronously
// by pkg/orchestrator's CreateVM path, not run as a background loop:
// placement is a one-shot decision made at the moment a VM needs a node,
// not a continuously reconciled desired-state like a service scheduler.
type Scheduler struct {
	manager *manager.Manager
	logger  zerolog.Logger
}

// NewScheduler creates a new scheduler.
func NewScheduler(mgr *manager.Manager) *Scheduler {
	return &Scheduler{
		manager: mgr,
		logger:  log.WithComponent("scheduler"),
	}
}

// candidate is a node scored for placement.
type candidate struct {
	node        *types.Node
	freeVCPU    int
	freeMemMB   int64
	allocatedVM int
}

// SelectNode filters online nodes with enough free vCPU/memory for vm,
// then picks the candidate with the most free resources (least-allocated
// scoring, spreading away from already-busy nodes).
func (s *Scheduler) SelectNode(vm *types.VM) (*types.Node, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.SchedulingLatency)

	nodes, err := s.manager.ListNodes()
	if err != nil {
		metrics.VMsSchedulingFailed.Inc()
		return nil, fmt.Errorf("list nodes: %w", err)
	}

	candidates, err := s.buildCandidates(nodes, vm)
	if err != nil {
		metrics.VMsSchedulingFailed.Inc()
		return nil, err
	}

	if len(candidates) == 0 {
		metrics.VMsSchedulingFailed.Inc()
		return nil, fmt.Errorf("no node has %d vcpu / %dMB free for placement", vm.VCPU, vm.MemoryMB)
	}

	best := candidates[0]
	for _, c := range candidates[1:] {
		if scoreOf(c) > scoreOf(best) {
			best = c
		}
	}

	metrics.VMsScheduled.Inc()
	s.logger.Info().
		Str("vm_id", vm.ID).
		Str("node_id", best.node.ID).
		Int("free_vcpu", best.freeVCPU).
		Int64("free_mem_mb", best.freeMemMB).
		Msg("selected node for VM placement")

	return best.node, nil
}

// buildCandidates filters to online nodes with enough free capacity for vm.
func (s *Scheduler) buildCandidates(nodes []*types.Node, vm *types.VM) ([]candidate, error) {
	var candidates []candidate

	for _, node := range nodes {
		if node.Status != types.NodeStatusOnline {
			continue
		}

		vms, err := s.manager.ListVMsByNode(node.ID)
		if err != nil {
			return nil, fmt.Errorf("list vms on node %s: %w", node.ID, err)
		}

		var usedVCPU int
		var usedMemMB int64
		for _, v := range vms {
			if v.Status == types.VMStatusError {
				continue
			}
			usedVCPU += v.VCPU
			usedMemMB += int64(v.MemoryMB)
		}

		freeVCPU := node.CPUThreads - usedVCPU
		freeMemMB := node.MemoryTotalBytes/(1024*1024) - usedMemMB

		if freeVCPU < vm.VCPU || freeMemMB < int64(vm.MemoryMB) {
			continue
		}

		candidates = append(candidates, candidate{
			node:        node,
			freeVCPU:    freeVCPU,
			freeMemMB:   freeMemMB,
			allocatedVM: len(vms),
		})
	}

	return candidates, nil
}

// scoreOf ranks candidates by free memory first (the more contended
// resource for VM workloads), then free vCPU as a tiebreaker.
func scoreOf(c candidate) int64 {
	return c.freeMemMB*1000 + int64(c.freeVCPU)
}
