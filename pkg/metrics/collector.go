package metrics

import (
	"time"

	"github.com/cuemby/vcp/pkg/manager"
	"github.com/cuemby/vcp/pkg/types"
)

// Collector periodically samples manager state into gauges. Histograms
// and counters are updated inline by the callers that observe them
// (pkg/orchestrator, pkg/scheduler, pkg/ipam, pkg/manager); this collector only owns the
// point-in-time aggregates that are cheapest to compute from a full scan.
type Collector struct {
	manager *manager.Manager
	stopCh  chan struct{}
}

// NewCollector creates a new metrics collector
func NewCollector(mgr *manager.Manager) *Collector {
	return &Collector{
		manager: mgr,
		stopCh:  make(chan struct{}),
	}
}

// Start begins collecting metrics
func (c *Collector) Start() {
	ticker := time.NewTicker(15 * time.Second)
	go func() {
		c.collect()
		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	c.collectNodeMetrics()
	c.collectVMMetrics()
	c.collectStorageMetrics()
	c.collectNetworkMetrics()
	c.collectTaskMetrics()
	c.collectRaftMetrics()
}

func (c *Collector) collectNodeMetrics() {
	nodes, err := c.manager.ListNodes()
	if err != nil {
		return
	}

	counts := make(map[types.NodeStatus]int)
	for _, n := range nodes {
		counts[n.Status]++
	}
	for _, status := range []types.NodeStatus{
		types.NodeStatusOnline, types.NodeStatusOffline,
		types.NodeStatusMaintenance, types.NodeStatusError,
	} {
		NodesTotal.WithLabelValues(string(status)).Set(float64(counts[status]))
	}
}

func (c *Collector) collectVMMetrics() {
	vms, err := c.manager.ListVMs()
	if err != nil {
		return
	}

	counts := make(map[types.VMStatus]int)
	for _, vm := range vms {
		counts[vm.Status]++
	}
	for status, n := range counts {
		VMsTotal.WithLabelValues(string(status)).Set(float64(n))
	}
}

func (c *Collector) collectStorageMetrics() {
	pools, err := c.manager.ListStoragePools()
	if err == nil {
		byType := make(map[types.StoragePoolType]int)
		for _, p := range pools {
			byType[p.Type]++
			StoragePoolAllocatedGB.WithLabelValues(p.ID).Set(p.AllocatedGB)
		}
		for t, n := range byType {
			StoragePoolsTotal.WithLabelValues(string(t)).Set(float64(n))
		}
	}

	volumes, err := c.manager.ListVolumes()
	if err == nil {
		counts := make(map[types.VolumeStatus]int)
		for _, v := range volumes {
			counts[v.Status]++
		}
		for status, n := range counts {
			VolumesTotal.WithLabelValues(string(status)).Set(float64(n))
		}
	}

	snapshots, err := c.manager.ListSnapshots()
	if err == nil {
		SnapshotsTotal.Set(float64(len(snapshots)))
	}
}

func (c *Collector) collectNetworkMetrics() {
	networks, err := c.manager.ListNetworks()
	if err != nil {
		return
	}
	NetworksTotal.Set(float64(len(networks)))

	for _, n := range networks {
		allocations, err := c.manager.ListIPAllocations(n.ID)
		if err != nil {
			continue
		}
		allocated := 0
		for _, a := range allocations {
			if a.Status == types.IPStatusAllocated {
				allocated++
			}
		}
		IPPoolAllocated.WithLabelValues(n.ID).Set(float64(allocated))
		IPPoolCapacity.WithLabelValues(n.ID).Set(float64(len(allocations)))
	}
}

func (c *Collector) collectTaskMetrics() {
	tasks, err := c.manager.ListTasks()
	if err != nil {
		return
	}

	counts := make(map[types.TaskStatus]int)
	for _, t := range tasks {
		counts[t.Status]++
	}
	for status, n := range counts {
		TasksTotal.WithLabelValues(string(status)).Set(float64(n))
	}
}

func (c *Collector) collectRaftMetrics() {
	if c.manager.IsLeader() {
		RaftLeader.Set(1)
	} else {
		RaftLeader.Set(0)
	}

	stats := c.manager.GetRaftStats()
	if stats == nil {
		return
	}
	if lastIndex, ok := stats["last_log_index"].(uint64); ok {
		RaftLogIndex.Set(float64(lastIndex))
	}
	if appliedIndex, ok := stats["applied_index"].(uint64); ok {
		RaftAppliedIndex.Set(float64(appliedIndex))
	}
	RaftPeers.Set(1)
}
