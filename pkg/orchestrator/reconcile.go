package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/vcp/pkg/apperr"
	"github.com/cuemby/vcp/pkg/events"
	"github.com/cuemby/vcp/pkg/log"
	"github.com/cuemby/vcp/pkg/metrics"
	"github.com/cuemby/vcp/pkg/types"
)

// reconcileInterval matches spec.md §4.4's "scheduled per-minute" sweep.
const reconcileInterval = time.Minute

// stuckAfter is how long a target may sit in a transient (intent) state
// with no terminal task outcome before the sweep re-queries the agent
// for ground truth.
const stuckAfter = 2 * time.Minute

// transientVMStates lists the intent states a VM can be stuck in after
// a timed-out or offline-node agent call, per spec.md §4.4's failure
// semantics.
var transientVMStates = map[types.VMStatus]bool{
	types.VMStatusStarting:   true,
	types.VMStatusStopping:   true,
	types.VMStatusRestarting: true,
	types.VMStatusMigrating:  true,
}

// Reconciler periodically resolves entities left in a transient state
// by an agent RPC that never completed, and marks nodes offline once their
// heartbeat goes stale. A VM or volume is never moved on a timeout alone:
// each resolution re-queries the agent first.
type Reconciler struct {
	svc    *Service
	logger zerolog.Logger
	mu     sync.Mutex
	stopCh chan struct{}
}

// NewReconciler wraps svc with a scheduled sweep.
func NewReconciler(svc *Service) *Reconciler {
	return &Reconciler{
		svc:    svc,
		logger: log.WithComponent("reconciler"),
		stopCh: make(chan struct{}),
	}
}

// Start begins the reconciliation loop in a background goroutine.
func (r *Reconciler) Start() {
	go r.run()
}

// Stop ends the reconciliation loop.
func (r *Reconciler) Stop() {
	close(r.stopCh)
}

func (r *Reconciler) run() {
	ticker := time.NewTicker(reconcileInterval)
	defer ticker.Stop()

	r.logger.Info().Msg("reconciler started")
	for {
		select {
		case <-ticker.C:
			r.reconcile()
		case <-r.stopCh:
			r.logger.Info().Msg("reconciler stopped")
			return
		}
	}
}

func (r *Reconciler) reconcile() {
	timer := metrics.NewTimer()
	defer func() {
		timer.ObserveDuration(metrics.ReconciliationDuration)
		metrics.ReconciliationCyclesTotal.Inc()
	}()

	r.mu.Lock()
	defer r.mu.Unlock()

	r.svc.ReconcileStaleNodes(time.Now())
	r.reconcileVMs()
	r.reconcileVolumes()
}

// reconcileVMs re-queries the agent for any VM stuck in a transient
// state past stuckAfter, using the result to complete the transition or
// mark it error; a still-unreachable node leaves the row untouched for
// the next sweep.
func (r *Reconciler) reconcileVMs() {
	vms, err := r.svc.manager.ListVMs()
	if err != nil {
		r.logger.Error().Err(err).Msg("failed to list VMs for reconciliation")
		return
	}

	now := time.Now()
	for _, vm := range vms {
		if !transientVMStates[vm.Status] {
			continue
		}
		if now.Sub(vm.UpdatedAt) < stuckAfter {
			continue
		}

		metrics.ReconciliationDriftTotal.WithLabelValues("vm").Inc()

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		result, err := r.svc.registry.Dispatch(ctx, vm.NodeID, "vm.describe", map[string]string{"vm_id": vm.ID})
		cancel()
		if err != nil {
			ae := apperr.AsAppError(err)
			if ae.Kind == apperr.KindTransport {
				r.logger.Warn().Str("vm_id", vm.ID).Str("node_id", vm.NodeID).Msg("node still unreachable, leaving VM in transient state")
				continue
			}
			r.markVMError(vm, ae)
			continue
		}

		var describe struct {
			Status string `json:"status"`
		}
		if jerr := unmarshalInto(result, &describe); jerr != nil {
			r.logger.Error().Err(jerr).Str("vm_id", vm.ID).Msg("malformed vm.describe response")
			continue
		}

		switch describe.Status {
		case "running":
			vm.Status = types.VMStatusRunning
		case "stopped":
			vm.Status = types.VMStatusStopped
		default:
			r.markVMError(vm, apperr.New(apperr.HypervisorError, apperr.KindDriver, "agent reports unexpected state %q", describe.Status))
			continue
		}
		vm.UpdatedAt = time.Now()
		if err := r.svc.manager.UpdateVM(vm); err != nil {
			r.logger.Error().Err(err).Str("vm_id", vm.ID).Msg("failed to reconcile VM state")
		}
	}
}

func (r *Reconciler) markVMError(vm *types.VM, err *apperr.Error) {
	vm.Status = types.VMStatusError
	vm.UpdatedAt = time.Now()
	if uerr := r.svc.manager.UpdateVM(vm); uerr != nil {
		r.logger.Error().Err(uerr).Str("vm_id", vm.ID).Msg("failed to mark VM error during reconciliation")
		return
	}
	r.svc.publish(events.EventVMError, err.Message, map[string]string{"vm_id": vm.ID})
}

// reconcileVolumes resolves volumes stuck in creating or deleting,
// mirroring reconcileVMs with volume.describe.
func (r *Reconciler) reconcileVolumes() {
	volumes, err := r.svc.manager.ListVolumes()
	if err != nil {
		r.logger.Error().Err(err).Msg("failed to list volumes for reconciliation")
		return
	}

	now := time.Now()
	for _, vol := range volumes {
		if vol.Status != types.VolumeStatusCreating && vol.Status != types.VolumeStatusDeleting {
			continue
		}
		if now.Sub(vol.UpdatedAt) < stuckAfter {
			continue
		}

		metrics.ReconciliationDriftTotal.WithLabelValues("volume").Inc()

		pool, perr := r.svc.manager.GetStoragePool(vol.PoolID)
		if perr != nil {
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		result, err := r.svc.registry.Dispatch(ctx, pool.NodeID, "volume.describe", map[string]any{"pool": pool, "volume": vol})
		cancel()
		if err != nil {
			ae := apperr.AsAppError(err)
			if ae.Kind == apperr.KindTransport {
				r.logger.Warn().Str("volume_id", vol.ID).Str("node_id", pool.NodeID).Msg("node still unreachable, leaving volume in transient state")
				continue
			}
			vol.Status = types.VolumeStatusError
			vol.UpdatedAt = time.Now()
			_ = r.svc.manager.UpdateVolume(vol)
			continue
		}

		var describe struct {
			Exists bool `json:"exists"`
		}
		if jerr := unmarshalInto(result, &describe); jerr != nil {
			r.logger.Error().Err(jerr).Str("volume_id", vol.ID).Msg("malformed volume.describe response")
			continue
		}

		switch {
		case vol.Status == types.VolumeStatusCreating && describe.Exists:
			vol.Status = types.VolumeStatusAvailable
		case vol.Status == types.VolumeStatusDeleting && !describe.Exists:
			_ = r.svc.manager.DeleteVolume(vol.ID)
			continue
		default:
			continue
		}
		vol.UpdatedAt = time.Now()
		if err := r.svc.manager.UpdateVolume(vol); err != nil {
			r.logger.Error().Err(err).Str("volume_id", vol.ID).Msg("failed to reconcile volume state")
		}
	}
}
