package orchestrator

import (
	"context"
	"encoding/json"

	"github.com/cuemby/vcp/pkg/apperr"
	"github.com/cuemby/vcp/pkg/types"
)

// dispatchOutcome classifies a finished agent call so the caller can
// decide how to settle both the Task row and the target entity.
type dispatchOutcome struct {
	result json.RawMessage
	err    *apperr.Error
	// transportFailure is true when the RPC never reached a driver
	// (timeout, offline node, closed connection). VM and volume
	// operations then leave the entity in its intent state for the
	// reconciliation sweep to resolve later; snapshot operations move the
	// snapshot to error on either kind of failure, since the sweep does
	// not cover snapshots. false means the agent answered with a
	// driver-level error and the entity moves to error immediately.
	transportFailure bool
}

// dispatch calls method on nodeID and classifies the result. task is
// marked completed/failed as a side effect either way.
func (s *Service) dispatch(ctx context.Context, task *types.Task, nodeID, method string, payload any) dispatchOutcome {
	result, err := s.registry.Dispatch(ctx, nodeID, method, payload)
	if err == nil {
		s.completeTask(task, result)
		return dispatchOutcome{result: result}
	}

	ae := apperr.AsAppError(err)
	s.failTask(task, ae)
	return dispatchOutcome{err: ae, transportFailure: ae.Kind == apperr.KindTransport}
}
