// Package orchestrator implements the VM/Volume/Snapshot/Network/Node
// lifecycles: validate preconditions, move the row to an intent state
// alongside a Task row, dispatch to the target node's agent, and settle
// the row on response. Mutating calls write an AuditLog entry on their
// validation, agent-failure and success paths; audit lists the paths
// that return without one.
package orchestrator

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cuemby/vcp/pkg/events"
	"github.com/cuemby/vcp/pkg/ipam"
	"github.com/cuemby/vcp/pkg/log"
	"github.com/cuemby/vcp/pkg/manager"
	"github.com/cuemby/vcp/pkg/rpc"
	"github.com/cuemby/vcp/pkg/scheduler"
	"github.com/cuemby/vcp/pkg/types"
)

// Service wires the manager (durable state), the scheduler (placement),
// the agent registry (RPC dispatch) and the IP allocator into the
// orchestration operations pkg/api and pkg/rpc-side request handlers
// call.
type Service struct {
	manager   *manager.Manager
	scheduler *scheduler.Scheduler
	registry  *rpc.Registry
	ipam      *ipam.Allocator
	logger    zerolog.Logger
}

// NewService builds a Service over already-constructed dependencies.
func NewService(mgr *manager.Manager, sched *scheduler.Scheduler, registry *rpc.Registry, alloc *ipam.Allocator) *Service {
	return &Service{
		manager:   mgr,
		scheduler: sched,
		registry:  registry,
		ipam:      alloc,
		logger:    log.WithComponent("orchestrator"),
	}
}

// publish emits evtType to the manager's event broker with the given
// metadata; a nil broker (not yet started) is a silent no-op.
func (s *Service) publish(evtType events.EventType, message string, metadata map[string]string) {
	broker := s.manager.GetEventBroker()
	if broker == nil {
		return
	}
	broker.Publish(&events.Event{
		ID:        uuid.NewString(),
		Type:      evtType,
		Timestamp: time.Now(),
		Message:   message,
		Metadata:  metadata,
	})
}

// marshalOrNil is a convenience for building a Task's Payload/Result
// from an arbitrary value, swallowing marshal errors into a nil field
// rather than failing the surrounding operation over a logging detail.
func marshalOrNil(v any) json.RawMessage {
	if v == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return data
}

// unmarshalInto decodes an agent response payload into dst.
func unmarshalInto(data json.RawMessage, dst any) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, dst)
}
