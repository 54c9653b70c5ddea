package agent

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/cuemby/vcp/pkg/apperr"
	"github.com/cuemby/vcp/pkg/rpc"
)

// handlerFunc executes one RPC method against the agent's local
// drivers and returns the value to marshal into the response payload.
// A nil, nil result marshals to an empty object.
type handlerFunc func(ctx context.Context, payload json.RawMessage) (any, error)

// idempotencyTTL bounds how long a completed call's result is kept for
// replay. spec.md's controller-visible timeouts top out at longTimeout
// (300s) in pkg/rpc; this gives a retried dispatch room to land well
// after that before the entry is swept, without keeping every call
// forever.
const idempotencyTTL = 10 * time.Minute

// cacheEntry is one completed call's replayable outcome. The correlation
// id the agent actually receives is the wire Frame.ID that
// Registry.Dispatch generates fresh per call, not the domain Task.ID
// (Dispatch never threads the latter onto the frame) — so the cache is
// keyed by frame id.
type cacheEntry struct {
	result    json.RawMessage
	errFrame  *rpc.FrameError
	expiresAt time.Time
}

// dispatcher routes inbound request frames to a handler by method name
// and replays a cached outcome for a frame id it has already executed,
// so a controller retry after a lost response never double-applies a
// side-effecting call.
type dispatcher struct {
	handlers map[string]handlerFunc

	mu    sync.Mutex
	cache map[string]cacheEntry
}

func newDispatcher() *dispatcher {
	return &dispatcher{
		handlers: make(map[string]handlerFunc),
		cache:    make(map[string]cacheEntry),
	}
}

func (d *dispatcher) register(method string, h handlerFunc) {
	d.handlers[method] = h
}

// methods lists every registered method name, advertised to the
// controller in the register frame's RegistrationInfo.Methods.
func (d *dispatcher) methods() []string {
	names := make([]string, 0, len(d.handlers))
	for name := range d.handlers {
		names = append(names, name)
	}
	return names
}

// handle executes f and returns the response frame to send back,
// reusing a cached outcome when f.ID was already executed.
func (d *dispatcher) handle(ctx context.Context, f rpc.Frame) rpc.Frame {
	d.mu.Lock()
	if cached, ok := d.cache[f.ID]; ok {
		d.mu.Unlock()
		return rpc.Frame{ID: f.ID, Type: rpc.FrameResponse, Payload: cached.result, Error: cached.errFrame}
	}
	d.mu.Unlock()

	h, ok := d.handlers[f.Method]
	if !ok {
		fe := &rpc.FrameError{Code: apperr.MethodNotFound, Message: "unknown method " + f.Method}
		d.store(f.ID, nil, fe)
		return rpc.Frame{ID: f.ID, Type: rpc.FrameResponse, Error: fe}
	}

	result, err := h(ctx, f.Payload)
	if err != nil {
		ae := apperr.AsAppError(err)
		fe := &rpc.FrameError{Code: ae.Code, Message: ae.Message}
		d.store(f.ID, nil, fe)
		return rpc.Frame{ID: f.ID, Type: rpc.FrameResponse, Error: fe}
	}

	data, merr := json.Marshal(result)
	if merr != nil {
		fe := &rpc.FrameError{Code: apperr.Internal, Message: "marshal response: " + merr.Error()}
		d.store(f.ID, nil, fe)
		return rpc.Frame{ID: f.ID, Type: rpc.FrameResponse, Error: fe}
	}

	d.store(f.ID, data, nil)
	return rpc.Frame{ID: f.ID, Type: rpc.FrameResponse, Payload: data}
}

func (d *dispatcher) store(frameID string, result json.RawMessage, errFrame *rpc.FrameError) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cache[frameID] = cacheEntry{result: result, errFrame: errFrame, expiresAt: time.Now().Add(idempotencyTTL)}
}

// sweep drops cache entries past their TTL; run periodically from a
// background goroutine for the life of the agent.
func (d *dispatcher) sweep(now time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for id, entry := range d.cache {
		if now.After(entry.expiresAt) {
			delete(d.cache, id)
		}
	}
}

// unmarshalInto decodes payload into v, wrapping any failure as a
// validation-kind apperr.Error so a malformed request frame never
// surfaces as a raw encoding/json error.
func unmarshalInto(payload json.RawMessage, v any) error {
	if len(payload) == 0 {
		return apperr.New(apperr.InvalidRequest, apperr.KindValidation, "empty payload")
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return apperr.Wrap(apperr.InvalidRequest, apperr.KindValidation, err, "decode request payload")
	}
	return nil
}
