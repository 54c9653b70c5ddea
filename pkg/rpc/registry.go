package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cuemby/vcp/pkg/apperr"
	"github.com/cuemby/vcp/pkg/log"
)

// Conn is the minimal transport a registered connection needs: write one
// frame, or tear the connection down. session.go's websocket wrapper and
// the in-memory fake used by tests both satisfy it.
type Conn interface {
	Send(Frame) error
	Close() error
}

// RegistrationInfo is the payload an agent sends on its first frame.
type RegistrationInfo struct {
	NodeID    string   `json:"node_id"`
	Hostname  string   `json:"hostname"`
	IPAddress string   `json:"ip_address"`
	Methods   []string `json:"methods,omitempty"`
}

const (
	defaultTimeout   = 30 * time.Second
	longTimeout      = 300 * time.Second
	heartbeatEvery   = 30 * time.Second
	heartbeatTimeout = 90 * time.Second
)

// pendingCall is one in-flight request waiting for its response.
type pendingCall struct {
	ch       chan Frame
	deadline time.Time
}

// connection is one registered agent's live transport plus its
// correlation table and advertised method set.
type connection struct {
	nodeID        string
	conn          Conn
	methods       map[string]bool
	lastHeartbeat time.Time

	mu      sync.Mutex
	pending map[string]*pendingCall
}

func newConnection(nodeID string, c Conn, methods []string) *connection {
	m := make(map[string]bool, len(methods))
	for _, name := range methods {
		m[name] = true
	}
	return &connection{
		nodeID:        nodeID,
		conn:          c,
		methods:       m,
		lastHeartbeat: time.Now(),
		pending:       make(map[string]*pendingCall),
	}
}

// failAll resolves every pending call on this connection with err and
// clears the table; used on supersede and on transport close.
func (c *connection) failAll(code apperr.Code, message string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, p := range c.pending {
		p.ch <- Frame{ID: id, Type: FrameResponse, Error: &FrameError{Code: code, Message: message}}
		delete(c.pending, id)
	}
}

// RegisterHooks lets the owner of a Registry react to connection
// lifecycle events without pkg/rpc importing pkg/orchestrator (which
// imports pkg/rpc, so that would be an import cycle).
type RegisterHooks struct {
	OnRegister func(info RegistrationInfo)
	OnOffline  func(nodeID string)
}

// Registry tracks one live connection per node id. Dispatch sends a
// request to a specific node and blocks until its response arrives, its
// deadline expires, or the connection is superseded/closed.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]*connection
	hooks RegisterHooks
}

// NewRegistry creates an empty Registry.
func NewRegistry(hooks RegisterHooks) *Registry {
	return &Registry{
		conns: make(map[string]*connection),
		hooks: hooks,
	}
}

// Register upserts the connection for nodeID, superseding and closing
// any prior connection for that id with TRANSPORT_SUPERSEDED.
func (r *Registry) Register(info RegistrationInfo, c Conn) {
	r.mu.Lock()
	old, existed := r.conns[info.NodeID]
	conn := newConnection(info.NodeID, c, info.Methods)
	r.conns[info.NodeID] = conn
	r.mu.Unlock()

	if existed {
		old.failAll(apperr.TransportSuperseded, fmt.Sprintf("node %s reconnected from a new session", info.NodeID))
		_ = old.conn.Close()
	}

	log.WithComponent("rpc").Info().
		Str("node_id", info.NodeID).
		Str("hostname", info.Hostname).
		Bool("superseded", existed).
		Msg("agent registered")

	if r.hooks.OnRegister != nil {
		r.hooks.OnRegister(info)
	}
}

// Unregister tears down nodeID's connection, failing any pending calls
// with TRANSPORT_CLOSED, and invokes the offline hook.
func (r *Registry) Unregister(nodeID string) {
	r.mu.Lock()
	conn, ok := r.conns[nodeID]
	if ok {
		delete(r.conns, nodeID)
	}
	r.mu.Unlock()

	if !ok {
		return
	}
	conn.failAll(apperr.TransportClosed, fmt.Sprintf("connection to node %s closed", nodeID))

	if r.hooks.OnOffline != nil {
		r.hooks.OnOffline(nodeID)
	}
}

// Heartbeat records a heartbeat notification from nodeID.
func (r *Registry) Heartbeat(nodeID string) {
	r.mu.RLock()
	conn, ok := r.conns[nodeID]
	r.mu.RUnlock()
	if ok {
		conn.mu.Lock()
		conn.lastHeartbeat = time.Now()
		conn.mu.Unlock()
	}
}

// IsOnline reports whether nodeID currently has a live connection.
func (r *Registry) IsOnline(nodeID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.conns[nodeID]
	return ok
}

// StaleNodes returns the ids of connected nodes whose last heartbeat is
// older than heartbeatTimeout, for a reconciliation sweep to mark offline.
func (r *Registry) StaleNodes(now time.Time) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var stale []string
	for id, conn := range r.conns {
		conn.mu.Lock()
		last := conn.lastHeartbeat
		conn.mu.Unlock()
		if now.Sub(last) > heartbeatTimeout {
			stale = append(stale, id)
		}
	}
	return stale
}

// Dispatch sends method/payload to nodeID and blocks for its response.
// A zero ctx deadline uses defaultTimeout; callers needing the long-op
// override pass a context with up to longTimeout remaining.
func (r *Registry) Dispatch(ctx context.Context, nodeID, method string, payload any) (json.RawMessage, error) {
	r.mu.RLock()
	conn, ok := r.conns[nodeID]
	r.mu.RUnlock()
	if !ok {
		return nil, apperr.New(apperr.NodeOffline, apperr.KindTransport, "node %s is not connected", nodeID)
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, apperr.Wrap(apperr.InvalidRequest, apperr.KindValidation, err, "marshal payload for %s", method)
	}

	id := uuid.NewString()
	deadline := time.Now().Add(defaultTimeout)
	if d, hasDeadline := ctx.Deadline(); hasDeadline {
		deadline = d
	}

	ch := make(chan Frame, 1)
	conn.mu.Lock()
	conn.pending[id] = &pendingCall{ch: ch, deadline: deadline}
	conn.mu.Unlock()

	frame := Frame{ID: id, Type: FrameRequest, Method: method, Payload: data}
	if err := conn.conn.Send(frame); err != nil {
		conn.mu.Lock()
		delete(conn.pending, id)
		conn.mu.Unlock()
		return nil, apperr.Wrap(apperr.TransportClosed, apperr.KindTransport, err, "send %s to %s", method, nodeID)
	}

	timer := time.NewTimer(time.Until(deadline))
	defer timer.Stop()

	select {
	case resp := <-ch:
		if resp.Error != nil {
			return nil, errorFromFrame(resp.Error)
		}
		return resp.Payload, nil
	case <-timer.C:
		conn.mu.Lock()
		delete(conn.pending, id)
		conn.mu.Unlock()
		// best-effort cancellation notice; the agent is responsible for
		// idempotent cleanup if it eventually executes the call anyway.
		_ = conn.conn.Send(Frame{
			ID:     uuid.NewString(),
			Type:   FrameNotification,
			Method: "rpc.cancel",
			Payload: mustMarshal(map[string]string{"id": id}),
		})
		return nil, apperr.New(apperr.Timeout, apperr.KindTransport, "%s to %s timed out", method, nodeID)
	case <-ctx.Done():
		conn.mu.Lock()
		delete(conn.pending, id)
		conn.mu.Unlock()
		return nil, apperr.Wrap(apperr.Timeout, apperr.KindTransport, ctx.Err(), "%s to %s cancelled", method, nodeID)
	}
}

// HandleFrame routes an inbound frame from nodeID: response/terminal
// stream frames are delivered to the waiting Dispatch call, heartbeat
// notifications update the connection's liveness, everything else is
// logged and dropped (this controller never receives agent-originated
// requests in the current method set).
func (r *Registry) HandleFrame(nodeID string, f Frame) {
	r.mu.RLock()
	conn, ok := r.conns[nodeID]
	r.mu.RUnlock()
	if !ok {
		return
	}

	switch f.Type {
	case FrameResponse:
		r.deliver(conn, f)
	case FrameStream:
		if isTerminalStream(f) {
			r.deliver(conn, f)
		}
		// non-terminal stream frames are progress-only in the current
		// method set; nothing here consumes them yet.
	case FrameNotification:
		if f.Method == "heartbeat" {
			r.Heartbeat(nodeID)
		}
	}
}

func (r *Registry) deliver(conn *connection, f Frame) {
	conn.mu.Lock()
	p, ok := conn.pending[f.ID]
	if ok {
		delete(conn.pending, f.ID)
	}
	conn.mu.Unlock()
	if ok {
		p.ch <- f
	}
}

func mustMarshal(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return data
}
