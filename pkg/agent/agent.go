package agent

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cuemby/vcp/pkg/agent/driver/hypervisor"
	"github.com/cuemby/vcp/pkg/agent/driver/network"
	"github.com/cuemby/vcp/pkg/agent/driver/storage"
	"github.com/cuemby/vcp/pkg/apperr"
	"github.com/cuemby/vcp/pkg/log"
	"github.com/cuemby/vcp/pkg/rpc"
	"github.com/cuemby/vcp/pkg/types"
)

// reconnectBackoff is how long the agent waits before redialing the
// controller after a dropped connection or a failed register handshake.
const reconnectBackoff = 5 * time.Second

// Config carries everything NewAgent needs to identify this node to the
// controller and reach it over the network.
type Config struct {
	NodeID        string
	Hostname      string
	IPAddress     string
	ControllerURL string // ws(s)://host:port/ws/agent
	JoinToken     string
}

// Agent dials the controller's agent websocket endpoint, registers this
// node, and answers every vm.*/volume.*/snapshot.* call the controller
// dispatches to it against the local hypervisor/storage/network
// drivers. Generalized from a polling worker loop to genuine duplex
// push: the controller originates every call over the one connection
// instead of the agent pulling a work queue on an interval.
type Agent struct {
	cfg        Config
	hypervisor hypervisor.Driver
	storage    storage.Driver
	network    network.Driver
	dispatcher *dispatcher
	logger     zerolog.Logger

	mu      sync.RWMutex
	conn    *wsClientConn
	stopCh  chan struct{}
	stopped bool
}

// NewAgent wires cfg's identity to the three local drivers and builds
// the method table every inbound request frame is routed through.
func NewAgent(cfg Config, hv hypervisor.Driver, st storage.Driver, nw network.Driver) *Agent {
	a := &Agent{
		cfg:        cfg,
		hypervisor: hv,
		storage:    st,
		network:    nw,
		dispatcher: newDispatcher(),
		logger:     log.WithNodeID(cfg.NodeID),
		stopCh:     make(chan struct{}),
	}
	a.registerHandlers()
	return a
}

func (a *Agent) registerHandlers() {
	d := a.dispatcher
	d.register("vm.define_and_start", a.handleDefineAndStart)
	d.register("vm.restart", a.handleRestart)
	d.register("vm.stop", a.handleStop)
	d.register("vm.migrate", a.handleMigrate)
	d.register("vm.attach_disk", a.handleAttachDisk)
	d.register("vm.detach_disk", a.handleDetachDisk)
	d.register("vm.describe", a.handleVMDescribe)

	for _, poolType := range []types.StoragePoolType{
		types.StoragePoolNFS, types.StoragePoolLVM, types.StoragePoolCeph, types.StoragePoolISCSI,
	} {
		d.register("volume.create_"+string(poolType), a.handleVolumeCreate)
	}
	d.register("volume.resize", a.handleVolumeResize)
	d.register("volume.clone", a.handleVolumeClone)
	d.register("volume.delete", a.handleVolumeDelete)
	d.register("volume.describe", a.handleVolumeDescribe)

	d.register("snapshot.create_live", a.handleSnapshotCreateLive)
	d.register("snapshot.create_offline", a.handleSnapshotCreateOffline)
	d.register("snapshot.delete", a.handleSnapshotDelete)
	d.register("snapshot.restore", a.handleSnapshotRestore)
}

// Start begins the connect-serve-reconnect loop in a background
// goroutine and returns immediately.
func (a *Agent) Start(ctx context.Context) {
	go a.run(ctx)
	go a.sweepLoop(ctx)
}

// Stop ends the connect loop and closes the live connection, if any.
func (a *Agent) Stop() {
	a.mu.Lock()
	if a.stopped {
		a.mu.Unlock()
		return
	}
	a.stopped = true
	close(a.stopCh)
	conn := a.conn
	a.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
}

func (a *Agent) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-a.stopCh:
			return
		default:
		}

		conn, err := a.connect()
		if err != nil {
			a.logger.Warn().Err(err).Msg("connect to controller failed, retrying")
			if !a.sleep(ctx, reconnectBackoff) {
				return
			}
			continue
		}

		a.logger.Info().Msg("connected and registered with controller")
		a.serve(ctx, conn)

		select {
		case <-ctx.Done():
			return
		case <-a.stopCh:
			return
		default:
		}
		a.sleep(ctx, reconnectBackoff)
	}
}

// sleep waits d or returns early (false) on shutdown.
func (a *Agent) sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	case <-a.stopCh:
		return false
	}
}

// connect dials the controller and completes the register handshake,
// blocking for the response frame that carries our confirmed node id.
func (a *Agent) connect() (*wsClientConn, error) {
	conn, err := dial(a.cfg.ControllerURL, a.cfg.JoinToken)
	if err != nil {
		return nil, err
	}

	info := rpc.RegistrationInfo{
		NodeID:    a.cfg.NodeID,
		Hostname:  a.cfg.Hostname,
		IPAddress: a.cfg.IPAddress,
		Methods:   a.dispatcher.methods(),
	}
	payload, err := json.Marshal(info)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}

	reqID := uuid.NewString()
	if err := conn.Send(rpc.Frame{ID: reqID, Type: rpc.FrameRequest, Method: "register", Payload: payload}); err != nil {
		_ = conn.Close()
		return nil, err
	}

	resp, err := conn.ReadFrame()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	if resp.Error != nil {
		_ = conn.Close()
		return nil, apperr.New(resp.Error.Code, apperr.KindTransport, "register rejected: %s", resp.Error.Message)
	}

	a.mu.Lock()
	a.conn = conn
	a.mu.Unlock()
	return conn, nil
}

// serve pumps frames between the socket and the dispatcher until the
// connection breaks, running a heartbeat alongside it; it blocks for
// the life of the connection.
func (a *Agent) serve(ctx context.Context, conn *wsClientConn) {
	heartbeatStop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		a.heartbeatLoop(conn, heartbeatStop)
	}()

	defer func() {
		close(heartbeatStop)
		wg.Wait()
		_ = conn.Close()
		a.mu.Lock()
		if a.conn == conn {
			a.conn = nil
		}
		a.mu.Unlock()
	}()

	for {
		f, err := conn.ReadFrame()
		if err != nil {
			a.logger.Warn().Err(err).Msg("controller connection closed")
			return
		}

		switch f.Type {
		case rpc.FrameRequest:
			go a.respond(ctx, conn, f)
		case rpc.FrameNotification:
			// rpc.cancel is advisory only; every handler's driver call is
			// already idempotent, so there is nothing to cancel out from
			// under it.
		}
	}
}

func (a *Agent) respond(ctx context.Context, conn *wsClientConn, f rpc.Frame) {
	resp := a.dispatcher.handle(ctx, f)
	if err := conn.Send(resp); err != nil {
		a.logger.Error().Err(err).Str("method", f.Method).Msg("failed to send response")
	}
}

func (a *Agent) heartbeatLoop(conn *wsClientConn, stop <-chan struct{}) {
	ticker := time.NewTicker(rpc.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			hb := rpc.Frame{ID: uuid.NewString(), Type: rpc.FrameNotification, Method: "heartbeat"}
			if err := conn.Send(hb); err != nil {
				a.logger.Warn().Err(err).Msg("heartbeat send failed")
				return
			}
		case <-stop:
			return
		}
	}
}

func (a *Agent) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			a.dispatcher.sweep(time.Now())
		case <-ctx.Done():
			return
		case <-a.stopCh:
			return
		}
	}
}
