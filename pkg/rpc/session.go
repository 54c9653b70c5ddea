package rpc

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/cuemby/vcp/pkg/log"
)

// Upgrader is the shared websocket upgrader for the agent endpoint.
// Its buffer sizes are I/O buffers only; the frame size cap is the
// SetReadLimit(MaxFrameSize) that newWSConn applies.
var Upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// wsConn adapts a *websocket.Conn to the Conn interface. Writes are
// serialized with writeMu because gorilla/websocket connections are not
// safe for concurrent writers.
type wsConn struct {
	ws      *websocket.Conn
	writeMu sync.Mutex
}

func newWSConn(ws *websocket.Conn) *wsConn {
	ws.SetReadLimit(MaxFrameSize)
	return &wsConn{ws: ws}
}

func (c *wsConn) Send(f Frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

func (c *wsConn) Close() error {
	return c.ws.Close()
}

// TokenValidator checks a join token and returns its role, matching
// (*manager.TokenManager).ValidateToken's signature without pkg/rpc
// importing pkg/manager.
type TokenValidator func(token string) (role string, err error)

// ServeAgent upgrades r to a websocket, reads the agent's register frame,
// authenticates it against validate, and then pumps frames between the
// socket and registry until the connection closes. It blocks until the
// session ends, so callers run it in its own goroutine per connection.
func ServeAgent(registry *Registry, validate TokenValidator, w http.ResponseWriter, r *http.Request) {
	logger := log.WithComponent("rpc")

	ws, err := Upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error().Err(err).Msg("websocket upgrade failed")
		return
	}
	conn := newWSConn(ws)

	var first Frame
	if err := ws.ReadJSON(&first); err != nil {
		logger.Warn().Err(err).Msg("agent closed before registering")
		_ = conn.Close()
		return
	}
	if first.Method != "register" {
		_ = conn.Send(Frame{ID: first.ID, Type: FrameResponse, Error: &FrameError{
			Code: "INVALID_REQUEST", Message: "first frame must be a register request",
		}})
		_ = conn.Close()
		return
	}

	var info RegistrationInfo
	if err := json.Unmarshal(first.Payload, &info); err != nil {
		_ = conn.Send(Frame{ID: first.ID, Type: FrameResponse, Error: &FrameError{
			Code: "INVALID_REQUEST", Message: "malformed register payload",
		}})
		_ = conn.Close()
		return
	}

	if token := r.Header.Get("Authorization"); validate != nil {
		if _, err := validate(token); err != nil {
			_ = conn.Send(Frame{ID: first.ID, Type: FrameResponse, Error: &FrameError{
				Code: "UNAUTHORIZED", Message: "invalid join token",
			}})
			_ = conn.Close()
			return
		}
	}

	registry.Register(info, conn)
	_ = conn.Send(Frame{ID: first.ID, Type: FrameResponse, Payload: mustMarshal(map[string]string{"node_id": info.NodeID})})

	defer registry.Unregister(info.NodeID)

	for {
		var f Frame
		if err := ws.ReadJSON(&f); err != nil {
			logger.Info().Str("node_id", info.NodeID).Err(err).Msg("agent connection closed")
			return
		}
		registry.HandleFrame(info.NodeID, f)
	}
}

// HeartbeatInterval is the period at which pkg/agent's heartbeat loop
// sends heartbeat notifications.
const HeartbeatInterval = heartbeatEvery
