package agent

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/cuemby/vcp/pkg/rpc"
)

// wsClientConn is the agent-side counterpart to pkg/rpc's unexported
// server wsConn: it adapts a *websocket.Conn to rpc.Conn so the same
// Frame wire shape carries both directions of the connection. Writes
// are serialized with writeMu since gorilla/websocket connections are
// not safe for concurrent writers.
type wsClientConn struct {
	ws      *websocket.Conn
	writeMu sync.Mutex
}

func newWSClientConn(ws *websocket.Conn) *wsClientConn {
	ws.SetReadLimit(rpc.MaxFrameSize)
	return &wsClientConn{ws: ws}
}

func (c *wsClientConn) Send(f rpc.Frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

func (c *wsClientConn) Close() error {
	return c.ws.Close()
}

// ReadFrame blocks for the next frame on the connection.
func (c *wsClientConn) ReadFrame() (rpc.Frame, error) {
	var f rpc.Frame
	err := c.ws.ReadJSON(&f)
	return f, err
}

// dial opens the websocket connection to the controller's agent
// endpoint, presenting token as a bearer Authorization header for
// rpc.ServeAgent's TokenValidator to check.
func dial(controllerURL, token string) (*wsClientConn, error) {
	header := http.Header{}
	if token != "" {
		header.Set("Authorization", token)
	}
	ws, _, err := websocket.DefaultDialer.Dial(controllerURL, header)
	if err != nil {
		return nil, err
	}
	return newWSClientConn(ws), nil
}
