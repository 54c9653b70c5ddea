package api

import (
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/cuemby/vcp/pkg/apperr"
	"github.com/cuemby/vcp/pkg/events"
)

// wsUpgrader mirrors pkg/rpc's agent upgrader; buffer sizes are sized
// for notification payloads rather than RPC frames.
var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// handleWSFrontend streams pkg/events.Broker notifications to a
// connected UI client in commit order. Unlike the rest of the API it
// authenticates off a query-string token because the WebSocket
// handshake can't carry a bearer header from a browser client.
func (s *Server) handleWSFrontend(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		writeError(w, apperr.New(apperr.Unauthorized, apperr.KindValidation, "missing bearer token"))
		return
	}
	if _, err := s.tokens.ValidateUserToken(token); err != nil {
		writeError(w, apperr.New(apperr.Unauthorized, apperr.KindValidation, "invalid or expired token"))
		return
	}

	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	sub := s.broker.Subscribe()
	defer s.broker.Unsubscribe(sub)

	for event := range sub {
		if err := conn.WriteJSON(wsEvent(event)); err != nil {
			return
		}
	}
}

func wsEvent(e *events.Event) map[string]any {
	return map[string]any{
		"id":        e.ID,
		"type":      e.Type,
		"timestamp": e.Timestamp,
		"message":   e.Message,
		"metadata":  e.Metadata,
	}
}
