package websocket

import (
	"encoding/json"
	"log/slog"
	"net/http"

	ws "github.com/coder/websocket"
)

// HandleWebSocket upgrades the request and runs it as a hub client. The
// first frame is a session_connected message carrying the client id.
func HandleWebSocket(hub *Hub, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := ws.Accept(w, r, &ws.AcceptOptions{
			InsecureSkipVerify: true, // kiosk clients connect from the LAN
		})
		if err != nil {
			logger.Warn("websocket accept", "error", err)
			return
		}

		client := NewClient(hub, conn)
		if hello, err := json.Marshal(NewMessage("session", "connected", client.ID(), nil)); err == nil {
			client.send <- hello
		}
		logger.Info("websocket connected", "client_id", client.ID(), "remote", r.RemoteAddr)
		client.Run(r.Context())
		logger.Info("websocket disconnected", "client_id", client.ID())
	}
}
