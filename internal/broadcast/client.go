package broadcast

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	pingInterval = 30 * time.Second
	pongWait     = 60 * time.Second
	writeWait    = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // allow all origins in dev; restrict in production
	},
}

// TokenValidator resolves a bearer token to the acting user.
type TokenValidator func(token string) (userID uuid.UUID, role string, err error)

// ServeWS upgrades GET /ws?stream_id=...&token=... to a WebSocket that
// receives the stream's broadcast events until the peer disconnects.
func ServeWS(router Router, logger *zap.Logger, validate TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		streamIDStr := c.Query("stream_id")
		token := c.Query("token")
		if streamIDStr == "" || token == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "stream_id and token required"})
			return
		}
		streamID, err := uuid.Parse(streamIDStr)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid stream_id"})
			return
		}
		userID, _, err := validate(token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.Warn("websocket upgrade failed", zap.Error(err))
			return
		}

		sub := router.Subscribe(streamID)
		logger.Debug("ws client connected",
			zap.String("stream_id", streamID.String()),
			zap.String("user_id", userID.String()))

		go writePump(conn, sub)
		readPump(conn, sub)
	}
}

// writePump forwards subscription events to the socket and keeps the
// connection alive with pings.
func writePump(conn *websocket.Conn, sub *Subscription) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()
	for {
		select {
		case ev, ok := <-sub.Events():
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump drains the socket (clients send nothing we act on) and tears
// down the subscription when the peer goes away.
func readPump(conn *websocket.Conn, sub *Subscription) {
	defer func() {
		sub.Close()
		_ = conn.Close()
	}()
	conn.SetReadLimit(4096)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	}
}
