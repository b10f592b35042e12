package handlers

import (
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/staylink/verification-service/internal/realtime"
)

const ownerLocal = "realtime_owner"

// RealtimeHandler upgrades authenticated partners to a push channel.
type RealtimeHandler struct {
	hub    *realtime.Hub
	logger *zap.Logger
}

// NewRealtimeHandler constructs handler.
func NewRealtimeHandler(hub *realtime.Hub, logger *zap.Logger) *RealtimeHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RealtimeHandler{hub: hub, logger: logger}
}

// Upgrade admits websocket handshakes from an authenticated partner and
// records who owns the connection.
func (h *RealtimeHandler) Upgrade(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	c.Locals(ownerLocal, user.ID)
	return c.Next()
}

// Serve handles GET /ws/verification once upgraded. The server only writes;
// inbound frames are read and discarded so control frames are processed and a
// closed socket is noticed.
func (h *RealtimeHandler) Serve() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		ownerID, _ := conn.Locals(ownerLocal).(string)
		if ownerID == "" {
			_ = conn.Close()
			return
		}

		session := h.hub.Register(ownerID, conn)
		defer h.hub.Unregister(session)

		go func() {
			defer session.Close()
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		session.WritePump()
	})
}
