package stream

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// RegisterRoutes serves /ws/:scooterID. When snapshot is non-nil its result
// is sent as the first message so clients start from the current state.
func RegisterRoutes(r fiber.Router, hub *Hub, snapshot func(scooterID string) ([]byte, bool)) {
	r.Use("/ws", func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}
		return c.Next()
	})

	r.Get("/ws/:scooterID", websocket.New(func(c *websocket.Conn) {
		scooterID := c.Params("scooterID")
		client := hub.Register(scooterID)
		defer hub.Unregister(client)

		if snapshot != nil {
			if msg, ok := snapshot(scooterID); ok {
				if err := c.WriteMessage(websocket.TextMessage, msg); err != nil {
					return
				}
			}
		}

		done := make(chan struct{})
		go func() {
			defer close(done)
			for msg := range client.Send {
				if err := c.WriteMessage(websocket.TextMessage, msg); err != nil {
					return
				}
			}
		}()

		for {
			if _, _, err := c.ReadMessage(); err != nil {
				break
			}
		}
		hub.Unregister(client)
		<-done
	}))
}
