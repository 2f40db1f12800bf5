package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"lessonsync/config"
	"lessonsync/models"
	"lessonsync/server"
	"lessonsync/utils"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		// Allow all origins - in production, restrict this
		return true
	},
}

// ServeWS upgrades the request and starts the connection's pumps. The
// connection stays anonymous until its first teacher:connect or
// student:subscribe command binds an identity.
func ServeWS(registry *server.Registry, w http.ResponseWriter, r *http.Request, cfg *config.Config, logger *utils.Logger) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("WebSocket upgrade failed: " + err.Error())
		return
	}

	client := &models.Client{
		Conn:     conn,
		Send:     make(chan []byte, cfg.MessageBufferSize),
		ClientID: uuid.NewString(),
		LastSeen: time.Now(),
	}

	go writePump(client, cfg, logger)
	go readPump(client, registry, cfg, logger)
}

func readPump(client *models.Client, registry *server.Registry, cfg *config.Config, logger *utils.Logger) {
	defer func() {
		disconnect(client, registry)
		client.Conn.Close()
	}()

	client.Conn.SetReadLimit(cfg.MaxMessageSize)
	client.Conn.SetReadDeadline(time.Now().Add(cfg.PongTimeout))
	client.Conn.SetPongHandler(func(string) error {
		client.Conn.SetReadDeadline(time.Now().Add(cfg.PongTimeout))
		return nil
	})

	for {
		_, messageBytes, err := client.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Warn("Unexpected close: " + err.Error())
			}
			break
		}

		client.UpdateLastSeen()

		var msg models.Message
		if err := json.Unmarshal(messageBytes, &msg); err != nil {
			logger.Warn("Invalid JSON message: " + err.Error())
			continue
		}

		switch msg.Type {
		case models.CmdTeacherConnect:
			HandleTeacherConnect(client, msg, registry, logger)
		case models.CmdStartLesson:
			HandleStartLesson(client, msg, registry, logger)
		case models.CmdAdvanceStep:
			HandleAdvanceStep(client, msg, registry, logger)
		case models.CmdEndLesson:
			HandleEndLesson(client, msg, registry, logger)
		case models.CmdSubscribe:
			HandleSubscribe(client, msg, registry, logger)
		case models.CmdJoinLesson:
			HandleJoinLesson(client, msg, registry, logger)
		case models.CmdLeaveLesson:
			HandleLeaveLesson(client, msg, registry, logger)
		case models.CmdSubmitAnswer:
			HandleSubmitAnswer(client, msg, registry, logger)
		default:
			logger.Warn("Unknown message type: " + msg.Type)
		}
	}
}

// disconnect tears down whatever the connection had registered. A
// student falls out of the directory; a teacher takes its live lesson
// down with it. In every case the Send channel gets closed so the write
// pump exits now instead of idling until its next ping. For bound
// clients the owning actor closes it after the removal; an anonymous
// connection has no actor, so it is closed here.
func disconnect(client *models.Client, registry *server.Registry) {
	role, _, teacherID := client.Binding()
	switch role {
	case models.RoleStudent:
		registry.Unsubscribe(client, teacherID)
	case models.RoleTeacher:
		registry.DetachTeacher(client, teacherID)
	default:
		close(client.Send)
	}
}

func writePump(client *models.Client, cfg *config.Config, logger *utils.Logger) {
	ticker := time.NewTicker(cfg.PingInterval)
	defer func() {
		ticker.Stop()
		client.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-client.Send:
			client.Conn.SetWriteDeadline(time.Now().Add(cfg.WriteTimeout))
			if !ok {
				client.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := client.Conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// Add queued messages to current write
			n := len(client.Send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-client.Send)
			}

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			client.Conn.SetWriteDeadline(time.Now().Add(cfg.WriteTimeout))
			if err := client.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
