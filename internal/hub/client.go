package hub

import (
	"context"
	"encoding/json"
	"log"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/medilink/vitals-relay/internal/session"
)

// Client одно WebSocket соединение браузера пациента или врача
type Client struct {
	ID string

	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	closeOnce sync.Once

	mu        sync.RWMutex
	userID    string
	role      session.Role
	sessionID string
}

// closeSend закрывает очередь отправки ровно один раз
func (c *Client) closeSend() {
	c.closeOnce.Do(func() { close(c.send) })
}

// SetIdentity записывает привязку клиента к сессии. Повторный вызов
// перезаписывает предыдущую привязку (регистрация идемпотентна по сокету).
func (c *Client) SetIdentity(userID string, role session.Role, sessionID string) {
	c.mu.Lock()
	c.userID = userID
	c.role = role
	c.sessionID = sessionID
	c.mu.Unlock()
}

// SessionID возвращает сессию, к которой привязан клиент
func (c *Client) SessionID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sessionID
}

// Role возвращает роль клиента
func (c *Client) Role() session.Role {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.role
}

// Send сериализует сообщение и ставит его в очередь клиенту.
// Закрывающийся клиент с полной очередью молча пропускается.
func (c *Client) Send(v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		log.Printf("[WS] Failed to marshal message: %v", err)
		return
	}

	select {
	case c.send <- data:
	default:
	}
}

// readPump обрабатывает входящие сообщения клиента
func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("[WS] Read error: %v", err)
			}
			return
		}

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.Send(ErrorMessage{Type: TypeError, Message: "Invalid message format"})
			continue
		}

		switch msg.Type {
		case TypeConnect:
			role := session.Role(msg.Data.Role)
			if err := c.hub.controller.Connect(context.Background(), c, msg.Data.UserID, role, msg.Data.SessionID); err != nil {
				c.Send(ErrorMessage{Type: TypeError, Message: err.Error()})
				return
			}

		case TypeDisconnect:
			return

		case TypeEndSession:
			if c.Role() != session.RoleDoctor {
				c.Send(ErrorMessage{Type: TypeError, Message: "Only doctors can end a session"})
				continue
			}
			sessionID := c.SessionID()
			if sessionID == "" {
				c.Send(ErrorMessage{Type: TypeError, Message: "Not connected to a session"})
				continue
			}
			if err := c.hub.controller.EndSession(context.Background(), sessionID); err != nil {
				log.Printf("[WS] Failed to end session %s: %v", sessionID, err)
				c.Send(ErrorMessage{Type: TypeError, Message: "Failed to end session"})
			}

		default:
			c.Send(ErrorMessage{Type: TypeError, Message: "Unknown message type"})
		}
	}
}

// writePump отправляет сообщения клиенту
func (c *Client) writePump() {
	defer c.conn.Close()

	for message := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			log.Printf("[WS] Failed to write message: %v", err)
			return
		}
	}

	c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}
