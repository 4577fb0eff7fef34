package hub

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/medilink/vitals-relay/internal/session"
)

// SessionController обрабатывает командные сообщения клиентов.
// Реализуется координатором relay.
type SessionController interface {
	Connect(ctx context.Context, client *Client, userID string, role session.Role, sessionID string) error
	EndSession(ctx context.Context, sessionID string) error
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// Фронтенд МИС ходит с другого origin
		return true
	},
}

// Hub реестр живых WebSocket клиентов
type Hub struct {
	controller SessionController

	mu      sync.RWMutex
	clients map[*Client]bool
}

// NewHub создает новый Hub. Контроллер задается отдельно через SetController,
// так как hub и координатор ссылаются друг на друга.
func NewHub() *Hub {
	return &Hub{
		clients: make(map[*Client]bool),
	}
}

// SetController привязывает обработчик командных сообщений
func (h *Hub) SetController(controller SessionController) {
	h.controller = controller
}

// Register добавляет клиента в реестр. Идемпотентен по сокету.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c] = true
	h.mu.Unlock()
	log.Printf("[WS] Client registered: %s session=%s", c.ID, c.SessionID())
}

// Unregister удаляет клиента и закрывает его очередь отправки.
// Повторный вызов и вызов для незарегистрированного клиента — no-op.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	delete(h.clients, c)
	// Закрытие под тем же локом: broadcast не должен писать в закрытый канал
	c.closeSend()
	h.mu.Unlock()
}

// Count возвращает число зарегистрированных клиентов
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// BroadcastToSession отправляет сообщение всем клиентам указанной сессии
func (h *Hub) BroadcastToSession(sessionID string, v interface{}) {
	h.broadcast(v, func(c *Client) bool { return c.SessionID() == sessionID })
}

// BroadcastToAll отправляет сообщение всем зарегистрированным клиентам
func (h *Hub) BroadcastToAll(v interface{}) {
	h.broadcast(v, func(c *Client) bool { return true })
}

func (h *Hub) broadcast(v interface{}, match func(*Client) bool) {
	data, err := json.Marshal(v)
	if err != nil {
		log.Printf("[WS] Failed to marshal broadcast: %v", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.clients {
		if !match(c) {
			continue
		}
		select {
		case c.send <- data:
		default:
			// Переполненная очередь — клиент закрывается, чистка придет
			// через его close handler
		}
	}
}

// HandleWebSocket апгрейдит соединение и запускает пампы клиента.
// Клиент не попадает в реестр до успешного connect.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[WS] Failed to upgrade connection: %v", err)
		return
	}

	client := &Client{
		ID:   uuid.New().String(),
		hub:  h,
		conn: conn,
		send: make(chan []byte, 256),
	}

	go client.writePump()
	go client.readPump()
}
