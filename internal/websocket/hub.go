// Package websocket - лента оповещений для операторов (ops клиенты по WebSocket).
package websocket

import (
	"context"
	"sync"

	jsoniter "github.com/json-iterator/go"

	"slguard/pkg/utils"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Hub рассылает сообщения всем подключенным клиентам.
//
// Использование:
//
//	hub := NewHub(logger)
//	go hub.Run(ctx)
//	hub.BroadcastAlert(alert)
//
// Медленные клиенты (переполнен буфер send) отключаются.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	done       chan struct{}

	mu     sync.RWMutex
	logger *utils.Logger
}

// NewHub создаёт Hub
func NewHub(logger *utils.Logger) *Hub {
	if logger == nil {
		logger = utils.L()
	}
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		logger:     logger.WithComponent("ws_hub"),
	}
}

// Run - главный цикл. Завершается по ctx, закрывая все соединения.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug("alert client connected", utils.Int("clients", total))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug("alert client disconnected", utils.Int("clients", total))

		case message := <-h.broadcast:
			h.fanOut(message)
		}
	}
}

// fanOut: список клиентов копируется под RLock, отправка без блокировки
func (h *Hub) fanOut(message []byte) {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	var slow []*Client
	for _, client := range clients {
		select {
		case client.send <- message:
		default:
			slow = append(slow, client)
		}
	}

	if len(slow) == 0 {
		return
	}
	h.mu.Lock()
	for _, client := range slow {
		if _, ok := h.clients[client]; ok {
			delete(h.clients, client)
			close(client.send)
		}
	}
	total := len(h.clients)
	h.mu.Unlock()
	h.logger.Warn("slow alert clients dropped", utils.Int("dropped", len(slow)), utils.Int("clients", total))
}

// Broadcast сериализует сообщение и ставит в очередь рассылки.
// Не блокирует: при заполненной очереди сообщение отбрасывается.
func (h *Hub) Broadcast(message interface{}) bool {
	data, err := json.Marshal(message)
	if err != nil {
		h.logger.Error("marshal broadcast message", utils.Err(err))
		return false
	}

	select {
	case h.broadcast <- data:
		return true
	default:
		h.logger.Warn("broadcast queue full, message dropped")
		return false
	}
}

// BroadcastAlert отправляет оповещение
func (h *Hub) BroadcastAlert(alert interface{}) bool {
	return h.Broadcast(newMessage(MessageTypeAlert, alert))
}

// BroadcastPosition отправляет изменение позиции
func (h *Hub) BroadcastPosition(position interface{}) bool {
	return h.Broadcast(newMessage(MessageTypePosition, position))
}

func (h *Hub) leave(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// ClientCount - количество подключенных клиентов
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
