package handlers

import (
	"net/http"
	"time"

	"slguard/internal/engine"
	"slguard/pkg/utils"
)

// StatusProvider - источник состояния движка
type StatusProvider interface {
	Status() engine.Status
}

// StatusHandler - health и состояние потоков
//
// Endpoints:
// - GET /health - проверка живости, без авторизации
// - GET /api/v1/status - потоки, позиции и отложенные активации
type StatusHandler struct {
	engine    StatusProvider
	clients   func() int
	startedAt time.Time
}

// NewStatusHandler создает StatusHandler. clients - число WebSocket клиентов, может быть nil
func NewStatusHandler(engine StatusProvider, clients func() int) *StatusHandler {
	return &StatusHandler{
		engine:    engine,
		clients:   clients,
		startedAt: time.Now(),
	}
}

// StatusResponse - ответ /api/v1/status
type StatusResponse struct {
	engine.Status
	Uptime    string `json:"uptime"`
	WSClients int    `json:"ws_clients"`
}

// Health - GET /health
func (h *StatusHandler) Health(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetStatus - GET /api/v1/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{
		Status: h.engine.Status(),
		Uptime: utils.FormatDuration(time.Since(h.startedAt)),
	}
	if h.clients != nil {
		resp.WSClients = h.clients()
	}
	respondWithJSON(w, http.StatusOK, resp)
}
