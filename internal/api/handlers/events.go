package handlers

import (
	"context"
	"net/http"
	"strings"

	"slguard/internal/models"
	"slguard/internal/repository"
)

// EventLister - чтение журнала аудита
type EventLister interface {
	List(ctx context.Context, f repository.EventFilter) ([]*models.SystemEvent, error)
}

// EventHandler - журнал аудита
//
// Endpoints:
// - GET /api/v1/events - последние 100 событий
// - GET /api/v1/events?type=ORDER_ERROR&limit=20 - с фильтром по типу
type EventHandler struct {
	accountID string
	events    EventLister
}

// NewEventHandler создает EventHandler
func NewEventHandler(accountID string, events EventLister) *EventHandler {
	return &EventHandler{accountID: accountID, events: events}
}

// EventsResponse - ответ журнала
type EventsResponse struct {
	Events []*models.SystemEvent `json:"events"`
	Total  int                   `json:"total"`
}

// GetEvents - GET /api/v1/events
func (h *EventHandler) GetEvents(w http.ResponseWriter, r *http.Request) {
	filter := repository.EventFilter{
		AccountID: h.accountID,
		EventType: strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("type"))),
		Limit:     queryLimit(r, 100, 1000),
	}

	events, err := h.events.List(r.Context(), filter)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to get events: "+err.Error())
		return
	}
	if events == nil {
		events = []*models.SystemEvent{}
	}
	respondWithJSON(w, http.StatusOK, EventsResponse{Events: events, Total: len(events)})
}
