package handlers

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"

	"slguard/internal/models"
)

// TradeLister - чтение журнала исполнений
type TradeLister interface {
	ListByFigi(ctx context.Context, accountID, figi string, limit int) ([]*models.Trade, error)
}

// TradeHandler - исполнения по инструменту
//
// Endpoints:
// - GET /api/v1/positions/{figi}/trades?limit=50
type TradeHandler struct {
	accountID string
	trades    TradeLister
}

// NewTradeHandler создает TradeHandler
func NewTradeHandler(accountID string, trades TradeLister) *TradeHandler {
	return &TradeHandler{accountID: accountID, trades: trades}
}

// TradesResponse - ответ журнала исполнений
type TradesResponse struct {
	Figi   string          `json:"figi"`
	Trades []*models.Trade `json:"trades"`
	Total  int             `json:"total"`
}

// GetTrades - GET /api/v1/positions/{figi}/trades
func (h *TradeHandler) GetTrades(w http.ResponseWriter, r *http.Request) {
	figi := mux.Vars(r)["figi"]

	trades, err := h.trades.ListByFigi(r.Context(), h.accountID, figi, queryLimit(r, 100, 1000))
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to list trades: "+err.Error())
		return
	}
	if trades == nil {
		trades = []*models.Trade{}
	}
	respondWithJSON(w, http.StatusOK, TradesResponse{Figi: figi, Trades: trades, Total: len(trades)})
}
