package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"slguard/internal/broker"
	"slguard/internal/engine"
	"slguard/internal/risk"
)

// LevelsHandler - предпросмотр уровней SL/TP и эффективных настроек
//
// Endpoints:
// - GET /api/v1/levels?ticker=SBER&price=250.5&direction=LONG&quantity=100
// - GET /api/v1/settings/{ticker} - эффективные настройки инструмента
type LevelsHandler struct {
	accountID   string
	instruments engine.InstrumentSource
	settings    engine.SettingsSource
	calc        *risk.Calculator
}

// NewLevelsHandler создает LevelsHandler
func NewLevelsHandler(accountID string, instruments engine.InstrumentSource, settings engine.SettingsSource, calc *risk.Calculator) *LevelsHandler {
	return &LevelsHandler{
		accountID:   accountID,
		instruments: instruments,
		settings:    settings,
		calc:        calc,
	}
}

// GetLevels - GET /api/v1/levels
//
// Query параметры:
// - ticker (string): тикер или FIGI, обязателен
// - price (decimal): средняя цена входа, обязательна
// - direction (string): LONG (по умолчанию) или SHORT
// - quantity (int): размер позиции в штуках, нужен для лестницы
func (h *LevelsHandler) GetLevels(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	key := strings.TrimSpace(q.Get("ticker"))
	if key == "" {
		respondWithError(w, http.StatusBadRequest, "ticker is required")
		return
	}

	price, err := decimal.NewFromString(q.Get("price"))
	if err != nil || !price.IsPositive() {
		respondWithError(w, http.StatusBadRequest, "price must be a positive number")
		return
	}

	var quantity int64
	if s := q.Get("quantity"); s != "" {
		quantity, err = strconv.ParseInt(s, 10, 64)
		if err != nil || quantity < 0 {
			respondWithError(w, http.StatusBadRequest, "quantity must be a non-negative integer")
			return
		}
	}

	preview, err := engine.PreviewLevels(r.Context(), h.instruments, h.settings, h.calc,
		h.accountID, key, price, q.Get("direction"), quantity)
	if err != nil {
		respondWithError(w, statusFor(err), err.Error())
		return
	}

	respondWithJSON(w, http.StatusOK, preview)
}

// GetSettings - GET /api/v1/settings/{ticker}
func (h *LevelsHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimSpace(mux.Vars(r)["ticker"])

	instrument, err := h.instruments.Resolve(r.Context(), key)
	if err != nil {
		respondWithError(w, statusFor(err), err.Error())
		return
	}

	eff, err := h.settings.GetEffectiveSettings(r.Context(), h.accountID, instrument.Ticker)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to get settings: "+err.Error())
		return
	}

	respondWithJSON(w, http.StatusOK, eff)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, broker.ErrInstrumentNotFound):
		return http.StatusNotFound
	case errors.Is(err, risk.ErrValidation):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
