package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"slguard/internal/engine"
	"slguard/internal/models"
	"slguard/internal/risk"
)

// ============ PositionHandler Tests ============

func newPositionHandler(store *MockStore) *PositionHandler {
	return NewPositionHandler(testAccount, store, orderLister{store}, store)
}

func TestPositionHandler_GetPositions(t *testing.T) {
	t.Run("returns empty list when no positions", func(t *testing.T) {
		handler := newPositionHandler(NewMockStore())

		req := httptest.NewRequest(http.MethodGet, "/api/v1/positions", nil)
		w := httptest.NewRecorder()
		handler.GetPositions(w, req)

		if w.Code != http.StatusOK {
			t.Errorf("expected status %d, got %d", http.StatusOK, w.Code)
		}

		var response PositionsResponse
		if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if response.Total != 0 || len(response.Positions) != 0 {
			t.Errorf("expected no positions, got %d", response.Total)
		}
	})

	t.Run("returns position with active SL and TP", func(t *testing.T) {
		store := NewMockStore()
		store.addProtectedPosition()
		handler := newPositionHandler(store)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/positions", nil)
		w := httptest.NewRecorder()
		handler.GetPositions(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("expected status %d, got %d", http.StatusOK, w.Code)
		}

		var response PositionsResponse
		if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if response.Total != 1 {
			t.Fatalf("expected total 1, got %d", response.Total)
		}

		dto := response.Positions[0]
		if dto.Ticker != "SBER" {
			t.Errorf("expected ticker SBER, got %s", dto.Ticker)
		}
		if len(dto.Orders) != 2 {
			t.Errorf("expected 2 orders, got %d", len(dto.Orders))
		}
		if dto.StopLoss == nil || !dto.StopLoss.Equal(decimal.NewFromInt(98)) {
			t.Errorf("expected stop loss 98, got %v", dto.StopLoss)
		}
		if dto.TakeProfit == nil || !dto.TakeProfit.Equal(decimal.NewFromInt(105)) {
			t.Errorf("expected take profit 105, got %v", dto.TakeProfit)
		}
		if dto.RiskReward == nil || !dto.RiskReward.Equal(decimal.RequireFromString("2.5")) {
			t.Errorf("expected risk/reward 2.5, got %v", dto.RiskReward)
		}
		if dto.StateInfo == "" {
			t.Error("expected state info")
		}
	})

	t.Run("returns 500 on store error", func(t *testing.T) {
		store := NewMockStore()
		store.err = ErrMockDatabase
		handler := newPositionHandler(store)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/positions", nil)
		w := httptest.NewRecorder()
		handler.GetPositions(w, req)

		if w.Code != http.StatusInternalServerError {
			t.Errorf("expected status %d, got %d", http.StatusInternalServerError, w.Code)
		}
	})
}

func TestPositionHandler_GetPosition(t *testing.T) {
	store := NewMockStore()
	store.addProtectedPosition()
	handler := newPositionHandler(store)

	t.Run("returns PnL for given price", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/positions/BBG004730N88?price=101.5", nil)
		req = mux.SetURLVars(req, map[string]string{"figi": "BBG004730N88"})
		w := httptest.NewRecorder()
		handler.GetPosition(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("expected status %d, got %d: %s", http.StatusOK, w.Code, w.Body.String())
		}

		var dto PositionDTO
		if err := json.NewDecoder(w.Body).Decode(&dto); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if dto.PnL == nil || !dto.PnL.Equal(decimal.NewFromInt(150)) {
			t.Errorf("expected pnl 150, got %v", dto.PnL)
		}
		if dto.PnLPct == nil || !dto.PnLPct.Equal(decimal.RequireFromString("1.5")) {
			t.Errorf("expected pnl pct 1.5, got %v", dto.PnLPct)
		}
	})

	t.Run("returns 404 for unknown figi", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/positions/UNKNOWN", nil)
		req = mux.SetURLVars(req, map[string]string{"figi": "UNKNOWN"})
		w := httptest.NewRecorder()
		handler.GetPosition(w, req)

		if w.Code != http.StatusNotFound {
			t.Errorf("expected status %d, got %d", http.StatusNotFound, w.Code)
		}
	})

	t.Run("returns 400 for invalid price", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/positions/BBG004730N88?price=abc", nil)
		req = mux.SetURLVars(req, map[string]string{"figi": "BBG004730N88"})
		w := httptest.NewRecorder()
		handler.GetPosition(w, req)

		if w.Code != http.StatusBadRequest {
			t.Errorf("expected status %d, got %d", http.StatusBadRequest, w.Code)
		}
	})
}

func TestPositionHandler_GetOrders(t *testing.T) {
	store := NewMockStore()
	store.addProtectedPosition()
	handler := newPositionHandler(store)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders?limit=1", nil)
	w := httptest.NewRecorder()
	handler.GetOrders(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, w.Code)
	}

	var response OrdersResponse
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if response.Total != 1 {
		t.Errorf("expected total 1, got %d", response.Total)
	}
	if store.lastLimit != 1 {
		t.Errorf("expected limit 1 passed to store, got %d", store.lastLimit)
	}
}

func TestPositionHandler_GetOrder(t *testing.T) {
	store := NewMockStore()
	store.addProtectedPosition()
	store.orders = append(store.orders, &models.Order{ID: 3, OrderID: "stop-other", AccountID: "other"})
	handler := newPositionHandler(store)

	tests := []struct {
		name    string
		orderID string
		status  int
	}{
		{"own order", "stop-1", http.StatusOK},
		{"unknown order", "missing", http.StatusNotFound},
		{"foreign account", "stop-other", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/orders/"+tt.orderID, nil)
			req = mux.SetURLVars(req, map[string]string{"orderId": tt.orderID})
			w := httptest.NewRecorder()
			handler.GetOrder(w, req)

			if w.Code != tt.status {
				t.Fatalf("expected status %d, got %d", tt.status, w.Code)
			}
			if tt.status != http.StatusOK {
				return
			}
			var order models.Order
			if err := json.NewDecoder(w.Body).Decode(&order); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			if order.Purpose != models.PurposeStopLoss || !order.StopPrice.Equal(decimal.NewFromInt(98)) {
				t.Errorf("unexpected order: %+v", order)
			}
		})
	}
}

// ============ TradeHandler Tests ============

func TestTradeHandler_GetTrades(t *testing.T) {
	store := NewMockStore()
	store.trades = []*models.Trade{
		{TradeID: "t-1", AccountID: testAccount, Figi: "BBG004730N88", Quantity: 10, Price: decimal.NewFromInt(250)},
		{TradeID: "t-2", AccountID: testAccount, Figi: "BBG004730N88", Quantity: 5, Price: decimal.NewFromInt(251)},
		{TradeID: "t-3", AccountID: testAccount, Figi: "FUTSI0624000", Quantity: 1, Price: decimal.NewFromInt(90000)},
	}
	handler := NewTradeHandler(testAccount, store)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/positions/BBG004730N88/trades?limit=5000", nil)
	req = mux.SetURLVars(req, map[string]string{"figi": "BBG004730N88"})
	w := httptest.NewRecorder()
	handler.GetTrades(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, w.Code)
	}
	var response TradesResponse
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if response.Total != 2 || response.Figi != "BBG004730N88" {
		t.Errorf("unexpected response: %+v", response)
	}
	if store.lastLimit != 1000 {
		t.Errorf("expected limit clamped to 1000, got %d", store.lastLimit)
	}

	t.Run("store error", func(t *testing.T) {
		store.err = ErrMockDatabase
		w := httptest.NewRecorder()
		handler.GetTrades(w, req)
		if w.Code != http.StatusInternalServerError {
			t.Errorf("expected status %d, got %d", http.StatusInternalServerError, w.Code)
		}
	})
}

// ============ EventHandler Tests ============

func TestEventHandler_GetEvents(t *testing.T) {
	store := NewMockStore()
	store.events = []*models.SystemEvent{
		{ID: 2, EventType: models.EventOrderError, AccountID: testAccount},
		{ID: 1, EventType: models.EventPositionCreated, AccountID: testAccount},
	}
	handler := NewEventHandler(testAccount, store)

	t.Run("filters by type", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/events?type=order_error&limit=20", nil)
		w := httptest.NewRecorder()
		handler.GetEvents(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("expected status %d, got %d", http.StatusOK, w.Code)
		}

		var response EventsResponse
		if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if response.Total != 1 {
			t.Errorf("expected total 1, got %d", response.Total)
		}
		if store.lastFilter.EventType != models.EventOrderError {
			t.Errorf("expected type filter %s, got %s", models.EventOrderError, store.lastFilter.EventType)
		}
		if store.lastFilter.Limit != 20 || store.lastFilter.AccountID != testAccount {
			t.Errorf("unexpected filter %+v", store.lastFilter)
		}
	})

	t.Run("clamps limit", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/events?limit=50000", nil)
		w := httptest.NewRecorder()
		handler.GetEvents(w, req)

		if store.lastFilter.Limit != 1000 {
			t.Errorf("expected limit 1000, got %d", store.lastFilter.Limit)
		}
	})

	t.Run("returns 500 on store error", func(t *testing.T) {
		failing := NewMockStore()
		failing.err = ErrMockDatabase
		h := NewEventHandler(testAccount, failing)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/events", nil)
		w := httptest.NewRecorder()
		h.GetEvents(w, req)

		if w.Code != http.StatusInternalServerError {
			t.Errorf("expected status %d, got %d", http.StatusInternalServerError, w.Code)
		}
	})
}

// ============ LevelsHandler Tests ============

func TestLevelsHandler_GetLevels(t *testing.T) {
	calc := risk.NewCalculator(risk.DefaultDefaults())
	handler := NewLevelsHandler(testAccount, NewMockInstruments(), NewMockSettings("2", "5"), calc)

	t.Run("calculates long levels by ticker", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/levels?ticker=SBER&price=100", nil)
		w := httptest.NewRecorder()
		handler.GetLevels(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("expected status %d, got %d: %s", http.StatusOK, w.Code, w.Body.String())
		}

		var preview engine.LevelsPreview
		if err := json.NewDecoder(w.Body).Decode(&preview); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if preview.Figi != "BBG004730N88" {
			t.Errorf("expected figi BBG004730N88, got %s", preview.Figi)
		}
		if preview.Direction != models.DirectionLong {
			t.Errorf("expected LONG by default, got %s", preview.Direction)
		}
		if !preview.StopLoss.Equal(decimal.NewFromInt(98)) {
			t.Errorf("expected stop loss 98, got %s", preview.StopLoss)
		}
		if !preview.TakeProfit.Equal(decimal.NewFromInt(105)) {
			t.Errorf("expected take profit 105, got %s", preview.TakeProfit)
		}
	})

	t.Run("calculates short levels", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/levels?ticker=SBER&price=100&direction=short", nil)
		w := httptest.NewRecorder()
		handler.GetLevels(w, req)

		var preview engine.LevelsPreview
		if err := json.NewDecoder(w.Body).Decode(&preview); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if !preview.StopLoss.Equal(decimal.NewFromInt(102)) {
			t.Errorf("expected stop loss 102, got %s", preview.StopLoss)
		}
		if !preview.TakeProfit.Equal(decimal.NewFromInt(95)) {
			t.Errorf("expected take profit 95, got %s", preview.TakeProfit)
		}
	})

	tests := []struct {
		name   string
		query  string
		status int
	}{
		{"missing ticker", "price=100", http.StatusBadRequest},
		{"invalid price", "ticker=SBER&price=-1", http.StatusBadRequest},
		{"invalid quantity", "ticker=SBER&price=100&quantity=x", http.StatusBadRequest},
		{"invalid direction", "ticker=SBER&price=100&direction=UP", http.StatusBadRequest},
		{"unknown instrument", "ticker=GAZP&price=100", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/levels?"+tt.query, nil)
			w := httptest.NewRecorder()
			handler.GetLevels(w, req)

			if w.Code != tt.status {
				t.Errorf("expected status %d, got %d", tt.status, w.Code)
			}
		})
	}
}

func TestLevelsHandler_GetSettings(t *testing.T) {
	handler := NewLevelsHandler(testAccount, NewMockInstruments(), NewMockSettings("2", "5"), nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/settings/SBER", nil)
	req = mux.SetURLVars(req, map[string]string{"ticker": "SBER"})
	w := httptest.NewRecorder()
	handler.GetSettings(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, w.Code)
	}

	var eff models.EffectiveSettings
	if err := json.NewDecoder(w.Body).Decode(&eff); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if eff.Source != models.SettingsSourceGlobal {
		t.Errorf("expected source global, got %s", eff.Source)
	}
}

// ============ StatusHandler Tests ============

func TestStatusHandler(t *testing.T) {
	status := engine.Status{
		AccountID: testAccount,
		Streams:   []engine.StreamStatus{{Name: engine.StreamTrades}, {Name: engine.StreamPositions}},
		Positions: map[string]int{models.StateOpenProtected: 1},
	}
	handler := NewStatusHandler(MockStatus{status: status}, func() int { return 3 })

	t.Run("health", func(t *testing.T) {
		w := httptest.NewRecorder()
		handler.Health(w, httptest.NewRequest(http.MethodGet, "/health", nil))

		if w.Code != http.StatusOK {
			t.Errorf("expected status %d, got %d", http.StatusOK, w.Code)
		}
	})

	t.Run("status", func(t *testing.T) {
		w := httptest.NewRecorder()
		handler.GetStatus(w, httptest.NewRequest(http.MethodGet, "/api/v1/status", nil))

		var response StatusResponse
		if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if response.AccountID != testAccount {
			t.Errorf("expected account %s, got %s", testAccount, response.AccountID)
		}
		if len(response.Streams) != 2 {
			t.Errorf("expected 2 streams, got %d", len(response.Streams))
		}
		if response.WSClients != 3 {
			t.Errorf("expected 3 ws clients, got %d", response.WSClients)
		}
	})
}
