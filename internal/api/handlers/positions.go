package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"slguard/internal/engine"
	"slguard/internal/models"
	"slguard/internal/repository"
	"slguard/internal/risk"
)

// PositionStore - чтение позиций
type PositionStore interface {
	ListByAccount(ctx context.Context, accountID string) ([]*models.Position, error)
	GetByFigi(ctx context.Context, accountID, figi string) (*models.Position, error)
}

// OrderStore - чтение защитных ордеров
type OrderStore interface {
	ListActiveByPosition(ctx context.Context, positionID int64) ([]*models.Order, error)
	ListByAccount(ctx context.Context, accountID string, limit int) ([]*models.Order, error)
	GetByOrderID(ctx context.Context, orderID string) (*models.Order, error)
}

// LadderStore - чтение лестницы TP
type LadderStore interface {
	ListByPosition(ctx context.Context, positionID int64) ([]*models.MultiTakeProfitLevel, error)
}

// PositionHandler - просмотр позиций и ордеров счёта
//
// Endpoints:
// - GET /api/v1/positions - все позиции с активными SL/TP
// - GET /api/v1/positions/{figi}?price=250.5 - позиция, лестница и PnL по цене
// - GET /api/v1/orders?limit=100 - последние защитные ордера
// - GET /api/v1/orders/{orderId} - ордер по id брокера
type PositionHandler struct {
	accountID string
	positions PositionStore
	orders    OrderStore
	ladders   LadderStore
}

// NewPositionHandler создает PositionHandler
func NewPositionHandler(accountID string, positions PositionStore, orders OrderStore, ladders LadderStore) *PositionHandler {
	return &PositionHandler{
		accountID: accountID,
		positions: positions,
		orders:    orders,
		ladders:   ladders,
	}
}

// PositionDTO - позиция в API
type PositionDTO struct {
	*models.Position
	StateInfo  string                         `json:"state_info"`
	StopLoss   *decimal.Decimal               `json:"stop_loss,omitempty"`
	TakeProfit *decimal.Decimal               `json:"take_profit,omitempty"`
	RiskReward *decimal.Decimal               `json:"risk_reward,omitempty"`
	Orders     []*models.Order                `json:"orders"`
	Ladder     []*models.MultiTakeProfitLevel `json:"ladder,omitempty"`
	PnL        *decimal.Decimal               `json:"pnl,omitempty"`
	PnLPct     *decimal.Decimal               `json:"pnl_pct,omitempty"`
}

// PositionsResponse - ответ списка позиций
type PositionsResponse struct {
	Positions []PositionDTO `json:"positions"`
	Total     int           `json:"total"`
}

// GetPositions - GET /api/v1/positions
func (h *PositionHandler) GetPositions(w http.ResponseWriter, r *http.Request) {
	positions, err := h.positions.ListByAccount(r.Context(), h.accountID)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to list positions: "+err.Error())
		return
	}

	dtos := make([]PositionDTO, 0, len(positions))
	for _, pos := range positions {
		dto, err := h.buildDTO(r.Context(), pos)
		if err != nil {
			respondWithError(w, http.StatusInternalServerError, "Failed to list orders: "+err.Error())
			return
		}
		dtos = append(dtos, dto)
	}

	respondWithJSON(w, http.StatusOK, PositionsResponse{Positions: dtos, Total: len(dtos)})
}

// GetPosition - GET /api/v1/positions/{figi}
//
// Query параметры:
// - price (decimal): текущая цена, если задана - в ответе PnL
func (h *PositionHandler) GetPosition(w http.ResponseWriter, r *http.Request) {
	figi := strings.TrimSpace(mux.Vars(r)["figi"])

	pos, err := h.positions.GetByFigi(r.Context(), h.accountID, figi)
	if errors.Is(err, repository.ErrPositionNotFound) {
		respondWithError(w, http.StatusNotFound, "Position not found")
		return
	}
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to get position: "+err.Error())
		return
	}

	dto, err := h.buildDTO(r.Context(), pos)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to list orders: "+err.Error())
		return
	}

	if h.ladders != nil {
		ladder, err := h.ladders.ListByPosition(r.Context(), pos.ID)
		if err != nil {
			respondWithError(w, http.StatusInternalServerError, "Failed to get ladder: "+err.Error())
			return
		}
		dto.Ladder = ladder
	}

	if p := r.URL.Query().Get("price"); p != "" {
		price, err := decimal.NewFromString(p)
		if err != nil || !price.IsPositive() {
			respondWithError(w, http.StatusBadRequest, "Invalid price")
			return
		}
		pnl := risk.PnL(pos.Direction, pos.AveragePrice, price, pos.Quantity)
		pct := risk.PnLPercent(pos.Direction, pos.AveragePrice, price)
		dto.PnL, dto.PnLPct = &pnl, &pct
	}

	respondWithJSON(w, http.StatusOK, dto)
}

// OrdersResponse - ответ списка ордеров
type OrdersResponse struct {
	Orders []*models.Order `json:"orders"`
	Total  int             `json:"total"`
}

// GetOrders - GET /api/v1/orders
func (h *PositionHandler) GetOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.orders.ListByAccount(r.Context(), h.accountID, queryLimit(r, 100, 1000))
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to list orders: "+err.Error())
		return
	}
	if orders == nil {
		orders = []*models.Order{}
	}
	respondWithJSON(w, http.StatusOK, OrdersResponse{Orders: orders, Total: len(orders)})
}

// GetOrder - GET /api/v1/orders/{orderId}
func (h *PositionHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	orderID := mux.Vars(r)["orderId"]

	order, err := h.orders.GetByOrderID(r.Context(), orderID)
	if errors.Is(err, repository.ErrOrderNotFound) || (err == nil && order.AccountID != h.accountID) {
		respondWithError(w, http.StatusNotFound, "Order not found")
		return
	}
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to get order: "+err.Error())
		return
	}
	respondWithJSON(w, http.StatusOK, order)
}

func (h *PositionHandler) buildDTO(ctx context.Context, pos *models.Position) (PositionDTO, error) {
	dto := PositionDTO{Position: pos, StateInfo: engine.StateInfo(pos.State)}

	orders, err := h.orders.ListActiveByPosition(ctx, pos.ID)
	if err != nil {
		return dto, err
	}
	if orders == nil {
		orders = []*models.Order{}
	}
	dto.Orders = orders

	for _, o := range orders {
		price := o.StopPrice
		switch {
		case o.Purpose == models.PurposeStopLoss:
			dto.StopLoss = &price
		case o.Purpose == models.PurposeTakeProfit:
			dto.TakeProfit = &price
		case models.IsTakeProfit(o.Purpose) && dto.TakeProfit == nil:
			// для лестницы показываем ближний уровень
			dto.TakeProfit = &price
		}
	}
	if dto.StopLoss != nil && dto.TakeProfit != nil {
		rr := risk.RiskReward(pos.AveragePrice, *dto.StopLoss, *dto.TakeProfit)
		dto.RiskReward = &rr
	}
	return dto, nil
}
