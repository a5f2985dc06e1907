package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"slguard/internal/broker"
	"slguard/internal/models"
	"slguard/internal/risk"
	"slguard/pkg/retry"
	"slguard/pkg/utils"
)

// Executor выставляет и снимает защитные ордера.
//
// Методы не берут AccountLock сами: последовательности "отменить всё, выставить"
// вызываются процессорами уже внутри критической секции счёта.
type Executor struct {
	broker      OrderBroker
	instruments InstrumentSource
	orders      OrderStore
	ladders     LadderStore
	events      EventLog
	retry       retry.Config
	logger      *utils.Logger
}

// NewExecutor создаёт Executor
func NewExecutor(b OrderBroker, inst InstrumentSource, orders OrderStore, ladders LadderStore, events EventLog, retryCfg retry.Config, logger *utils.Logger) *Executor {
	if logger == nil {
		logger = utils.L()
	}
	return &Executor{
		broker:      b,
		instruments: inst,
		orders:      orders,
		ladders:     ladders,
		events:      events,
		retry:       retryCfg,
		logger:      logger.WithComponent("executor"),
	}
}

// PlaceStopLoss выставляет стоп-лимит. Цена исполнения смещена от стопа в сторону быстрого исполнения.
func (e *Executor) PlaceStopLoss(ctx context.Context, pos *models.Position, stopPrice, slPct decimal.Decimal) (*models.Order, error) {
	inst, lots, err := e.lotsFor(ctx, pos, pos.Quantity)
	if err != nil {
		return nil, err
	}
	exec := risk.ExecutionPrice(stopPrice, slPct, pos.Direction, inst.PriceStep)
	return e.place(ctx, pos, inst, lots, exec, stopPrice, broker.StopOrderTypeStopLimit, models.PurposeStopLoss)
}

// PlaceTakeProfit выставляет take-profit. Цена исполнения равна цели.
func (e *Executor) PlaceTakeProfit(ctx context.Context, pos *models.Position, target decimal.Decimal) (*models.Order, error) {
	inst, lots, err := e.lotsFor(ctx, pos, pos.Quantity)
	if err != nil {
		return nil, err
	}
	return e.place(ctx, pos, inst, lots, target, target, broker.StopOrderTypeTakeProfit, models.PurposeTakeProfit)
}

// PlaceSLTP: отменить все ордера позиции, выставить SL, затем TP.
// Ошибка SL прерывает последовательность: TP без SL не выставляется.
func (e *Executor) PlaceSLTP(ctx context.Context, pos *models.Position, sl, tp, slPct decimal.Decimal) error {
	if _, err := e.CancelAllForPosition(ctx, pos); err != nil {
		return err
	}
	if _, err := e.PlaceStopLoss(ctx, pos, sl, slPct); err != nil {
		return err
	}
	if _, err := e.PlaceTakeProfit(ctx, pos, tp); err != nil {
		return err
	}
	return nil
}

// PlaceMultiTP: отменить все ордера позиции, выставить SL и лестницу TP
func (e *Executor) PlaceMultiTP(ctx context.Context, pos *models.Position, slPrice, slPct decimal.Decimal, ladder []models.TPLevel) ([]*models.Order, error) {
	if err := risk.ValidateLevels(ladder); err != nil {
		return nil, err
	}
	if _, err := e.CancelAllForPosition(ctx, pos); err != nil {
		return nil, err
	}
	if _, err := e.PlaceStopLoss(ctx, pos, slPrice, slPct); err != nil {
		return nil, err
	}
	return e.PlaceLadder(ctx, pos, ladder)
}

// PlaceLadder выставляет по одному TP на каждый уровень с ненулевым числом лотов
// и целиком заменяет сохранённые уровни позиции.
func (e *Executor) PlaceLadder(ctx context.Context, pos *models.Position, ladder []models.TPLevel) ([]*models.Order, error) {
	inst, totalLots, err := e.lotsFor(ctx, pos, pos.Quantity)
	if err != nil {
		return nil, err
	}
	prices, err := risk.LadderPrices(pos.AveragePrice, pos.Direction, inst.PriceStep, ladder)
	if err != nil {
		return nil, err
	}

	allocs := risk.Allocate(totalLots, ladder)
	rows := make([]*models.MultiTakeProfitLevel, 0, len(allocs))
	placed := make([]*models.Order, 0, len(allocs))

	for i, a := range allocs {
		row := &models.MultiTakeProfitLevel{
			LevelNumber:   a.Level,
			PriceLevel:    prices[i],
			VolumePercent: a.VolumePct,
		}
		rows = append(rows, row)

		if a.Lots == 0 {
			e.logger.Warn("ladder level gets zero lots, skipped",
				utils.Figi(pos.Figi),
				utils.Int("level", a.Level),
				utils.Lots(totalLots),
			)
			continue
		}

		order, err := e.place(ctx, pos, inst, a.Lots, prices[i], prices[i], broker.StopOrderTypeTakeProfit, models.LadderPurpose(a.Level))
		if err != nil {
			return placed, err
		}
		row.OrderID = order.OrderID
		placed = append(placed, order)
	}

	if err := e.ladders.Replace(ctx, pos.ID, rows); err != nil {
		return placed, fmt.Errorf("store ladder %s: %w", pos.Figi, err)
	}

	levels := make([]map[string]interface{}, 0, len(rows))
	for i, r := range rows {
		levels = append(levels, map[string]interface{}{
			"level":  r.LevelNumber,
			"price":  r.PriceLevel.String(),
			"volume": r.VolumePercent.String(),
			"lots":   allocs[i].Lots,
		})
	}
	e.audit(ctx, models.EventMultiTPSetup, pos, fmt.Sprintf("ladder of %d levels placed", len(placed)), map[string]interface{}{
		"position_id": pos.ID,
		"levels":      levels,
	})
	return placed, nil
}

// CancelOrder снимает ордер у брокера и помечает CANCELLED
func (e *Executor) CancelOrder(ctx context.Context, order *models.Order) error {
	start := time.Now()
	err := retry.Do(ctx, func() error {
		return e.broker.CancelStopOrder(ctx, order.AccountID, order.OrderID)
	}, e.retry)
	RecordBrokerLatency("cancel_stop_order", float64(time.Since(start).Microseconds())/1000)
	if errors.Is(err, broker.ErrOrderNotFound) {
		// заявки у брокера уже нет, локально она тоже больше не живая
		e.logger.Debug("order already gone at broker", utils.OrderID(order.OrderID))
		err = nil
	}
	RecordOrderCancelled(err == nil)
	if err != nil {
		return fmt.Errorf("cancel order %s: %w", order.OrderID, err)
	}

	if err := e.orders.MarkCancelled(ctx, order.OrderID); err != nil {
		return fmt.Errorf("mark order %s cancelled: %w", order.OrderID, err)
	}
	order.Status = models.OrderStatusCancelled

	e.logger.Info("order cancelled",
		utils.Figi(order.Figi),
		utils.OrderID(order.OrderID),
		utils.Purpose(order.Purpose),
	)
	return nil
}

// CancelAllForPosition снимает все живые ордера позиции.
// Ошибка одной отмены логируется и не прерывает остальные.
func (e *Executor) CancelAllForPosition(ctx context.Context, pos *models.Position) (int, error) {
	orders, err := e.orders.ListActiveByPosition(ctx, pos.ID)
	if err != nil {
		return 0, fmt.Errorf("list orders of position %d: %w", pos.ID, err)
	}

	cancelled := 0
	for _, order := range orders {
		if err := e.CancelOrder(ctx, order); err != nil {
			e.logger.Warn("cancel failed, continuing",
				utils.Figi(pos.Figi),
				utils.OrderID(order.OrderID),
				utils.Err(err),
			)
			continue
		}
		cancelled++
	}

	if cancelled > 0 {
		e.audit(ctx, models.EventOrderCancelled, pos, fmt.Sprintf("%d orders cancelled", cancelled), map[string]interface{}{
			"position_id": pos.ID,
			"cancelled":   cancelled,
			"failed":      len(orders) - cancelled,
		})
	}
	return cancelled, nil
}

// lotsFor переводит штуки в лоты (вниз). Меньше одного лота - ошибка валидации.
func (e *Executor) lotsFor(ctx context.Context, pos *models.Position, quantity int64) (*broker.Instrument, int64, error) {
	inst, err := e.instruments.Resolve(ctx, pos.Figi)
	if err != nil {
		return nil, 0, err
	}
	lots := quantity / inst.Lot
	if lots <= 0 {
		return nil, 0, fmt.Errorf("%w: %s quantity %d, lot %d", ErrNoLots, pos.Figi, quantity, inst.Lot)
	}
	return inst, lots, nil
}

func (e *Executor) place(ctx context.Context, pos *models.Position, inst *broker.Instrument, lots int64, price, stopPrice decimal.Decimal, orderType, purpose string) (*models.Order, error) {
	req := broker.StopOrderRequest{
		AccountID: pos.AccountID,
		Figi:      pos.Figi,
		Direction: pos.ExitSide(),
		Quantity:  lots,
		Price:     utils.RoundToStep(price, inst.PriceStep),
		StopPrice: utils.RoundToStep(stopPrice, inst.PriceStep),
		OrderType: orderType,
	}

	start := time.Now()
	orderID, err := retry.DoWithResult(ctx, func() (string, error) {
		return e.broker.PlaceStopOrder(ctx, req)
	}, e.retry)
	RecordBrokerLatency("post_stop_order", float64(time.Since(start).Microseconds())/1000)
	RecordOrderPlaced(purpose, err == nil)

	if err != nil {
		e.logger.Error("place order failed",
			utils.Figi(pos.Figi),
			utils.Purpose(purpose),
			utils.Lots(lots),
			utils.Price(req.StopPrice),
			utils.Err(err),
		)
		e.audit(ctx, models.EventOrderError, pos, fmt.Sprintf("%s not placed: %v", purpose, err), map[string]interface{}{
			"purpose":    purpose,
			"stop_price": req.StopPrice.String(),
			"lots":       lots,
		})
		return nil, fmt.Errorf("place %s for %s: %w", purpose, pos.Figi, err)
	}

	order := &models.Order{
		OrderID:    orderID,
		PositionID: pos.ID,
		AccountID:  pos.AccountID,
		Figi:       pos.Figi,
		Type:       models.OrderTypeStop,
		Direction:  req.Direction,
		Quantity:   lots * inst.Lot,
		Price:      req.Price,
		StopPrice:  req.StopPrice,
		Status:     models.OrderStatusNew,
		Purpose:    purpose,
	}
	if err := e.orders.Create(ctx, order); err != nil {
		// ордер у брокера уже живой: без записи он не будет отменён при следующей перестановке
		return order, fmt.Errorf("store order %s: %w", orderID, err)
	}

	e.logger.Info("order placed",
		utils.Figi(pos.Figi),
		utils.OrderID(orderID),
		utils.Purpose(purpose),
		utils.Lots(lots),
		utils.Price(req.StopPrice),
		utils.Amount("exec_price", req.Price),
	)
	e.audit(ctx, models.EventOrderPlaced, pos, fmt.Sprintf("%s placed at %s", purpose, req.StopPrice), map[string]interface{}{
		"order_id":    orderID,
		"position_id": pos.ID,
		"purpose":     purpose,
		"stop_price":  req.StopPrice.String(),
		"price":       req.Price.String(),
		"lots":        lots,
	})
	return order, nil
}

func (e *Executor) audit(ctx context.Context, eventType string, pos *models.Position, description string, details map[string]interface{}) {
	if e.events == nil {
		return
	}
	if err := e.events.LogEvent(ctx, eventType, pos.AccountID, pos.Figi, pos.Ticker, description, details); err != nil {
		e.logger.Warn("audit write failed", utils.String("event", eventType), utils.Err(err))
	}
}
