package engine

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"slguard/internal/broker"
	"slguard/internal/models"
	"slguard/internal/risk"
	"slguard/pkg/utils"
)

// TradeProcessor обрабатывает события потока сделок
type TradeProcessor struct {
	accountID   string
	lock        *AccountLock
	dedupe      *Dedupe
	ledger      *Ledger
	executor    *Executor
	protector   *Protector
	gate        *ActivationGate
	trades      TradeStore
	ladders     LadderStore
	instruments InstrumentSource
	events      EventLog
	logger      *utils.Logger
}

// HandleMessage - колбэк потока: служебные сообщения пропускаются, ошибки не прерывают поток
func (p *TradeProcessor) HandleMessage(ctx context.Context, msg broker.TradeMessage) {
	if msg.Fill == nil {
		return
	}
	res := p.Handle(ctx, msg.Fill)
	reportFailure(ctx, p.events, p.logger, p.accountID, msg.Fill.Figi, "trades", res)
}

// Handle применяет одно событие исполнения к позиции и переставляет защиту.
// Повторно доставленные исполнения отбрасываются по ключу order_id + время.
func (p *TradeProcessor) Handle(ctx context.Context, ev *broker.FillEvent) HandleResult {
	fresh := make([]broker.Fill, 0, len(ev.Fills))
	for _, f := range ev.Fills {
		if f.Quantity <= 0 {
			continue
		}
		if p.dedupe.MarkNew(FillKey(ev.OrderID, f.Timestamp)) {
			fresh = append(fresh, f)
		}
	}
	DedupeEntries.Set(float64(p.dedupe.Len()))

	if len(fresh) == 0 {
		EventsProcessed.WithLabelValues("duplicate").Inc()
		p.logger.Debug("duplicate fills skipped", utils.Figi(ev.Figi), utils.OrderID(ev.OrderID))
		return Result(nil)
	}
	EventsProcessed.WithLabelValues("fill").Inc()

	if ev.Direction != models.SideBuy && ev.Direction != models.SideSell {
		return Result(fmt.Errorf("%w: fill %s has direction %q", risk.ErrValidation, ev.OrderID, ev.Direction))
	}

	qty, vwap := aggregateFills(fresh)

	var res HandleResult
	p.lock.Do(func() {
		res = Result(p.apply(ctx, ev, fresh, qty, vwap))
	})
	return res
}

func (p *TradeProcessor) apply(ctx context.Context, ev *broker.FillEvent, fills []broker.Fill, qty int64, vwap decimal.Decimal) error {
	accountID := ev.AccountID
	if accountID == "" {
		accountID = p.accountID
	}

	inst, err := p.instruments.Resolve(ctx, ev.Figi)
	if err != nil {
		return err
	}

	log := p.logger.With(utils.Account(accountID), utils.Figi(ev.Figi), utils.Ticker(inst.Ticker))
	log.Info("fill received",
		utils.OrderID(ev.OrderID),
		utils.String("side", ev.Direction),
		utils.Quantity(qty),
		utils.Price(vwap),
		utils.Int("fills", len(fills)),
	)

	p.saveTrades(ctx, accountID, inst.Ticker, ev, fills)

	out, err := p.ledger.ApplyTrade(ctx, TradeInput{
		AccountID:      accountID,
		Figi:           ev.Figi,
		Ticker:         inst.Ticker,
		InstrumentType: inst.InstrumentType,
		Side:           ev.Direction,
		Quantity:       qty,
		Price:          vwap,
	})
	if err != nil && !out.Closed {
		return err
	}
	// при ошибке разворота старая позиция уже удалена: её ордера всё равно снимаются

	if out.QuantityChanged() {
		p.gate.Remove(ev.Figi)
		if _, err := p.executor.CancelAllForPosition(ctx, out.Before); err != nil {
			log.Warn("cancel before re-protect failed", utils.Err(err))
		}
	}

	if out.Closed {
		if err := p.ladders.DeleteByPosition(ctx, out.Before.ID); err != nil {
			log.Warn("ladder cleanup failed", utils.Err(err))
		}
		p.audit(ctx, models.EventPositionClosed, out.Before, "position closed by fill", map[string]interface{}{
			"order_id": ev.OrderID,
			"quantity": qty,
			"price":    vwap.String(),
		})
	}
	if err != nil {
		return fmt.Errorf("open reversed position %s: %w", ev.Figi, err)
	}
	if out.After == nil {
		return nil
	}

	switch {
	case out.Reversed:
		p.audit(ctx, models.EventPositionReversed, out.After, fmt.Sprintf("position reversed to %s %d", out.After.Direction, out.After.Quantity), nil)
	case out.Created:
		p.audit(ctx, models.EventPositionCreated, out.After, fmt.Sprintf("%s %d @ %s", out.After.Direction, out.After.Quantity, out.After.AveragePrice), nil)
	default:
		p.audit(ctx, models.EventPositionUpdated, out.After, fmt.Sprintf("quantity %d -> %d, avg %s", out.Before.Quantity, out.After.Quantity, out.After.AveragePrice), nil)
	}

	return p.protector.Protect(ctx, out.After)
}

// saveTrades пишет исполнения в журнал сделок. Ошибка записи не останавливает обработку.
func (p *TradeProcessor) saveTrades(ctx context.Context, accountID, ticker string, ev *broker.FillEvent, fills []broker.Fill) {
	if p.trades == nil {
		return
	}
	for _, f := range fills {
		trade := &models.Trade{
			TradeID:     FillKey(ev.OrderID, f.Timestamp),
			OrderID:     ev.OrderID,
			AccountID:   accountID,
			Figi:        ev.Figi,
			Ticker:      ticker,
			Direction:   ev.Direction,
			Quantity:    f.Quantity,
			Price:       f.Price,
			TotalAmount: f.Price.Mul(decimal.NewFromInt(f.Quantity)),
			TradeDate:   f.Timestamp,
		}
		if err := p.trades.Create(ctx, trade); err != nil {
			p.logger.Warn("trade not journaled", utils.Figi(ev.Figi), utils.OrderID(ev.OrderID), utils.Err(err))
		}
	}
}

func (p *TradeProcessor) audit(ctx context.Context, eventType string, pos *models.Position, description string, details map[string]interface{}) {
	if err := p.events.LogEvent(ctx, eventType, pos.AccountID, pos.Figi, pos.Ticker, description, details); err != nil {
		p.logger.Warn("audit write failed", utils.String("event", eventType), utils.Err(err))
	}
}

// aggregateFills - суммарное количество и средневзвешенная цена
func aggregateFills(fills []broker.Fill) (int64, decimal.Decimal) {
	prices := make([]decimal.Decimal, len(fills))
	qty := make([]int64, len(fills))
	var total int64
	for i, f := range fills {
		prices[i] = f.Price
		qty[i] = f.Quantity
		total += f.Quantity
	}
	return total, utils.WeightedAverage(prices, qty)
}
