package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"slguard/internal/broker"
	"slguard/internal/models"
	"slguard/pkg/retry"
	"slguard/pkg/utils"
)

// DriftThreshold - доля расхождения количества, после которой пишется POSITION_DISCREPANCY
var DriftThreshold = decimal.NewFromFloat(0.5)

// PositionSource - снимок портфеля для стартовой синхронизации
type PositionSource interface {
	GetPositions(ctx context.Context, accountID string) (*broker.BalanceSnapshot, error)
}

// SnapshotProcessor сверяет локальные позиции со снимками брокера
// и проверяет цены активации отложенной защиты.
type SnapshotProcessor struct {
	accountID   string
	lock        *AccountLock
	ledger      *Ledger
	executor    *Executor
	protector   *Protector
	gate        *ActivationGate
	ladders     LadderStore
	instruments InstrumentSource
	source      PositionSource
	retry       retry.Config
	events      EventLog
	notifier    Notifier
	logger      *utils.Logger
}

// HandleMessage - колбэк потока позиций
func (p *SnapshotProcessor) HandleMessage(ctx context.Context, msg broker.PositionMessage) {
	if msg.Snapshot == nil {
		return
	}
	res := p.Handle(ctx, msg.Snapshot)
	reportFailure(ctx, p.events, p.logger, p.accountID, "", "positions", res)
}

// Handle обрабатывает снимок. Ошибка по одному инструменту не мешает остальным.
func (p *SnapshotProcessor) Handle(ctx context.Context, snap *broker.BalanceSnapshot) HandleResult {
	EventsProcessed.WithLabelValues("snapshot").Inc()

	accountID := snap.AccountID
	if accountID == "" {
		accountID = p.accountID
	}

	var errs []error
	for _, sec := range snap.Securities {
		var err error
		p.lock.Do(func() {
			err = p.reconcile(ctx, accountID, sec)
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", sec.Figi, err))
		}
	}
	RecordPositionStates(p.ledger.Snapshot())
	return Result(errors.Join(errs...))
}

// reconcile - один инструмент снимка. Вызывается под AccountLock.
func (p *SnapshotProcessor) reconcile(ctx context.Context, accountID string, sec broker.SecurityBalance) error {
	local, err := p.ledger.Get(ctx, accountID, sec.Figi)
	if err != nil {
		return err
	}

	// активация проверяется до сверки количеств
	if local != nil && p.gate.IsPending(sec.Figi) && sec.CurrentPrice.IsPositive() {
		newSL, newTP := p.gate.Check(sec.Figi, sec.CurrentPrice, local.Direction)
		if newSL || newTP {
			p.logger.Info("activation price reached",
				utils.Figi(sec.Figi),
				utils.Price(sec.CurrentPrice),
				utils.Bool("sl", newSL),
				utils.Bool("tp", newTP),
			)
			if err := p.protector.Activate(ctx, local, newSL, newTP); err != nil {
				return err
			}
		}
	}

	balance := sec.Balance
	switch {
	case local == nil && balance > 0:
		return p.adopt(ctx, accountID, sec)

	case local == nil:
		return nil

	case balance == 0:
		return p.closeLocal(ctx, local, "position closed at broker")

	case utils.AbsInt64(balance) == local.Quantity:
		return nil
	}

	diff := utils.AbsInt64(utils.AbsInt64(balance) - local.Quantity)
	drift := decimal.NewFromInt(diff).Div(decimal.NewFromInt(local.Quantity))
	if drift.GreaterThan(DriftThreshold) && utils.AbsInt64(balance) > local.Quantity {
		p.discrepancy(ctx, local, balance, drift)
		return nil
	}

	// небольшое расхождение догонит поток сделок
	p.logger.Debug("balance differs, waiting for fills",
		utils.Figi(sec.Figi),
		utils.Int64("broker", balance),
		utils.Int64("local", local.Quantity),
	)
	return nil
}

// adopt заводит позицию, открытую вне потока сделок, и защищает её
func (p *SnapshotProcessor) adopt(ctx context.Context, accountID string, sec broker.SecurityBalance) error {
	if !sec.AveragePrice.IsPositive() {
		p.logger.Warn("broker position without average price, skipped", utils.Figi(sec.Figi), utils.Int64("balance", sec.Balance))
		return nil
	}
	inst, err := p.instruments.Resolve(ctx, sec.Figi)
	if err != nil {
		return err
	}

	pos := &models.Position{
		AccountID:      accountID,
		Figi:           sec.Figi,
		Ticker:         inst.Ticker,
		InstrumentType: inst.InstrumentType,
		Quantity:       sec.Balance,
		AveragePrice:   sec.AveragePrice,
		Direction:      models.DirectionLong,
		State:          models.StateOpening,
	}
	if err := p.ledger.Create(ctx, pos); err != nil {
		return err
	}
	p.audit(ctx, models.EventPositionCreated, pos, "position found in broker snapshot", map[string]interface{}{
		"balance":       sec.Balance,
		"average_price": sec.AveragePrice.String(),
	})
	return p.protector.Protect(ctx, pos)
}

// closeLocal снимает защиту и удаляет позицию
func (p *SnapshotProcessor) closeLocal(ctx context.Context, pos *models.Position, reason string) error {
	p.gate.Remove(pos.Figi)
	if _, err := p.executor.CancelAllForPosition(ctx, pos); err != nil {
		p.logger.Warn("cancel on close failed", utils.Figi(pos.Figi), utils.Err(err))
	}
	if err := p.ladders.DeleteByPosition(ctx, pos.ID); err != nil {
		p.logger.Warn("ladder cleanup failed", utils.Figi(pos.Figi), utils.Err(err))
	}
	if err := p.ledger.Close(ctx, pos); err != nil {
		return err
	}
	p.audit(ctx, models.EventPositionClosed, pos, reason, map[string]interface{}{"position_id": pos.ID})
	return nil
}

func (p *SnapshotProcessor) discrepancy(ctx context.Context, pos *models.Position, balance int64, drift decimal.Decimal) {
	RecordEventError(KindReconciliationConflict)
	msg := fmt.Sprintf("%s: broker balance %d, local %d (drift %s)", displayName(pos), balance, pos.Quantity, drift.StringFixed(2))
	p.logger.Warn("position discrepancy",
		utils.Figi(pos.Figi),
		utils.Int64("broker", balance),
		utils.Int64("local", pos.Quantity),
		utils.String("drift", drift.StringFixed(2)),
	)
	p.audit(ctx, models.EventPositionDiscrepancy, pos, msg, map[string]interface{}{
		"broker_balance": balance,
		"local_quantity": pos.Quantity,
		"drift":          drift.StringFixed(4),
	})
	p.notifier.Notify(&models.Alert{
		Type:      models.AlertDiscrepancy,
		Severity:  models.SeverityWarn,
		AccountID: pos.AccountID,
		Figi:      pos.Figi,
		Message:   msg,
	})
}

// SyncResult - итог стартовой синхронизации
type SyncResult struct {
	Adopted     int
	Closed      int
	Reprotected int
	Errors      int
}

// SyncFromBroker сверяет все позиции счёта с портфелем брокера:
// заводит недостающие, закрывает исчезнувшие и защищает позиции без защиты.
func (p *SnapshotProcessor) SyncFromBroker(ctx context.Context) (SyncResult, error) {
	var res SyncResult

	snap, err := retry.DoWithResult(ctx, func() (*broker.BalanceSnapshot, error) {
		return p.source.GetPositions(ctx, p.accountID)
	}, p.retry)
	if err != nil {
		return res, fmt.Errorf("get positions: %w", err)
	}

	local, err := p.ledger.List(ctx, p.accountID)
	if err != nil {
		return res, fmt.Errorf("list local positions: %w", err)
	}

	balances := make(map[string]broker.SecurityBalance, len(snap.Securities))
	for _, sec := range snap.Securities {
		balances[sec.Figi] = sec
	}

	p.lock.Do(func() {
		for _, pos := range local {
			sec, ok := balances[pos.Figi]
			var err error
			switch {
			case !ok || sec.Balance == 0:
				err = p.closeLocal(ctx, pos, "position missing at broker on sync")
				if err == nil {
					res.Closed++
				}
			case pos.State == models.StateOpening || pos.State == models.StateOpenUnprotected,
				// ожидание активации живёт только в памяти и после рестарта строится заново
				pos.State == models.StateOpenPendingActivation && !p.gate.IsPending(pos.Figi):
				err = p.protector.Protect(ctx, pos)
				if err == nil {
					res.Reprotected++
				}
			}
			if err != nil {
				res.Errors++
				reportFailure(ctx, p.events, p.logger, p.accountID, pos.Figi, "sync", Result(err))
			}
			delete(balances, pos.Figi)
		}

		for _, sec := range balances {
			if sec.Balance <= 0 {
				continue
			}
			if err := p.adopt(ctx, p.accountID, sec); err != nil {
				res.Errors++
				reportFailure(ctx, p.events, p.logger, p.accountID, sec.Figi, "sync", Result(err))
				continue
			}
			res.Adopted++
		}
	})

	RecordPositionStates(p.ledger.Snapshot())
	p.logger.Info("sync with broker finished",
		utils.Int("adopted", res.Adopted),
		utils.Int("closed", res.Closed),
		utils.Int("reprotected", res.Reprotected),
		utils.Int("errors", res.Errors),
	)
	if err := p.events.LogEvent(ctx, models.EventPositionSynced, p.accountID, "", "", "startup sync finished", map[string]interface{}{
		"adopted":     res.Adopted,
		"closed":      res.Closed,
		"reprotected": res.Reprotected,
		"errors":      res.Errors,
	}); err != nil {
		p.logger.Warn("audit write failed", utils.String("event", models.EventPositionSynced), utils.Err(err))
	}
	return res, nil
}

func (p *SnapshotProcessor) audit(ctx context.Context, eventType string, pos *models.Position, description string, details map[string]interface{}) {
	if err := p.events.LogEvent(ctx, eventType, pos.AccountID, pos.Figi, pos.Ticker, description, details); err != nil {
		p.logger.Warn("audit write failed", utils.String("event", eventType), utils.Err(err))
	}
}
