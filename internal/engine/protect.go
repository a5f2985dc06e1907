package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"slguard/internal/models"
	"slguard/internal/risk"
	"slguard/pkg/utils"
)

// Protector ставит защиту на позицию по действующим настройкам:
// сразу SL+TP (или SL+лестница), либо откладывает ноги до цены активации.
// Вызывается под AccountLock.
type Protector struct {
	ledger      *Ledger
	executor    *Executor
	gate        *ActivationGate
	settings    SettingsSource
	instruments InstrumentSource
	calc        *risk.Calculator
	events      EventLog
	notifier    Notifier
	feed        PositionFeed
	logger      *utils.Logger
}

// Protect снимает старую защиту позиции и ставит новую
func (p *Protector) Protect(ctx context.Context, pos *models.Position) error {
	log := p.logger.With(utils.Account(pos.AccountID), utils.Figi(pos.Figi), utils.PositionID(pos.ID))

	inst, err := p.instruments.Resolve(ctx, pos.Figi)
	if err != nil {
		return p.unprotected(ctx, pos, err)
	}
	if pos.Ticker == "" {
		pos.Ticker = inst.Ticker
	}

	eff, err := p.settings.GetEffectiveSettings(ctx, pos.AccountID, pos.Ticker)
	if err != nil {
		return p.unprotected(ctx, pos, err)
	}

	levels, err := p.calc.Calculate(risk.Input{
		InstrumentType: pos.InstrumentType,
		Direction:      pos.Direction,
		AveragePrice:   pos.AveragePrice,
		PriceStep:      inst.PriceStep,
		Config:         risk.ConfigFrom(eff),
	})
	if err != nil {
		return p.unprotected(ctx, pos, err)
	}

	log.Info("levels calculated",
		utils.Direction(pos.Direction),
		utils.Quantity(pos.Quantity),
		utils.Amount("avg", pos.AveragePrice),
		utils.Amount("sl", levels.StopLoss),
		utils.Amount("tp", levels.TakeProfit),
		utils.String("mode", levels.Mode),
		utils.String("settings", eff.Source),
	)

	p.gate.Remove(pos.Figi)

	if eff.HasActivation() {
		return p.deferLegs(ctx, pos, inst.PriceStep, eff, levels)
	}

	if eff.UseLadder() {
		_, err = p.executor.PlaceMultiTP(ctx, pos, levels.StopLoss, levels.SLPct, eff.MultiTPLevels)
	} else {
		err = p.executor.PlaceSLTP(ctx, pos, levels.StopLoss, levels.TakeProfit, levels.SLPct)
	}
	if err != nil {
		return p.unprotected(ctx, pos, err)
	}
	p.setState(ctx, pos, models.StateOpenProtected)
	return nil
}

// deferLegs регистрирует отложенную активацию. Ноги без цены активации выставляются сразу.
func (p *Protector) deferLegs(ctx context.Context, pos *models.Position, step decimal.Decimal, eff models.EffectiveSettings, levels risk.Levels) error {
	if _, err := p.executor.CancelAllForPosition(ctx, pos); err != nil {
		return p.unprotected(ctx, pos, err)
	}

	slAct, tpAct := risk.ActivationPrices(pos.AveragePrice, pos.Direction, step, eff.SLActivation, eff.TPActivation)
	pending := &PendingActivation{
		PositionID:        pos.ID,
		Direction:         pos.Direction,
		SLActivationPrice: slAct,
		TPActivationPrice: tpAct,
		StopLoss:          levels.StopLoss,
		TakeProfit:        levels.TakeProfit,
		SLPct:             levels.SLPct,
	}
	if eff.UseLadder() {
		pending.Ladder = eff.MultiTPLevels
	}

	if slAct == nil {
		if _, err := p.executor.PlaceStopLoss(ctx, pos, levels.StopLoss, levels.SLPct); err != nil {
			return p.unprotected(ctx, pos, err)
		}
	}
	if tpAct == nil {
		if err := p.placeTP(ctx, pos, pending); err != nil {
			return p.unprotected(ctx, pos, err)
		}
	}

	p.gate.Register(pos.Figi, pending)
	p.setState(ctx, pos, models.StateOpenPendingActivation)

	details := map[string]interface{}{"position_id": pos.ID}
	if slAct != nil {
		details["sl_activation_price"] = slAct.String()
	}
	if tpAct != nil {
		details["tp_activation_price"] = tpAct.String()
	}
	p.audit(ctx, models.EventActivationPending, pos, "protection deferred until activation price", details)
	return nil
}

// Activate выставляет ноги, которые прошли цену активации.
// Нога, которую не удалось выставить, остаётся в ожидании: следующий снимок повторит попытку.
func (p *Protector) Activate(ctx context.Context, pos *models.Position, newSL, newTP bool) error {
	pending, ok := p.gate.Get(pos.Figi)
	if !ok {
		return nil
	}

	var errs []error
	var placedSL, placedTP bool
	if newSL {
		p.audit(ctx, models.EventSLActivated, pos, "stop-loss activation price crossed", nil)
		if _, err := p.executor.PlaceStopLoss(ctx, pos, pending.StopLoss, pending.SLPct); err != nil {
			errs = append(errs, fmt.Errorf("stop-loss after activation: %w", err))
		} else {
			placedSL = true
			p.audit(ctx, models.EventSLOrderPlaced, pos, fmt.Sprintf("stop-loss placed at %s after activation", pending.StopLoss), nil)
		}
	}
	if newTP {
		p.audit(ctx, models.EventTPActivated, pos, "take-profit activation price crossed", nil)
		if err := p.placeTP(ctx, pos, &pending); err != nil {
			errs = append(errs, fmt.Errorf("take-profit after activation: %w", err))
		} else {
			placedTP = true
			p.audit(ctx, models.EventTPOrderPlaced, pos, fmt.Sprintf("take-profit placed at %s after activation", pending.TakeProfit), nil)
		}
	}

	done := p.gate.MarkActivated(pos.Figi, placedSL, placedTP)

	if err := errors.Join(errs...); err != nil {
		return p.unprotected(ctx, pos, err)
	}

	p.notifier.Notify(&models.Alert{
		Type:      models.AlertActivated,
		Severity:  models.SeverityInfo,
		AccountID: pos.AccountID,
		Figi:      pos.Figi,
		Message:   fmt.Sprintf("%s: activation reached (sl=%v tp=%v)", pos.Ticker, newSL, newTP),
	})

	if done {
		p.gate.Remove(pos.Figi)
		p.setState(ctx, pos, models.StateOpenProtected)
		return nil
	}
	p.setState(ctx, pos, models.StateOpenPendingActivation)
	return nil
}

// placeTP выставляет TP или лестницу. Если лестница выставлена частично,
// уже выставленные уровни снимаются, чтобы повторная попытка не задвоила их.
func (p *Protector) placeTP(ctx context.Context, pos *models.Position, pending *PendingActivation) error {
	if len(pending.Ladder) == 0 {
		_, err := p.executor.PlaceTakeProfit(ctx, pos, pending.TakeProfit)
		return err
	}

	placed, err := p.executor.PlaceLadder(ctx, pos, pending.Ladder)
	if err == nil {
		return nil
	}
	for _, order := range placed {
		if cerr := p.executor.CancelOrder(ctx, order); cerr != nil {
			p.logger.Warn("partial ladder level not cancelled",
				utils.Figi(pos.Figi),
				utils.OrderID(order.OrderID),
				utils.Err(cerr),
			)
		}
	}
	return err
}

// unprotected фиксирует, что позиция осталась без защиты, и возвращает исходную ошибку
func (p *Protector) unprotected(ctx context.Context, pos *models.Position, cause error) error {
	p.setState(ctx, pos, models.StateOpenUnprotected)
	p.notifier.Notify(&models.Alert{
		Type:      models.AlertOrderFailed,
		Severity:  models.SeverityError,
		AccountID: pos.AccountID,
		Figi:      pos.Figi,
		Message:   fmt.Sprintf("%s left unprotected: %v", displayName(pos), cause),
	})
	return cause
}

func (p *Protector) setState(ctx context.Context, pos *models.Position, state string) {
	if pos.State == state && state != models.StateOpenProtected {
		return
	}
	if err := p.ledger.SetState(ctx, pos, state); err != nil {
		p.logger.Warn("state not updated",
			utils.Figi(pos.Figi),
			utils.State(state),
			utils.Err(err),
		)
		return
	}
	if p.feed != nil {
		p.feed.BroadcastPosition(pos.Clone())
	}
}

func (p *Protector) audit(ctx context.Context, eventType string, pos *models.Position, description string, details map[string]interface{}) {
	if err := p.events.LogEvent(ctx, eventType, pos.AccountID, pos.Figi, pos.Ticker, description, details); err != nil {
		p.logger.Warn("audit write failed", utils.String("event", eventType), utils.Err(err))
	}
}

func displayName(pos *models.Position) string {
	if pos.Ticker != "" {
		return pos.Ticker
	}
	return pos.Figi
}
