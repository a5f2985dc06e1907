package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"slguard/internal/models"
	"slguard/internal/risk"
)

// LadderLevelPreview - уровень лестницы в предпросмотре
type LadderLevelPreview struct {
	Level     int             `json:"level"`
	Price     decimal.Decimal `json:"price"`
	VolumePct decimal.Decimal `json:"volume_pct"`
	Lots      int64           `json:"lots"`
}

// LevelsPreview - уровни, которые движок выставил бы для позиции
type LevelsPreview struct {
	Figi           string               `json:"figi"`
	Ticker         string               `json:"ticker"`
	InstrumentType string               `json:"instrument_type"`
	Direction      string               `json:"direction"`
	AveragePrice   decimal.Decimal      `json:"average_price"`
	PriceStep      decimal.Decimal      `json:"price_step"`
	Lot            int64                `json:"lot"`
	Source         string               `json:"settings_source"`
	Mode           string               `json:"mode"`
	StopLoss       decimal.Decimal      `json:"stop_loss"`
	StopExecution  decimal.Decimal      `json:"stop_execution_price"`
	TakeProfit     decimal.Decimal      `json:"take_profit"`
	RiskReward     decimal.Decimal      `json:"risk_reward"`
	SLActivation   *decimal.Decimal     `json:"sl_activation_price,omitempty"`
	TPActivation   *decimal.Decimal     `json:"tp_activation_price,omitempty"`
	Ladder         []LadderLevelPreview `json:"ladder,omitempty"`
}

// PreviewLevels считает уровни без обращения к ордерам: те же настройки,
// тот же калькулятор и та же лестница, что и при реальной защите.
// quantity в штуках, нужен только для распределения лестницы.
func PreviewLevels(ctx context.Context, inst InstrumentSource, settings SettingsSource, calc *risk.Calculator,
	accountID, key string, price decimal.Decimal, direction string, quantity int64) (*LevelsPreview, error) {

	direction = strings.ToUpper(strings.TrimSpace(direction))
	if direction == "" {
		direction = models.DirectionLong
	}
	if direction != models.DirectionLong && direction != models.DirectionShort {
		return nil, fmt.Errorf("%w: direction must be LONG or SHORT, got %q", risk.ErrValidation, direction)
	}

	instrument, err := inst.Resolve(ctx, key)
	if err != nil {
		return nil, err
	}
	eff, err := settings.GetEffectiveSettings(ctx, accountID, instrument.Ticker)
	if err != nil {
		return nil, err
	}

	levels, err := calc.Calculate(risk.Input{
		InstrumentType: instrument.InstrumentType,
		Direction:      direction,
		AveragePrice:   price,
		PriceStep:      instrument.PriceStep,
		Config:         risk.ConfigFrom(eff),
	})
	if err != nil {
		return nil, err
	}

	out := &LevelsPreview{
		Figi:           instrument.Figi,
		Ticker:         instrument.Ticker,
		InstrumentType: instrument.InstrumentType,
		Direction:      direction,
		AveragePrice:   price,
		PriceStep:      instrument.PriceStep,
		Lot:            instrument.Lot,
		Source:         eff.Source,
		Mode:           levels.Mode,
		StopLoss:       levels.StopLoss,
		StopExecution:  risk.ExecutionPrice(levels.StopLoss, levels.SLPct, direction, instrument.PriceStep),
		TakeProfit:     levels.TakeProfit,
		RiskReward:     risk.RiskReward(price, levels.StopLoss, levels.TakeProfit),
	}
	out.SLActivation, out.TPActivation = risk.ActivationPrices(price, direction, instrument.PriceStep, eff.SLActivation, eff.TPActivation)

	if eff.UseLadder() {
		prices, err := risk.LadderPrices(price, direction, instrument.PriceStep, eff.MultiTPLevels)
		if err != nil {
			return nil, err
		}
		var lots int64
		if instrument.Lot > 0 {
			lots = quantity / instrument.Lot
		}
		for i, a := range risk.Allocate(lots, eff.MultiTPLevels) {
			out.Ladder = append(out.Ladder, LadderLevelPreview{
				Level:     a.Level,
				Price:     prices[i],
				VolumePct: a.VolumePct,
				Lots:      a.Lots,
			})
		}
	}
	return out, nil
}
