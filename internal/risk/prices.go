package risk

import (
	"github.com/shopspring/decimal"

	"slguard/internal/models"
	"slguard/pkg/utils"
)

var (
	defaultSLPct    = decimal.RequireFromString("0.5")
	executionFactor = decimal.RequireFromString("0.1")
)

// ExecutionPrice - цена исполнения стоп-лимита.
//
// Отступ от стоп-цены в процентах: max(10% от sl_pct, один шаг цены).
// Для LONG цена ниже стопа, для SHORT выше, чтобы лимитка исполнилась при проскальзывании.
// slPct <= 0 заменяется на 0.5.
func ExecutionPrice(stop, slPct decimal.Decimal, direction string, step decimal.Decimal) decimal.Decimal {
	if !stop.IsPositive() {
		return stop
	}
	if !slPct.IsPositive() {
		slPct = defaultSLPct
	}

	offset := slPct.Mul(executionFactor)
	if step.IsPositive() {
		offset = utils.MaxDecimal(offset, step.Div(stop).Mul(hundred))
	}

	if direction == models.DirectionLong {
		offset = offset.Neg()
	}
	return utils.RoundToStep(utils.ApplyPercent(stop, offset), step)
}

// ActivationPrices - цены, при пересечении которых выставляются отложенные SL и TP.
// nil - активация для этой ноги не задана.
//
// LONG: SL активируется при падении на sl%, TP при росте на tp%. SHORT зеркально.
func ActivationPrices(avg decimal.Decimal, direction string, step decimal.Decimal, sl, tp models.ActivationPct) (slPrice, tpPrice *decimal.Decimal) {
	if sl.IsSet() {
		pct := sl.Value
		if direction == models.DirectionLong {
			pct = pct.Neg()
		}
		p := utils.RoundToStep(utils.ApplyPercent(avg, pct), step)
		slPrice = &p
	}
	if tp.IsSet() {
		pct := tp.Value
		if direction == models.DirectionShort {
			pct = pct.Neg()
		}
		p := utils.RoundToStep(utils.ApplyPercent(avg, pct), step)
		tpPrice = &p
	}
	return slPrice, tpPrice
}

// PnL - нереализованный результат позиции в валюте цены
func PnL(direction string, avg, current decimal.Decimal, quantity int64) decimal.Decimal {
	diff := current.Sub(avg)
	if direction == models.DirectionShort {
		diff = diff.Neg()
	}
	return diff.Mul(decimal.NewFromInt(quantity))
}

// PnLPercent - результат в процентах от средней цены
func PnLPercent(direction string, avg, current decimal.Decimal) decimal.Decimal {
	if !avg.IsPositive() {
		return decimal.Zero
	}
	diff := current.Sub(avg)
	if direction == models.DirectionShort {
		diff = diff.Neg()
	}
	return utils.PercentOf(diff, avg).Round(2)
}

// RiskReward - отношение потенциальной прибыли к риску: |tp-avg| / |avg-sl|.
// Ноль, если риск нулевой.
func RiskReward(avg, sl, tp decimal.Decimal) decimal.Decimal {
	risk := avg.Sub(sl).Abs()
	if risk.IsZero() {
		return decimal.Zero
	}
	return tp.Sub(avg).Abs().Div(risk).Round(2)
}
