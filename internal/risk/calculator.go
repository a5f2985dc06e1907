// Package risk - расчёт уровней SL/TP, цен исполнения и распределение лотов лестницы TP.
//
// Все функции пакета чистые: без I/O и без состояния, кроме дефолтов калькулятора.
package risk

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"slguard/internal/models"
	"slguard/pkg/utils"
)

// ErrValidation - некорректные входные данные расчёта
var ErrValidation = errors.New("validation error")

// Режимы расчёта
const (
	ModePercent = "percent"
	ModeSteps   = "steps"
)

var hundred = decimal.NewFromInt(100)

// StockDefaults - проценты для акций, если не заданы настройками
type StockDefaults struct {
	SLPct decimal.Decimal
	TPPct decimal.Decimal
}

// FuturesDefaults - для фьючерсов: проценты (опционально) и шаги цены
type FuturesDefaults struct {
	SLPct   decimal.NullDecimal
	TPPct   decimal.NullDecimal
	SLSteps int64
	TPSteps int64
}

// Defaults - значения по умолчанию по типам инструментов
type Defaults struct {
	Stock   StockDefaults
	Futures FuturesDefaults
}

// DefaultDefaults - встроенные значения: акции 0.4% / 1.0%, фьючерсы 10 / 30 шагов
func DefaultDefaults() Defaults {
	return Defaults{
		Stock: StockDefaults{
			SLPct: decimal.RequireFromString("0.4"),
			TPPct: decimal.RequireFromString("1.0"),
		},
		Futures: FuturesDefaults{SLSteps: 10, TPSteps: 30},
	}
}

// Config - настройки SL/TP для одного расчёта. Пустые поля берутся из Defaults.
type Config struct {
	SLPct   decimal.NullDecimal
	TPPct   decimal.NullDecimal
	SLSteps int64
	TPSteps int64
}

// ConfigFrom собирает Config из действующих настроек
func ConfigFrom(s models.EffectiveSettings) Config {
	return Config{
		SLPct:   s.StopLossPct,
		TPPct:   s.TakeProfitPct,
		SLSteps: s.StopLossSteps,
		TPSteps: s.TakeProfitSteps,
	}
}

// Input - позиция, для которой считаются уровни
type Input struct {
	InstrumentType string
	Direction      string
	AveragePrice   decimal.Decimal
	PriceStep      decimal.Decimal
	Config         Config
}

// Levels - результат расчёта
type Levels struct {
	StopLoss   decimal.Decimal
	TakeProfit decimal.Decimal
	// SLPct - процент SL, нужен для отступа цены исполнения. В режиме шагов ноль.
	SLPct decimal.Decimal
	Mode  string
}

// Calculator считает уровни SL/TP
type Calculator struct {
	defaults Defaults
}

// NewCalculator создаёт калькулятор с дефолтами
func NewCalculator(defaults Defaults) *Calculator {
	return &Calculator{defaults: defaults}
}

// Defaults возвращает дефолты калькулятора
func (c *Calculator) Defaults() Defaults {
	return c.defaults
}

// Calculate считает SL и TP.
//
// Акции: всегда проценты от средней цены.
// Фьючерсы: проценты, если заданы оба, иначе N шагов цены от средней.
//
//	LONG:  SL = avg * (1 - sl/100), TP = avg * (1 + tp/100)
//	SHORT: SL = avg * (1 + sl/100), TP = avg * (1 - tp/100)
func (c *Calculator) Calculate(in Input) (Levels, error) {
	if err := validateBase(in.Direction, in.AveragePrice, in.PriceStep); err != nil {
		return Levels{}, err
	}

	switch in.InstrumentType {
	case models.InstrumentStock:
		sl := pick(in.Config.SLPct, c.defaults.Stock.SLPct)
		tp := pick(in.Config.TPPct, c.defaults.Stock.TPPct)
		return percentLevels(in, sl, tp)

	case models.InstrumentFutures:
		sl := orNull(in.Config.SLPct, c.defaults.Futures.SLPct)
		tp := orNull(in.Config.TPPct, c.defaults.Futures.TPPct)
		if sl.Valid && tp.Valid {
			return percentLevels(in, sl.Decimal, tp.Decimal)
		}
		slSteps := in.Config.SLSteps
		if slSteps <= 0 {
			slSteps = c.defaults.Futures.SLSteps
		}
		tpSteps := in.Config.TPSteps
		if tpSteps <= 0 {
			tpSteps = c.defaults.Futures.TPSteps
		}
		return stepLevels(in, slSteps, tpSteps)

	default:
		return Levels{}, fmt.Errorf("%w: unknown instrument type %q", ErrValidation, in.InstrumentType)
	}
}

func percentLevels(in Input, slPct, tpPct decimal.Decimal) (Levels, error) {
	if !slPct.IsPositive() || !tpPct.IsPositive() {
		return Levels{}, fmt.Errorf("%w: sl/tp percent must be positive (sl=%s tp=%s)", ErrValidation, slPct, tpPct)
	}

	var sl, tp decimal.Decimal
	if in.Direction == models.DirectionLong {
		sl = utils.ApplyPercent(in.AveragePrice, slPct.Neg())
		tp = utils.ApplyPercent(in.AveragePrice, tpPct)
	} else {
		sl = utils.ApplyPercent(in.AveragePrice, slPct)
		tp = utils.ApplyPercent(in.AveragePrice, tpPct.Neg())
	}

	return Levels{
		StopLoss:   utils.RoundToStep(sl, in.PriceStep),
		TakeProfit: utils.RoundToStep(tp, in.PriceStep),
		SLPct:      slPct,
		Mode:       ModePercent,
	}, nil
}

func stepLevels(in Input, slSteps, tpSteps int64) (Levels, error) {
	if slSteps <= 0 || tpSteps <= 0 {
		return Levels{}, fmt.Errorf("%w: sl/tp steps must be positive (sl=%d tp=%d)", ErrValidation, slSteps, tpSteps)
	}

	slOffset := in.PriceStep.Mul(decimal.NewFromInt(slSteps))
	tpOffset := in.PriceStep.Mul(decimal.NewFromInt(tpSteps))

	var sl, tp decimal.Decimal
	if in.Direction == models.DirectionLong {
		sl = in.AveragePrice.Sub(slOffset)
		tp = in.AveragePrice.Add(tpOffset)
	} else {
		sl = in.AveragePrice.Add(slOffset)
		tp = in.AveragePrice.Sub(tpOffset)
	}

	return Levels{
		StopLoss:   utils.RoundToStep(sl, in.PriceStep),
		TakeProfit: utils.RoundToStep(tp, in.PriceStep),
		Mode:       ModeSteps,
	}, nil
}

// LadderPrices - абсолютные цены уровней лестницы TP.
// Уровень задаётся процентом от средней цены, как TP в процентном режиме.
func LadderPrices(avg decimal.Decimal, direction string, step decimal.Decimal, levels []models.TPLevel) ([]decimal.Decimal, error) {
	if err := validateBase(direction, avg, step); err != nil {
		return nil, err
	}

	prices := make([]decimal.Decimal, len(levels))
	for i, lvl := range levels {
		if !lvl.LevelPct.IsPositive() {
			return nil, fmt.Errorf("%w: level %d percent must be positive", ErrValidation, i+1)
		}
		pct := lvl.LevelPct
		if direction == models.DirectionShort {
			pct = pct.Neg()
		}
		prices[i] = utils.RoundToStep(utils.ApplyPercent(avg, pct), step)
	}
	return prices, nil
}

func validateBase(direction string, avg, step decimal.Decimal) error {
	if direction != models.DirectionLong && direction != models.DirectionShort {
		return fmt.Errorf("%w: unknown direction %q", ErrValidation, direction)
	}
	if !avg.IsPositive() {
		return fmt.Errorf("%w: average price must be positive, got %s", ErrValidation, avg)
	}
	if !step.IsPositive() {
		return fmt.Errorf("%w: price step must be positive, got %s", ErrValidation, step)
	}
	return nil
}

func pick(v decimal.NullDecimal, fallback decimal.Decimal) decimal.Decimal {
	if v.Valid {
		return v.Decimal
	}
	return fallback
}

func orNull(v, fallback decimal.NullDecimal) decimal.NullDecimal {
	if v.Valid {
		return v
	}
	return fallback
}
