// Package settings вычисляет действующие настройки защиты для тикера
// по цепочке: дефолты < глобальные (БД) < файл < инструмент (БД).
package settings

import (
	"fmt"
	"os"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"slguard/internal/models"
	"slguard/internal/risk"
)

// StockDefaults - проценты по умолчанию для акций
type StockDefaults struct {
	StopLossPct   decimal.Decimal `yaml:"stop_loss_pct"`
	TakeProfitPct decimal.Decimal `yaml:"take_profit_pct"`
}

// FuturesDefaults - для фьючерсов проценты опциональны, без них работает режим шагов цены
type FuturesDefaults struct {
	StopLossPct     *decimal.Decimal `yaml:"stop_loss_pct"`
	TakeProfitPct   *decimal.Decimal `yaml:"take_profit_pct"`
	StopLossSteps   int64            `yaml:"stop_loss_steps"`
	TakeProfitSteps int64            `yaml:"take_profit_steps"`
}

// MultiTP - секция лестницы TP
type MultiTP struct {
	Enabled *bool            `yaml:"enabled"`
	Levels  []models.TPLevel `yaml:"levels"`
}

// Instrument - переопределения для одного тикера в файле
type Instrument struct {
	Type            string               `yaml:"type"`
	StopLossPct     *decimal.Decimal     `yaml:"stop_loss_pct"`
	TakeProfitPct   *decimal.Decimal     `yaml:"take_profit_pct"`
	StopLossSteps   int64                `yaml:"stop_loss_steps"`
	TakeProfitSteps int64                `yaml:"take_profit_steps"`
	SLActivation    models.ActivationPct `yaml:"sl_activation_pct"`
	TPActivation    models.ActivationPct `yaml:"tp_activation_pct"`
	MultiTP         *MultiTP             `yaml:"multi_tp"`
}

// File - содержимое YAML файла настроек
type File struct {
	Defaults struct {
		Stocks  StockDefaults   `yaml:"stocks"`
		Futures FuturesDefaults `yaml:"futures"`
	} `yaml:"defaults"`
	MultiTakeProfit MultiTP               `yaml:"multi_take_profit"`
	Instruments     map[string]Instrument `yaml:"instruments"`
}

// DefaultFile - встроенные значения, если файла нет
func DefaultFile() *File {
	f := &File{Instruments: map[string]Instrument{}}
	f.Defaults.Stocks = StockDefaults{
		StopLossPct:   decimal.RequireFromString("0.4"),
		TakeProfitPct: decimal.RequireFromString("1.0"),
	}
	f.Defaults.Futures = FuturesDefaults{StopLossSteps: 10, TakeProfitSteps: 30}
	return f
}

// LoadFile читает YAML. Отсутствующий файл не ошибка: берутся встроенные значения.
func LoadFile(path string) (*File, error) {
	f := DefaultFile()
	if path == "" {
		return f, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return f, nil
		}
		return nil, fmt.Errorf("read settings file: %w", err)
	}
	if err := yaml.Unmarshal(data, f); err != nil {
		return nil, fmt.Errorf("parse settings file %s: %w", path, err)
	}
	if err := f.validate(); err != nil {
		return nil, fmt.Errorf("settings file %s: %w", path, err)
	}

	// тикеры в верхнем регистре
	normalized := make(map[string]Instrument, len(f.Instruments))
	for ticker, in := range f.Instruments {
		normalized[strings.ToUpper(ticker)] = in
	}
	f.Instruments = normalized
	return f, nil
}

func (f *File) validate() error {
	if !f.Defaults.Stocks.StopLossPct.IsPositive() || !f.Defaults.Stocks.TakeProfitPct.IsPositive() {
		return fmt.Errorf("defaults.stocks: percentages must be positive")
	}
	fut := f.Defaults.Futures
	if fut.StopLossSteps <= 0 || fut.TakeProfitSteps <= 0 {
		return fmt.Errorf("defaults.futures: steps must be positive")
	}
	if f.MultiTakeProfit.Enabled != nil && *f.MultiTakeProfit.Enabled {
		if err := risk.ValidateLevels(f.MultiTakeProfit.Levels); err != nil {
			return fmt.Errorf("multi_take_profit: %w", err)
		}
	}
	return nil
}

// RiskDefaults - дефолты для калькулятора уровней
func (f *File) RiskDefaults() risk.Defaults {
	return risk.Defaults{
		Stock: risk.StockDefaults{
			SLPct: f.Defaults.Stocks.StopLossPct,
			TPPct: f.Defaults.Stocks.TakeProfitPct,
		},
		Futures: risk.FuturesDefaults{
			SLPct:   nullOf(f.Defaults.Futures.StopLossPct),
			TPPct:   nullOf(f.Defaults.Futures.TakeProfitPct),
			SLSteps: f.Defaults.Futures.StopLossSteps,
			TPSteps: f.Defaults.Futures.TakeProfitSteps,
		},
	}
}

// Instrument возвращает переопределения тикера из файла
func (f *File) Instrument(ticker string) (Instrument, bool) {
	in, ok := f.Instruments[strings.ToUpper(ticker)]
	return in, ok
}

func nullOf(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *d, Valid: true}
}
