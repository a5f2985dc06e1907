package models

import (
	"bytes"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// ActivationMode - как задан процент активации на данном уровне настроек
type ActivationMode int

const (
	// ActivationInherit - значение берётся с уровня ниже (глобальные, затем дефолт)
	ActivationInherit ActivationMode = iota
	// ActivationDisabled - активация явно выключена, ордер выставляется сразу
	ActivationDisabled
	// ActivationValue - ордер откладывается до пересечения цены активации
	ActivationValue
)

// ActivationPct - процент активации: Inherit | Disabled | Value(x).
//
// В хранилище кодируется как NULL / 0 / x, в JSON и YAML как null / 0 / x.
type ActivationPct struct {
	Mode  ActivationMode
	Value decimal.Decimal
}

func InheritActivation() ActivationPct  { return ActivationPct{Mode: ActivationInherit} }
func DisabledActivation() ActivationPct { return ActivationPct{Mode: ActivationDisabled} }

// ActivationAt - активация при отклонении цены на pct процентов.
// pct <= 0 означает Disabled.
func ActivationAt(pct decimal.Decimal) ActivationPct {
	if !pct.IsPositive() {
		return DisabledActivation()
	}
	return ActivationPct{Mode: ActivationValue, Value: pct}
}

// IsSet - задано конкретное значение (отложенное выставление)
func (a ActivationPct) IsSet() bool {
	return a.Mode == ActivationValue
}

// Or возвращает fallback, если значение наследуется
func (a ActivationPct) Or(fallback ActivationPct) ActivationPct {
	if a.Mode == ActivationInherit {
		return fallback
	}
	return a
}

// ActivationFromNull декодирует столбец БД: NULL -> Inherit, 0 -> Disabled
func ActivationFromNull(v decimal.NullDecimal) ActivationPct {
	if !v.Valid {
		return InheritActivation()
	}
	return ActivationAt(v.Decimal)
}

// ToNull - обратное к ActivationFromNull
func (a ActivationPct) ToNull() decimal.NullDecimal {
	switch a.Mode {
	case ActivationValue:
		return decimal.NullDecimal{Decimal: a.Value, Valid: true}
	case ActivationDisabled:
		return decimal.NullDecimal{Decimal: decimal.Zero, Valid: true}
	default:
		return decimal.NullDecimal{}
	}
}

func (a ActivationPct) String() string {
	switch a.Mode {
	case ActivationValue:
		return a.Value.String() + "%"
	case ActivationDisabled:
		return "disabled"
	default:
		return "inherit"
	}
}

func (a ActivationPct) MarshalJSON() ([]byte, error) {
	switch a.Mode {
	case ActivationValue:
		return []byte(a.Value.String()), nil
	case ActivationDisabled:
		return []byte("0"), nil
	default:
		return []byte("null"), nil
	}
}

func (a *ActivationPct) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*a = InheritActivation()
		return nil
	}
	var d decimal.Decimal
	if err := d.UnmarshalJSON(data); err != nil {
		return err
	}
	*a = ActivationAt(d)
	return nil
}

func (a *ActivationPct) UnmarshalYAML(node *yaml.Node) error {
	if node.Tag == "!!null" || node.Value == "" || node.Value == "~" {
		*a = InheritActivation()
		return nil
	}
	d, err := decimal.NewFromString(node.Value)
	if err != nil {
		return err
	}
	*a = ActivationAt(d)
	return nil
}

// TPLevel - уровень лестницы: цена в % от средней и доля объёма в %
type TPLevel struct {
	LevelPct  decimal.Decimal `json:"level_pct" yaml:"level_pct"`
	VolumePct decimal.Decimal `json:"volume_pct" yaml:"volume_pct"`
}

// EffectiveSettings - настройки, действующие для решения по инструменту.
// Вычисляются на каждое решение, не хранятся.
type EffectiveSettings struct {
	StopLossPct     decimal.NullDecimal `json:"stop_loss_pct"`
	TakeProfitPct   decimal.NullDecimal `json:"take_profit_pct"`
	StopLossSteps   int64               `json:"stop_loss_steps,omitempty"`
	TakeProfitSteps int64               `json:"take_profit_steps,omitempty"`
	SLActivation    ActivationPct       `json:"sl_activation_pct"`
	TPActivation    ActivationPct       `json:"tp_activation_pct"`
	MultiTPEnabled  bool                `json:"multi_tp_enabled"`
	MultiTPLevels   []TPLevel           `json:"multi_tp_levels"`
	Source          string              `json:"source"` // default, global, instrument
}

// HasActivation - хотя бы одна нога откладывается до активации
func (s EffectiveSettings) HasActivation() bool {
	return s.SLActivation.IsSet() || s.TPActivation.IsSet()
}

// UseLadder - лестница включена и уровни заданы
func (s EffectiveSettings) UseLadder() bool {
	return s.MultiTPEnabled && len(s.MultiTPLevels) > 0
}

// Источники настроек
const (
	SettingsSourceDefault    = "default"
	SettingsSourceFile       = "file"
	SettingsSourceGlobal     = "global"
	SettingsSourceInstrument = "instrument"
)

// SettingsLayer - один уровень настроек (глобальный или по тикеру).
// Пустые поля означают "наследовать".
type SettingsLayer struct {
	ID             int64               `json:"id" db:"id"`
	AccountID      string              `json:"account_id" db:"account_id"`
	Ticker         string              `json:"ticker,omitempty" db:"ticker"` // пусто = глобальный уровень
	StopLossPct    decimal.NullDecimal `json:"stop_loss_pct" db:"stop_loss_pct"`
	TakeProfitPct  decimal.NullDecimal `json:"take_profit_pct" db:"take_profit_pct"`
	SLActivation   ActivationPct       `json:"sl_activation_pct" db:"sl_activation_pct"`
	TPActivation   ActivationPct       `json:"tp_activation_pct" db:"tp_activation_pct"`
	MultiTPEnabled *bool               `json:"multi_tp_enabled" db:"multi_tp_enabled"`
	MultiTPLevels  []TPLevel           `json:"multi_tp_levels,omitempty" db:"multi_tp_levels"` // JSON в БД, nil = наследовать
	UpdatedAt      time.Time           `json:"updated_at" db:"updated_at"`
}
