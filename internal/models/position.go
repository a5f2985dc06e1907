package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Position - открытая позиция по инструменту.
// Quantity всегда > 0 (в штуках, не в лотах), направление хранится отдельно.
type Position struct {
	ID             int64           `json:"id" db:"id"`
	AccountID      string          `json:"account_id" db:"account_id"`
	Figi           string          `json:"figi" db:"figi"`
	Ticker         string          `json:"ticker" db:"ticker"`
	InstrumentType string          `json:"instrument_type" db:"instrument_type"` // stock, futures
	Quantity       int64           `json:"quantity" db:"quantity"`
	AveragePrice   decimal.Decimal `json:"average_price" db:"average_price"`
	Direction      string          `json:"direction" db:"direction"` // LONG, SHORT
	State          string          `json:"state" db:"state"`
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at" db:"updated_at"`
}

// Направления позиции
const (
	DirectionLong  = "LONG"
	DirectionShort = "SHORT"
)

// Типы инструментов
const (
	InstrumentStock   = "stock"
	InstrumentFutures = "futures"
)

// Состояния защиты позиции
const (
	StateOpening               = "OPENING"
	StateOpenUnprotected       = "OPEN_UNPROTECTED"
	StateOpenPendingActivation = "OPEN_PENDING_ACTIVATION"
	StateOpenProtected         = "OPEN_PROTECTED"
	StateClosed                = "CLOSED"
)

// Clone возвращает копию позиции
func (p *Position) Clone() *Position {
	if p == nil {
		return nil
	}
	c := *p
	return &c
}

// IsLong - позиция в лонг
func (p *Position) IsLong() bool {
	return p.Direction == DirectionLong
}

// ExitSide - сторона защитных ордеров (противоположная позиции)
func (p *Position) ExitSide() string {
	if p.IsLong() {
		return SideSell
	}
	return SideBuy
}

// Opposite возвращает противоположное направление
func Opposite(direction string) string {
	if direction == DirectionLong {
		return DirectionShort
	}
	return DirectionLong
}
