package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Trade - запись об исполнении (append-only)
type Trade struct {
	ID          int64           `json:"id" db:"id"`
	TradeID     string          `json:"trade_id" db:"trade_id"`
	OrderID     string          `json:"order_id" db:"order_id"`
	AccountID   string          `json:"account_id" db:"account_id"`
	Figi        string          `json:"figi" db:"figi"`
	Ticker      string          `json:"ticker" db:"ticker"`
	Direction   string          `json:"direction" db:"direction"` // BUY, SELL
	Quantity    int64           `json:"quantity" db:"quantity"`
	Price       decimal.Decimal `json:"price" db:"price"`
	TotalAmount decimal.Decimal `json:"total_amount" db:"total_amount"`
	TradeDate   time.Time       `json:"trade_date" db:"trade_date"`
}

// MultiTakeProfitLevel - уровень лестницы TP. Набор уровней позиции заменяется целиком.
type MultiTakeProfitLevel struct {
	ID            int64           `json:"id" db:"id"`
	PositionID    int64           `json:"position_id" db:"position_id"`
	LevelNumber   int             `json:"level_number" db:"level_number"`
	PriceLevel    decimal.Decimal `json:"price_level" db:"price_level"`
	VolumePercent decimal.Decimal `json:"volume_percent" db:"volume_percent"`
	IsTriggered   bool            `json:"is_triggered" db:"is_triggered"`
	OrderID       string          `json:"order_id,omitempty" db:"order_id"`
}
