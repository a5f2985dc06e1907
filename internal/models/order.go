package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Order - защитный стоп-ордер, выставленный для позиции.
// Записи не удаляются: заменённые ордера помечаются CANCELLED.
type Order struct {
	ID         int64           `json:"id" db:"id"`
	OrderID    string          `json:"order_id" db:"order_id"` // id стоп-заявки у брокера
	PositionID int64           `json:"position_id" db:"position_id"`
	AccountID  string          `json:"account_id" db:"account_id"`
	Figi       string          `json:"figi" db:"figi"`
	Type       string          `json:"type" db:"order_type"`     // STOP
	Direction  string          `json:"direction" db:"direction"` // BUY, SELL
	Quantity   int64           `json:"quantity" db:"quantity"`   // в штуках
	Price      decimal.Decimal `json:"price" db:"price"`         // цена исполнения
	StopPrice  decimal.Decimal `json:"stop_price" db:"stop_price"`
	Status     string          `json:"status" db:"status"`
	Purpose    string          `json:"purpose" db:"order_purpose"`
	CreatedAt  time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at" db:"updated_at"`
}

// Тип ордера
const OrderTypeStop = "STOP"

// Стороны ордера
const (
	SideBuy  = "BUY"
	SideSell = "SELL"
)

// Статусы ордера
const (
	OrderStatusNew       = "NEW"
	OrderStatusCancelled = "CANCELLED"
)

// Назначение ордера
const (
	PurposeStopLoss   = "STOP_LOSS"
	PurposeTakeProfit = "TAKE_PROFIT"
	purposeLadderPref = "MULTI_TP_LEVEL_"
)

// LadderPurpose - назначение ордера уровня лестницы TP (нумерация с 1)
func LadderPurpose(level int) string {
	return fmt.Sprintf("%s%d", purposeLadderPref, level)
}

// IsTakeProfit - TP или любой уровень лестницы
func IsTakeProfit(purpose string) bool {
	return purpose == PurposeTakeProfit || strings.HasPrefix(purpose, purposeLadderPref)
}
