package broker

import (
	"time"

	"github.com/shopspring/decimal"
)

// Instrument - метаданные инструмента, нужные для расчёта уровней
type Instrument struct {
	Figi           string          `json:"figi"`
	Ticker         string          `json:"ticker"`
	ClassCode      string          `json:"class_code"`
	Name           string          `json:"name"`
	InstrumentType string          `json:"instrument_type"` // stock, futures
	Lot            int64           `json:"lot"`
	PriceStep      decimal.Decimal `json:"price_step"`
	StepPrice      decimal.Decimal `json:"step_price"` // стоимость шага цены, для фьючерсов
}

// Fill - одно исполнение внутри события сделки
type Fill struct {
	Quantity  int64           `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
	Timestamp time.Time       `json:"timestamp"`
}

// FillEvent - событие потока сделок по одной заявке
type FillEvent struct {
	OrderID   string `json:"order_id"`
	AccountID string `json:"account_id"`
	Figi      string `json:"figi"`
	Direction string `json:"direction"` // BUY, SELL
	Fills     []Fill `json:"fills"`
}

// SecurityBalance - баланс по одному инструменту в снимке позиций
type SecurityBalance struct {
	Figi         string          `json:"figi"`
	Balance      int64           `json:"balance"` // в штуках
	AveragePrice decimal.Decimal `json:"average_price"`
	CurrentPrice decimal.Decimal `json:"current_price"`
}

// BalanceSnapshot - снимок позиций счёта из потока позиций или портфеля
type BalanceSnapshot struct {
	AccountID  string            `json:"account_id"`
	Securities []SecurityBalance `json:"securities"`
}

// Типы стоп-заявок
const (
	StopOrderTypeStopLimit  = "STOP_ORDER_TYPE_STOP_LIMIT"
	StopOrderTypeTakeProfit = "STOP_ORDER_TYPE_TAKE_PROFIT"
)

// StopOrderRequest - параметры выставления стоп-заявки. Quantity в лотах.
type StopOrderRequest struct {
	AccountID string
	Figi      string
	Direction string // BUY, SELL
	Quantity  int64
	Price     decimal.Decimal // цена исполнения
	StopPrice decimal.Decimal // цена активации
	OrderType string
}

// TradeMessage - сообщение потока сделок. Fill == nil для ping и подтверждений подписки.
type TradeMessage struct {
	Fill *FillEvent
	Kind string
}

// PositionMessage - сообщение потока позиций. Snapshot == nil для служебных сообщений.
type PositionMessage struct {
	Snapshot *BalanceSnapshot
	Kind     string
}

// Виды сообщений потоков
const (
	MessagePing         = "ping"
	MessageSubscription = "subscription"
	MessageData         = "data"
)
