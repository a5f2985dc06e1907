package engine

import (
	"context"

	"slguard/internal/broker"
	"slguard/internal/models"
)

// Интерфейсы зависимостей движка. Реализации: repository, broker, instruments, settings, notify.

type PositionStore interface {
	Create(ctx context.Context, pos *models.Position) error
	GetByFigi(ctx context.Context, accountID, figi string) (*models.Position, error)
	ListByAccount(ctx context.Context, accountID string) ([]*models.Position, error)
	Update(ctx context.Context, pos *models.Position) error
	UpdateState(ctx context.Context, id int64, state string) error
	Delete(ctx context.Context, id int64) error
}

type OrderStore interface {
	Create(ctx context.Context, order *models.Order) error
	ListActiveByPosition(ctx context.Context, positionID int64) ([]*models.Order, error)
	MarkCancelled(ctx context.Context, orderID string) error
}

type TradeStore interface {
	Create(ctx context.Context, trade *models.Trade) error
}

type LadderStore interface {
	Replace(ctx context.Context, positionID int64, levels []*models.MultiTakeProfitLevel) error
	DeleteByPosition(ctx context.Context, positionID int64) error
}

// EventLog - журнал аудита
type EventLog interface {
	LogEvent(ctx context.Context, eventType, accountID, figi, ticker, description string, details map[string]interface{}) error
}

// SettingsSource - действующие настройки тикера
type SettingsSource interface {
	GetEffectiveSettings(ctx context.Context, accountID, ticker string) (models.EffectiveSettings, error)
}

// InstrumentSource - метаданные инструмента
type InstrumentSource interface {
	Resolve(ctx context.Context, figiOrTicker string) (*broker.Instrument, error)
}

// OrderBroker - RPC выставления и отмены стоп-заявок
type OrderBroker interface {
	PlaceStopOrder(ctx context.Context, req broker.StopOrderRequest) (string, error)
	CancelStopOrder(ctx context.Context, accountID, orderID string) error
}

// Notifier - оповещения оператору, не блокирует
type Notifier interface {
	Notify(alert *models.Alert)
}

// PositionFeed - лента изменений позиций для ops UI, не блокирует
type PositionFeed interface {
	BroadcastPosition(position interface{}) bool
}
