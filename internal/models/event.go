package models

import "time"

// SystemEvent - запись журнала аудита
type SystemEvent struct {
	ID          int64                  `json:"id" db:"id"`
	EventType   string                 `json:"event_type" db:"event_type"`
	AccountID   string                 `json:"account_id,omitempty" db:"account_id"`
	Figi        string                 `json:"figi,omitempty" db:"figi"`
	Ticker      string                 `json:"ticker,omitempty" db:"ticker"`
	Description string                 `json:"description" db:"description"`
	Details     map[string]interface{} `json:"details,omitempty" db:"details"` // JSON в БД
	CreatedAt   time.Time              `json:"created_at" db:"created_at"`
}

// Типы событий аудита
const (
	EventPositionCreated     = "POSITION_CREATED"
	EventPositionUpdated     = "POSITION_UPDATED"
	EventPositionClosed      = "POSITION_CLOSED"
	EventPositionReversed    = "POSITION_REVERSED"
	EventPositionSynced      = "POSITION_SYNCED"
	EventPositionDiscrepancy = "POSITION_DISCREPANCY"
	EventOrderPlaced         = "ORDER_PLACED"
	EventOrderCancelled      = "ORDER_CANCELLED"
	EventOrderError          = "ORDER_ERROR"
	EventMultiTPSetup        = "MULTI_TP_SETUP"
	EventActivationPending   = "ACTIVATION_PENDING"
	EventSLActivated         = "SL_ACTIVATED"
	EventTPActivated         = "TP_ACTIVATED"
	EventSLOrderPlaced       = "SL_ORDER_PLACED"
	EventTPOrderPlaced       = "TP_ORDER_PLACED"
	EventStreamError         = "STREAM_ERROR"
	EventStreamTimeout       = "STREAM_TIMEOUT"
	EventError               = "ERROR"
)
