package models

import "time"

// Alert - оповещение оператору (webhook, websocket-лента)
type Alert struct {
	Timestamp time.Time `json:"timestamp"`
	Type      string    `json:"type"`
	Severity  string    `json:"severity"` // info, warn, error
	AccountID string    `json:"account_id,omitempty"`
	Figi      string    `json:"figi,omitempty"`
	Message   string    `json:"message"`
}

// Типы оповещений
const (
	AlertGeneric       = "ALERT"
	AlertStreamRestart = "STREAM_RESTART" // поток перезапущен монитором
	AlertOrderFailed   = "ORDER_FAILED"   // не удалось выставить защиту
	AlertDiscrepancy   = "DISCREPANCY"    // расхождение с брокером
	AlertProtected     = "PROTECTED"      // позиция защищена
	AlertActivated     = "ACTIVATED"      // сработала активация SL/TP
)

// Уровни важности
const (
	SeverityInfo  = "info"
	SeverityWarn  = "warn"
	SeverityError = "error"
)
