package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ============ Потоки ============

// StreamRestarts - принудительные перезапуски потоков монитором
var StreamRestarts = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "slguard",
		Name:      "streams_restarts_total",
		Help:      "Number of stream restarts forced by the health monitor",
	},
	[]string{"stream"},
)

// StreamReconnects - переподключения после ошибки потока
var StreamReconnects = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "slguard",
		Subsystem: "stream",
		Name:      "reconnects_total",
		Help:      "Number of stream reconnect attempts after an error",
	},
	[]string{"stream"},
)

// StreamIdle - секунды с последнего сообщения потока
var StreamIdle = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: "slguard",
		Subsystem: "stream",
		Name:      "idle_seconds",
		Help:      "Seconds since the last message received on a stream",
	},
	[]string{"stream"},
)

// ============ События ============

// EventsProcessed - обработанные сообщения потоков
var EventsProcessed = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "slguard",
		Name:      "events_processed_total",
		Help:      "Total number of processed stream events",
	},
	[]string{"type"}, // fill, snapshot, duplicate
)

// EventErrors - ошибки обработки по видам
var EventErrors = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "slguard",
		Name:      "events_errors_total",
		Help:      "Event handling errors by kind",
	},
	[]string{"kind"},
)

// ============ Ордера ============

// OrdersPlaced - выставленные защитные ордера
var OrdersPlaced = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "slguard",
		Subsystem: "orders",
		Name:      "placed_total",
		Help:      "Protective orders placed by purpose",
	},
	[]string{"purpose", "result"}, // result: success, failed
)

// OrdersCancelled - отменённые ордера
var OrdersCancelled = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "slguard",
		Subsystem: "orders",
		Name:      "cancelled_total",
		Help:      "Protective orders cancelled",
	},
	[]string{"result"},
)

// BrokerLatency - время RPC брокера
var BrokerLatency = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "slguard",
		Subsystem: "broker",
		Name:      "rpc_latency_ms",
		Help:      "Broker RPC latency in milliseconds, retries included",
		Buckets:   []float64{25, 50, 100, 250, 500, 1000, 2500, 5000},
	},
	[]string{"op"},
)

// ============ Состояние ============

// OpenPositions - позиции по состояниям защиты
var OpenPositions = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: "slguard",
		Name:      "positions",
		Help:      "Tracked positions by protection state",
	},
	[]string{"state"},
)

// PendingActivations - позиции с отложенной защитой
var PendingActivations = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "slguard",
		Name:      "pending_activations",
		Help:      "Positions waiting for an activation price",
	},
)

// DedupeEntries - размер множества дедупликации
var DedupeEntries = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "slguard",
		Subsystem: "trades",
		Name:      "dedupe_entries",
		Help:      "Entries held in the fill dedupe set",
	},
)

// ============ Вспомогательные функции ============

// RecordEventError увеличивает счётчик ошибок по виду
func RecordEventError(kind ErrorKind) {
	EventErrors.WithLabelValues(kind.String()).Inc()
}

// RecordOrderPlaced учитывает попытку выставления
func RecordOrderPlaced(purpose string, ok bool) {
	result := "success"
	if !ok {
		result = "failed"
	}
	OrdersPlaced.WithLabelValues(purposeLabel(purpose), result).Inc()
}

// RecordOrderCancelled учитывает отмену
func RecordOrderCancelled(ok bool) {
	result := "success"
	if !ok {
		result = "failed"
	}
	OrdersCancelled.WithLabelValues(result).Inc()
}

// RecordBrokerLatency записывает латентность RPC
func RecordBrokerLatency(op string, latencyMs float64) {
	BrokerLatency.WithLabelValues(op).Observe(latencyMs)
}

// RecordPositionStates перезаписывает gauge позиций по состояниям
func RecordPositionStates(counts map[string]int) {
	OpenPositions.Reset()
	for state, n := range counts {
		OpenPositions.WithLabelValues(state).Set(float64(n))
	}
}

// уровни лестницы сводятся к одной метке, чтобы не плодить серии
func purposeLabel(purpose string) string {
	switch purpose {
	case "STOP_LOSS", "TAKE_PROFIT":
		return purpose
	default:
		return "MULTI_TP_LEVEL"
	}
}
