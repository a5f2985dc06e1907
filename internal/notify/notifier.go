// Package notify - оповещения оператора. Отправка никогда не блокирует вызывающего.
package notify

import (
	"context"
	"sync/atomic"
	"time"

	"slguard/internal/models"
	"slguard/pkg/utils"
)

// Notifier - порт оповещений для движка
type Notifier interface {
	SendAlert(text string)
	Notify(alert *models.Alert)
}

// Sink - получатель оповещений (webhook, лента WebSocket, лог)
type Sink interface {
	Name() string
	Send(ctx context.Context, alert *models.Alert) error
}

// Dispatcher ставит оповещения в буферизованную очередь и рассылает их по sinks
// из одной горутины. При заполненной очереди оповещение отбрасывается.
type Dispatcher struct {
	queue   chan *models.Alert
	sinks   []Sink
	timeout time.Duration
	logger  *utils.Logger

	dropped atomic.Int64
	sent    atomic.Int64
}

// NewDispatcher создаёт диспетчер. queueSize <= 0 заменяется на 256.
func NewDispatcher(queueSize int, timeout time.Duration, logger *utils.Logger, sinks ...Sink) *Dispatcher {
	if queueSize <= 0 {
		queueSize = 256
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if logger == nil {
		logger = utils.L()
	}
	return &Dispatcher{
		queue:   make(chan *models.Alert, queueSize),
		sinks:   sinks,
		timeout: timeout,
		logger:  logger.WithComponent("notify"),
	}
}

// SendAlert - текстовое оповещение уровня warn
func (d *Dispatcher) SendAlert(text string) {
	d.Notify(&models.Alert{Type: models.AlertGeneric, Severity: models.SeverityWarn, Message: text})
}

// Notify ставит оповещение в очередь
func (d *Dispatcher) Notify(alert *models.Alert) {
	if alert.Timestamp.IsZero() {
		alert.Timestamp = time.Now().UTC()
	}
	select {
	case d.queue <- alert:
	default:
		d.dropped.Add(1)
		d.logger.Warn("alert queue full, alert dropped", utils.String("message", alert.Message))
	}
}

// Run доставляет оповещения до отмены ctx. Остаток очереди при остановке отбрасывается.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case alert := <-d.queue:
			d.deliver(ctx, alert)
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, alert *models.Alert) {
	for _, sink := range d.sinks {
		sendCtx, cancel := context.WithTimeout(ctx, d.timeout)
		err := sink.Send(sendCtx, alert)
		cancel()
		if err != nil {
			d.logger.Warn("alert delivery failed",
				utils.String("sink", sink.Name()),
				utils.String("type", alert.Type),
				utils.Err(err),
			)
		}
	}
	d.sent.Add(1)
}

// Stats - доставлено и отброшено с момента запуска
func (d *Dispatcher) Stats() (sent, dropped int64) {
	return d.sent.Load(), d.dropped.Load()
}

// Nop - Notifier, который ничего не делает (тесты, CLI)
type Nop struct{}

func (Nop) SendAlert(string)      {}
func (Nop) Notify(*models.Alert) {}
