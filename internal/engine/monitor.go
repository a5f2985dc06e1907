package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"slguard/internal/models"
	"slguard/pkg/utils"
)

// Параметры монитора по умолчанию
const (
	DefaultMonitorInterval = 60 * time.Second
	DefaultStreamTimeout   = 300 * time.Second
)

// StreamStatus - состояние одного потока для API и логов
type StreamStatus struct {
	Name        string        `json:"name"`
	LastMessage time.Time     `json:"last_message"`
	Idle        time.Duration `json:"idle"`
	Restarts    int           `json:"restarts"`
}

type streamHealth struct {
	last     time.Time
	restarts int
	restart  func()
}

// StreamMonitor следит, что потоки не молчат дольше таймаута.
// Любое сообщение потока (включая ping) обновляет отметку времени.
type StreamMonitor struct {
	accountID string
	interval  time.Duration
	timeout   time.Duration
	events    EventLog
	notifier  Notifier
	logger    *utils.Logger
	now       func() time.Time

	mu      sync.Mutex
	streams map[string]*streamHealth
}

// NewStreamMonitor создаёт монитор. Нулевые интервалы заменяются значениями по умолчанию.
func NewStreamMonitor(accountID string, interval, timeout time.Duration, events EventLog, notifier Notifier, logger *utils.Logger) *StreamMonitor {
	if interval <= 0 {
		interval = DefaultMonitorInterval
	}
	if timeout <= 0 {
		timeout = DefaultStreamTimeout
	}
	if logger == nil {
		logger = utils.L()
	}
	return &StreamMonitor{
		accountID: accountID,
		interval:  interval,
		timeout:   timeout,
		events:    events,
		notifier:  notifier,
		logger:    logger.WithComponent("stream_monitor"),
		now:       time.Now,
		streams:   make(map[string]*streamHealth),
	}
}

// Register добавляет поток. restart вызывается при превышении таймаута.
func (m *StreamMonitor) Register(name string, restart func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.streams[name] = &streamHealth{last: m.now(), restart: restart}
}

// Touch отмечает получение сообщения потоком
func (m *StreamMonitor) Touch(name string) {
	m.mu.Lock()
	if s, ok := m.streams[name]; ok {
		s.last = m.now()
	}
	m.mu.Unlock()
}

// Check перезапускает потоки, молчащие дольше таймаута, и возвращает их имена.
// После перезапуска таймер потока отсчитывается заново.
func (m *StreamMonitor) Check(ctx context.Context) []string {
	now := m.now()

	type stalled struct {
		name    string
		idle    time.Duration
		restart func()
	}
	var toRestart []stalled

	m.mu.Lock()
	for name, s := range m.streams {
		idle := now.Sub(s.last)
		StreamIdle.WithLabelValues(name).Set(idle.Seconds())
		if idle <= m.timeout {
			continue
		}
		s.last = now
		s.restarts++
		toRestart = append(toRestart, stalled{name: name, idle: idle, restart: s.restart})
	}
	m.mu.Unlock()

	sort.Slice(toRestart, func(i, j int) bool { return toRestart[i].name < toRestart[j].name })

	names := make([]string, 0, len(toRestart))
	for _, s := range toRestart {
		names = append(names, s.name)
		m.onStalled(ctx, s.name, s.idle, now)
		if s.restart != nil {
			s.restart()
		}
	}
	return names
}

func (m *StreamMonitor) onStalled(ctx context.Context, name string, idle time.Duration, at time.Time) {
	StreamRestarts.WithLabelValues(name).Inc()
	RecordEventError(KindStreamStalled)

	msg := fmt.Sprintf("stream %s silent for %s, restarting (account %s, %s)",
		name, idle.Truncate(time.Second), m.accountID, utils.FormatUTC(at))
	m.logger.Warn("stream stalled, restarting",
		utils.Stream(name),
		utils.Dur("idle", idle),
		utils.Account(m.accountID),
	)

	if m.events != nil {
		if err := m.events.LogEvent(ctx, models.EventStreamTimeout, m.accountID, "", "", msg, map[string]interface{}{
			"stream":       name,
			"idle_seconds": int64(idle.Seconds()),
		}); err != nil {
			m.logger.Warn("audit write failed", utils.String("event", models.EventStreamTimeout), utils.Err(err))
		}
	}
	if m.notifier != nil {
		m.notifier.Notify(&models.Alert{
			Timestamp: at,
			Type:      models.AlertStreamRestart,
			Severity:  models.SeverityWarn,
			AccountID: m.accountID,
			Message:   msg,
		})
	}
}

// Run опрашивает потоки с интервалом до отмены контекста
func (m *StreamMonitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.logger.Info("stream monitor started",
		utils.Dur("interval", m.interval),
		utils.Dur("timeout", m.timeout),
	)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			m.Check(ctx)
		}
	}
}

// Status - снимок состояния всех потоков
func (m *StreamMonitor) Status() []StreamStatus {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]StreamStatus, 0, len(m.streams))
	for name, s := range m.streams {
		out = append(out, StreamStatus{
			Name:        name,
			LastMessage: s.last,
			Idle:        now.Sub(s.last),
			Restarts:    s.restarts,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
