package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"slguard/internal/broker"
	"slguard/internal/models"
	"slguard/pkg/retry"
	"slguard/pkg/utils"
)

// SessionFunc - одна блокирующая сессия подписки. Возвращается при обрыве или отмене ctx.
// received вызывается на каждое сообщение потока.
type SessionFunc func(ctx context.Context, received func()) error

// StreamSupervisor держит поток подписки живым: переподключается с экспоненциальной
// задержкой, сбрасывает задержку после первого сообщения и умеет
// перезапускаться по команде монитора.
type StreamSupervisor struct {
	name      string
	accountID string
	session   SessionFunc
	backoff   *retry.Backoff
	monitor   *StreamMonitor
	events    EventLog
	logger    *utils.Logger
	sleep     func(ctx context.Context, d time.Duration) error

	mu        sync.Mutex
	cancel    context.CancelFunc
	restarted atomic.Bool
	received  atomic.Bool
}

// NewStreamSupervisor создаёт супервизор и регистрирует поток в мониторе
func NewStreamSupervisor(name, accountID string, session SessionFunc, backoff *retry.Backoff, monitor *StreamMonitor, events EventLog, logger *utils.Logger) *StreamSupervisor {
	if backoff == nil {
		backoff = retry.StreamBackoff()
	}
	if logger == nil {
		logger = utils.L()
	}
	s := &StreamSupervisor{
		name:      name,
		accountID: accountID,
		session:   session,
		backoff:   backoff,
		monitor:   monitor,
		events:    events,
		logger:    logger.WithStream(name),
		sleep:     sleepCtx,
	}
	if monitor != nil {
		monitor.Register(name, s.Restart)
	}
	return s
}

// Restart прерывает текущую сессию. Переподключение происходит сразу, без задержки.
// Вне сессии (во время ожидания переподключения) ничего не делает.
func (s *StreamSupervisor) Restart() {
	s.mu.Lock()
	cancel := s.cancel
	if cancel != nil {
		s.restarted.Store(true)
	}
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Run крутит сессии до отмены ctx
func (s *StreamSupervisor) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		sessCtx, cancel := context.WithCancel(ctx)
		s.mu.Lock()
		s.cancel = cancel
		s.restarted.Store(false)
		s.mu.Unlock()

		s.logger.Info("stream connecting", utils.Int("attempt", s.backoff.Attempt()))
		err := s.session(sessCtx, s.onMessage)
		cancel()

		s.mu.Lock()
		s.cancel = nil
		s.mu.Unlock()

		if ctx.Err() != nil {
			s.logger.Info("stream stopped")
			return nil
		}
		if s.received.Swap(false) {
			s.backoff.Reset()
		}
		if s.restarted.Swap(false) {
			s.logger.Info("stream restarted by monitor")
			continue
		}

		if err == nil {
			err = broker.ErrStreamClosed
		}
		s.onError(ctx, err)

		delay := s.backoff.Next()
		s.logger.Warn("stream reconnecting",
			utils.Dur("delay", delay),
			utils.Int("attempt", s.backoff.Attempt()),
			utils.Err(err),
		)
		if err := s.sleep(ctx, delay); err != nil {
			return nil
		}
	}
}

func (s *StreamSupervisor) onMessage() {
	s.received.Store(true)
	if s.monitor != nil {
		s.monitor.Touch(s.name)
	}
}

func (s *StreamSupervisor) onError(ctx context.Context, err error) {
	StreamReconnects.WithLabelValues(s.name).Inc()
	kind := Classify(err)
	if kind == KindUnexpected && !errors.Is(err, context.Canceled) {
		kind = KindStreamDisconnect
	}
	RecordEventError(kind)

	if s.events == nil {
		return
	}
	if lerr := s.events.LogEvent(ctx, models.EventStreamError, s.accountID, "", "", err.Error(), map[string]interface{}{
		"stream":  s.name,
		"attempt": s.backoff.Attempt(),
	}); lerr != nil {
		s.logger.Warn("audit write failed", utils.String("event", models.EventStreamError), utils.Err(lerr))
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
