package engine

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"slguard/internal/broker"
	"slguard/internal/models"
	"slguard/internal/risk"
	"slguard/pkg/retry"
	"slguard/pkg/utils"
)

// Имена потоков
const (
	StreamTrades    = "trades"
	StreamPositions = "positions"
)

// Config - параметры движка одного счёта
type Config struct {
	AccountID string

	MonitorInterval time.Duration
	StreamTimeout   time.Duration
	BackoffBase     time.Duration
	BackoffMax      time.Duration
	ShutdownGrace   time.Duration

	DedupeTTL        time.Duration
	DedupeMaxEntries int

	SyncOnStart bool
	Retry       retry.Config
}

// Deps - внешние зависимости движка
type Deps struct {
	Broker      broker.Client
	Instruments InstrumentSource
	Settings    SettingsSource
	Calculator  *risk.Calculator

	Positions PositionStore
	Orders    OrderStore
	Trades    TradeStore
	Ladders   LadderStore
	Events    EventLog
	Notifier  Notifier
	Feed      PositionFeed // может быть nil
}

// Engine - движок защиты счёта: два потока, монитор и общая критическая секция
type Engine struct {
	cfg    Config
	broker broker.Client
	logger *utils.Logger

	ledger    *Ledger
	gate      *ActivationGate
	executor  *Executor
	protector *Protector
	trades    *TradeProcessor
	snapshots *SnapshotProcessor
	monitor   *StreamMonitor

	tradeStream    *StreamSupervisor
	positionStream *StreamSupervisor
}

// New собирает движок
func New(cfg Config, deps Deps, logger *utils.Logger) *Engine {
	if logger == nil {
		logger = utils.L()
	}
	logger = logger.WithAccount(cfg.AccountID)
	if cfg.ShutdownGrace <= 0 {
		cfg.ShutdownGrace = 2 * time.Second
	}
	if cfg.Retry.MaxRetries == 0 {
		cfg.Retry = retry.BrokerConfig()
	}
	if deps.Calculator == nil {
		deps.Calculator = risk.NewCalculator(risk.DefaultDefaults())
	}
	if deps.Notifier == nil {
		deps.Notifier = nopNotifier{}
	}

	lock := &AccountLock{}
	ledger := NewLedger(deps.Positions, logger)
	gate := NewActivationGate()
	executor := NewExecutor(deps.Broker, deps.Instruments, deps.Orders, deps.Ladders, deps.Events, cfg.Retry, logger)

	protector := &Protector{
		ledger:      ledger,
		executor:    executor,
		gate:        gate,
		settings:    deps.Settings,
		instruments: deps.Instruments,
		calc:        deps.Calculator,
		events:      deps.Events,
		notifier:    deps.Notifier,
		feed:        deps.Feed,
		logger:      logger.WithComponent("protector"),
	}

	e := &Engine{
		cfg:       cfg,
		broker:    deps.Broker,
		logger:    logger.WithComponent("engine"),
		ledger:    ledger,
		gate:      gate,
		executor:  executor,
		protector: protector,
		monitor:   NewStreamMonitor(cfg.AccountID, cfg.MonitorInterval, cfg.StreamTimeout, deps.Events, deps.Notifier, logger),
	}

	e.trades = &TradeProcessor{
		accountID:   cfg.AccountID,
		lock:        lock,
		dedupe:      NewDedupe(cfg.DedupeTTL, cfg.DedupeMaxEntries),
		ledger:      ledger,
		executor:    executor,
		protector:   protector,
		gate:        gate,
		trades:      deps.Trades,
		ladders:     deps.Ladders,
		instruments: deps.Instruments,
		events:      deps.Events,
		logger:      logger.WithComponent("trades"),
	}
	e.snapshots = &SnapshotProcessor{
		accountID:   cfg.AccountID,
		lock:        lock,
		ledger:      ledger,
		executor:    executor,
		protector:   protector,
		gate:        gate,
		ladders:     deps.Ladders,
		instruments: deps.Instruments,
		source:      deps.Broker,
		retry:       cfg.Retry,
		events:      deps.Events,
		notifier:    deps.Notifier,
		logger:      logger.WithComponent("positions"),
	}

	e.tradeStream = NewStreamSupervisor(StreamTrades, cfg.AccountID, e.tradeSession, e.newBackoff(), e.monitor, deps.Events, logger)
	e.positionStream = NewStreamSupervisor(StreamPositions, cfg.AccountID, e.positionSession, e.newBackoff(), e.monitor, deps.Events, logger)
	return e
}

func (e *Engine) newBackoff() *retry.Backoff {
	b := retry.StreamBackoff()
	if e.cfg.BackoffBase > 0 {
		b.Base = e.cfg.BackoffBase
	}
	if e.cfg.BackoffMax > 0 {
		b.Max = e.cfg.BackoffMax
	}
	return b
}

func (e *Engine) tradeSession(ctx context.Context, received func()) error {
	return e.broker.SubscribeTrades(ctx, e.cfg.AccountID, func(msg broker.TradeMessage) {
		received()
		e.trades.HandleMessage(ctx, msg)
	})
}

func (e *Engine) positionSession(ctx context.Context, received func()) error {
	return e.broker.SubscribePositions(ctx, e.cfg.AccountID, func(msg broker.PositionMessage) {
		received()
		e.snapshots.HandleMessage(ctx, msg)
	})
}

// Run запускает потоки и монитор и блокируется до отмены ctx.
// После отмены ждёт завершения задач не дольше ShutdownGrace.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Info("engine starting")

	if e.cfg.SyncOnStart {
		if _, err := e.snapshots.SyncFromBroker(ctx); err != nil {
			// стартуем без сверки: потоки догонят состояние
			e.logger.Error("startup sync failed", utils.Err(err))
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return e.tradeStream.Run(gctx) })
	g.Go(func() error { return e.positionStream.Run(gctx) })
	g.Go(func() error { return e.monitor.Run(gctx) })

	done := make(chan error, 1)
	go func() { done <- g.Wait() }()

	select {
	case err := <-done:
		e.logger.Info("engine stopped")
		return err
	case <-ctx.Done():
	}

	select {
	case err := <-done:
		e.logger.Info("engine stopped")
		return err
	case <-time.After(e.cfg.ShutdownGrace):
		e.logger.Warn("engine tasks did not stop in time, abandoning", utils.Dur("grace", e.cfg.ShutdownGrace))
		return fmt.Errorf("shutdown grace %s exceeded", e.cfg.ShutdownGrace)
	}
}

// Status - состояние движка для ops API
type Status struct {
	AccountID string                       `json:"account_id"`
	Streams   []StreamStatus               `json:"streams"`
	Positions map[string]int               `json:"positions"`
	Pending   map[string]PendingActivation `json:"pending_activations"`
}

// Status возвращает снимок состояния
func (e *Engine) Status() Status {
	return Status{
		AccountID: e.cfg.AccountID,
		Streams:   e.monitor.Status(),
		Positions: e.ledger.Snapshot(),
		Pending:   e.gate.Snapshot(),
	}
}

// Trades - обработчик потока сделок
func (e *Engine) Trades() *TradeProcessor { return e.trades }

// Snapshots - обработчик потока позиций
func (e *Engine) Snapshots() *SnapshotProcessor { return e.snapshots }

// Monitor - монитор потоков
func (e *Engine) Monitor() *StreamMonitor { return e.monitor }

// Gate - отложенные активации
func (e *Engine) Gate() *ActivationGate { return e.gate }

type nopNotifier struct{}

func (nopNotifier) Notify(*models.Alert) {}
