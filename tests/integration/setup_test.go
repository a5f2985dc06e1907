//go:build integration

// Package integration contains end-to-end tests of the protection engine.
//
// Components are wired as in `slguard serve`: sqlite repositories, instrument cache,
// settings resolver, notify dispatcher, websocket hub and the ops API. Only the broker
// is scripted: fills and snapshots are pushed into the streams from the test.
//
// Run with: go test -tags=integration ./tests/integration/...
package integration

import (
	"context"
	"database/sql"
	"fmt"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"slguard/internal/api"
	"slguard/internal/api/handlers"
	"slguard/internal/broker"
	"slguard/internal/engine"
	"slguard/internal/instruments"
	"slguard/internal/models"
	"slguard/internal/notify"
	"slguard/internal/repository"
	"slguard/internal/risk"
	"slguard/internal/settings"
	"slguard/internal/websocket"
	"slguard/pkg/retry"
	"slguard/pkg/utils"
)

const (
	testAccount = "2000123456"
	figiSBER    = "BBG004730N88"
)

// TestServer - собранный движок, API и скриптованный брокер
type TestServer struct {
	DB     *sql.DB
	Broker *ScriptedBroker
	Engine *engine.Engine
	Hub    *websocket.Hub
	Server *httptest.Server

	Positions *repository.PositionRepository
	Orders    *repository.OrderRepository
	Events    *repository.EventRepository
	Settings  *repository.SettingsRepository

	Cleanup func()
}

// SetupTestDB открывает sqlite во временном каталоге
func SetupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "slguard.db")
	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?_busy_timeout=5000", path))
	if err != nil {
		t.Skipf("Skipping integration test: cannot open sqlite: %v", err)
	}
	if err := db.Ping(); err != nil {
		t.Skipf("Skipping integration test: cannot ping sqlite: %v", err)
	}
	db.SetMaxOpenConns(1)

	if err := repository.EnsureSchema(context.Background(), db, "sqlite3"); err != nil {
		t.Fatalf("failed to create schema: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// SetupTestServer собирает все компоненты и запускает движок
func SetupTestServer(t *testing.T) *TestServer {
	t.Helper()

	db := SetupTestDB(t)
	logger := utils.NewNop()

	ts := &TestServer{
		DB:        db,
		Broker:    NewScriptedBroker(),
		Positions: repository.NewPositionRepository(db),
		Orders:    repository.NewOrderRepository(db),
		Events:    repository.NewEventRepository(db),
		Settings:  repository.NewSettingsRepository(db),
	}
	ladders := repository.NewMultiTPRepository(db)
	trades := repository.NewTradeRepository(db)

	rc := retry.Config{MaxRetries: 2, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1}
	cache := instruments.NewCache(ts.Broker, rc, logger)

	file := settings.DefaultFile()
	resolver := settings.NewResolver(ts.Settings, file, logger)
	calc := risk.NewCalculator(file.RiskDefaults())

	ts.Hub = websocket.NewHub(logger)
	dispatcher := notify.NewDispatcher(64, time.Second, logger, notify.NewHubSink(ts.Hub))

	ts.Engine = engine.New(engine.Config{
		AccountID:       testAccount,
		MonitorInterval: time.Hour,
		StreamTimeout:   time.Hour,
		BackoffBase:     10 * time.Millisecond,
		BackoffMax:      50 * time.Millisecond,
		Retry:           rc,
	}, engine.Deps{
		Broker:      ts.Broker,
		Instruments: cache,
		Settings:    resolver,
		Calculator:  calc,
		Positions:   ts.Positions,
		Orders:      ts.Orders,
		Trades:      trades,
		Ladders:     ladders,
		Events:      ts.Events,
		Notifier:    dispatcher,
		Feed:        ts.Hub,
	}, logger)

	router := api.SetupRoutes(&api.Dependencies{
		Trades:    handlers.NewTradeHandler(testAccount, trades),
		Positions: handlers.NewPositionHandler(testAccount, ts.Positions, ts.Orders, ladders),
		Events:    handlers.NewEventHandler(testAccount, ts.Events),
		Levels:    handlers.NewLevelsHandler(testAccount, cache, resolver, calc),
		Status:    handlers.NewStatusHandler(ts.Engine, ts.Hub.ClientCount),
		Stream:    ts.Hub.ServeWS,
		Logger:    logger,
	})
	ts.Server = httptest.NewServer(router)

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(3)
	go func() { defer wg.Done(); ts.Hub.Run(ctx) }()
	go func() { defer wg.Done(); dispatcher.Run(ctx) }()
	go func() { defer wg.Done(); ts.Engine.Run(ctx) }()

	ts.Broker.WaitSubscribed(t)

	ts.Cleanup = func() {
		ts.Server.Close()
		cancel()
		wg.Wait()
	}
	return ts
}

// waitFor опрашивает cond до таймаута
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timeout waiting for %s", what)
}

// ============================================================
// ScriptedBroker
// ============================================================

// ScriptedBroker - брокер, потоки которого наполняет тест
type ScriptedBroker struct {
	trades    chan broker.TradeMessage
	positions chan broker.PositionMessage

	mu         sync.Mutex
	placed     []broker.StopOrderRequest
	cancelled  []string
	nextID     int
	failPlace  bool
	subscribed int
}

func NewScriptedBroker() *ScriptedBroker {
	return &ScriptedBroker{
		trades:    make(chan broker.TradeMessage, 16),
		positions: make(chan broker.PositionMessage, 16),
	}
}

func (b *ScriptedBroker) SubscribeTrades(ctx context.Context, _ string, onMessage func(broker.TradeMessage)) error {
	b.markSubscribed()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-b.trades:
			onMessage(msg)
		}
	}
}

func (b *ScriptedBroker) SubscribePositions(ctx context.Context, _ string, onMessage func(broker.PositionMessage)) error {
	b.markSubscribed()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-b.positions:
			onMessage(msg)
		}
	}
}

func (b *ScriptedBroker) markSubscribed() {
	b.mu.Lock()
	b.subscribed++
	b.mu.Unlock()
}

// WaitSubscribed ждёт подписки обоих потоков
func (b *ScriptedBroker) WaitSubscribed(t *testing.T) {
	t.Helper()
	waitFor(t, "stream subscriptions", func() bool {
		b.mu.Lock()
		defer b.mu.Unlock()
		return b.subscribed >= 2
	})
}

func (b *ScriptedBroker) GetPositions(_ context.Context, accountID string) (*broker.BalanceSnapshot, error) {
	return &broker.BalanceSnapshot{AccountID: accountID}, nil
}

func (b *ScriptedBroker) PlaceStopOrder(_ context.Context, req broker.StopOrderRequest) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failPlace {
		return "", &broker.BrokerError{Op: "PostStopOrder", HTTPStatus: 400, Code: "30052", Message: "instrument forbidden"}
	}
	b.nextID++
	b.placed = append(b.placed, req)
	return fmt.Sprintf("stop-%d", b.nextID), nil
}

func (b *ScriptedBroker) CancelStopOrder(_ context.Context, _, orderID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cancelled = append(b.cancelled, orderID)
	return nil
}

func (b *ScriptedBroker) GetInstrument(_ context.Context, key string) (*broker.Instrument, error) {
	if key != figiSBER && key != "SBER" {
		return nil, broker.ErrInstrumentNotFound
	}
	return &broker.Instrument{
		Figi:           figiSBER,
		Ticker:         "SBER",
		InstrumentType: models.InstrumentStock,
		Lot:            10,
		PriceStep:      decimal.RequireFromString("0.01"),
	}, nil
}

func (b *ScriptedBroker) SetFailPlace(fail bool) {
	b.mu.Lock()
	b.failPlace = fail
	b.mu.Unlock()
}

func (b *ScriptedBroker) Placed() []broker.StopOrderRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]broker.StopOrderRequest(nil), b.placed...)
}

// PushFill отправляет исполнение в поток сделок
func (b *ScriptedBroker) PushFill(orderID, direction string, qty int64, price string) {
	b.trades <- broker.TradeMessage{
		Kind: broker.MessageData,
		Fill: &broker.FillEvent{
			OrderID:   orderID,
			AccountID: testAccount,
			Figi:      figiSBER,
			Direction: direction,
			Fills: []broker.Fill{{
				Quantity:  qty,
				Price:     decimal.RequireFromString(price),
				Timestamp: time.Date(2024, 6, 3, 10, 0, 0, 0, time.UTC),
			}},
		},
	}
}

// PushBalance отправляет снимок позиций
func (b *ScriptedBroker) PushBalance(balance int64, avg string) {
	b.positions <- broker.PositionMessage{
		Kind: broker.MessageData,
		Snapshot: &broker.BalanceSnapshot{
			AccountID: testAccount,
			Securities: []broker.SecurityBalance{{
				Figi:         figiSBER,
				Balance:      balance,
				AveragePrice: decimal.RequireFromString(avg),
			}},
		},
	}
}
