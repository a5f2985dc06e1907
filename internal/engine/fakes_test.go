package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"slguard/internal/broker"
	"slguard/internal/models"
	"slguard/internal/repository"
)

const (
	testAccount = "2000123456"
	figiSBER    = "BBG004730N88"
	figiSi      = "FUTSI0624000"
)

// ============ broker ============

type fakeBroker struct {
	mu        sync.Mutex
	placed    []broker.StopOrderRequest
	cancelled []string
	nextID    int

	placeErr  func(req broker.StopOrderRequest) error
	cancelErr func(orderID string) error
	snapshot  *broker.BalanceSnapshot

	tradeSession    func(ctx context.Context, onMessage func(broker.TradeMessage)) error
	positionSession func(ctx context.Context, onMessage func(broker.PositionMessage)) error
}

func (b *fakeBroker) SubscribeTrades(ctx context.Context, _ string, onMessage func(broker.TradeMessage)) error {
	if b.tradeSession != nil {
		return b.tradeSession(ctx, onMessage)
	}
	<-ctx.Done()
	return ctx.Err()
}

func (b *fakeBroker) SubscribePositions(ctx context.Context, _ string, onMessage func(broker.PositionMessage)) error {
	if b.positionSession != nil {
		return b.positionSession(ctx, onMessage)
	}
	<-ctx.Done()
	return ctx.Err()
}

func (b *fakeBroker) GetPositions(_ context.Context, accountID string) (*broker.BalanceSnapshot, error) {
	if b.snapshot == nil {
		return &broker.BalanceSnapshot{AccountID: accountID}, nil
	}
	return b.snapshot, nil
}

func (b *fakeBroker) PlaceStopOrder(_ context.Context, req broker.StopOrderRequest) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.placeErr != nil {
		if err := b.placeErr(req); err != nil {
			return "", err
		}
	}
	b.nextID++
	b.placed = append(b.placed, req)
	return fmt.Sprintf("stop-%d", b.nextID), nil
}

func (b *fakeBroker) CancelStopOrder(_ context.Context, _, orderID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cancelErr != nil {
		if err := b.cancelErr(orderID); err != nil {
			return err
		}
	}
	b.cancelled = append(b.cancelled, orderID)
	return nil
}

func (b *fakeBroker) GetInstrument(_ context.Context, figi string) (*broker.Instrument, error) {
	return nil, broker.ErrInstrumentNotFound
}

func (b *fakeBroker) requests() []broker.StopOrderRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]broker.StopOrderRequest(nil), b.placed...)
}

func (b *fakeBroker) cancels() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.cancelled...)
}

// ============ справочники ============

type fakeInstruments map[string]*broker.Instrument

func (f fakeInstruments) Resolve(_ context.Context, figi string) (*broker.Instrument, error) {
	inst, ok := f[figi]
	if !ok {
		return nil, fmt.Errorf("%s: %w", figi, broker.ErrInstrumentNotFound)
	}
	return inst, nil
}

func testInstruments() fakeInstruments {
	return fakeInstruments{
		figiSBER: {
			Figi:           figiSBER,
			Ticker:         "SBER",
			InstrumentType: models.InstrumentStock,
			Lot:            1,
			PriceStep:      decimal.RequireFromString("0.01"),
		},
		figiSi: {
			Figi:           figiSi,
			Ticker:         "SiM4",
			InstrumentType: models.InstrumentFutures,
			Lot:            1,
			PriceStep:      decimal.NewFromInt(1),
		},
	}
}

type fakeSettings struct {
	eff models.EffectiveSettings
	err error
}

func (f *fakeSettings) GetEffectiveSettings(context.Context, string, string) (models.EffectiveSettings, error) {
	return f.eff, f.err
}

// pctSettings - SL/TP в процентах без активации
func pctSettings(sl, tp string) *fakeSettings {
	return &fakeSettings{eff: models.EffectiveSettings{
		StopLossPct:   decimal.NewNullDecimal(decimal.RequireFromString(sl)),
		TakeProfitPct: decimal.NewNullDecimal(decimal.RequireFromString(tp)),
		SLActivation:  models.DisabledActivation(),
		TPActivation:  models.DisabledActivation(),
		Source:        models.SettingsSourceGlobal,
	}}
}

// ============ хранилища ============

type memPositions struct {
	mu        sync.Mutex
	nextID    int64
	byID      map[int64]*models.Position
	createErr error
}

func newMemPositions() *memPositions {
	return &memPositions{byID: make(map[int64]*models.Position)}
}

func (s *memPositions) Create(_ context.Context, pos *models.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return s.createErr
	}
	for _, p := range s.byID {
		if p.AccountID == pos.AccountID && p.Figi == pos.Figi {
			return errors.New("duplicate position")
		}
	}
	s.nextID++
	pos.ID = s.nextID
	s.byID[pos.ID] = pos.Clone()
	return nil
}

func (s *memPositions) GetByFigi(_ context.Context, accountID, figi string) (*models.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.byID {
		if p.AccountID == accountID && p.Figi == figi {
			return p.Clone(), nil
		}
	}
	return nil, repository.ErrPositionNotFound
}

func (s *memPositions) ListByAccount(_ context.Context, accountID string) ([]*models.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Position
	for _, p := range s.byID {
		if p.AccountID == accountID {
			out = append(out, p.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memPositions) Update(_ context.Context, pos *models.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[pos.ID]; !ok {
		return repository.ErrPositionNotFound
	}
	s.byID[pos.ID] = pos.Clone()
	return nil
}

func (s *memPositions) UpdateState(_ context.Context, id int64, state string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.byID[id]
	if !ok {
		return repository.ErrPositionNotFound
	}
	p.State = state
	return nil
}

func (s *memPositions) Delete(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[id]; !ok {
		return repository.ErrPositionNotFound
	}
	delete(s.byID, id)
	return nil
}

func (s *memPositions) get(figi string) *models.Position {
	p, err := s.GetByFigi(context.Background(), testAccount, figi)
	if err != nil {
		return nil
	}
	return p
}

type memOrders struct {
	mu     sync.Mutex
	orders []*models.Order
}

func (s *memOrders) Create(_ context.Context, order *models.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	order.ID = int64(len(s.orders) + 1)
	cp := *order
	s.orders = append(s.orders, &cp)
	return nil
}

func (s *memOrders) ListActiveByPosition(_ context.Context, positionID int64) ([]*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Order
	for _, o := range s.orders {
		if o.PositionID == positionID && o.Status == models.OrderStatusNew {
			cp := *o
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *memOrders) MarkCancelled(_ context.Context, orderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.orders {
		if o.OrderID == orderID {
			o.Status = models.OrderStatusCancelled
			return nil
		}
	}
	return repository.ErrOrderNotFound
}

func (s *memOrders) active() []*models.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Order
	for _, o := range s.orders {
		if o.Status == models.OrderStatusNew {
			cp := *o
			out = append(out, &cp)
		}
	}
	return out
}

type memTrades struct {
	mu     sync.Mutex
	trades []*models.Trade
}

func (s *memTrades) Create(_ context.Context, trade *models.Trade) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trades = append(s.trades, trade)
	return nil
}

type memLadders struct {
	mu     sync.Mutex
	levels map[int64][]*models.MultiTakeProfitLevel
}

func newMemLadders() *memLadders {
	return &memLadders{levels: make(map[int64][]*models.MultiTakeProfitLevel)}
}

func (s *memLadders) Replace(_ context.Context, positionID int64, levels []*models.MultiTakeProfitLevel) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.levels[positionID] = levels
	return nil
}

func (s *memLadders) DeleteByPosition(_ context.Context, positionID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.levels, positionID)
	return nil
}

type recordedEvent struct {
	Type        string
	Figi        string
	Description string
	Details     map[string]interface{}
}

type memEvents struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (s *memEvents) LogEvent(_ context.Context, eventType, _, figi, _, description string, details map[string]interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, recordedEvent{Type: eventType, Figi: figi, Description: description, Details: details})
	return nil
}

func (s *memEvents) count(eventType string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.events {
		if e.Type == eventType {
			n++
		}
	}
	return n
}

type memNotifier struct {
	mu     sync.Mutex
	alerts []*models.Alert
}

func (n *memNotifier) Notify(a *models.Alert) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.alerts = append(n.alerts, a)
}

func (n *memNotifier) byType(alertType string) []*models.Alert {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []*models.Alert
	for _, a := range n.alerts {
		if a.Type == alertType {
			out = append(out, a)
		}
	}
	return out
}
