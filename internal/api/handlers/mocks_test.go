package handlers

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"slguard/internal/broker"
	"slguard/internal/engine"
	"slguard/internal/models"
	"slguard/internal/repository"
)

const testAccount = "2000123456"

var ErrMockDatabase = errors.New("mock database error")

// ============ MockStore ============

// MockStore - позиции, ордера, лестницы и события в памяти
type MockStore struct {
	positions []*models.Position
	orders    []*models.Order
	ladders   map[int64][]*models.MultiTakeProfitLevel
	events    []*models.SystemEvent
	trades    []*models.Trade

	err        error
	lastFilter repository.EventFilter
	lastLimit  int
}

func NewMockStore() *MockStore {
	return &MockStore{ladders: make(map[int64][]*models.MultiTakeProfitLevel)}
}

func (m *MockStore) ListByAccount(_ context.Context, accountID string) ([]*models.Position, error) {
	if m.err != nil {
		return nil, m.err
	}
	var out []*models.Position
	for _, p := range m.positions {
		if p.AccountID == accountID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *MockStore) GetByFigi(_ context.Context, accountID, figi string) (*models.Position, error) {
	if m.err != nil {
		return nil, m.err
	}
	for _, p := range m.positions {
		if p.AccountID == accountID && p.Figi == figi {
			return p, nil
		}
	}
	return nil, repository.ErrPositionNotFound
}

func (m *MockStore) ListActiveByPosition(_ context.Context, positionID int64) ([]*models.Order, error) {
	var out []*models.Order
	for _, o := range m.orders {
		if o.PositionID == positionID && o.Status == models.OrderStatusNew {
			out = append(out, o)
		}
	}
	return out, nil
}

func (m *MockStore) ListByPosition(_ context.Context, positionID int64) ([]*models.MultiTakeProfitLevel, error) {
	return m.ladders[positionID], nil
}

func (m *MockStore) GetByOrderID(_ context.Context, orderID string) (*models.Order, error) {
	if m.err != nil {
		return nil, m.err
	}
	for _, o := range m.orders {
		if o.OrderID == orderID {
			return o, nil
		}
	}
	return nil, repository.ErrOrderNotFound
}

func (m *MockStore) ListByFigi(_ context.Context, accountID, figi string, limit int) ([]*models.Trade, error) {
	m.lastLimit = limit
	if m.err != nil {
		return nil, m.err
	}
	var out []*models.Trade
	for _, t := range m.trades {
		if t.AccountID == accountID && t.Figi == figi && len(out) < limit {
			out = append(out, t)
		}
	}
	return out, nil
}

// orderLister - ListByAccount для ордеров, имя занято позициями
type orderLister struct{ *MockStore }

func (o orderLister) ListByAccount(_ context.Context, _ string, limit int) ([]*models.Order, error) {
	o.lastLimit = limit
	if o.err != nil {
		return nil, o.err
	}
	if len(o.orders) > limit {
		return o.orders[:limit], nil
	}
	return o.orders, nil
}

func (m *MockStore) List(_ context.Context, f repository.EventFilter) ([]*models.SystemEvent, error) {
	m.lastFilter = f
	if m.err != nil {
		return nil, m.err
	}
	var out []*models.SystemEvent
	for _, e := range m.events {
		if f.EventType == "" || e.EventType == f.EventType {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *MockStore) addProtectedPosition() *models.Position {
	pos := &models.Position{
		ID:           1,
		AccountID:    testAccount,
		Figi:         "BBG004730N88",
		Ticker:       "SBER",
		Quantity:     100,
		AveragePrice: decimal.NewFromInt(100),
		Direction:    models.DirectionLong,
		State:        models.StateOpenProtected,
	}
	m.positions = append(m.positions, pos)
	m.orders = append(m.orders,
		&models.Order{ID: 1, OrderID: "stop-1", PositionID: 1, AccountID: testAccount, Figi: pos.Figi,
			Direction: models.SideSell, Quantity: 100, StopPrice: decimal.NewFromInt(98),
			Status: models.OrderStatusNew, Purpose: models.PurposeStopLoss},
		&models.Order{ID: 2, OrderID: "stop-2", PositionID: 1, AccountID: testAccount, Figi: pos.Figi,
			Direction: models.SideSell, Quantity: 100, StopPrice: decimal.NewFromInt(105),
			Status: models.OrderStatusNew, Purpose: models.PurposeTakeProfit},
	)
	return pos
}

// ============ MockInstruments / MockSettings ============

type MockInstruments map[string]*broker.Instrument

func (m MockInstruments) Resolve(_ context.Context, key string) (*broker.Instrument, error) {
	for _, inst := range m {
		if inst.Figi == key || inst.Ticker == key {
			return inst, nil
		}
	}
	return nil, fmt.Errorf("%s: %w", key, broker.ErrInstrumentNotFound)
}

func NewMockInstruments() MockInstruments {
	return MockInstruments{
		"BBG004730N88": {
			Figi:           "BBG004730N88",
			Ticker:         "SBER",
			InstrumentType: models.InstrumentStock,
			Lot:            10,
			PriceStep:      decimal.RequireFromString("0.01"),
		},
	}
}

type MockSettings struct {
	eff models.EffectiveSettings
	err error
}

func (m *MockSettings) GetEffectiveSettings(context.Context, string, string) (models.EffectiveSettings, error) {
	return m.eff, m.err
}

func NewMockSettings(sl, tp string) *MockSettings {
	return &MockSettings{eff: models.EffectiveSettings{
		StopLossPct:   decimal.NewNullDecimal(decimal.RequireFromString(sl)),
		TakeProfitPct: decimal.NewNullDecimal(decimal.RequireFromString(tp)),
		SLActivation:  models.DisabledActivation(),
		TPActivation:  models.DisabledActivation(),
		Source:        models.SettingsSourceGlobal,
	}}
}

// ============ MockStatus ============

type MockStatus struct{ status engine.Status }

func (m MockStatus) Status() engine.Status { return m.status }
