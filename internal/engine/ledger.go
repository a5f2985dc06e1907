package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"slguard/internal/models"
	"slguard/internal/repository"
	"slguard/pkg/utils"
)

// TradeInput - агрегированное исполнение по бумаге
type TradeInput struct {
	AccountID      string
	Figi           string
	Ticker         string
	InstrumentType string
	Side           string // BUY, SELL
	Quantity       int64  // штуки
	Price          decimal.Decimal
}

// TradeOutcome - состояние позиции до и после сделки.
// After == nil - позиция закрыта. Reversed - сделка перевернула позицию.
type TradeOutcome struct {
	Before   *models.Position
	After    *models.Position
	Created  bool
	Closed   bool
	Reversed bool
}

// QuantityChanged - количество изменилось относительно прежней позиции
func (o TradeOutcome) QuantityChanged() bool {
	if o.Before == nil {
		return false
	}
	if o.After == nil || o.Reversed {
		return true
	}
	return o.After.Quantity != o.Before.Quantity
}

type positionKey struct {
	account string
	figi    string
}

// Ledger - позиции счёта: кеш в памяти поверх PositionStore.
// Все мутации выполняются вызывающим под AccountLock.
type Ledger struct {
	store  PositionStore
	logger *utils.Logger

	mu    sync.RWMutex
	cache map[positionKey]*models.Position
}

// NewLedger создаёт Ledger
func NewLedger(store PositionStore, logger *utils.Logger) *Ledger {
	if logger == nil {
		logger = utils.L()
	}
	return &Ledger{
		store:  store,
		logger: logger.WithComponent("ledger"),
		cache:  make(map[positionKey]*models.Position),
	}
}

// Get возвращает копию позиции или nil, если её нет
func (l *Ledger) Get(ctx context.Context, accountID, figi string) (*models.Position, error) {
	key := positionKey{accountID, figi}

	l.mu.RLock()
	pos, ok := l.cache[key]
	l.mu.RUnlock()
	if ok {
		return pos.Clone(), nil
	}

	pos, err := l.store.GetByFigi(ctx, accountID, figi)
	if errors.Is(err, repository.ErrPositionNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load position %s: %w", figi, err)
	}
	l.remember(pos)
	return pos.Clone(), nil
}

// List - все позиции счёта из хранилища (кеш обновляется)
func (l *Ledger) List(ctx context.Context, accountID string) ([]*models.Position, error) {
	positions, err := l.store.ListByAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	for _, pos := range positions {
		l.remember(pos)
	}
	return positions, nil
}

// Create сохраняет новую позицию
func (l *Ledger) Create(ctx context.Context, pos *models.Position) error {
	if pos.Quantity <= 0 {
		return fmt.Errorf("create position %s: quantity must be positive, got %d", pos.Figi, pos.Quantity)
	}
	if pos.State == "" {
		pos.State = models.StateOpening
	}
	if err := l.store.Create(ctx, pos); err != nil {
		return fmt.Errorf("create position %s: %w", pos.Figi, err)
	}
	l.remember(pos)
	l.logger.Info("position opened",
		utils.Account(pos.AccountID),
		utils.Figi(pos.Figi),
		utils.Direction(pos.Direction),
		utils.Quantity(pos.Quantity),
		utils.Price(pos.AveragePrice),
	)
	return nil
}

// Close удаляет позицию
func (l *Ledger) Close(ctx context.Context, pos *models.Position) error {
	if err := l.store.Delete(ctx, pos.ID); err != nil && !errors.Is(err, repository.ErrPositionNotFound) {
		return fmt.Errorf("delete position %s: %w", pos.Figi, err)
	}
	l.forget(pos.AccountID, pos.Figi)
	l.logger.Info("position closed", utils.Account(pos.AccountID), utils.Figi(pos.Figi), utils.PositionID(pos.ID))
	return nil
}

// SetState переводит позицию в новое состояние защиты
func (l *Ledger) SetState(ctx context.Context, pos *models.Position, state string) error {
	if !CanTransition(pos.State, state) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, pos.State, state)
	}
	if err := l.store.UpdateState(ctx, pos.ID, state); err != nil {
		return fmt.Errorf("update state %s: %w", pos.Figi, err)
	}
	pos.State = state

	l.mu.Lock()
	if cached, ok := l.cache[positionKey{pos.AccountID, pos.Figi}]; ok && cached.ID == pos.ID {
		cached.State = state
	}
	l.mu.Unlock()
	return nil
}

// ApplyTrade применяет исполнение к позиции.
//
//   - позиции нет: открывается новая в сторону сделки;
//   - сделка в сторону позиции: количество растёт, средняя пересчитывается по объёму;
//   - встречная сделка: количество уменьшается, средняя не меняется;
//   - переход через ноль: позиция закрывается, остаток открывает встречную по цене сделки.
func (l *Ledger) ApplyTrade(ctx context.Context, in TradeInput) (TradeOutcome, error) {
	if in.Quantity <= 0 {
		return TradeOutcome{}, fmt.Errorf("apply trade %s: quantity must be positive", in.Figi)
	}

	before, err := l.Get(ctx, in.AccountID, in.Figi)
	if err != nil {
		return TradeOutcome{}, err
	}
	out := TradeOutcome{Before: before}

	if before == nil {
		pos := &models.Position{
			AccountID:      in.AccountID,
			Figi:           in.Figi,
			Ticker:         in.Ticker,
			InstrumentType: in.InstrumentType,
			Quantity:       in.Quantity,
			AveragePrice:   in.Price,
			Direction:      directionOf(in.Side),
			State:          models.StateOpening,
		}
		if err := l.Create(ctx, pos); err != nil {
			return out, err
		}
		out.After = pos.Clone()
		out.Created = true
		return out, nil
	}

	signed := before.Quantity
	if !before.IsLong() {
		signed = -signed
	}
	delta := in.Quantity
	if in.Side == models.SideSell {
		delta = -delta
	}
	next := signed + delta

	switch {
	case (signed > 0) == (delta > 0):
		pos := before.Clone()
		pos.AveragePrice = utils.WeightedAverage(
			[]decimal.Decimal{before.AveragePrice, in.Price},
			[]int64{before.Quantity, in.Quantity},
		)
		pos.Quantity = utils.AbsInt64(next)
		if err := l.update(ctx, pos); err != nil {
			return out, err
		}
		out.After = pos.Clone()

	case next == 0:
		if err := l.Close(ctx, before); err != nil {
			return out, err
		}
		out.Closed = true

	case (next > 0) == (signed > 0):
		pos := before.Clone()
		pos.Quantity = utils.AbsInt64(next)
		if err := l.update(ctx, pos); err != nil {
			return out, err
		}
		out.After = pos.Clone()

	default:
		if err := l.Close(ctx, before); err != nil {
			return out, err
		}
		out.Closed = true

		pos := &models.Position{
			AccountID:      in.AccountID,
			Figi:           in.Figi,
			Ticker:         before.Ticker,
			InstrumentType: before.InstrumentType,
			Quantity:       utils.AbsInt64(next),
			AveragePrice:   in.Price,
			Direction:      models.Opposite(before.Direction),
			State:          models.StateOpening,
		}
		if err := l.Create(ctx, pos); err != nil {
			return out, err
		}
		out.After = pos.Clone()
		out.Reversed = true
	}
	return out, nil
}

// Snapshot - копия кеша: число позиций по состояниям
func (l *Ledger) Snapshot() map[string]int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	counts := make(map[string]int)
	for _, pos := range l.cache {
		counts[pos.State]++
	}
	return counts
}

func (l *Ledger) update(ctx context.Context, pos *models.Position) error {
	if err := l.store.Update(ctx, pos); err != nil {
		return fmt.Errorf("update position %s: %w", pos.Figi, err)
	}
	l.remember(pos)
	return nil
}

func (l *Ledger) remember(pos *models.Position) {
	l.mu.Lock()
	l.cache[positionKey{pos.AccountID, pos.Figi}] = pos.Clone()
	l.mu.Unlock()
}

func (l *Ledger) forget(accountID, figi string) {
	l.mu.Lock()
	delete(l.cache, positionKey{accountID, figi})
	l.mu.Unlock()
}

func directionOf(side string) string {
	if side == models.SideSell {
		return models.DirectionShort
	}
	return models.DirectionLong
}
