package engine

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"slguard/internal/models"
)

// PendingActivation - отложенная защита позиции. Живёт только в памяти.
type PendingActivation struct {
	PositionID        int64            `json:"position_id"`
	Direction         string           `json:"direction"`
	SLActivationPrice *decimal.Decimal `json:"sl_activation_price,omitempty"` // nil - нога не отложена
	TPActivationPrice *decimal.Decimal `json:"tp_activation_price,omitempty"`
	SLActivated       bool             `json:"sl_activated"`
	TPActivated       bool             `json:"tp_activated"`

	// Цены, которые будут выставлены после активации
	StopLoss   decimal.Decimal  `json:"stop_loss"`
	TakeProfit decimal.Decimal  `json:"take_profit"`
	SLPct      decimal.Decimal  `json:"sl_pct"`
	Ladder     []models.TPLevel `json:"ladder,omitempty"` // не пусто - вместо TP выставляется лестница

	CreatedAt time.Time `json:"created_at"`
}

// Done - обе ноги активированы
func (p *PendingActivation) Done() bool {
	return p.SLActivated && p.TPActivated
}

// ActivationGate хранит отложенные активации по FIGI
type ActivationGate struct {
	mu      sync.RWMutex
	pending map[string]*PendingActivation
}

// NewActivationGate создаёт пустой gate
func NewActivationGate() *ActivationGate {
	return &ActivationGate{pending: make(map[string]*PendingActivation)}
}

// Register ставит позицию на ожидание. Ноги без цены активации считаются активированными.
func (g *ActivationGate) Register(figi string, p *PendingActivation) {
	if p.SLActivationPrice == nil {
		p.SLActivated = true
	}
	if p.TPActivationPrice == nil {
		p.TPActivated = true
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}

	g.mu.Lock()
	g.pending[figi] = p
	n := len(g.pending)
	g.mu.Unlock()
	PendingActivations.Set(float64(n))
}

// Remove снимает ожидание
func (g *ActivationGate) Remove(figi string) {
	g.mu.Lock()
	delete(g.pending, figi)
	n := len(g.pending)
	g.mu.Unlock()
	PendingActivations.Set(float64(n))
}

// IsPending - есть ли ожидание по FIGI
func (g *ActivationGate) IsPending(figi string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.pending[figi]
	return ok
}

// Get возвращает копию ожидания
func (g *ActivationGate) Get(figi string) (PendingActivation, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	p, ok := g.pending[figi]
	if !ok {
		return PendingActivation{}, false
	}
	return *p, true
}

// Status - флаги активации SL и TP
func (g *ActivationGate) Status(figi string) (sl, tp bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if p, ok := g.pending[figi]; ok {
		return p.SLActivated, p.TPActivated
	}
	return false, false
}

// Snapshot - копия всех ожиданий
func (g *ActivationGate) Snapshot() map[string]PendingActivation {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make(map[string]PendingActivation, len(g.pending))
	for figi, p := range g.pending {
		out[figi] = *p
	}
	return out
}

// Check сравнивает текущую цену с ценами активации и возвращает ноги,
// которые уже пересечены, но ещё не выставлены. Флаги не меняет:
// нога считается активированной только после MarkActivated.
//
// LONG: SL при цене <= активации SL, TP при цене >= активации TP.
// SHORT: наоборот.
func (g *ActivationGate) Check(figi string, price decimal.Decimal, direction string) (sl, tp bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	p, ok := g.pending[figi]
	if !ok {
		return false, false
	}

	sl = !p.SLActivated && crossed(price, *p.SLActivationPrice, direction, true)
	tp = !p.TPActivated && crossed(price, *p.TPActivationPrice, direction, false)
	return sl, tp
}

// MarkActivated поднимает флаги выставленных ног. Возвращает true, если обе ноги активированы.
func (g *ActivationGate) MarkActivated(figi string, sl, tp bool) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	p, ok := g.pending[figi]
	if !ok {
		return false
	}
	if sl {
		p.SLActivated = true
	}
	if tp {
		p.TPActivated = true
	}
	return p.Done()
}

func crossed(price, activation decimal.Decimal, direction string, stopLoss bool) bool {
	below := price.LessThanOrEqual(activation)
	above := price.GreaterThanOrEqual(activation)
	if direction == models.DirectionLong {
		if stopLoss {
			return below
		}
		return above
	}
	if stopLoss {
		return above
	}
	return below
}
