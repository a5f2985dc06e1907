package engine

import (
	"container/list"
	"sync"
	"time"

	"slguard/pkg/utils"
)

type dedupeEntry struct {
	key  string
	seen time.Time
}

// Dedupe - ограниченное множество уже обработанных исполнений.
//
// Записи живут ttl; при достижении maxEntries вытесняется самая старая.
// Порядок в списке совпадает с порядком добавления, поэтому старые записи всегда в начале.
type Dedupe struct {
	mu         sync.Mutex
	ttl        time.Duration
	maxEntries int
	items      map[string]*list.Element
	order      *list.List
	now        func() time.Time
}

// NewDedupe создаёт множество. Нулевые параметры: 24h и 100000.
func NewDedupe(ttl time.Duration, maxEntries int) *Dedupe {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if maxEntries <= 0 {
		maxEntries = 100_000
	}
	return &Dedupe{
		ttl:        ttl,
		maxEntries: maxEntries,
		items:      make(map[string]*list.Element),
		order:      list.New(),
		now:        time.Now,
	}
}

// MarkNew добавляет ключ и возвращает true, если его ещё не было
func (d *Dedupe) MarkNew(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	d.evictExpired(now)

	if _, ok := d.items[key]; ok {
		return false
	}
	for d.order.Len() >= d.maxEntries {
		d.removeFront()
	}
	d.items[key] = d.order.PushBack(&dedupeEntry{key: key, seen: now})
	DedupeEntries.Set(float64(d.order.Len()))
	return true
}

// Seen - ключ уже обработан (без добавления)
func (d *Dedupe) Seen(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.evictExpired(d.now())
	_, ok := d.items[key]
	return ok
}

// Len - количество записей
func (d *Dedupe) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.order.Len()
}

func (d *Dedupe) evictExpired(now time.Time) {
	for {
		front := d.order.Front()
		if front == nil || now.Sub(front.Value.(*dedupeEntry).seen) < d.ttl {
			return
		}
		d.removeFront()
	}
}

func (d *Dedupe) removeFront() {
	front := d.order.Front()
	if front == nil {
		return
	}
	d.order.Remove(front)
	delete(d.items, front.Value.(*dedupeEntry).key)
}

// FillKey - ключ дедупликации исполнения: order_id + время сделки
func FillKey(orderID string, ts time.Time) string {
	return orderID + "_" + utils.FormatUTCNano(ts)
}
