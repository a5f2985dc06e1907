// Package instruments кеширует метаданные инструментов брокера (лот, шаг цены, тип).
package instruments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"slguard/internal/broker"
	"slguard/pkg/retry"
	"slguard/pkg/utils"
)

var (
	// ErrUnknownInstrument - брокер не знает такой FIGI или тикер
	ErrUnknownInstrument = errors.New("unknown instrument")
	// ErrInvalidInstrument - у инструмента нет лота или шага цены
	ErrInvalidInstrument = errors.New("invalid instrument metadata")
)

// Source - откуда берутся метаданные при промахе кеша
type Source interface {
	GetInstrument(ctx context.Context, figiOrTicker string) (*broker.Instrument, error)
}

// Cache - кеш инструментов с заполнением при промахе.
// Записи не устаревают: лот и шаг цены меняются редко, Invalidate сбрасывает кеш вручную.
// Параллельные промахи по одному ключу приводят к одному запросу брокеру.
type Cache struct {
	source Source
	retry  retry.Config
	logger *utils.Logger

	mu       sync.RWMutex
	byFigi   map[string]*broker.Instrument
	byTicker map[string]*broker.Instrument

	group singleflight.Group
}

// NewCache создаёт кеш поверх source
func NewCache(source Source, retryCfg retry.Config, logger *utils.Logger) *Cache {
	if logger == nil {
		logger = utils.L()
	}
	return &Cache{
		source:   source,
		retry:    retryCfg,
		logger:   logger.WithComponent("instruments"),
		byFigi:   make(map[string]*broker.Instrument),
		byTicker: make(map[string]*broker.Instrument),
	}
}

// Resolve возвращает инструмент по FIGI или тикеру
func (c *Cache) Resolve(ctx context.Context, figiOrTicker string) (*broker.Instrument, error) {
	key := strings.TrimSpace(figiOrTicker)
	if key == "" {
		return nil, fmt.Errorf("%w: empty key", ErrUnknownInstrument)
	}

	if in, ok := c.lookup(key); ok {
		return in, nil
	}

	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		if in, ok := c.lookup(key); ok {
			return in, nil
		}
		return c.fetch(ctx, key)
	})
	if err != nil {
		return nil, err
	}
	return v.(*broker.Instrument), nil
}

func (c *Cache) lookup(key string) (*broker.Instrument, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if in, ok := c.byFigi[key]; ok {
		return in, true
	}
	in, ok := c.byTicker[strings.ToUpper(key)]
	return in, ok
}

func (c *Cache) fetch(ctx context.Context, key string) (*broker.Instrument, error) {
	in, err := retry.DoWithResult(ctx, func() (*broker.Instrument, error) {
		return c.source.GetInstrument(ctx, key)
	}, c.retry)
	if err != nil {
		if errors.Is(err, broker.ErrInstrumentNotFound) {
			return nil, fmt.Errorf("%w: %s: %w", ErrUnknownInstrument, key, err)
		}
		return nil, fmt.Errorf("resolve instrument %s: %w", key, err)
	}
	if in.Lot <= 0 || !in.PriceStep.IsPositive() {
		return nil, fmt.Errorf("%w: %s lot=%d step=%s", ErrInvalidInstrument, key, in.Lot, in.PriceStep)
	}

	c.Put(in)
	c.logger.Debug("instrument cached",
		utils.Figi(in.Figi),
		utils.Ticker(in.Ticker),
		utils.Int64("lot", in.Lot),
		utils.Amount("price_step", in.PriceStep),
	)
	return in, nil
}

// Put добавляет инструмент в кеш (например, из синхронизации портфеля)
func (c *Cache) Put(in *broker.Instrument) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byFigi[in.Figi] = in
	if in.Ticker != "" {
		c.byTicker[strings.ToUpper(in.Ticker)] = in
	}
}

// LotSize - размер лота инструмента
func (c *Cache) LotSize(ctx context.Context, figi string) (int64, error) {
	in, err := c.Resolve(ctx, figi)
	if err != nil {
		return 0, err
	}
	return in.Lot, nil
}

// Len - количество закешированных инструментов
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.byFigi)
}

// Invalidate очищает кеш
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.byFigi = make(map[string]*broker.Instrument)
	c.byTicker = make(map[string]*broker.Instrument)
	c.mu.Unlock()
}
