package retry

import "time"

// Backoff - задержки переподключения потоков.
// Бесконечная серия: Base, 2*Base, 4*Base ... не больше Max.
// Не потокобезопасен, принадлежит одному циклу переподключения.
type Backoff struct {
	Base   time.Duration
	Max    time.Duration
	Factor float64

	attempt int
}

// StreamBackoff - 1s, удвоение, потолок 5 минут
func StreamBackoff() *Backoff {
	return &Backoff{
		Base:   time.Second,
		Max:    300 * time.Second,
		Factor: 2.0,
	}
}

// Next возвращает задержку для очередной попытки и сдвигает счётчик
func (b *Backoff) Next() time.Duration {
	base := b.Base
	if base <= 0 {
		base = time.Second
	}
	max := b.Max
	if max <= 0 {
		max = 300 * time.Second
	}
	factor := b.Factor
	if factor <= 1 {
		factor = 2.0
	}

	wait := base
	for i := 0; i < b.attempt; i++ {
		next := time.Duration(float64(wait) * factor)
		if next >= max {
			wait = max
			break
		}
		wait = next
	}
	if wait > max {
		wait = max
	}

	// после потолка счётчик не растёт, переполнения нет
	if wait < max {
		b.attempt++
	}
	return wait
}

// Reset сбрасывает серию после успешного сообщения
func (b *Backoff) Reset() {
	b.attempt = 0
}

// Attempt - номер следующей попытки (с нуля)
func (b *Backoff) Attempt() int {
	return b.attempt
}
