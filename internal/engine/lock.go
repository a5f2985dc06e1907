package engine

import "sync"

// AccountLock - критическая секция счёта.
//
// Под ней выполняются чтение-решение-запись позиции и все последовательности
// "отменить всё, затем выставить". Оба потока счёта конкурируют за один и тот же замок,
// поэтому события по одной бумаге из разных потоков не перемешиваются.
type AccountLock struct {
	mu sync.Mutex
}

// Do выполняет fn под замком
func (l *AccountLock) Do(fn func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fn()
}
