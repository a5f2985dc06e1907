package engine

import (
	"context"
	"errors"
	"fmt"

	"slguard/internal/broker"
	"slguard/internal/instruments"
	"slguard/internal/risk"
)

// ErrorKind - вид ошибки обработки события
type ErrorKind int

const (
	KindNone ErrorKind = iota
	KindTransientBroker
	KindStreamDisconnect
	KindStreamStalled
	KindValidation
	KindReconciliationConflict
	KindUnexpected
)

func (k ErrorKind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindTransientBroker:
		return "transient_broker"
	case KindStreamDisconnect:
		return "stream_disconnect"
	case KindStreamStalled:
		return "stream_stalled"
	case KindValidation:
		return "validation"
	case KindReconciliationConflict:
		return "reconciliation_conflict"
	default:
		return "unexpected"
	}
}

var (
	// ErrStreamStalled - поток молчит дольше таймаута
	ErrStreamStalled = errors.New("stream stalled")
	// ErrReconciliation - расхождение с брокером, которое не исправляется автоматически
	ErrReconciliation = errors.New("reconciliation conflict")
	// ErrNoLots - количество меньше одного лота
	ErrNoLots = fmt.Errorf("%w: quantity below one lot", risk.ErrValidation)
	// ErrInvalidTransition - недопустимый переход состояния позиции
	ErrInvalidTransition = errors.New("invalid state transition")
)

// Classify относит ошибку к виду
func Classify(err error) ErrorKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrStreamStalled):
		return KindStreamStalled
	case errors.Is(err, ErrReconciliation):
		return KindReconciliationConflict
	case errors.Is(err, risk.ErrValidation),
		errors.Is(err, instruments.ErrUnknownInstrument),
		errors.Is(err, instruments.ErrInvalidInstrument):
		return KindValidation
	case errors.Is(err, broker.ErrStreamClosed):
		return KindStreamDisconnect
	case broker.IsTemporary(err), errors.Is(err, context.DeadlineExceeded):
		return KindTransientBroker
	default:
		return KindUnexpected
	}
}

// HandleResult - итог обработки одного события
type HandleResult struct {
	Kind ErrorKind
	Err  error
}

// Result строит HandleResult из ошибки
func Result(err error) HandleResult {
	return HandleResult{Kind: Classify(err), Err: err}
}

// OK - событие обработано без ошибок
func (r HandleResult) OK() bool {
	return r.Err == nil
}
