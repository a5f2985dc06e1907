package broker

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

var (
	ErrInstrumentNotFound = errors.New("instrument not found")
	ErrStreamClosed       = errors.New("stream closed by server")
	// ErrOrderNotFound - стоп-заявки уже нет (исполнена или снята вручную)
	ErrOrderNotFound = errors.New("stop order not found")
)

// BrokerError - ошибка ответа брокера
type BrokerError struct {
	Op         string // метод API
	HTTPStatus int
	Code       string
	Message    string
	Original   error
}

func (e *BrokerError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("broker %s: %s (code %s, http %d)", e.Op, e.Message, e.Code, e.HTTPStatus)
	}
	if e.HTTPStatus != 0 {
		return fmt.Sprintf("broker %s: %s (http %d)", e.Op, e.Message, e.HTTPStatus)
	}
	return fmt.Sprintf("broker %s: %s", e.Op, e.Message)
}

// Unwrap возвращает оригинальную ошибку для поддержки errors.Is() и errors.As()
func (e *BrokerError) Unwrap() error {
	return e.Original
}

// Temporary - ошибку имеет смысл повторить: сетевые сбои, 429 и 5xx
func (e *BrokerError) Temporary() bool {
	if e.HTTPStatus == http.StatusTooManyRequests || e.HTTPStatus >= 500 {
		return true
	}
	if e.HTTPStatus == 0 && e.Original != nil {
		if errors.Is(e.Original, context.Canceled) || errors.Is(e.Original, context.DeadlineExceeded) {
			return false
		}
		var netErr net.Error
		return errors.As(e.Original, &netErr)
	}
	return false
}

// IsTemporary - err содержит временную ошибку брокера
func IsTemporary(err error) bool {
	var be *BrokerError
	return errors.As(err, &be) && be.Temporary()
}
