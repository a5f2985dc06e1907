package utils

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// validator.go - проверка идентификаторов и параметров, приходящих из CLI и ops API.
// Возвращает error с описанием проблемы или nil.

var (
	tickerRe  = regexp.MustCompile(`^[A-Z0-9][A-Z0-9._-]{0,15}$`)
	figiRe    = regexp.MustCompile(`^[A-Z0-9]{12}$`)
	accountRe = regexp.MustCompile(`^[0-9A-Za-z-]{1,64}$`)
)

var maxPercent = decimal.NewFromInt(100)

// ValidateTicker: SBER, SiM4, TMOS@ не проходит. Регистр не важен.
func ValidateTicker(ticker string) error {
	t := strings.ToUpper(strings.TrimSpace(ticker))
	if t == "" {
		return fmt.Errorf("ticker is empty")
	}
	if !tickerRe.MatchString(t) {
		return fmt.Errorf("invalid ticker %q", ticker)
	}
	return nil
}

// ValidateFigi: ровно 12 символов A-Z0-9 (BBG004730N88)
func ValidateFigi(figi string) error {
	if !figiRe.MatchString(figi) {
		return fmt.Errorf("invalid figi %q", figi)
	}
	return nil
}

// ValidateInstrumentKey принимает тикер или FIGI
func ValidateInstrumentKey(key string) error {
	if figiRe.MatchString(key) {
		return nil
	}
	return ValidateTicker(key)
}

// ValidateAccountID - номер счёта брокера
func ValidateAccountID(id string) error {
	if !accountRe.MatchString(id) {
		return fmt.Errorf("invalid account id %q", id)
	}
	return nil
}

// ValidatePercent: (0, 100]
func ValidatePercent(name string, pct decimal.Decimal) error {
	if !pct.IsPositive() {
		return fmt.Errorf("%s must be positive, got %s", name, pct)
	}
	if pct.GreaterThan(maxPercent) {
		return fmt.Errorf("%s must not exceed 100, got %s", name, pct)
	}
	return nil
}

// ValidateDirection: LONG или SHORT, регистр не важен. Пусто допустимо.
func ValidateDirection(direction string) error {
	switch strings.ToUpper(strings.TrimSpace(direction)) {
	case "", "LONG", "SHORT":
		return nil
	}
	return fmt.Errorf("direction must be LONG or SHORT, got %q", direction)
}
