package engine

import "slguard/internal/models"

// ValidTransitions - допустимые переходы состояния защиты позиции.
// OPEN_PROTECTED повторно входит сам в себя при каждой перестановке ордеров.
var ValidTransitions = map[string][]string{
	models.StateOpening: {
		models.StateOpenUnprotected, models.StateOpenPendingActivation, models.StateOpenProtected, models.StateClosed,
	},
	models.StateOpenUnprotected: {
		models.StateOpenUnprotected, models.StateOpenPendingActivation, models.StateOpenProtected, models.StateClosed,
	},
	models.StateOpenPendingActivation: {
		models.StateOpenPendingActivation, models.StateOpenUnprotected, models.StateOpenProtected, models.StateClosed,
	},
	models.StateOpenProtected: {
		models.StateOpenProtected, models.StateOpenUnprotected, models.StateOpenPendingActivation, models.StateClosed,
	},
	models.StateClosed: {}, // терминальное
}

// CanTransition проверяет допустимость перехода
func CanTransition(from, to string) bool {
	allowed, ok := ValidTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// StateInfo - описание состояния для ops API
func StateInfo(s string) string {
	switch s {
	case models.StateOpening:
		return "Позиция открывается"
	case models.StateOpenUnprotected:
		return "Позиция без защитных ордеров"
	case models.StateOpenPendingActivation:
		return "Ожидание цены активации SL/TP"
	case models.StateOpenProtected:
		return "SL и TP выставлены"
	case models.StateClosed:
		return "Позиция закрыта"
	default:
		return "Неизвестное состояние"
	}
}

// IsProtected - у позиции есть живые защитные ордера
func IsProtected(s string) bool {
	return s == models.StateOpenProtected
}
