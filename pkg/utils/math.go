package utils

import (
	"github.com/shopspring/decimal"
)

// math.go - денежная арифметика на decimal
//
// Все функции чистые. Цены и проценты никогда не проходят через float64.

var (
	hundred = decimal.NewFromInt(100)
	one     = decimal.NewFromInt(1)
)

// RoundToStep округляет цену до ближайшего кратного step.
// Ровно половина шага округляется к чётному (банковское округление).
//
//	RoundToStep(147.004, 0.01) = 147.00
//	RoundToStep(157.505, 0.01) = 157.50
//	RoundToStep(99906, 10)     = 99910
//
// step <= 0 - значение возвращается как есть.
func RoundToStep(value, step decimal.Decimal) decimal.Decimal {
	if !step.IsPositive() {
		return value
	}
	return value.Div(step).RoundBank(0).Mul(step)
}

// ApplyPercent возвращает value * (1 + pct/100). Отрицательный pct уменьшает значение.
func ApplyPercent(value, pct decimal.Decimal) decimal.Decimal {
	return value.Mul(one.Add(pct.Div(hundred)))
}

// PercentOf возвращает part/whole*100; whole == 0 -> 0
func PercentOf(part, whole decimal.Decimal) decimal.Decimal {
	if whole.IsZero() {
		return decimal.Zero
	}
	return part.Div(whole).Mul(hundred)
}

// WeightedAverage - средневзвешенная цена: Σ(p*q) / Σq.
// Пустой вход или нулевой суммарный вес -> 0.
func WeightedAverage(prices []decimal.Decimal, quantities []int64) decimal.Decimal {
	if len(prices) == 0 || len(prices) != len(quantities) {
		return decimal.Zero
	}

	sum := decimal.Zero
	var total int64
	for i, p := range prices {
		sum = sum.Add(p.Mul(decimal.NewFromInt(quantities[i])))
		total += quantities[i]
	}
	if total == 0 {
		return decimal.Zero
	}
	return sum.Div(decimal.NewFromInt(total))
}

// AbsInt64 - модуль целого
func AbsInt64(x int64) int64 {
	if x < 0 {
		return -x
	}
	return x
}

// MaxDecimal возвращает большее из двух
func MaxDecimal(a, b decimal.Decimal) decimal.Decimal {
	if a.GreaterThan(b) {
		return a
	}
	return b
}
