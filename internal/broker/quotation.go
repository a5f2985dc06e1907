package broker

import (
	"strconv"

	"github.com/shopspring/decimal"
)

var nanoFactor = decimal.New(1, 9)

// Quotation - денежное значение брокера: целая часть и нано-доли
type Quotation struct {
	Units string `json:"units"` // int64 строкой
	Nano  int32  `json:"nano"`
}

// MoneyValue - Quotation с валютой
type MoneyValue struct {
	Currency string `json:"currency,omitempty"`
	Units    string `json:"units"`
	Nano     int32  `json:"nano"`
}

// ToDecimal переводит Quotation в decimal
func (q Quotation) ToDecimal() decimal.Decimal {
	units, _ := strconv.ParseInt(q.Units, 10, 64)
	return decimal.NewFromInt(units).Add(decimal.New(int64(q.Nano), -9))
}

// IsZero - значение не задано или равно нулю
func (q *Quotation) IsZero() bool {
	return q == nil || q.ToDecimal().IsZero()
}

func (m *MoneyValue) ToDecimal() decimal.Decimal {
	if m == nil {
		return decimal.Zero
	}
	return Quotation{Units: m.Units, Nano: m.Nano}.ToDecimal()
}

// QuotationFromDecimal - обратное преобразование. Знак nano совпадает со знаком units.
func QuotationFromDecimal(d decimal.Decimal) Quotation {
	units := d.Truncate(0)
	nano := d.Sub(units).Mul(nanoFactor).Truncate(0)
	return Quotation{
		Units: units.String(),
		Nano:  int32(nano.IntPart()),
	}
}
