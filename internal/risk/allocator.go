package risk

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"slguard/internal/models"
)

var volumeTolerance = decimal.RequireFromString("0.01")

// Allocation - сколько лотов приходится на уровень лестницы
type Allocation struct {
	Level     int // номер уровня с 1
	LevelPct  decimal.Decimal
	VolumePct decimal.Decimal
	Lots      int64
}

// Allocate распределяет totalLots по уровням методом наибольшего остатка.
//
// Каждый уровень получает floor(L * vol / 100), затем оставшиеся лоты по одному
// раздаются уровням с наибольшей дробной частью. При равных остатках раньше идёт
// уровень с меньшим номером. Если проценты в сумме 100, сумма лотов равна totalLots.
// Уровни с нулём лотов возвращаются как есть, пропускать их решает вызывающий.
func Allocate(totalLots int64, levels []models.TPLevel) []Allocation {
	out := make([]Allocation, len(levels))
	if len(levels) == 0 {
		return out
	}

	total := decimal.NewFromInt(totalLots)
	fractions := make([]decimal.Decimal, len(levels))
	var assigned int64

	for i, lvl := range levels {
		out[i] = Allocation{Level: i + 1, LevelPct: lvl.LevelPct, VolumePct: lvl.VolumePct}
		if totalLots <= 0 {
			continue
		}
		exact := total.Mul(lvl.VolumePct).Div(hundred)
		base := exact.Floor()
		out[i].Lots = base.IntPart()
		fractions[i] = exact.Sub(base)
		assigned += out[i].Lots
	}

	remainder := totalLots - assigned
	if remainder <= 0 {
		return out
	}

	order := make([]int, len(levels))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return fractions[order[a]].GreaterThan(fractions[order[b]])
	})

	for i := 0; i < len(order) && remainder > 0; i++ {
		out[order[i]].Lots++
		remainder--
	}
	return out
}

// TotalLots - сумма лотов по распределению
func TotalLots(allocs []Allocation) int64 {
	var sum int64
	for _, a := range allocs {
		sum += a.Lots
	}
	return sum
}

// ValidateLevels проверяет лестницу TP:
// уровни заданы, проценты цены > 0 и строго растут, объём в (0, 100],
// при нескольких уровнях сумма объёмов 100 ± 0.01.
func ValidateLevels(levels []models.TPLevel) error {
	if len(levels) == 0 {
		return fmt.Errorf("%w: no take-profit levels", ErrValidation)
	}

	sum := decimal.Zero
	for i, lvl := range levels {
		if !lvl.LevelPct.IsPositive() {
			return fmt.Errorf("%w: level %d: price percent must be positive", ErrValidation, i+1)
		}
		if !lvl.VolumePct.IsPositive() || lvl.VolumePct.GreaterThan(hundred) {
			return fmt.Errorf("%w: level %d: volume percent must be in (0, 100]", ErrValidation, i+1)
		}
		if i > 0 && !lvl.LevelPct.GreaterThan(levels[i-1].LevelPct) {
			return fmt.Errorf("%w: level %d: price percents must strictly increase", ErrValidation, i+1)
		}
		sum = sum.Add(lvl.VolumePct)
	}

	if len(levels) > 1 && sum.Sub(hundred).Abs().GreaterThan(volumeTolerance) {
		return fmt.Errorf("%w: volume percents sum to %s, want 100", ErrValidation, sum)
	}
	return nil
}
