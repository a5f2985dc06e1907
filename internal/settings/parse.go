package settings

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"slguard/internal/models"
	"slguard/internal/risk"
)

// ParseActivation разбирает значение флага активации:
// "inherit" или пусто - наследовать, "off" или "0" - выключить, число - процент.
func ParseActivation(s string) (models.ActivationPct, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "inherit":
		return models.InheritActivation(), nil
	case "off", "disabled":
		return models.DisabledActivation(), nil
	}
	d, err := decimal.NewFromString(strings.TrimSuffix(strings.TrimSpace(s), "%"))
	if err != nil {
		return models.ActivationPct{}, fmt.Errorf("invalid activation %q: %w", s, err)
	}
	if d.IsNegative() {
		return models.ActivationPct{}, fmt.Errorf("activation must not be negative, got %s", d)
	}
	return models.ActivationAt(d), nil
}

// ParseLevels разбирает лестницу вида "1:30,2:30,3:40" (процент цены:доля объёма)
// и проверяет её тем же правилом, что и при выставлении.
func ParseLevels(s string) ([]models.TPLevel, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}

	var levels []models.TPLevel
	for _, part := range strings.Split(s, ",") {
		pct, vol, ok := strings.Cut(strings.TrimSpace(part), ":")
		if !ok {
			return nil, fmt.Errorf("invalid level %q, want price_pct:volume_pct", part)
		}
		level, err := decimal.NewFromString(strings.TrimSpace(pct))
		if err != nil {
			return nil, fmt.Errorf("invalid level price %q: %w", pct, err)
		}
		volume, err := decimal.NewFromString(strings.TrimSpace(vol))
		if err != nil {
			return nil, fmt.Errorf("invalid level volume %q: %w", vol, err)
		}
		levels = append(levels, models.TPLevel{LevelPct: level, VolumePct: volume})
	}

	if err := risk.ValidateLevels(levels); err != nil {
		return nil, err
	}
	return levels, nil
}
