package settings

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"slguard/internal/models"
	"slguard/internal/repository"
	"slguard/pkg/utils"
)

type fakeStore struct {
	global      *models.SettingsLayer
	instruments map[string]*models.SettingsLayer
	err         error
}

func (f *fakeStore) GetGlobal(ctx context.Context, accountID string) (*models.SettingsLayer, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.global == nil {
		return nil, repository.ErrSettingsNotFound
	}
	return f.global, nil
}

func (f *fakeStore) GetInstrument(ctx context.Context, accountID, ticker string) (*models.SettingsLayer, error) {
	if l, ok := f.instruments[ticker]; ok {
		return l, nil
	}
	return nil, repository.ErrSettingsNotFound
}

func nd(s string) decimal.NullDecimal {
	return decimal.NullDecimal{Decimal: decimal.RequireFromString(s), Valid: true}
}

func boolPtr(b bool) *bool { return &b }

const sampleYAML = `
defaults:
  stocks:
    stop_loss_pct: 0.5
    take_profit_pct: 1.5
  futures:
    stop_loss_steps: 20
    take_profit_steps: 60
multi_take_profit:
  enabled: false
  levels:
    - {level_pct: 1, volume_pct: 50}
    - {level_pct: 2, volume_pct: 50}
instruments:
  sber:
    type: stock
    stop_loss_pct: 1.2
    sl_activation_pct: 0.3
    multi_tp:
      enabled: true
  GAZP:
    tp_activation_pct: 0
`

func writeSample(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "settings.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleYAML), 0o600))
	return path
}

func TestLoadFile(t *testing.T) {
	f, err := LoadFile(writeSample(t))
	require.NoError(t, err)

	assert.True(t, f.Defaults.Stocks.StopLossPct.Equal(decimal.RequireFromString("0.5")))
	assert.Equal(t, int64(20), f.Defaults.Futures.StopLossSteps)
	assert.Nil(t, f.Defaults.Futures.StopLossPct)

	sber, ok := f.Instrument("SBER")
	require.True(t, ok)
	assert.Equal(t, models.ActivationValue, sber.SLActivation.Mode)
	assert.Equal(t, models.ActivationInherit, sber.TPActivation.Mode)

	gazp, ok := f.Instrument("gazp")
	require.True(t, ok)
	assert.Equal(t, models.ActivationDisabled, gazp.TPActivation.Mode)

	rd := f.RiskDefaults()
	assert.Equal(t, int64(60), rd.Futures.TPSteps)
	assert.False(t, rd.Futures.TPPct.Valid)
}

func TestLoadFile_Missing(t *testing.T) {
	f, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.True(t, f.Defaults.Stocks.StopLossPct.Equal(decimal.RequireFromString("0.4")))
	assert.Equal(t, int64(10), f.Defaults.Futures.StopLossSteps)
}

func TestLoadFile_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
defaults:
  stocks: {stop_loss_pct: 0.5, take_profit_pct: 1}
  futures: {stop_loss_steps: 10, take_profit_steps: 30}
multi_take_profit:
  enabled: true
  levels:
    - {level_pct: 2, volume_pct: 60}
    - {level_pct: 1, volume_pct: 40}
`), 0o600))

	_, err := LoadFile(path)
	assert.Error(t, err)
}

func TestResolver_Precedence(t *testing.T) {
	file, err := LoadFile(writeSample(t))
	require.NoError(t, err)

	store := &fakeStore{
		global: &models.SettingsLayer{
			StopLossPct:   nd("2"),
			TakeProfitPct: nd("5"),
			SLActivation:  models.ActivationAt(decimal.RequireFromString("1")),
			TPActivation:  models.ActivationAt(decimal.RequireFromString("2")),
		},
		instruments: map[string]*models.SettingsLayer{
			"SBER": {TakeProfitPct: nd("7")},
		},
	}
	r := NewResolver(store, file, utils.NewNop())
	ctx := context.Background()

	// только глобальный слой
	eff, err := r.GetEffectiveSettings(ctx, "acc", "LKOH")
	require.NoError(t, err)
	assert.Equal(t, models.SettingsSourceGlobal, eff.Source)
	assert.True(t, eff.StopLossPct.Decimal.Equal(decimal.RequireFromString("2")))
	assert.Equal(t, "1%", eff.SLActivation.String())
	assert.False(t, eff.MultiTPEnabled)

	// файл + инструмент из БД
	eff, err = r.GetEffectiveSettings(ctx, "acc", "sber")
	require.NoError(t, err)
	assert.Equal(t, models.SettingsSourceInstrument, eff.Source)
	assert.True(t, eff.StopLossPct.Decimal.Equal(decimal.RequireFromString("1.2")))
	assert.True(t, eff.TakeProfitPct.Decimal.Equal(decimal.RequireFromString("7")))
	assert.Equal(t, "0.3%", eff.SLActivation.String())
	assert.Equal(t, "2%", eff.TPActivation.String())
	assert.True(t, eff.MultiTPEnabled)
	assert.Len(t, eff.MultiTPLevels, 2)

	// явный 0 в файле выключает активацию глобального слоя
	eff, err = r.GetEffectiveSettings(ctx, "acc", "GAZP")
	require.NoError(t, err)
	assert.Equal(t, models.ActivationDisabled, eff.TPActivation.Mode)
	assert.True(t, eff.SLActivation.IsSet())
}

func TestResolver_DefaultsOnly(t *testing.T) {
	r := NewResolver(&fakeStore{}, nil, utils.NewNop())

	eff, err := r.GetEffectiveSettings(context.Background(), "acc", "SBER")
	require.NoError(t, err)
	assert.Equal(t, models.SettingsSourceDefault, eff.Source)
	assert.False(t, eff.StopLossPct.Valid)
	assert.False(t, eff.HasActivation())
	assert.Equal(t, models.ActivationDisabled, eff.SLActivation.Mode)
}

func TestResolver_InvalidLadderDisablesMultiTP(t *testing.T) {
	store := &fakeStore{
		global: &models.SettingsLayer{
			MultiTPEnabled: boolPtr(true),
			MultiTPLevels: []models.TPLevel{
				{LevelPct: decimal.RequireFromString("1"), VolumePct: decimal.RequireFromString("70")},
				{LevelPct: decimal.RequireFromString("2"), VolumePct: decimal.RequireFromString("20")},
			},
		},
	}
	r := NewResolver(store, nil, utils.NewNop())

	eff, err := r.GetEffectiveSettings(context.Background(), "acc", "SBER")
	require.NoError(t, err)
	assert.False(t, eff.MultiTPEnabled)
	assert.False(t, eff.UseLadder())
}

func TestResolver_StoreError(t *testing.T) {
	r := NewResolver(&fakeStore{err: errors.New("db down")}, nil, utils.NewNop())
	_, err := r.GetEffectiveSettings(context.Background(), "acc", "SBER")
	assert.Error(t, err)
}
