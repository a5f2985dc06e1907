package settings

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"slguard/internal/models"
	"slguard/internal/repository"
	"slguard/internal/risk"
	"slguard/pkg/utils"
)

// LayerStore - слои настроек в БД
type LayerStore interface {
	GetGlobal(ctx context.Context, accountID string) (*models.SettingsLayer, error)
	GetInstrument(ctx context.Context, accountID, ticker string) (*models.SettingsLayer, error)
}

// Resolver собирает EffectiveSettings для тикера.
//
// Порядок слоёв (каждый следующий перекрывает заданные поля предыдущего):
//
//	defaults -> global (БД) -> instruments из файла -> instrument (БД)
//
// Активация: Inherit пропускает слой, Disabled останавливает цепочку.
type Resolver struct {
	store  LayerStore
	file   *File
	logger *utils.Logger
}

// NewResolver создаёт резолвер. store может быть nil: тогда только файл и дефолты.
func NewResolver(store LayerStore, file *File, logger *utils.Logger) *Resolver {
	if file == nil {
		file = DefaultFile()
	}
	if logger == nil {
		logger = utils.L()
	}
	return &Resolver{store: store, file: file, logger: logger.WithComponent("settings")}
}

// File возвращает загруженный файл настроек
func (r *Resolver) File() *File {
	return r.file
}

// GetEffectiveSettings вычисляет настройки для решения по тикеру. Результат не кешируется.
func (r *Resolver) GetEffectiveSettings(ctx context.Context, accountID, ticker string) (models.EffectiveSettings, error) {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	eff := r.defaults()

	if r.store != nil {
		global, err := r.store.GetGlobal(ctx, accountID)
		if err != nil && !errors.Is(err, repository.ErrSettingsNotFound) {
			return models.EffectiveSettings{}, fmt.Errorf("load global settings: %w", err)
		}
		if global != nil {
			applyLayer(&eff, global)
			eff.Source = models.SettingsSourceGlobal
		}
	}

	if in, ok := r.file.Instrument(ticker); ok && ticker != "" {
		applyFileInstrument(&eff, in)
		eff.Source = models.SettingsSourceFile
	}

	if r.store != nil && ticker != "" {
		layer, err := r.store.GetInstrument(ctx, accountID, ticker)
		if err != nil && !errors.Is(err, repository.ErrSettingsNotFound) {
			return models.EffectiveSettings{}, fmt.Errorf("load instrument settings %s: %w", ticker, err)
		}
		if layer != nil {
			applyLayer(&eff, layer)
			eff.Source = models.SettingsSourceInstrument
		}
	}

	// Наследование закончилось: оставшийся Inherit означает "без активации"
	if eff.SLActivation.Mode == models.ActivationInherit {
		eff.SLActivation = models.DisabledActivation()
	}
	if eff.TPActivation.Mode == models.ActivationInherit {
		eff.TPActivation = models.DisabledActivation()
	}

	if eff.MultiTPEnabled {
		if err := risk.ValidateLevels(eff.MultiTPLevels); err != nil {
			r.logger.Warn("multi-TP disabled: invalid ladder",
				utils.Account(accountID),
				utils.Ticker(ticker),
				utils.String("source", eff.Source),
				utils.Err(err),
			)
			eff.MultiTPEnabled = false
		}
	}

	return eff, nil
}

func (r *Resolver) defaults() models.EffectiveSettings {
	eff := models.EffectiveSettings{
		SLActivation: models.InheritActivation(),
		TPActivation: models.InheritActivation(),
		Source:       models.SettingsSourceDefault,
	}
	if mtp := r.file.MultiTakeProfit; mtp.Enabled != nil {
		eff.MultiTPEnabled = *mtp.Enabled
		eff.MultiTPLevels = cloneLevels(mtp.Levels)
	}
	return eff
}

func applyLayer(eff *models.EffectiveSettings, l *models.SettingsLayer) {
	if l.StopLossPct.Valid {
		eff.StopLossPct = l.StopLossPct
	}
	if l.TakeProfitPct.Valid {
		eff.TakeProfitPct = l.TakeProfitPct
	}
	eff.SLActivation = chainActivation(l.SLActivation, eff.SLActivation)
	eff.TPActivation = chainActivation(l.TPActivation, eff.TPActivation)
	if l.MultiTPEnabled != nil {
		eff.MultiTPEnabled = *l.MultiTPEnabled
	}
	if l.MultiTPLevels != nil {
		eff.MultiTPLevels = cloneLevels(l.MultiTPLevels)
	}
}

func applyFileInstrument(eff *models.EffectiveSettings, in Instrument) {
	if in.StopLossPct != nil {
		eff.StopLossPct = decimal.NullDecimal{Decimal: *in.StopLossPct, Valid: true}
	}
	if in.TakeProfitPct != nil {
		eff.TakeProfitPct = decimal.NullDecimal{Decimal: *in.TakeProfitPct, Valid: true}
	}
	if in.StopLossSteps > 0 {
		eff.StopLossSteps = in.StopLossSteps
	}
	if in.TakeProfitSteps > 0 {
		eff.TakeProfitSteps = in.TakeProfitSteps
	}
	eff.SLActivation = chainActivation(in.SLActivation, eff.SLActivation)
	eff.TPActivation = chainActivation(in.TPActivation, eff.TPActivation)
	if in.MultiTP != nil {
		if in.MultiTP.Enabled != nil {
			eff.MultiTPEnabled = *in.MultiTP.Enabled
		}
		if in.MultiTP.Levels != nil {
			eff.MultiTPLevels = cloneLevels(in.MultiTP.Levels)
		}
	}
}

// chainActivation: верхний слой перекрывает нижний, если он не Inherit.
// Disabled на верхнем слое выключает активацию даже при значении ниже.
func chainActivation(upper, lower models.ActivationPct) models.ActivationPct {
	return upper.Or(lower)
}

func cloneLevels(levels []models.TPLevel) []models.TPLevel {
	if levels == nil {
		return nil
	}
	out := make([]models.TPLevel, len(levels))
	copy(out, levels)
	return out
}
