package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"slguard/internal/models"
)

// Ошибки репозитория настроек
var (
	ErrSettingsNotFound = errors.New("settings not found")
)

// SettingsRepository - уровни настроек SL/TP в таблице settings_layers.
// Глобальный уровень хранится с пустым ticker, уровень инструмента - с тикером.
type SettingsRepository struct {
	db *sql.DB
}

// NewSettingsRepository создает новый экземпляр репозитория
func NewSettingsRepository(db *sql.DB) *SettingsRepository {
	return &SettingsRepository{db: db}
}

const settingsColumns = `id, account_id, ticker, stop_loss_pct, take_profit_pct, sl_activation_pct, tp_activation_pct, multi_tp_enabled, multi_tp_levels, updated_at`

// GetGlobal возвращает глобальный уровень счёта
func (r *SettingsRepository) GetGlobal(ctx context.Context, accountID string) (*models.SettingsLayer, error) {
	return r.GetInstrument(ctx, accountID, "")
}

// GetInstrument возвращает уровень настроек тикера
func (r *SettingsRepository) GetInstrument(ctx context.Context, accountID, ticker string) (*models.SettingsLayer, error) {
	query := `SELECT ` + settingsColumns + ` FROM settings_layers WHERE account_id = $1 AND ticker = $2`
	return scanSettingsLayer(r.db.QueryRowContext(ctx, query, accountID, ticker))
}

// List возвращает все уровни счёта, глобальный первым
func (r *SettingsRepository) List(ctx context.Context, accountID string) ([]*models.SettingsLayer, error) {
	query := `SELECT ` + settingsColumns + ` FROM settings_layers WHERE account_id = $1 ORDER BY ticker`

	rows, err := r.db.QueryContext(ctx, query, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var layers []*models.SettingsLayer
	for rows.Next() {
		layer, err := scanSettingsLayer(rows)
		if err != nil {
			return nil, err
		}
		layers = append(layers, layer)
	}
	return layers, rows.Err()
}

// Upsert сохраняет уровень настроек, заменяя существующий
func (r *SettingsRepository) Upsert(ctx context.Context, layer *models.SettingsLayer) error {
	var levelsJSON sql.NullString
	if layer.MultiTPLevels != nil {
		data, err := json.Marshal(layer.MultiTPLevels)
		if err != nil {
			return err
		}
		levelsJSON = sql.NullString{String: string(data), Valid: true}
	}

	var multiTP sql.NullBool
	if layer.MultiTPEnabled != nil {
		multiTP = sql.NullBool{Bool: *layer.MultiTPEnabled, Valid: true}
	}

	query := `
		INSERT INTO settings_layers (account_id, ticker, stop_loss_pct, take_profit_pct, sl_activation_pct, tp_activation_pct, multi_tp_enabled, multi_tp_levels, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (account_id, ticker) DO UPDATE SET
			stop_loss_pct = EXCLUDED.stop_loss_pct,
			take_profit_pct = EXCLUDED.take_profit_pct,
			sl_activation_pct = EXCLUDED.sl_activation_pct,
			tp_activation_pct = EXCLUDED.tp_activation_pct,
			multi_tp_enabled = EXCLUDED.multi_tp_enabled,
			multi_tp_levels = EXCLUDED.multi_tp_levels,
			updated_at = EXCLUDED.updated_at
		RETURNING id`

	layer.UpdatedAt = time.Now()

	return r.db.QueryRowContext(ctx, query,
		layer.AccountID,
		layer.Ticker,
		layer.StopLossPct,
		layer.TakeProfitPct,
		layer.SLActivation.ToNull(),
		layer.TPActivation.ToNull(),
		multiTP,
		levelsJSON,
		layer.UpdatedAt,
	).Scan(&layer.ID)
}

// Delete удаляет уровень тикера (или глобальный при пустом ticker)
func (r *SettingsRepository) Delete(ctx context.Context, accountID, ticker string) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM settings_layers WHERE account_id = $1 AND ticker = $2`, accountID, ticker)
	if err != nil {
		return err
	}
	return expectAffected(result, ErrSettingsNotFound)
}

func scanSettingsLayer(row rowScanner) (*models.SettingsLayer, error) {
	layer := &models.SettingsLayer{}
	var (
		slAct, tpAct decimal.NullDecimal
		multiTP      sql.NullBool
		levelsJSON   sql.NullString
	)

	err := row.Scan(
		&layer.ID,
		&layer.AccountID,
		&layer.Ticker,
		&layer.StopLossPct,
		&layer.TakeProfitPct,
		&slAct,
		&tpAct,
		&multiTP,
		&levelsJSON,
		&layer.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSettingsNotFound
		}
		return nil, err
	}

	layer.SLActivation = models.ActivationFromNull(slAct)
	layer.TPActivation = models.ActivationFromNull(tpAct)
	if multiTP.Valid {
		enabled := multiTP.Bool
		layer.MultiTPEnabled = &enabled
	}
	if levelsJSON.Valid && levelsJSON.String != "" {
		if err := json.UnmarshalFromString(levelsJSON.String, &layer.MultiTPLevels); err != nil {
			return nil, err
		}
	}

	return layer, nil
}
