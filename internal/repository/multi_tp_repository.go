package repository

import (
	"context"
	"database/sql"
	"fmt"

	"slguard/internal/models"
)

// MultiTPRepository - уровни лестницы тейк-профитов позиции
type MultiTPRepository struct {
	db *sql.DB
}

func NewMultiTPRepository(db *sql.DB) *MultiTPRepository {
	return &MultiTPRepository{db: db}
}

// Replace заменяет набор уровней позиции целиком в одной транзакции
func (r *MultiTPRepository) Replace(ctx context.Context, positionID int64, levels []*models.MultiTakeProfitLevel) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM multi_take_profit_levels WHERE position_id = $1`, positionID); err != nil {
		return fmt.Errorf("delete levels: %w", err)
	}

	query := `
		INSERT INTO multi_take_profit_levels (position_id, level_number, price_level, volume_percent, is_triggered, order_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`

	for _, lvl := range levels {
		lvl.PositionID = positionID
		if err := tx.QueryRowContext(ctx, query,
			positionID,
			lvl.LevelNumber,
			lvl.PriceLevel,
			lvl.VolumePercent,
			lvl.IsTriggered,
			lvl.OrderID,
		).Scan(&lvl.ID); err != nil {
			return fmt.Errorf("insert level %d: %w", lvl.LevelNumber, err)
		}
	}

	return tx.Commit()
}

// ListByPosition возвращает уровни позиции по возрастанию номера
func (r *MultiTPRepository) ListByPosition(ctx context.Context, positionID int64) ([]*models.MultiTakeProfitLevel, error) {
	query := `
		SELECT id, position_id, level_number, price_level, volume_percent, is_triggered, order_id
		FROM multi_take_profit_levels
		WHERE position_id = $1
		ORDER BY level_number`

	rows, err := r.db.QueryContext(ctx, query, positionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var levels []*models.MultiTakeProfitLevel
	for rows.Next() {
		lvl := &models.MultiTakeProfitLevel{}
		if err := rows.Scan(
			&lvl.ID,
			&lvl.PositionID,
			&lvl.LevelNumber,
			&lvl.PriceLevel,
			&lvl.VolumePercent,
			&lvl.IsTriggered,
			&lvl.OrderID,
		); err != nil {
			return nil, err
		}
		levels = append(levels, lvl)
	}
	return levels, rows.Err()
}

// DeleteByPosition удаляет уровни закрытой позиции
func (r *MultiTPRepository) DeleteByPosition(ctx context.Context, positionID int64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM multi_take_profit_levels WHERE position_id = $1`, positionID)
	return err
}
