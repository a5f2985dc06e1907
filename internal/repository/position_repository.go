package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"slguard/internal/models"
)

// Ошибки репозитория позиций
var (
	ErrPositionNotFound = errors.New("position not found")
)

const positionColumns = `id, account_id, figi, ticker, instrument_type, quantity, average_price, direction, state, created_at, updated_at`

// PositionRepository - работа с таблицей positions.
// На пару (account_id, figi) не больше одной строки, закрытая позиция удаляется.
type PositionRepository struct {
	db *sql.DB
}

// NewPositionRepository создает новый экземпляр репозитория
func NewPositionRepository(db *sql.DB) *PositionRepository {
	return &PositionRepository{db: db}
}

// Create сохраняет новую позицию
func (r *PositionRepository) Create(ctx context.Context, pos *models.Position) error {
	query := `
		INSERT INTO positions (account_id, figi, ticker, instrument_type, quantity, average_price, direction, state, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id`

	now := time.Now()
	pos.CreatedAt = now
	pos.UpdatedAt = now
	if pos.State == "" {
		pos.State = models.StateOpening
	}

	return r.db.QueryRowContext(ctx, query,
		pos.AccountID,
		pos.Figi,
		pos.Ticker,
		pos.InstrumentType,
		pos.Quantity,
		pos.AveragePrice,
		pos.Direction,
		pos.State,
		pos.CreatedAt,
		pos.UpdatedAt,
	).Scan(&pos.ID)
}

// GetByFigi возвращает позицию счёта по инструменту
func (r *PositionRepository) GetByFigi(ctx context.Context, accountID, figi string) (*models.Position, error) {
	query := `SELECT ` + positionColumns + ` FROM positions WHERE account_id = $1 AND figi = $2`
	return scanPosition(r.db.QueryRowContext(ctx, query, accountID, figi))
}

// ListByAccount возвращает все открытые позиции счёта
func (r *PositionRepository) ListByAccount(ctx context.Context, accountID string) ([]*models.Position, error) {
	query := `SELECT ` + positionColumns + ` FROM positions WHERE account_id = $1 ORDER BY id`

	rows, err := r.db.QueryContext(ctx, query, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var positions []*models.Position
	for rows.Next() {
		pos, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		positions = append(positions, pos)
	}
	return positions, rows.Err()
}

// Update сохраняет количество, среднюю цену, направление и состояние
func (r *PositionRepository) Update(ctx context.Context, pos *models.Position) error {
	query := `
		UPDATE positions
		SET quantity = $1, average_price = $2, direction = $3, state = $4, updated_at = $5
		WHERE id = $6`

	pos.UpdatedAt = time.Now()
	result, err := r.db.ExecContext(ctx, query,
		pos.Quantity,
		pos.AveragePrice,
		pos.Direction,
		pos.State,
		pos.UpdatedAt,
		pos.ID,
	)
	if err != nil {
		return err
	}
	return expectAffected(result, ErrPositionNotFound)
}

// UpdateState меняет только состояние защиты
func (r *PositionRepository) UpdateState(ctx context.Context, id int64, state string) error {
	query := `UPDATE positions SET state = $1, updated_at = $2 WHERE id = $3`

	result, err := r.db.ExecContext(ctx, query, state, time.Now(), id)
	if err != nil {
		return err
	}
	return expectAffected(result, ErrPositionNotFound)
}

// Delete удаляет закрытую позицию
func (r *PositionRepository) Delete(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM positions WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return expectAffected(result, ErrPositionNotFound)
}

// rowScanner - общий интерфейс *sql.Row и *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPosition(row rowScanner) (*models.Position, error) {
	pos := &models.Position{}
	err := row.Scan(
		&pos.ID,
		&pos.AccountID,
		&pos.Figi,
		&pos.Ticker,
		&pos.InstrumentType,
		&pos.Quantity,
		&pos.AveragePrice,
		&pos.Direction,
		&pos.State,
		&pos.CreatedAt,
		&pos.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPositionNotFound
		}
		return nil, err
	}
	return pos, nil
}

func expectAffected(result sql.Result, notFound error) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return notFound
	}
	return nil
}
