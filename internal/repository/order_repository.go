package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"slguard/internal/models"
)

// Ошибки репозитория ордеров
var (
	ErrOrderNotFound = errors.New("order not found")
)

const orderColumns = `id, order_id, position_id, account_id, figi, order_type, direction, quantity, price, stop_price, status, order_purpose, created_at, updated_at`

// OrderRepository - работа с таблицей orders.
// Строки не удаляются, отменённые ордера получают статус CANCELLED.
type OrderRepository struct {
	db *sql.DB
}

// NewOrderRepository создает новый экземпляр репозитория
func NewOrderRepository(db *sql.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// Create создает запись об ордере
func (r *OrderRepository) Create(ctx context.Context, order *models.Order) error {
	query := `
		INSERT INTO orders (order_id, position_id, account_id, figi, order_type, direction, quantity, price, stop_price, status, order_purpose, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id`

	now := time.Now()
	order.CreatedAt = now
	order.UpdatedAt = now
	if order.Status == "" {
		order.Status = models.OrderStatusNew
	}

	return r.db.QueryRowContext(ctx, query,
		order.OrderID,
		order.PositionID,
		order.AccountID,
		order.Figi,
		order.Type,
		order.Direction,
		order.Quantity,
		order.Price,
		order.StopPrice,
		order.Status,
		order.Purpose,
		order.CreatedAt,
		order.UpdatedAt,
	).Scan(&order.ID)
}

// GetByOrderID возвращает ордер по id брокера
func (r *OrderRepository) GetByOrderID(ctx context.Context, orderID string) (*models.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE order_id = $1`
	return scanOrder(r.db.QueryRowContext(ctx, query, orderID))
}

// ListActiveByPosition возвращает живые (NEW) ордера позиции
func (r *OrderRepository) ListActiveByPosition(ctx context.Context, positionID int64) ([]*models.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE position_id = $1 AND status = $2 ORDER BY id`
	return r.list(ctx, query, positionID, models.OrderStatusNew)
}

// ListByAccount возвращает последние ордера счёта, limit <= 0 -> 100
func (r *OrderRepository) ListByAccount(ctx context.Context, accountID string, limit int) ([]*models.Order, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT ` + orderColumns + ` FROM orders WHERE account_id = $1 ORDER BY id DESC LIMIT $2`
	return r.list(ctx, query, accountID, limit)
}

// MarkCancelled помечает ордер отменённым
func (r *OrderRepository) MarkCancelled(ctx context.Context, orderID string) error {
	query := `UPDATE orders SET status = $1, updated_at = $2 WHERE order_id = $3`

	result, err := r.db.ExecContext(ctx, query, models.OrderStatusCancelled, time.Now(), orderID)
	if err != nil {
		return err
	}
	return expectAffected(result, ErrOrderNotFound)
}

func (r *OrderRepository) list(ctx context.Context, query string, args ...interface{}) ([]*models.Order, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []*models.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	return orders, rows.Err()
}

func scanOrder(row rowScanner) (*models.Order, error) {
	order := &models.Order{}
	err := row.Scan(
		&order.ID,
		&order.OrderID,
		&order.PositionID,
		&order.AccountID,
		&order.Figi,
		&order.Type,
		&order.Direction,
		&order.Quantity,
		&order.Price,
		&order.StopPrice,
		&order.Status,
		&order.Purpose,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return order, nil
}
