package repository

import (
	"context"
	"database/sql"

	"slguard/internal/models"
)

// TradeRepository - журнал исполнений, только вставка
type TradeRepository struct {
	db *sql.DB
}

func NewTradeRepository(db *sql.DB) *TradeRepository {
	return &TradeRepository{db: db}
}

// Create сохраняет исполнение
func (r *TradeRepository) Create(ctx context.Context, trade *models.Trade) error {
	query := `
		INSERT INTO trades (trade_id, order_id, account_id, figi, ticker, direction, quantity, price, total_amount, trade_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id`

	return r.db.QueryRowContext(ctx, query,
		trade.TradeID,
		trade.OrderID,
		trade.AccountID,
		trade.Figi,
		trade.Ticker,
		trade.Direction,
		trade.Quantity,
		trade.Price,
		trade.TotalAmount,
		trade.TradeDate,
	).Scan(&trade.ID)
}

// ListByFigi возвращает последние исполнения по инструменту
func (r *TradeRepository) ListByFigi(ctx context.Context, accountID, figi string, limit int) ([]*models.Trade, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `
		SELECT id, trade_id, order_id, account_id, figi, ticker, direction, quantity, price, total_amount, trade_date
		FROM trades
		WHERE account_id = $1 AND figi = $2
		ORDER BY trade_date DESC
		LIMIT $3`

	rows, err := r.db.QueryContext(ctx, query, accountID, figi, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trades []*models.Trade
	for rows.Next() {
		t := &models.Trade{}
		if err := rows.Scan(
			&t.ID,
			&t.TradeID,
			&t.OrderID,
			&t.AccountID,
			&t.Figi,
			&t.Ticker,
			&t.Direction,
			&t.Quantity,
			&t.Price,
			&t.TotalAmount,
			&t.TradeDate,
		); err != nil {
			return nil, err
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}
