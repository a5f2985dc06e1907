package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"

	"slguard/internal/models"
)

// ============================================================
// OrderRepository Tests
// ============================================================

var orderCols = []string{"id", "order_id", "position_id", "account_id", "figi", "order_type", "direction", "quantity", "price", "stop_price", "status", "order_purpose", "created_at", "updated_at"}

func TestNewOrderRepository(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	repo := NewOrderRepository(db)
	if repo == nil {
		t.Fatal("NewOrderRepository returned nil")
	}
	if repo.db != db {
		t.Error("db not set correctly")
	}
}

func TestOrderRepositoryCreate(t *testing.T) {
	tests := []struct {
		name        string
		mockSetup   func(mock sqlmock.Sqlmock)
		expectError bool
	}{
		{
			name: "success",
			mockSetup: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(`INSERT INTO orders`).
					WithArgs("stop-1", int64(1), "acc", "FIGI1", models.OrderTypeStop, models.SideSell, int64(100),
						decimal.RequireFromString("97.9"), decimal.RequireFromString("98"),
						models.OrderStatusNew, models.PurposeStopLoss, sqlmock.AnyArg(), sqlmock.AnyArg()).
					WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
			},
		},
		{
			name: "database error",
			mockSetup: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(`INSERT INTO orders`).WillReturnError(errors.New("database error"))
			},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, err := sqlmock.New()
			if err != nil {
				t.Fatalf("failed to create mock: %v", err)
			}
			defer db.Close()

			tt.mockSetup(mock)

			order := &models.Order{
				OrderID:    "stop-1",
				PositionID: 1,
				AccountID:  "acc",
				Figi:       "FIGI1",
				Type:       models.OrderTypeStop,
				Direction:  models.SideSell,
				Quantity:   100,
				Price:      decimal.RequireFromString("97.9"),
				StopPrice:  decimal.RequireFromString("98"),
				Purpose:    models.PurposeStopLoss,
			}
			err = NewOrderRepository(db).Create(context.Background(), order)

			if tt.expectError {
				if err == nil {
					t.Error("expected error, got nil")
				}
			} else {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				if order.ID != 1 {
					t.Errorf("expected ID=1, got %d", order.ID)
				}
				if order.Status != models.OrderStatusNew {
					t.Errorf("default status = %s", order.Status)
				}
			}

			if err := mock.ExpectationsWereMet(); err != nil {
				t.Errorf("unfulfilled expectations: %v", err)
			}
		})
	}
}

func TestOrderRepositoryListActiveByPosition(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	now := time.Now()
	rows := sqlmock.NewRows(orderCols).
		AddRow(1, "sl-1", 4, "acc", "F", "STOP", "SELL", 100, "97.9", "98", "NEW", "STOP_LOSS", now, now).
		AddRow(2, "tp-1", 4, "acc", "F", "STOP", "SELL", 100, "105", "105", "NEW", "TAKE_PROFIT", now, now)
	mock.ExpectQuery(`SELECT .+ FROM orders WHERE position_id = \$1 AND status = \$2`).
		WithArgs(int64(4), models.OrderStatusNew).
		WillReturnRows(rows)

	orders, err := NewOrderRepository(db).ListActiveByPosition(context.Background(), 4)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(orders) != 2 {
		t.Fatalf("expected 2 orders, got %d", len(orders))
	}
	if orders[0].Purpose != models.PurposeStopLoss || !orders[1].Price.Equal(decimal.NewFromInt(105)) {
		t.Errorf("unexpected orders: %+v %+v", orders[0], orders[1])
	}
}

func TestOrderRepositoryGetByOrderID_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(`SELECT .+ FROM orders WHERE order_id = \$1`).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	if _, err := NewOrderRepository(db).GetByOrderID(context.Background(), "missing"); !errors.Is(err, ErrOrderNotFound) {
		t.Errorf("expected ErrOrderNotFound, got %v", err)
	}
}

func TestOrderRepositoryMarkCancelled(t *testing.T) {
	tests := []struct {
		name        string
		affected    int64
		expectError error
	}{
		{"success", 1, nil},
		{"unknown order", 0, ErrOrderNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, err := sqlmock.New()
			if err != nil {
				t.Fatalf("failed to create mock: %v", err)
			}
			defer db.Close()

			mock.ExpectExec(`UPDATE orders SET status = \$1`).
				WithArgs(models.OrderStatusCancelled, sqlmock.AnyArg(), "sl-1").
				WillReturnResult(sqlmock.NewResult(0, tt.affected))

			err = NewOrderRepository(db).MarkCancelled(context.Background(), "sl-1")
			if !errors.Is(err, tt.expectError) {
				t.Errorf("expected %v, got %v", tt.expectError, err)
			}
		})
	}
}

func TestOrderRepositoryListByAccount_DefaultLimit(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(`SELECT .+ FROM orders WHERE account_id = \$1 ORDER BY id DESC LIMIT \$2`).
		WithArgs("acc", 100).
		WillReturnRows(sqlmock.NewRows(orderCols))

	orders, err := NewOrderRepository(db).ListByAccount(context.Background(), "acc", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(orders) != 0 {
		t.Errorf("expected no orders, got %d", len(orders))
	}
}
