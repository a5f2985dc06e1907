package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"

	"slguard/internal/models"
)

// ============================================================
// Trade / MultiTP / Event / Schema Tests
// ============================================================

func TestTradeRepositoryCreate(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	date := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`INSERT INTO trades`).
		WithArgs("ord-1_1709287200", "ord-1", "acc", "F", "SBER", models.SideBuy, int64(100),
			decimal.NewFromInt(100), decimal.NewFromInt(10000), date).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(3))

	trade := &models.Trade{
		TradeID:     "ord-1_1709287200",
		OrderID:     "ord-1",
		AccountID:   "acc",
		Figi:        "F",
		Ticker:      "SBER",
		Direction:   models.SideBuy,
		Quantity:    100,
		Price:       decimal.NewFromInt(100),
		TotalAmount: decimal.NewFromInt(10000),
		TradeDate:   date,
	}
	if err := NewTradeRepository(db).Create(context.Background(), trade); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if trade.ID != 3 {
		t.Errorf("expected ID=3, got %d", trade.ID)
	}
}

func TestTradeRepositoryListByFigi(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	now := time.Now()
	mock.ExpectQuery(`SELECT .+ FROM trades`).
		WithArgs("acc", "F", 10).
		WillReturnRows(sqlmock.NewRows([]string{"id", "trade_id", "order_id", "account_id", "figi", "ticker", "direction", "quantity", "price", "total_amount", "trade_date"}).
			AddRow(1, "t1", "o1", "acc", "F", "SBER", "SELL", 5, "101.5", "507.5", now))

	trades, err := NewTradeRepository(db).ListByFigi(context.Background(), "acc", "F", 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(trades) != 1 || !trades[0].TotalAmount.Equal(decimal.RequireFromString("507.5")) {
		t.Errorf("unexpected trades: %+v", trades)
	}
}

func TestMultiTPRepositoryReplace(t *testing.T) {
	tests := []struct {
		name        string
		mockSetup   func(mock sqlmock.Sqlmock)
		expectError bool
	}{
		{
			name: "success",
			mockSetup: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectExec(`DELETE FROM multi_take_profit_levels WHERE position_id = \$1`).
					WithArgs(int64(9)).
					WillReturnResult(sqlmock.NewResult(0, 2))
				mock.ExpectQuery(`INSERT INTO multi_take_profit_levels`).
					WithArgs(int64(9), 1, decimal.NewFromInt(101), decimal.NewFromInt(60), false, "tp-1").
					WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(20))
				mock.ExpectQuery(`INSERT INTO multi_take_profit_levels`).
					WithArgs(int64(9), 2, decimal.NewFromInt(102), decimal.NewFromInt(40), false, "tp-2").
					WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(21))
				mock.ExpectCommit()
			},
		},
		{
			name: "insert fails - rollback",
			mockSetup: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectExec(`DELETE FROM multi_take_profit_levels`).
					WillReturnResult(sqlmock.NewResult(0, 0))
				mock.ExpectQuery(`INSERT INTO multi_take_profit_levels`).
					WillReturnError(errors.New("database error"))
				mock.ExpectRollback()
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

			levels := []*models.MultiTakeProfitLevel{
				{LevelNumber: 1, PriceLevel: decimal.NewFromInt(101), VolumePercent: decimal.NewFromInt(60), OrderID: "tp-1"},
				{LevelNumber: 2, PriceLevel: decimal.NewFromInt(102), VolumePercent: decimal.NewFromInt(40), OrderID: "tp-2"},
			}
			err = NewMultiTPRepository(db).Replace(context.Background(), 9, levels)

			if tt.expectError {
				if err == nil {
					t.Error("expected error, got nil")
				}
			} else {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if levels[0].ID != 20 || levels[1].PositionID != 9 {
					t.Errorf("levels not updated: %+v %+v", levels[0], levels[1])
				}
			}

			if err := mock.ExpectationsWereMet(); err != nil {
				t.Errorf("unfulfilled expectations: %v", err)
			}
		})
	}
}

func TestEventRepositoryLogEvent(t *testing.T) {
	tests := []struct {
		name    string
		details map[string]interface{}
		wantArg interface{}
	}{
		{"with details", map[string]interface{}{"lots": 3}, `{"lots":3}`},
		{"without details", nil, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, err := sqlmock.New()
			if err != nil {
				t.Fatalf("failed to create mock: %v", err)
			}
			defer db.Close()

			mock.ExpectExec(`INSERT INTO system_events`).
				WithArgs(models.EventOrderPlaced, "acc", "F", "SBER", "SL placed", tt.wantArg, sqlmock.AnyArg()).
				WillReturnResult(sqlmock.NewResult(1, 1))

			err = NewEventRepository(db).LogEvent(context.Background(), models.EventOrderPlaced, "acc", "F", "SBER", "SL placed", tt.details)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if err := mock.ExpectationsWereMet(); err != nil {
				t.Errorf("unfulfilled expectations: %v", err)
			}
		})
	}
}

func TestEventRepositoryList(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	now := time.Now()
	mock.ExpectQuery(`SELECT .+ FROM system_events`).
		WithArgs("acc", models.EventStreamTimeout, 100).
		WillReturnRows(sqlmock.NewRows([]string{"id", "event_type", "account_id", "figi", "ticker", "description", "details", "created_at"}).
			AddRow(5, models.EventStreamTimeout, "acc", "", "", "trades stream restarted", `{"stream":"trades"}`, now).
			AddRow(4, models.EventStreamTimeout, "acc", "", "", "positions stream restarted", nil, now))

	events, err := NewEventRepository(db).List(context.Background(), EventFilter{AccountID: "acc", EventType: models.EventStreamTimeout, Limit: 5000})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].Details["stream"] != "trades" {
		t.Errorf("details = %v", events[0].Details)
	}
	if events[1].Details != nil {
		t.Errorf("expected nil details, got %v", events[1].Details)
	}
}

func TestEnsureSchema(t *testing.T) {
	tests := []struct {
		driver string
		marker string
	}{
		{"postgres", "BIGSERIAL PRIMARY KEY"},
		{"sqlite3", "INTEGER PRIMARY KEY AUTOINCREMENT"},
	}

	for _, tt := range tests {
		t.Run(tt.driver, func(t *testing.T) {
			db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherFunc(func(expected, actual string) error {
				return nil
			})))
			if err != nil {
				t.Fatalf("failed to create mock: %v", err)
			}
			defer db.Close()

			for range schemaStatements {
				mock.ExpectExec("").WillReturnResult(sqlmock.NewResult(0, 0))
			}

			if err := EnsureSchema(context.Background(), db, tt.driver); err != nil {
				t.Fatalf("EnsureSchema: %v", err)
			}
			if err := mock.ExpectationsWereMet(); err != nil {
				t.Errorf("unfulfilled expectations: %v", err)
			}

			r, _ := schemaReplacer(tt.driver)
			if got := r.Replace("{{id}}"); got != tt.marker {
				t.Errorf("id column = %q", got)
			}
		})
	}

	if err := EnsureSchema(context.Background(), nil, "mysql"); err == nil {
		t.Error("unknown driver must fail")
	}
}
