package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// Схема общая для postgres и sqlite3, различаются только автоинкремент и типы времени.
// Цены хранятся как NUMERIC/TEXT и читаются в decimal.Decimal без потери точности.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS positions (
		id {{id}},
		account_id TEXT NOT NULL,
		figi TEXT NOT NULL,
		ticker TEXT NOT NULL DEFAULT '',
		instrument_type TEXT NOT NULL,
		quantity BIGINT NOT NULL,
		average_price {{num}} NOT NULL,
		direction TEXT NOT NULL,
		state TEXT NOT NULL,
		created_at {{ts}} NOT NULL,
		updated_at {{ts}} NOT NULL,
		UNIQUE (account_id, figi)
	)`,
	`CREATE TABLE IF NOT EXISTS orders (
		id {{id}},
		order_id TEXT NOT NULL,
		position_id BIGINT NOT NULL,
		account_id TEXT NOT NULL,
		figi TEXT NOT NULL,
		order_type TEXT NOT NULL,
		direction TEXT NOT NULL,
		quantity BIGINT NOT NULL,
		price {{num}} NOT NULL,
		stop_price {{num}} NOT NULL,
		status TEXT NOT NULL,
		order_purpose TEXT NOT NULL,
		created_at {{ts}} NOT NULL,
		updated_at {{ts}} NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_orders_position_status ON orders (position_id, status)`,
	`CREATE TABLE IF NOT EXISTS trades (
		id {{id}},
		trade_id TEXT NOT NULL,
		order_id TEXT NOT NULL,
		account_id TEXT NOT NULL,
		figi TEXT NOT NULL,
		ticker TEXT NOT NULL DEFAULT '',
		direction TEXT NOT NULL,
		quantity BIGINT NOT NULL,
		price {{num}} NOT NULL,
		total_amount {{num}} NOT NULL,
		trade_date {{ts}} NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_trades_account_figi ON trades (account_id, figi)`,
	`CREATE TABLE IF NOT EXISTS multi_take_profit_levels (
		id {{id}},
		position_id BIGINT NOT NULL,
		level_number INTEGER NOT NULL,
		price_level {{num}} NOT NULL,
		volume_percent {{num}} NOT NULL,
		is_triggered BOOLEAN NOT NULL DEFAULT FALSE,
		order_id TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS system_events (
		id {{id}},
		event_type TEXT NOT NULL,
		account_id TEXT NOT NULL DEFAULT '',
		figi TEXT NOT NULL DEFAULT '',
		ticker TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL,
		details TEXT,
		created_at {{ts}} NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_system_events_created ON system_events (created_at)`,
	`CREATE TABLE IF NOT EXISTS settings_layers (
		id {{id}},
		account_id TEXT NOT NULL,
		ticker TEXT NOT NULL DEFAULT '',
		stop_loss_pct {{num}},
		take_profit_pct {{num}},
		sl_activation_pct {{num}},
		tp_activation_pct {{num}},
		multi_tp_enabled BOOLEAN,
		multi_tp_levels TEXT,
		updated_at {{ts}} NOT NULL,
		UNIQUE (account_id, ticker)
	)`,
}

// EnsureSchema создаёт таблицы, если их нет
func EnsureSchema(ctx context.Context, db *sql.DB, driver string) error {
	r, err := schemaReplacer(driver)
	if err != nil {
		return err
	}

	for _, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, r.Replace(stmt)); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

func schemaReplacer(driver string) (*strings.Replacer, error) {
	switch driver {
	case "postgres":
		return strings.NewReplacer(
			"{{id}}", "BIGSERIAL PRIMARY KEY",
			"{{num}}", "NUMERIC(24, 9)",
			"{{ts}}", "TIMESTAMPTZ",
		), nil
	case "sqlite3":
		return strings.NewReplacer(
			"{{id}}", "INTEGER PRIMARY KEY AUTOINCREMENT",
			"{{num}}", "TEXT",
			"{{ts}}", "TIMESTAMP",
		), nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}
