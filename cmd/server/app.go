package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"time"

	jsoniter "github.com/json-iterator/go"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"slguard/internal/broker"
	"slguard/internal/config"
	"slguard/internal/repository"
	"slguard/internal/risk"
	"slguard/internal/settings"
	"slguard/pkg/retry"
	"slguard/pkg/utils"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// app - общая инициализация команд: конфиг, логгер, БД
type app struct {
	cfg    *config.Config
	logger *utils.Logger
	db     *sql.DB
}

// newApp загружает конфигурацию. withDB - открыть БД и создать схему.
func newApp(ctx context.Context, withDB bool) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger := utils.InitGlobalLogger(utils.LogConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})

	a := &app{cfg: cfg, logger: logger}
	if !withDB {
		return a, nil
	}

	db, err := openDatabase(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	a.db = db
	logger.Info("connected to database",
		utils.String("driver", cfg.Database.Driver),
		utils.String("dsn", cfg.Database.DSNWithoutPassword()),
	)
	return a, nil
}

// openDatabase открывает пул и создаёт таблицы, если их нет
func openDatabase(ctx context.Context, cfg config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open(cfg.Driver, cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	if cfg.Driver == "sqlite3" {
		// sqlite допускает одного писателя
		db.SetMaxOpenConns(1)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := repository.EnsureSchema(ctx, db, cfg.Driver); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return db, nil
}

func (a *app) Close() {
	if a.db != nil {
		a.db.Close()
	}
	_ = a.logger.Sync()
}

// retryConfig - повторы RPC брокера из RPC_ATTEMPTS / RPC_BASE_DELAY
func (a *app) retryConfig() retry.Config {
	rc := retry.BrokerConfig()
	rc.MaxRetries = a.cfg.Engine.RPCAttempts
	rc.InitialDelay = a.cfg.Engine.RPCBaseDelay
	return rc
}

func (a *app) brokerClient() (*broker.InvestClient, error) {
	if err := a.cfg.ValidateBroker(); err != nil {
		return nil, err
	}
	return broker.NewInvestClient(broker.Config{
		BaseURL:      a.cfg.Broker.BaseURL,
		StreamURL:    a.cfg.Broker.StreamURL,
		Token:        a.cfg.Broker.Token,
		Timeout:      a.cfg.Broker.Timeout,
		RPS:          a.cfg.Broker.RPS,
		PingInterval: a.cfg.Broker.PingInterval,
	}, a.logger), nil
}

// settingsResolver: файл настроек + слои из БД, если она открыта
func (a *app) settingsResolver() (*settings.Resolver, *risk.Calculator, error) {
	file, err := settings.LoadFile(a.cfg.Engine.SettingsFile)
	if err != nil {
		return nil, nil, err
	}

	var store settings.LayerStore
	if a.db != nil {
		store = repository.NewSettingsRepository(a.db)
	}
	return settings.NewResolver(store, file, a.logger), risk.NewCalculator(file.RiskDefaults()), nil
}

func printJSON(w io.Writer, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
