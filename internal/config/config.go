package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"slguard/pkg/crypto"
)

// Config содержит всю конфигурацию приложения
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Broker   BrokerConfig
	Engine   EngineConfig
	Security SecurityConfig
	Notify   NotifyConfig
	Logging  LoggingConfig
}

// ServerConfig - ops HTTP сервер (health, metrics, просмотр позиций)
type ServerConfig struct {
	Port         int
	Host         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	AllowedOrigins string // через запятую, пусто или "*" - все
}

// DatabaseConfig - настройки подключения к БД
type DatabaseConfig struct {
	Driver   string // postgres, sqlite3
	Host     string
	Port     int
	Name     string // для sqlite3 - путь к файлу
	User     string
	Password string
	SSLMode  string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// BrokerConfig - доступ к API брокера
type BrokerConfig struct {
	BaseURL        string // REST
	StreamURL      string // WebSocket
	Token          string
	TokenEncrypted string // AES-GCM, расшифровывается ключом ENCRYPTION_KEY
	AccountID      string
	Timeout        time.Duration
	RPS            float64 // лимит RPC в секунду
	PingInterval   time.Duration
}

// EngineConfig - параметры движка защиты
type EngineConfig struct {
	MonitorInterval time.Duration // период проверки потоков
	StreamTimeout   time.Duration // простой потока до принудительного перезапуска
	BackoffBase     time.Duration
	BackoffMax      time.Duration

	RPCAttempts  int
	RPCBaseDelay time.Duration

	ShutdownGrace time.Duration

	DedupeTTL        time.Duration
	DedupeMaxEntries int

	SettingsFile string // YAML с дефолтами и настройками инструментов
	SyncOnStart  bool   // сверка с портфелем брокера при запуске
}

// SecurityConfig - настройки безопасности
type SecurityConfig struct {
	EncryptionKey string // base64, 32 байта
	APITokenHash  string // bcrypt-хеш токена ops API; пусто = API без авторизации
}

// NotifyConfig - оповещения
type NotifyConfig struct {
	WebhookURL string
	QueueSize  int
	Timeout    time.Duration
}

// LoggingConfig - настройки логирования
type LoggingConfig struct {
	Level  string
	Format string
	Output string
}

// Load загружает конфигурацию: .env (если есть), затем переменные окружения
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port:         getEnvAsInt("SERVER_PORT", 8080),
			Host:         getEnv("SERVER_HOST", "0.0.0.0"),
			ReadTimeout:  getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout: getEnvAsDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),

			AllowedOrigins: getEnv("ALLOWED_ORIGINS", ""),
		},
		Database: DatabaseConfig{
			Driver:          getEnv("DB_DRIVER", "postgres"),
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnvAsInt("DB_PORT", 5432),
			Name:            getEnv("DB_NAME", "slguard"),
			User:            getEnv("DB_USER", "slguard"),
			Password:        getEnv("DB_PASSWORD", ""),
			SSLMode:         getEnv("DB_SSL_MODE", "disable"),
			MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Broker: BrokerConfig{
			BaseURL:        getEnv("BROKER_BASE_URL", "https://invest-public-api.tinkoff.ru/rest"),
			StreamURL:      getEnv("BROKER_STREAM_URL", "wss://invest-public-api.tinkoff.ru/ws"),
			Token:          getEnv("BROKER_TOKEN", ""),
			TokenEncrypted: getEnv("BROKER_TOKEN_ENCRYPTED", ""),
			AccountID:      getEnv("BROKER_ACCOUNT_ID", ""),
			Timeout:        getEnvAsDuration("BROKER_TIMEOUT", 10*time.Second),
			RPS:            getEnvAsFloat("BROKER_RPS", 5),
			PingInterval:   getEnvAsDuration("BROKER_PING_INTERVAL", 30*time.Second),
		},
		Engine: EngineConfig{
			MonitorInterval:  getEnvAsDuration("MONITOR_INTERVAL", 60*time.Second),
			StreamTimeout:    getEnvAsDuration("STREAM_TIMEOUT", 300*time.Second),
			BackoffBase:      getEnvAsDuration("STREAM_BACKOFF_BASE", time.Second),
			BackoffMax:       getEnvAsDuration("STREAM_BACKOFF_MAX", 300*time.Second),
			RPCAttempts:      getEnvAsInt("RPC_ATTEMPTS", 3),
			RPCBaseDelay:     getEnvAsDuration("RPC_BASE_DELAY", time.Second),
			ShutdownGrace:    getEnvAsDuration("SHUTDOWN_GRACE", 2*time.Second),
			DedupeTTL:        getEnvAsDuration("DEDUPE_TTL", 24*time.Hour),
			DedupeMaxEntries: getEnvAsInt("DEDUPE_MAX_ENTRIES", 100000),
			SettingsFile:     getEnv("SETTINGS_FILE", "config/settings.yaml"),
			SyncOnStart:      getEnvAsBool("SYNC_ON_START", true),
		},
		Security: SecurityConfig{
			EncryptionKey: getEnv("ENCRYPTION_KEY", ""),
			APITokenHash:  getEnv("API_TOKEN_HASH", ""),
		},
		Notify: NotifyConfig{
			WebhookURL: getEnv("ALERT_WEBHOOK_URL", ""),
			QueueSize:  getEnvAsInt("ALERT_QUEUE_SIZE", 256),
			Timeout:    getEnvAsDuration("ALERT_TIMEOUT", 5*time.Second),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
			Output: getEnv("LOG_OUTPUT", ""),
		},
	}

	if err := cfg.resolveBrokerToken(); err != nil {
		return nil, err
	}

	if err := cfg.validateRanges(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// resolveBrokerToken расшифровывает токен брокера, если он задан в зашифрованном виде
func (c *Config) resolveBrokerToken() error {
	if c.Broker.Token != "" || c.Broker.TokenEncrypted == "" {
		return nil
	}

	key, err := crypto.ParseKey(c.Security.EncryptionKey)
	if err != nil {
		return fmt.Errorf("ENCRYPTION_KEY: %w", err)
	}

	token, err := crypto.Decrypt(c.Broker.TokenEncrypted, key)
	if err != nil {
		return fmt.Errorf("BROKER_TOKEN_ENCRYPTED: %w", err)
	}
	c.Broker.Token = token
	return nil
}

// ValidateBroker - проверки, нужные только для запуска движка
func (c *Config) ValidateBroker() error {
	if c.Broker.Token == "" {
		return fmt.Errorf("BROKER_TOKEN or BROKER_TOKEN_ENCRYPTED is required")
	}
	if c.Broker.AccountID == "" {
		return fmt.Errorf("BROKER_ACCOUNT_ID is required")
	}
	return nil
}

// validateRanges проверяет числовые диапазоны параметров
func (c *Config) validateRanges() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("SERVER_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}

	switch c.Database.Driver {
	case "postgres":
		if c.Database.Port < 1 || c.Database.Port > 65535 {
			return fmt.Errorf("DB_PORT must be between 1 and 65535, got %d", c.Database.Port)
		}
	case "sqlite3":
	default:
		return fmt.Errorf("DB_DRIVER must be postgres or sqlite3, got %q", c.Database.Driver)
	}

	if c.Broker.RPS <= 0 {
		return fmt.Errorf("BROKER_RPS must be positive, got %v", c.Broker.RPS)
	}

	if c.Engine.MonitorInterval <= 0 {
		return fmt.Errorf("MONITOR_INTERVAL must be positive, got %v", c.Engine.MonitorInterval)
	}

	if c.Engine.StreamTimeout < c.Engine.MonitorInterval {
		return fmt.Errorf("STREAM_TIMEOUT (%v) must not be shorter than MONITOR_INTERVAL (%v)",
			c.Engine.StreamTimeout, c.Engine.MonitorInterval)
	}

	if c.Engine.BackoffBase <= 0 || c.Engine.BackoffMax < c.Engine.BackoffBase {
		return fmt.Errorf("STREAM_BACKOFF_BASE must be positive and not exceed STREAM_BACKOFF_MAX")
	}

	if c.Engine.RPCAttempts < 1 || c.Engine.RPCAttempts > 10 {
		return fmt.Errorf("RPC_ATTEMPTS must be between 1 and 10, got %d", c.Engine.RPCAttempts)
	}

	if c.Engine.ShutdownGrace <= 0 {
		return fmt.Errorf("SHUTDOWN_GRACE must be positive, got %v", c.Engine.ShutdownGrace)
	}

	if c.Engine.DedupeMaxEntries < 1 {
		return fmt.Errorf("DEDUPE_MAX_ENTRIES must be positive, got %d", c.Engine.DedupeMaxEntries)
	}

	if c.Notify.QueueSize < 1 {
		return fmt.Errorf("ALERT_QUEUE_SIZE must be positive, got %d", c.Notify.QueueSize)
	}

	return nil
}

// DSN возвращает строку подключения для выбранного драйвера
func (d DatabaseConfig) DSN() string {
	if d.Driver == "sqlite3" {
		return fmt.Sprintf("file:%s?_busy_timeout=5000&_foreign_keys=on", d.Name)
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

// DSNWithoutPassword - строка подключения для логов
func (d DatabaseConfig) DSNWithoutPassword() string {
	if d.Driver == "sqlite3" {
		return d.DSN()
	}
	return fmt.Sprintf("host=%s port=%d user=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Name, d.SSLMode)
}

// Вспомогательные функции для чтения переменных окружения

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
