package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config содержит всю конфигурацию приложения
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Security SecurityConfig
	Exchange ExchangeConfig
	Redis    RedisConfig
	Agent    AgentConfig
	Logging  LoggingConfig
}

// ServerConfig - настройки HTTP сервера
type ServerConfig struct {
	Port     int
	Host     string
	UseHTTPS bool
	CertFile string
	KeyFile  string
}

// DatabaseConfig - настройки подключения к БД
type DatabaseConfig struct {
	Driver   string
	Host     string
	Port     int
	Name     string
	User     string
	Password string
	SSLMode  string
}

// SecurityConfig - настройки безопасности
type SecurityConfig struct {
	JWTSecret      string
	EncryptionKey  string
	SessionTimeout int
}

// ExchangeConfig - учетные данные и параметры биржевого клиента
type ExchangeConfig struct {
	Name       string
	APIKey     string
	APISecret  string
	Passphrase string

	// Retry логика для критических операций
	MaxRetries   int
	RetryBackoff time.Duration
	OrderTimeout time.Duration // таймаут ожидания исполнения ордера
}

// RedisConfig - подключение к шине publish/subscribe
type RedisConfig struct {
	Host string
	Port int
	DB   int
}

// AgentConfig - настройки рантайма воркеров-агентов
type AgentConfig struct {
	// WebSocket настройки биржевого клиента (event-driven, без polling)
	WSReconnectDelay time.Duration // задержка перед переподключением WS
	WSPingInterval   time.Duration // интервал ping для поддержания соединения
	WSReadTimeout    time.Duration // таймаут чтения WS сообщений

	DefaultLoopInterval time.Duration // интервал тика стратегии по умолчанию

	// Периодические задачи (не влияют на торговлю)
	StatsUpdateFreq time.Duration // обновление статистики для UI

	MaxConcurrentAgents int // максимум одновременно запущенных агентов (0 = без лимита)
}

// LoggingConfig - настройки логирования
type LoggingConfig struct {
	Level  string
	Format string
}

// Load загружает конфигурацию из переменных окружения
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:     getEnvAsInt("SERVER_PORT", 8080),
			Host:     getEnv("SERVER_HOST", "0.0.0.0"),
			UseHTTPS: getEnvAsBool("USE_HTTPS", false),
			CertFile: getEnv("CERT_FILE", ""),
			KeyFile:  getEnv("KEY_FILE", ""),
		},
		Database: DatabaseConfig{
			Driver:   getEnv("DB_DRIVER", "postgres"),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			Name:     getEnv("DB_NAME", "tradingagent"),
			User:     getEnv("DB_USER", "user"),
			Password: getEnv("DB_PASSWORD", "password"),
			SSLMode:  getEnv("DB_SSL_MODE", "disable"),
		},
		Security: SecurityConfig{
			JWTSecret:      getEnv("JWT_SECRET", "change-me-in-production"),
			EncryptionKey:  getEnv("ENCRYPTION_KEY", ""),
			SessionTimeout: getEnvAsInt("SESSION_TIMEOUT", 3600),
		},
		Exchange: ExchangeConfig{
			Name:       getEnv("EXCHANGE_NAME", "bybit"),
			APIKey:     getEnv("EXCHANGE_API_KEY", ""),
			APISecret:  getEnv("EXCHANGE_API_SECRET", ""),
			Passphrase: getEnv("EXCHANGE_API_PASSPHRASE", ""),

			MaxRetries:   getEnvAsInt("MAX_RETRIES", 4),
			RetryBackoff: getEnvAsDuration("RETRY_BACKOFF", 500*time.Millisecond),
			OrderTimeout: getEnvAsDuration("ORDER_TIMEOUT", 5*time.Second),
		},
		Redis: RedisConfig{
			Host: getEnv("REDIS_HOST", "redis"),
			Port: getEnvAsInt("REDIS_PORT", 6379),
			DB:   getEnvAsInt("REDIS_DB", 0),
		},
		Agent: AgentConfig{
			// WebSocket - event-driven, без polling!
			WSReconnectDelay: getEnvAsDuration("WS_RECONNECT_DELAY", 1*time.Second),
			WSPingInterval:   getEnvAsDuration("WS_PING_INTERVAL", 15*time.Second),
			WSReadTimeout:    getEnvAsDuration("WS_READ_TIMEOUT", 30*time.Second),

			DefaultLoopInterval: getEnvAsDuration("DEFAULT_LOOP_INTERVAL", 10*time.Second),

			// Периодические задачи для UI (не критичны для торговли)
			StatsUpdateFreq: getEnvAsDuration("STATS_UPDATE_FREQ", 5*time.Second),

			MaxConcurrentAgents: getEnvAsInt("MAX_CONCURRENT_AGENTS", 0), // 0 = без лимита
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	// Валидация критичных параметров
	if cfg.Security.EncryptionKey == "" {
		return nil, fmt.Errorf("ENCRYPTION_KEY is required for encrypting API keys")
	}

	if len(cfg.Security.EncryptionKey) != 32 {
		return nil, fmt.Errorf("ENCRYPTION_KEY must be exactly 32 bytes for AES-256")
	}

	return cfg, nil
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
