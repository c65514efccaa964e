package config

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config содержит конфигурацию для Campaign Server
type Config struct {
	// Настройки сервера
	Port        string   `envconfig:"SERVER_PORT" default:"8080"`
	Env         string   `envconfig:"APP_ENV" default:"production"`
	LogLevel    string   `envconfig:"LOG_LEVEL" default:"info"`
	LogEncoding string   `envconfig:"LOG_ENCODING" default:"json"`
	CORSOrigins []string `envconfig:"CORS_ALLOWED_ORIGINS" default:"http://localhost:3000"`

	// Настройки PostgreSQL
	DBHost     string `envconfig:"DB_HOST" required:"true"`
	DBPort     string `envconfig:"DB_PORT" default:"5432"`
	DBUser     string `envconfig:"DB_USER" required:"true"`
	DBName     string `envconfig:"DB_NAME" required:"true"`
	DBSSLMode  string `envconfig:"DB_SSL_MODE" default:"disable"`
	DBMaxConns int32  `envconfig:"DB_MAX_CONNECTIONS" default:"10"`
	// Секретное поле БЕЗ envconfig тега
	DBPassword string

	// Настройки Redis (кеш локаций)
	RedisAddr        string        `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	RedisDB          int           `envconfig:"REDIS_DB" default:"0"`
	LocationCacheTTL time.Duration `envconfig:"LOCATION_CACHE_TTL" default:"30m"`

	// Настройки RabbitMQ (события смены статуса генерации).
	// Пустой URL отключает публикацию событий.
	RabbitMQURL      string `envconfig:"RABBITMQ_URL"`
	StatusEventQueue string `envconfig:"STATUS_EVENT_QUEUE" default:"generation_status_events"`

	// Настройки удалённого gamemaster-сервиса
	GamemasterBaseURL   string        `envconfig:"GAMEMASTER_BASE_URL" required:"true"`
	TriggerTimeout      time.Duration `envconfig:"GAMEMASTER_TRIGGER_TIMEOUT" default:"30s"`
	StatusTimeout       time.Duration `envconfig:"GAMEMASTER_STATUS_TIMEOUT" default:"60s"`
	LocationTimeout     time.Duration `envconfig:"GAMEMASTER_LOCATION_TIMEOUT" default:"30s"`
	PollMaxAttempts     int           `envconfig:"GAMEMASTER_POLL_MAX_ATTEMPTS" default:"3"`
	PollRetryDelay      time.Duration `envconfig:"GAMEMASTER_POLL_RETRY_DELAY" default:"12s"`
	MaxBackgroundTasks  int           `envconfig:"MAX_BACKGROUND_TASKS" default:"32"`
	TaskShutdownTimeout time.Duration `envconfig:"TASK_SHUTDOWN_TIMEOUT" default:"30s"`
	TaskCleanupAge      time.Duration `envconfig:"TASK_CLEANUP_AGE" default:"1h"`
	// Секретное поле БЕЗ envconfig тега
	GamemasterToken string
}

// GetDSN возвращает строку подключения (DSN) для PostgreSQL
func (c *Config) GetDSN() string {
	// Пароль в c.DBPassword
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode)
}

// ReadSecret читает секрет из файла в стандартном пути Docker Secrets.
// Для локальной разработки допускается fallback на переменную окружения
// с именем secretName в верхнем регистре.
func ReadSecret(secretName string) (string, error) {
	filePath := fmt.Sprintf("/run/secrets/%s", secretName)
	secretBytes, err := os.ReadFile(filePath)
	if err == nil {
		secret := strings.TrimSpace(string(secretBytes))
		if secret == "" {
			return "", fmt.Errorf("secret file %s is empty", filePath)
		}
		return secret, nil
	}

	if fromEnv := strings.TrimSpace(os.Getenv(strings.ToUpper(secretName))); fromEnv != "" {
		return fromEnv, nil
	}
	return "", fmt.Errorf("failed to read secret file %s: %w", filePath, err)
}

// LoadConfig загружает конфигурацию из переменных окружения и секретов
func LoadConfig() (*Config, error) {
	var cfg Config
	err := envconfig.Process("", &cfg)
	if err != nil {
		return nil, fmt.Errorf("ошибка загрузки конфигурации campaign-server: %w", err)
	}

	// Загружаем ОБЯЗАТЕЛЬНЫЕ секреты
	var loadErr error
	cfg.DBPassword, loadErr = ReadSecret("db_password")
	if loadErr != nil {
		return nil, loadErr
	}

	cfg.GamemasterToken, loadErr = ReadSecret("gamemaster_token")
	if loadErr != nil {
		return nil, loadErr
	}

	log.Printf("Конфигурация Campaign Server загружена (секреты из файлов):")
	log.Printf("  Port: %s", cfg.Port)
	log.Printf("  LogLevel: %s", cfg.LogLevel)
	log.Printf("  DB DSN: postgres://%s:***@%s:%s/%s?sslmode=%s", cfg.DBUser, cfg.DBHost, cfg.DBPort, cfg.DBName, cfg.DBSSLMode)
	log.Printf("  Redis Addr: %s", cfg.RedisAddr)
	log.Printf("  RabbitMQ URL set: %t", cfg.RabbitMQURL != "")
	log.Printf("  Gamemaster Base URL: %s", cfg.GamemasterBaseURL)
	log.Printf("  Poll: %d attempts, delay %v", cfg.PollMaxAttempts, cfg.PollRetryDelay)
	log.Println("  Gamemaster Token: [ЗАГРУЖЕН]")

	return &cfg, nil
}
