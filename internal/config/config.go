package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config はアプリケーション設定を表す
type Config struct {
	Env      string `envconfig:"APP_ENV" default:"development"`
	Timezone string `envconfig:"APP_TIMEZONE" default:"Europe/Rome"`

	Server   ServerConfig   `ignored:"true"`
	Database DatabaseConfig `ignored:"true"`
	Redis    RedisConfig    `ignored:"true"`
	RabbitMQ RabbitMQConfig `ignored:"true"`
	Booking  BookingConfig  `ignored:"true"`
	Reminder ReminderConfig `ignored:"true"`
	Tracing  TracingConfig  `ignored:"true"`
}

// ServerConfig はサーバー設定
type ServerConfig struct {
	Port         string        `envconfig:"PORT" default:"8080"`
	ReadTimeout  time.Duration `envconfig:"SERVER_READ_TIMEOUT" default:"30s"`
	WriteTimeout time.Duration `envconfig:"SERVER_WRITE_TIMEOUT" default:"30s"`
}

// DatabaseConfig はデータベース設定
type DatabaseConfig struct {
	Driver         string `envconfig:"STORAGE_DRIVER" default:"postgres"`
	Host           string `envconfig:"DB_HOST" default:"localhost"`
	Port           string `envconfig:"DB_PORT" default:"5432"`
	User           string `envconfig:"DB_USER" default:"postgres"`
	Password       string `envconfig:"DB_PASSWORD" default:"postgres"`
	DBName         string `envconfig:"DB_NAME" default:"car_booking"`
	SSLMode        string `envconfig:"DB_SSLMODE" default:"disable"`
	MigrationsPath string `envconfig:"MIGRATIONS_PATH" default:"migrations"`
}

// RedisConfig はRedis設定
type RedisConfig struct {
	Host     string `envconfig:"REDIS_HOST" default:"localhost"`
	Port     string `envconfig:"REDIS_PORT" default:"6379"`
	Password string `envconfig:"REDIS_PASSWORD"`
	DB       int    `envconfig:"REDIS_DB" default:"0"`
	// CacheEnabled が false の場合、ビューは毎回ストレージから読み込む
	CacheEnabled bool          `envconfig:"CACHE_ENABLED" default:"false"`
	CacheTTL     time.Duration `envconfig:"CACHE_TTL" default:"30s"`
}

// RabbitMQConfig は通知ブローカー設定
// URL が空の場合はログ出力のみの通知にフォールバックする
type RabbitMQConfig struct {
	URL      string `envconfig:"RABBITMQ_URL"`
	Exchange string `envconfig:"RABBITMQ_EXCHANGE" default:"car_booking"`
}

// BookingConfig は予約調停の設定
type BookingConfig struct {
	PastTolerance      time.Duration `envconfig:"BOOKING_PAST_TOLERANCE" default:"5m"`
	ArbitrationTimeout time.Duration `envconfig:"BOOKING_ARBITRATION_TIMEOUT" default:"5s"`
	LockDriver         string        `envconfig:"LOCK_DRIVER" default:"local"`
	LockTTL            time.Duration `envconfig:"BOOKING_LOCK_TTL" default:"10s"`
	LockRetries        int           `envconfig:"BOOKING_LOCK_RETRIES" default:"20"`
	LockRetryDelay     time.Duration `envconfig:"BOOKING_LOCK_RETRY_DELAY" default:"50ms"`
	NotifyTimeout      time.Duration `envconfig:"BOOKING_NOTIFY_TIMEOUT" default:"10s"`
}

// ReminderConfig はリマインダー設定
type ReminderConfig struct {
	Horizon  time.Duration `envconfig:"REMINDER_HORIZON" default:"24h"`
	Interval time.Duration `envconfig:"REMINDER_INTERVAL" default:"15m"`
}

// TracingConfig はトレース設定
type TracingConfig struct {
	Endpoint string `envconfig:"OTEL_EXPORTER_OTLP_ENDPOINT"`
}

// Load は環境変数から設定を読み込む
func Load() (*Config, error) {
	var cfg Config
	// ネストした構造体はキーにプレフィックスが付くため個別に読み込む
	specs := []interface{}{
		&cfg, &cfg.Server, &cfg.Database, &cfg.Redis,
		&cfg.RabbitMQ, &cfg.Booking, &cfg.Reminder, &cfg.Tracing,
	}
	for _, spec := range specs {
		if err := envconfig.Process("", spec); err != nil {
			return nil, fmt.Errorf("設定の読み込みに失敗: %w", err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate は設定値の整合性を検証する
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres", "memory":
	default:
		return fmt.Errorf("STORAGE_DRIVER が不正です: %q", c.Database.Driver)
	}
	switch c.Booking.LockDriver {
	case "local", "redis":
	default:
		return fmt.Errorf("LOCK_DRIVER が不正です: %q", c.Booking.LockDriver)
	}
	if c.Booking.PastTolerance < 0 {
		return fmt.Errorf("BOOKING_PAST_TOLERANCE は0以上である必要があります")
	}
	if c.Booking.ArbitrationTimeout <= 0 {
		return fmt.Errorf("BOOKING_ARBITRATION_TIMEOUT は正の値である必要があります")
	}
	// 調停中にロックの期限が切れないよう、TTL は調停の上限時間より長くする
	if c.Booking.LockTTL <= c.Booking.ArbitrationTimeout {
		return fmt.Errorf("BOOKING_LOCK_TTL は BOOKING_ARBITRATION_TIMEOUT より長くする必要があります")
	}
	if c.Booking.LockRetries <= 0 || c.Booking.LockRetryDelay <= 0 {
		return fmt.Errorf("ロックのリトライ設定は正の値である必要があります")
	}
	if c.Reminder.Horizon <= 0 {
		return fmt.Errorf("REMINDER_HORIZON は正の値である必要があります")
	}
	return nil
}

// DSN はPostgreSQL接続文字列を返す
func (c *DatabaseConfig) DSN() string {
	return "host=" + c.Host +
		" port=" + c.Port +
		" user=" + c.User +
		" password=" + c.Password +
		" dbname=" + c.DBName +
		" sslmode=" + c.SSLMode
}

// RedisRequired は Redis への接続が必要な設定かを返す
func (c *Config) RedisRequired() bool {
	return c.Redis.CacheEnabled || c.Booking.LockDriver == "redis"
}

// Addr はRedis接続アドレスを返す
func (c *RedisConfig) Addr() string {
	return c.Host + ":" + c.Port
}
