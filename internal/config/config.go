// Package config предоставляет структуры и функцию для парсинга и загрузки конфига
package config

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Окружения, от которых зависит формат логов.
const (
	EnvLocal = "local"
	EnvDev   = "dev"
	EnvProd  = "prod"
)

// Config общая структура для хранения настроек
type Config struct {
	Env             string `yaml:"env" env:"ENV" env-default:"local"`
	Storage         `yaml:"storage"`
	RedisConnection `yaml:"redis_connection"`
	HTTPServer      `yaml:"http_server"`
	JWTToken        `yaml:"jwttoken"`
	SMTP            `yaml:"smtp"`
	Push            `yaml:"push"`
	RabbitMQ        `yaml:"rabbitmq"`
	Jobs            `yaml:"jobs"`
	Reminders       `yaml:"reminders"`
	Notifications   `yaml:"notifications"`
	Payments        `yaml:"payments"`
	PasswordReset   `yaml:"password_reset"`
}

// Storage структура для настройки хранилища клиентов
type Storage struct {
	Driver                  string `yaml:"driver" env:"STORAGE_DRIVER" env-default:"postgres"`
	StorageConnectionString string `yaml:"storage_connection_string" env:"STORAGE_CONNECTION_STRING"`
	MigrationsPath          string `yaml:"migrations_path" env:"MIGRATIONS_PATH" env-default:"./migrations"`
}

// HTTPServer структура для настройки сервера
type HTTPServer struct {
	AddressHTTP string        `yaml:"addresshttp" env:"HTTP_ADDRESS" env-default:":8080"`
	TimeoutHTTP time.Duration `yaml:"timeouthttp" env-default:"4s"`
	IdleTimeout time.Duration `yaml:"idle_timeout" env-default:"60s"`
	// RateLimit: запросов в секунду на публичные маршруты авторизации.
	RateLimit float64 `yaml:"rate_limit" env-default:"5"`
	RateBurst int     `yaml:"rate_burst" env-default:"10"`
}

// RedisConnection структура для настройки подключения к redis
type RedisConnection struct {
	AddressRedis string        `yaml:"addressredis" env:"REDIS_ADDRESS"`
	Password     string        `yaml:"password" env:"REDIS_PASSWORD"`
	User         string        `yaml:"user"`
	DB           int           `yaml:"db"`
	MaxRetries   int           `yaml:"max_retries"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	TimeoutRedis time.Duration `yaml:"timeoutredis"`
}

// JWTToken структура для работы с jwt-токеном
type JWTToken struct {
	JWTSecretKey string        `yaml:"jwt_secret_key" env:"JWT_SECRET_KEY"`
	TokenTTL     time.Duration `yaml:"token_ttl" env-default:"24h"`
}

// SMTP настройки почтового сервера
type SMTP struct {
	SMTPHost string `yaml:"host" env:"SMTP_HOST"`
	SMTPPort string `yaml:"port" env:"SMTP_PORT" env-default:"587"`
	SMTPUser string `yaml:"user" env:"SMTP_USER"`
	SMTPPass string `yaml:"password" env:"SMTP_PASSWORD"`
	From     string `yaml:"from" env:"SMTP_FROM"`
}

// Push настройки Expo push API
type Push struct {
	Endpoint    string        `yaml:"endpoint" env-default:"https://exp.host/--/api/v2/push/send"`
	AccessToken string        `yaml:"access_token" env:"EXPO_ACCESS_TOKEN"`
	Timeout     time.Duration `yaml:"timeout" env-default:"10s"`
}

// RabbitMQ настройки брокера
type RabbitMQ struct {
	RabbitMQURL string        `yaml:"url" env:"RABBITMQ_URL"`
	Retries     int           `yaml:"retries" env-default:"5"`
	RetryDelay  time.Duration `yaml:"retry_delay" env-default:"2s"`
	Prefetch    int           `yaml:"prefetch" env-default:"10"`
}

// Jobs настройки задач сверки
type Jobs struct {
	Secret      string `yaml:"secret" env:"JOB_SECRET"`
	Concurrency int    `yaml:"concurrency" env-default:"8"`
	// Location: часовой пояс, в котором считаются календарные дни.
	Location  string    `yaml:"location" env-default:"Europe/Rome"`
	Schedules Schedules `yaml:"schedules"`
}

// Schedules cron-выражения для планировщика
type Schedules struct {
	Pauses         string `yaml:"pauses" env-default:"*/15 * * * *"`
	RemindersPush  string `yaml:"reminders_push" env-default:"0 9 * * *"`
	RemindersEmail string `yaml:"reminders_email" env-default:"0 8 * * *"`
	Sweep          string `yaml:"sweep" env-default:"0 3 * * *"`
}

// Reminders политика повторной отправки напоминаний
type Reminders struct {
	Dedup    bool          `yaml:"dedup" env:"REMINDERS_DEDUP"`
	DedupTTL time.Duration `yaml:"dedup_ttl" env-default:"48h"`
}

// Notifications способ доставки уведомлений: direct или queue
type Notifications struct {
	Mode string `yaml:"mode" env:"NOTIFICATIONS_MODE" env-default:"direct"`
}

// Payments настройки вебхука платёжного провайдера
type Payments struct {
	WebhookSecret string        `yaml:"webhook_secret" env:"PAYMENTS_WEBHOOK_SECRET"`
	Tolerance     time.Duration `yaml:"tolerance" env-default:"5m"`
	EventTTL      time.Duration `yaml:"event_ttl" env-default:"72h"`
}

// PasswordReset настройки сброса пароля
type PasswordReset struct {
	ResetTTL time.Duration `yaml:"token_ttl" env-default:"1h"`
	LinkBase string        `yaml:"link_base" env-default:"https://app.example.com/reset-password"`
}

// MustLoad функция для загрузки конфига по пути из CONFIG_PATH
func MustLoad() *Config {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		log.Fatal("CONFIG_PATH is not set")
	}
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		log.Fatalf("file: %s - does not exist", configPath)
	}
	var cfg Config

	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		log.Fatalf("cannot read config: %s", err)
	}
	if _, err := cfg.JobsLocation(); err != nil {
		log.Fatalf("cannot read config: %s", err)
	}
	return &cfg
}

// JobsLocation возвращает часовой пояс для календарных дней.
func (c *Config) JobsLocation() (*time.Location, error) {
	const op = "config.JobsLocation"
	if c.Jobs.Location == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.Jobs.Location)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return loc, nil
}

func (c *Config) String() string {
	return fmt.Sprintf(
		"Env: %s\n"+
			"Storage:\n"+
			"  Driver: %s\n"+
			"  MigrationsPath: %s\n"+
			"RedisConnection:\n"+
			"  Addr: %s\n"+
			"  DB: %d\n"+
			"HTTPServer:\n"+
			"  Address: %s\n"+
			"  Timeout: %s\n"+
			"  IdleTimeout: %s\n"+
			"Jobs:\n"+
			"  Concurrency: %d\n"+
			"  Location: %s\n"+
			"Reminders:\n"+
			"  Dedup: %t\n"+
			"Notifications:\n"+
			"  Mode: %s\n",
		c.Env,
		c.Driver,
		c.MigrationsPath,
		c.AddressRedis,
		c.DB,
		c.AddressHTTP,
		c.TimeoutHTTP,
		c.IdleTimeout,
		c.Concurrency,
		c.Jobs.Location,
		c.Dedup,
		c.Mode,
	)
}
