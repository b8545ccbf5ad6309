package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

type DBConfig struct {
	Host     string `env:"DB_HOST" env-default:"localhost"`
	Port     int    `env:"DB_PORT" env-default:"5432"`
	User     string `env:"POSTGRES_USER" env-default:"postgres"`
	Password string `env:"POSTGRES_PASSWORD" env-default:"postgres"`
	Name     string `env:"POSTGRES_DB" env-default:"lockerhub"`
}

type KafkaConfig struct {
	Brokers    string `env:"KAFKA_BROKERS" env-default:"localhost:9092"`
	AuditTopic string `env:"KAFKA_AUDIT_TOPIC" env-default:"audit-events"`
}

type Config struct {
	HTTPPort      string `env:"HTTP_PORT" env-default:"9000"`
	AdminUsername string `env:"ADMIN_USERNAME" env-default:"admin"`
	AdminPassword string `env:"ADMIN_PASSWORD"`

	// PIN issuance and pickup policy.
	PinValidityHours        int  `env:"PIN_VALIDITY_HOURS" env-default:"24"`
	TokenValidityHours      int  `env:"TOKEN_VALIDITY_HOURS" env-default:"24"`
	MaxDailyPinGenerations  int  `env:"MAX_DAILY_PIN_GENERATIONS" env-default:"3"`
	MaxPickupDays           int  `env:"MAX_PICKUP_DAYS" env-default:"7"`
	ReminderHours           int  `env:"REMINDER_HOURS" env-default:"24"`
	EmailTokenIssuance      bool `env:"EMAIL_TOKEN_ISSUANCE" env-default:"true"`
	SweepIntervalMinutes    int  `env:"SWEEP_INTERVAL_MINUTES" env-default:"60"`
	OutboxPollIntervalSecs  int  `env:"OUTBOX_POLL_INTERVAL_SECONDS" env-default:"5"`
	OutboxBatchSize         int  `env:"OUTBOX_BATCH_SIZE" env-default:"50"`
	OutboxMaxAttempts       int  `env:"OUTBOX_MAX_ATTEMPTS" env-default:"5"`
	PublicBaseURL           string `env:"PUBLIC_BASE_URL" env-default:"http://localhost:9000"`

	DB    DBConfig
	Kafka KafkaConfig
}

func (c Config) PinValidity() time.Duration {
	return time.Duration(c.PinValidityHours) * time.Hour
}

func (c Config) TokenValidity() time.Duration {
	return time.Duration(c.TokenValidityHours) * time.Hour
}

func (c Config) MaxPickupWindow() time.Duration {
	return time.Duration(c.MaxPickupDays) * 24 * time.Hour
}

func (c Config) ReminderLead() time.Duration {
	return time.Duration(c.ReminderHours) * time.Hour
}

func (c Config) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalMinutes) * time.Minute
}

// Load probes the usual .env locations the way local tooling expects, then
// reads the typed configuration from the environment.
func Load() (*Config, error) {
	loadEnv()

	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("failed to read config from env: %w", err)
	}
	return &cfg, nil
}

func loadEnv() {
	wd, err := os.Getwd()
	if err != nil {
		return
	}

	possiblePaths := []string{
		filepath.Join(wd, ".env"),
		filepath.Join(wd, "..", ".env"),
		filepath.Join(wd, "..", "..", ".env"),
	}

	for _, envPath := range possiblePaths {
		if err := godotenv.Load(envPath); err == nil {
			zap.L().Info("loaded environment file", zap.String("path", envPath))
			return
		}
	}

	for _, envPath := range possiblePaths {
		examplePath := filepath.Join(filepath.Dir(envPath), ".example.env")
		if err := godotenv.Load(examplePath); err == nil {
			zap.L().Info("loaded environment file", zap.String("path", examplePath))
			return
		}
	}
}
