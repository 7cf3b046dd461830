// Package config loads worker configuration from the environment, applies
// defaults, and validates the result before any component starts.
package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Scanner is the scan worker's configuration.
type Scanner struct {
	// Queue settings.
	QueueURL        string        `mapstructure:"queue_url" validate:"required,url"`
	SQSEndpoint     string        `mapstructure:"sqs_endpoint"`
	BatchSize       int           `mapstructure:"batch_size" validate:"gte=1,lte=1000"`
	ReceiveWait     time.Duration `mapstructure:"receive_wait" validate:"gte=0"`
	RequeueDelay    time.Duration `mapstructure:"requeue_delay" validate:"gte=0"`
	MaxReceiveCount int           `mapstructure:"max_receive_count" validate:"gte=1"`

	// Object store settings.
	S3Endpoint  string `mapstructure:"s3_endpoint"`
	AWSRegion   string `mapstructure:"aws_region" validate:"required"`
	MaxFileSize int64  `mapstructure:"max_file_size" validate:"gt=0"`

	// Processing settings.
	MaxWorkers     int           `mapstructure:"max_workers" validate:"gte=1"`
	MessageTimeout time.Duration `mapstructure:"message_timeout" validate:"gt=0"`

	Database Database `mapstructure:",squash"`

	HealthAddr string `mapstructure:"health_addr" validate:"required"`
}

// Refresher is the progress refresher's configuration.
type Refresher struct {
	RefreshInterval time.Duration `mapstructure:"refresh_interval" validate:"gt=0"`
	RefreshLookback time.Duration `mapstructure:"refresh_lookback" validate:"gt=0"`
	RunOnce         bool          `mapstructure:"run_once"`

	Database Database `mapstructure:",squash"`

	HealthAddr string `mapstructure:"health_addr" validate:"required"`
}

// Database carries the PostgreSQL connection settings. A full DATABASE_URL
// wins; otherwise the DSN is assembled from the POSTGRES_* parts.
type Database struct {
	DatabaseURL      string `mapstructure:"database_url"`
	PostgresUser     string `mapstructure:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password"`
	PostgresHost     string `mapstructure:"postgres_host"`
	PostgresDB       string `mapstructure:"postgres_db"`
}

// DSN returns the effective PostgreSQL connection string.
func (d Database) DSN() string {
	if d.DatabaseURL != "" {
		return d.DatabaseURL
	}
	return fmt.Sprintf("postgres://%s:%s@%s/%s",
		d.PostgresUser, d.PostgresPassword, d.PostgresHost, d.PostgresDB)
}

// Environment keys with their defaults. Every key is bound explicitly so
// viper picks it up from the environment without a config file.
var defaults = map[string]any{
	"queue_url":         "",
	"sqs_endpoint":      "",
	"batch_size":        40,
	"receive_wait":      20 * time.Second,
	"requeue_delay":     30 * time.Second,
	"max_receive_count": 3,
	"s3_endpoint":       "",
	"aws_region":        "us-east-1",
	"max_file_size":     int64(100 * 1024 * 1024),
	"max_workers":       20,
	"message_timeout":   60 * time.Second,
	"refresh_interval":  time.Minute,
	"refresh_lookback":  24 * time.Hour,
	"run_once":          false,
	"database_url":      "",
	"postgres_user":     "postgres",
	"postgres_password": "postgres",
	"postgres_host":     "localhost:5432",
	"postgres_db":       "pii_armada",
	"health_addr":       ":8081",
}

func newViper() *viper.Viper {
	v := viper.New()
	for key, def := range defaults {
		v.SetDefault(key, def)
		// AutomaticEnv alone does not surface env vars through Unmarshal;
		// each key needs an explicit binding.
		_ = v.BindEnv(key)
	}
	v.AutomaticEnv()
	return v
}

// LoadScanner reads the scan worker configuration from the environment.
func LoadScanner() (Scanner, error) {
	var cfg Scanner
	if err := newViper().Unmarshal(&cfg); err != nil {
		return Scanner{}, fmt.Errorf("unmarshaling config: %w", err)
	}
	if err := validator.New().Struct(cfg); err != nil {
		return Scanner{}, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// LoadRefresher reads the progress refresher configuration from the
// environment.
func LoadRefresher() (Refresher, error) {
	var cfg Refresher
	if err := newViper().Unmarshal(&cfg); err != nil {
		return Refresher{}, fmt.Errorf("unmarshaling config: %w", err)
	}
	if err := validator.New().Struct(cfg); err != nil {
		return Refresher{}, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}
