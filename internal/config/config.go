package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Config captures process-level settings for the attendance server.
type Config struct {
	Addr     string `validate:"required"`
	DBDriver string `validate:"required,oneof=sqlite postgres"`
	DBDSN    string `validate:"required"`

	// OperatorPassword gates the operator cookie session.
	OperatorPassword string `validate:"required"`
	// OperatorCanEdit is the capability handed to logged-in operators.
	OperatorCanEdit bool
	ChurchID        string `validate:"required"`

	// PhoneCountryCode is the calling code applied to local (0-prefixed) numbers.
	PhoneCountryCode string `validate:"required,numeric,max=4"`
	LogLevel         string `validate:"oneof=debug info warn error"`
}

const defaultSQLiteDSN = "attendance.db?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on"

// Load reads an optional .env file (path may be empty for ./.env) and then
// builds the config from the environment.
func Load(envFile string) (Config, error) {
	var err error
	if envFile != "" {
		err = godotenv.Load(envFile)
	} else {
		err = godotenv.Load()
	}
	if err != nil && envFile != "" {
		return Config{}, fmt.Errorf("load %s: %w", envFile, err)
	}
	cfg := FromEnv()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// FromEnv builds a Config from environment variables, falling back to
// development defaults.
func FromEnv() Config {
	driver := strings.ToLower(getEnv("DB_DRIVER", "sqlite"))
	dsn := os.Getenv("DB_DSN")
	if dsn == "" && driver == "sqlite" {
		dsn = defaultSQLiteDSN
	}
	return Config{
		Addr:             getEnv("ADDR", ":8080"),
		DBDriver:         driver,
		DBDSN:            dsn,
		OperatorPassword: getEnv("OPERATOR_PASSWORD", "operator123"), // override in production
		OperatorCanEdit:  getEnv("OPERATOR_CAN_EDIT", "true") == "true",
		ChurchID:         getEnv("CHURCH_ID", "default"),
		PhoneCountryCode: strings.TrimPrefix(getEnv("PHONE_COUNTRY_CODE", "62"), "+"),
		LogLevel:         strings.ToLower(getEnv("LOG_LEVEL", "info")),
	}
}

func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// NewLogger returns a text slog logger at the configured level.
func (c Config) NewLogger() *slog.Logger {
	level := slog.LevelInfo
	switch c.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
