package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	HTTPAddr                 string
	DBDSN                    string
	Environment              string
	MigrationsPath           string
	TokenRotationInterval    time.Duration
	VerifyTimeout            time.Duration
	MatchConfidenceThreshold float64
}

func Load() (*Config, error) {
	// Пытаемся загрузить .env файл (игнорируем ошибку, если файла нет)
	if err := godotenv.Load(".env"); err != nil {
		log.Println("⚠️  No .env file found, using environment variables")
	} else {
		log.Println("✅ Loaded configuration from .env file")
	}

	cfg := &Config{
		HTTPAddr:       os.Getenv("HTTP_ADDR"),
		DBDSN:          os.Getenv("DB_DSN"),
		Environment:    os.Getenv("ENV"),
		MigrationsPath: os.Getenv("MIGRATIONS_PATH"),
	}

	// Устанавливаем дефолтные значения
	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = ":8080"
	}
	if cfg.Environment == "" {
		cfg.Environment = "development"
	}
	if cfg.MigrationsPath == "" {
		cfg.MigrationsPath = "migrations"
	}

	var err error
	cfg.TokenRotationInterval, err = durationEnv("TOKEN_ROTATION_INTERVAL", 5*time.Second)
	if err != nil {
		return nil, err
	}
	cfg.VerifyTimeout, err = durationEnv("VERIFY_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}
	cfg.MatchConfidenceThreshold, err = floatEnv("MATCH_CONFIDENCE_THRESHOLD", 0.70)
	if err != nil {
		return nil, err
	}

	// Проверяем обязательные поля
	if cfg.DBDSN == "" {
		return nil, fmt.Errorf("DB_DSN is required but not set")
	}
	if cfg.TokenRotationInterval <= 0 {
		return nil, fmt.Errorf("TOKEN_ROTATION_INTERVAL must be positive")
	}
	if cfg.MatchConfidenceThreshold <= 0 || cfg.MatchConfidenceThreshold > 1 {
		return nil, fmt.Errorf("MATCH_CONFIDENCE_THRESHOLD must be in (0, 1]")
	}

	log.Printf("Config loaded\n")

	return cfg, nil
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return d, nil
}

func floatEnv(key string, def float64) (float64, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return f, nil
}
