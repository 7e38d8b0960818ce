package config

import (
	"fmt"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	Engine   Engine
	Storage  Storage
	Postgres Postgres
	Redis    Redis
	SQLite   SQLite
	Platform Platform
	Bot      Bot
	Servers  Servers
	Asynq    Asynq
}

func Load() (Config, error) {
	_ = godotenv.Load()

	var config Config

	if err := env.Parse(&config); err != nil {
		return Config{}, fmt.Errorf("env.Parse: %w", err)
	}

	if err := config.Storage.validate(); err != nil {
		return Config{}, err
	}

	return config, nil
}
