package config

import (
	"fmt"
	"time"
)

const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
	BackendRedis    = "redis"
)

type Storage struct {
	Backend   string        `env:"STORAGE_BACKEND" envDefault:"sqlite"`
	AccountID string        `env:"STORAGE_ACCOUNT_ID,notEmpty"`
	Debounce  time.Duration `env:"STORAGE_DEBOUNCE" envDefault:"100ms"`
}

func (s Storage) validate() error {
	switch s.Backend {
	case BackendMemory, BackendPostgres, BackendSQLite, BackendRedis:
		return nil
	default:
		return fmt.Errorf("unknown STORAGE_BACKEND %q", s.Backend)
	}
}
