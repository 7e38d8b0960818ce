package config

type SQLite struct {
	Path string `env:"SQLITE_PATH" envDefault:"trade_engine.db"`
}
