package config

import "time"

// Platform describes how the engine reaches the trading platform.
type Platform struct {
	TradesURL     string        `env:"PLATFORM_TRADES_URL" envDefault:"https://trades.roblox.com"`
	InventoryURL  string        `env:"PLATFORM_INVENTORY_URL" envDefault:"https://inventory.roblox.com"`
	ChallengeURL  string        `env:"PLATFORM_CHALLENGE_URL" envDefault:"https://twostepverification.roblox.com"`
	ApisURL       string        `env:"PLATFORM_APIS_URL" envDefault:"https://apis.roblox.com"`
	ValuationURL  string        `env:"PLATFORM_VALUATION_URL" envDefault:"https://api.rolimons.com"`
	OwnersURL     string        `env:"PLATFORM_OWNERS_URL,notEmpty"`
	Cookie        string        `env:"PLATFORM_COOKIE,notEmpty" json:"-"`
	UserID        int64         `env:"PLATFORM_USER_ID,required"`
	Timeout       time.Duration `env:"PLATFORM_TIMEOUT" envDefault:"30s"`
	RatePerSecond float64       `env:"PLATFORM_RATE_PER_SECOND" envDefault:"2"`
	Burst         int           `env:"PLATFORM_BURST" envDefault:"2"`
	ValuationTTL  time.Duration `env:"PLATFORM_VALUATION_TTL" envDefault:"5m"`
	OwnersTTL     time.Duration `env:"PLATFORM_OWNERS_TTL" envDefault:"5m"`
	OwnersRetries int           `env:"PLATFORM_OWNERS_RETRIES" envDefault:"3"`
	OwnersBackoff time.Duration `env:"PLATFORM_OWNERS_BACKOFF" envDefault:"10s"`
	Retries       int           `env:"PLATFORM_RETRIES" envDefault:"3"`
	RetryBackoff  time.Duration `env:"PLATFORM_RETRY_BACKOFF" envDefault:"2s"`
}
