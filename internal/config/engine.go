package config

import "time"

// Engine holds the tunables of the send loop, the confirmer and the reconciler.
type Engine struct {
	RetentionDays     int           `env:"ENGINE_RETENTION_DAYS" envDefault:"7"`
	MaxOwnerDays      int           `env:"ENGINE_MAX_OWNER_DAYS" envDefault:"0"`
	LastOnlineDays    int           `env:"ENGINE_LAST_ONLINE_DAYS" envDefault:"3"`
	FailureThreshold  int           `env:"ENGINE_FAILURE_THRESHOLD" envDefault:"2"`
	PrivacyPermanent  bool          `env:"ENGINE_PRIVACY_PERMANENT" envDefault:"true"`
	PasswordTTL       time.Duration `env:"ENGINE_PASSWORD_TTL" envDefault:"30m"`
	PasswordPrompts   int           `env:"ENGINE_PASSWORD_PROMPTS" envDefault:"3"`
	VerifyAttempts    int           `env:"ENGINE_VERIFY_ATTEMPTS" envDefault:"3"`
	VerifyRetryDelay  time.Duration `env:"ENGINE_VERIFY_RETRY_DELAY" envDefault:"2s"`
	RefetchAttempts   int           `env:"ENGINE_REFETCH_ATTEMPTS" envDefault:"3"`
	SendDelay         time.Duration `env:"ENGINE_SEND_DELAY" envDefault:"1s"`
	StatusCheckDelay  time.Duration `env:"ENGINE_STATUS_CHECK_DELAY" envDefault:"1s"`
	RateLimitWait     time.Duration `env:"ENGINE_RATE_LIMIT_WAIT" envDefault:"2s"`
	MaxOutboundPages  int           `env:"ENGINE_MAX_OUTBOUND_PAGES" envDefault:"50"`
	ReconcileInterval time.Duration `env:"ENGINE_RECONCILE_INTERVAL" envDefault:"2m"`
	DeclineDelay      time.Duration `env:"ENGINE_DECLINE_DELAY" envDefault:"1s"`
	DeclineRetryDelay time.Duration `env:"ENGINE_DECLINE_RETRY_DELAY" envDefault:"2s"`
	NotifySpacing     time.Duration `env:"ENGINE_NOTIFY_SPACING" envDefault:"1500ms"`
	PBKDF2Iterations  int           `env:"ENGINE_PBKDF2_ITERATIONS" envDefault:"250000"`
}
