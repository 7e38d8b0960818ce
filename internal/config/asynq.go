package config

type Asynq struct {
	Enabled           bool   `env:"ASYNQ_ENABLED" envDefault:"false"`
	Concurrency       int    `env:"ASYNQ_CONCURRENCY" envDefault:"1"`
	ReconcileSchedule string `env:"ASYNQ_RECONCILE_SCHEDULE" envDefault:"@every 2m"`
}
