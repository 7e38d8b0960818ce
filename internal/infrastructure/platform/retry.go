package platform

import (
	"context"

	"github.com/cenkalti/backoff/v4"

	"trade_engine/pkg/logx"
)

// retryTransient повторяет идемпотентный вызов, пока ошибка временная.
// Остальные ошибки (челлендж, 429, приватность) возвращаются сразу.
func (c *Client) retryTransient(ctx context.Context, op string, fn func() error) error {
	attempts := max(c.cfg.Retries, 1)
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(c.retryBackoff), uint64(attempts-1)), //nolint:gosec
		ctx,
	)

	attempt := 0

	return backoff.Retry(func() error {
		attempt++

		err := fn()
		switch {
		case err == nil:
			return nil
		case ctx.Err() != nil:
			return backoff.Permanent(ctx.Err())
		case !IsTransient(err):
			return backoff.Permanent(err)
		}

		logger(ctx).Warn("Transient platform error", "op", op, logx.FieldAttempt, attempt, logx.Error(err))

		return err
	}, policy)
}
