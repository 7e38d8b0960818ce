package confirmer

import (
	"context"
	"errors"
	"time"

	"trade_engine/internal/domain"
	"trade_engine/internal/domain/entity"
	"trade_engine/internal/domain/service/vault"
	"trade_engine/pkg/contextx"
	"trade_engine/pkg/errcodes"
	"trade_engine/pkg/logx"
	"trade_engine/pkg/metrics"
)

var logger = contextx.LoggerFromContextOrDefault //nolint:gochecknoglobals

const (
	DefaultFailureThreshold = 2
	DefaultVerifyAttempts   = 3
	DefaultVerifyRetryDelay = 2 * time.Second
	DefaultPasswordPrompts  = 3
	defaultRateLimitWait    = 5 * time.Second
)

type Platform interface {
	SubmitTrade(ctx context.Context, offer entity.TradeOffer) (entity.TradeID, error)
	VerifyChallenge(ctx context.Context, userID int64, challengeID, code string) (string, error)
	ContinueChallenge(ctx context.Context, challenge entity.Challenge, verificationToken string) error
}

type Vault interface {
	HasSecret(ctx context.Context, account string) (bool, error)
	Code(ctx context.Context, account string, password []byte) (string, error)
	Clear(ctx context.Context, account string) error
	MarkInvalid(ctx context.Context, account string) error
	ClearInvalid(ctx context.Context, account string) error
}

// Interactor reaches the operator. An empty password means the prompt was
// dismissed.
type Interactor interface {
	PromptPassword(ctx context.Context, title, message string) ([]byte, error)
	Alert(ctx context.Context, title, message string) error
}

// Result of an automated send. UseFallback asks the caller to send without
// automated step-up; Expired is set when the stored secret was just cleared.
type Result struct {
	TradeID     entity.TradeID
	UseFallback bool
	Expired     bool
}

func fallback() Result { return Result{UseFallback: true} }

// Confirmer sends trades and answers step-up challenges with the enrolled
// authenticator secret.
type Confirmer struct {
	platform   Platform
	vault      Vault
	passwords  *vault.PasswordCache
	interactor Interactor
	accountID  string

	failures         *failureCounter
	verifyAttempts   int
	verifyRetryDelay time.Duration
	passwordPrompts  int
}

func New(
	platform Platform,
	v Vault,
	passwords *vault.PasswordCache,
	interactor Interactor,
	accountID string,
) *Confirmer {
	return &Confirmer{
		platform:         platform,
		vault:            v,
		passwords:        passwords,
		interactor:       interactor,
		accountID:        accountID,
		failures:         newFailureCounter(DefaultFailureThreshold),
		verifyAttempts:   DefaultVerifyAttempts,
		verifyRetryDelay: DefaultVerifyRetryDelay,
		passwordPrompts:  DefaultPasswordPrompts,
	}
}

func (c *Confirmer) WithFailureThreshold(n int) *Confirmer {
	if n > 0 {
		c.failures = newFailureCounter(n)
	}
	return c
}

func (c *Confirmer) WithVerifyRetry(attempts int, delay time.Duration) *Confirmer {
	if attempts > 0 {
		c.verifyAttempts = attempts
	}
	c.verifyRetryDelay = delay
	return c
}

func (c *Confirmer) WithPasswordPrompts(n int) *Confirmer {
	if n > 0 {
		c.passwordPrompts = n
	}
	return c
}

// Send submits offer for the template. A returned error is final for this
// opportunity; UseFallback means the automated path could not be used.
func (c *Confirmer) Send(ctx context.Context, templateID string, offer entity.TradeOffer) (Result, error) {
	key := failureKey(templateID, offer.TargetUserID)

	has, err := c.vault.HasSecret(ctx, c.accountID)
	if err != nil || !has {
		return fallback(), nil
	}

	if c.failures.tripped(key) {
		logger(ctx).Info("Challenge failures exceeded, using fallback", logx.FieldTemplateID, templateID,
			logx.FieldTargetUserID, offer.TargetUserID)
		return fallback(), nil
	}

	password, ok := c.passwords.Get(c.accountID)
	if !ok {
		return fallback(), nil
	}
	defer func() { password.Release() }()

	tradeID, err := c.platform.SubmitTrade(ctx, offer)
	if err == nil {
		c.failures.reset(key)
		c.clearInvalid(ctx)
		return Result{TradeID: tradeID}, nil
	}

	challenge, isChallenge := domain.AsChallenge(err)
	if !isChallenge {
		return Result{}, err
	}

	logger(ctx).Info("Handling step-up challenge", logx.FieldTemplateID, templateID,
		logx.FieldTargetUserID, offer.TargetUserID)

	// пароль проверяется только когда челлендж действительно пришёл
	password, ok = c.unlock(ctx, password)
	if !ok {
		return fallback(), nil
	}

	res, err := c.handleChallenge(ctx, key, challenge, password, offer)
	if err != nil {
		return Result{}, err
	}

	return res, nil
}

// unlock checks that the cached password opens the vault. On a wrong password
// the operator is prompted again a bounded number of times.
func (c *Confirmer) unlock(ctx context.Context, password *vault.Password) (*vault.Password, bool) {
	_, err := c.vault.Code(ctx, c.accountID, password.Bytes())
	if err == nil {
		return password, true
	}
	if !domain.HasCode(err, errcodes.InvalidPassword) {
		logger(ctx).Warn("Vault unusable", logx.Error(err))
		return password, false
	}

	password.Release()
	c.passwords.Clear(c.accountID)

	for range c.passwordPrompts {
		input, err := c.interactor.PromptPassword(ctx, "Incorrect Password",
			"The password you entered is incorrect. Please try again.")
		if err != nil || len(input) == 0 {
			return password, false
		}

		_, err = c.vault.Code(ctx, c.accountID, input)
		if err == nil {
			c.passwords.Set(c.accountID, input)
			vault.Zero(input)

			fresh, ok := c.passwords.Get(c.accountID)
			return fresh, ok
		}
		vault.Zero(input)

		if !domain.HasCode(err, errcodes.InvalidPassword) {
			return password, false
		}
	}

	metrics.ChallengeResults.WithLabelValues("invalid_password").Inc()

	return password, false
}

func (c *Confirmer) handleChallenge(
	ctx context.Context,
	key string,
	challenge entity.Challenge,
	password *vault.Password,
	offer entity.TradeOffer,
) (Result, error) {
	if challenge.ID == "" || challenge.HeaderID == "" {
		c.failures.inc(key)
		metrics.ChallengeResults.WithLabelValues("malformed").Inc()
		return fallback(), nil
	}

	for attempt := range c.verifyAttempts {
		if attempt > 0 {
			if err := contextx.Sleep(ctx, c.verifyRetryDelay); err != nil {
				return Result{}, err
			}
		}

		code, err := c.vault.Code(ctx, c.accountID, password.Bytes())
		if err != nil {
			c.passwords.Clear(c.accountID)
			return fallback(), nil
		}

		token, err := c.platform.VerifyChallenge(ctx, offer.SenderUserID, challenge.ID, code)
		switch {
		case err == nil:
		case domain.HasCode(err, errcodes.ChallengeExpired):
			return c.expire(ctx), nil
		default:
			if wait, limited := domain.RetryAfter(err); limited {
				if wait <= 0 {
					wait = defaultRateLimitWait
				}
				if err := contextx.Sleep(ctx, wait); err != nil {
					return Result{}, err
				}
			}
			logger(ctx).Warn("Challenge verification failed", logx.FieldAttempt, attempt+1, logx.Error(err))
			continue
		}

		if err := c.platform.ContinueChallenge(ctx, challenge, token); err != nil {
			logger(ctx).Warn("Challenge continuation failed", logx.FieldAttempt, attempt+1, logx.Error(err))
			continue
		}

		tradeID, err := c.platform.SubmitTrade(ctx, offer)
		if err == nil {
			c.failures.reset(key)
			c.clearInvalid(ctx)
			metrics.ChallengeResults.WithLabelValues("solved").Inc()
			return Result{TradeID: tradeID}, nil
		}

		next, again := domain.AsChallenge(err)
		if !again {
			c.failures.reset(key)
			return Result{}, err
		}
		if next.ID != "" && next.HeaderID != "" {
			challenge = next
		}
	}

	c.failures.inc(key)
	metrics.ChallengeResults.WithLabelValues("failed").Inc()

	return fallback(), nil
}

// expire clears the rejected secret and tells the operator to enrol again.
func (c *Confirmer) expire(ctx context.Context) Result {
	metrics.ChallengeResults.WithLabelValues("expired").Inc()

	has, err := c.vault.HasSecret(ctx, c.accountID)
	if err == nil && has {
		if err := c.vault.Clear(ctx, c.accountID); err != nil {
			logger(ctx).Error("Failed to clear expired secret", logx.Error(err))
		}
		if err := c.vault.MarkInvalid(ctx, c.accountID); err != nil {
			logger(ctx).Error("Failed to mark secret invalid", logx.Error(err))
		}
		c.passwords.Clear(c.accountID)

		if err := c.interactor.Alert(ctx, "2FA Secret Invalid",
			"Your 2FA secret has expired or is invalid. The secret has been cleared. "+
				"Please set a new secret in settings."); err != nil && !errors.Is(err, context.Canceled) {
			logger(ctx).Warn("Failed to alert about expired secret", logx.Error(err))
		}
	}

	return Result{UseFallback: true, Expired: true}
}

func (c *Confirmer) clearInvalid(ctx context.Context) {
	if err := c.vault.ClearInvalid(ctx, c.accountID); err != nil {
		logger(ctx).Warn("Failed to clear invalid marker", logx.Error(err))
	}
}

// ResetFailures forgets the failure tally of one template and counterparty.
func (c *Confirmer) ResetFailures(templateID string, targetUserID int64) {
	c.failures.reset(failureKey(templateID, targetUserID))
}

// ShouldUseFallback reports whether the failure threshold was reached.
func (c *Confirmer) ShouldUseFallback(templateID string, targetUserID int64) bool {
	return c.failures.tripped(failureKey(templateID, targetUserID))
}
