package vault

import (
	"context"
	"fmt"
	"time"

	"trade_engine/internal/domain"
	"trade_engine/internal/domain/entity"
	"trade_engine/pkg/contextx"
	"trade_engine/pkg/errcodes"
	"trade_engine/pkg/logx"
)

var logger = contextx.LoggerFromContextOrDefault //nolint:gochecknoglobals

const (
	secretKeyPrefix  = "2fa_secret_"
	invalidKeyPrefix = "2fa_secret_invalid_"
)

type Store interface {
	Get(ctx context.Context, key string, dest any) (bool, error)
	Set(ctx context.Context, key string, value any) error
	Remove(ctx context.Context, key string) error
}

// Vault keeps the encrypted step-up seed of each account.
type Vault struct {
	store      Store
	iterations int
	clock      func() time.Time
}

func New(store Store) *Vault {
	return &Vault{
		store:      store,
		iterations: DefaultIterations,
		clock:      time.Now,
	}
}

func (v *Vault) WithIterations(n int) *Vault {
	if n > 0 {
		v.iterations = n
	}
	return v
}

func (v *Vault) WithClock(clock func() time.Time) *Vault {
	v.clock = clock
	return v
}

// Enroll validates seed, encrypts it under password and stores the envelope.
// Any invalid marker left by a previous expiry is removed.
func (v *Vault) Enroll(ctx context.Context, account string, seed, password []byte) error {
	if len(password) == 0 {
		return domain.NewError(errcodes.PasswordRequired, "password is required")
	}

	key, err := DecodeSeed(seed)
	if err != nil {
		return err
	}
	Zero(key)

	secret, err := Encrypt(seed, password, v.iterations)
	if err != nil {
		return fmt.Errorf("encrypt secret: %w", err)
	}

	if err := v.store.Set(ctx, secretKeyPrefix+account, secret); err != nil {
		return fmt.Errorf("store secret: %w", err)
	}

	if err := v.ClearInvalid(ctx, account); err != nil {
		return err
	}

	logger(ctx).Info("Step-up secret enrolled", logx.FieldAccountID, account)

	return nil
}

func (v *Vault) HasSecret(ctx context.Context, account string) (bool, error) {
	var secret entity.EncryptedSecret
	found, err := v.store.Get(ctx, secretKeyPrefix+account, &secret)
	if err != nil {
		return false, fmt.Errorf("load secret: %w", err)
	}
	return found, nil
}

// Code decrypts the seed and returns the current one-time code. The plaintext
// seed never leaves this call.
func (v *Vault) Code(ctx context.Context, account string, password []byte) (string, error) {
	var secret entity.EncryptedSecret
	found, err := v.store.Get(ctx, secretKeyPrefix+account, &secret)
	if err != nil {
		return "", fmt.Errorf("load secret: %w", err)
	}
	if !found {
		return "", domain.NewError(errcodes.SecretNotFound, "no step-up secret enrolled")
	}

	seed, err := Decrypt(secret, password, v.iterations)
	if err != nil {
		return "", err
	}
	defer Zero(seed)

	return GenerateCode(seed, v.clock())
}

// Clear removes the stored secret of account.
func (v *Vault) Clear(ctx context.Context, account string) error {
	if err := v.store.Remove(ctx, secretKeyPrefix+account); err != nil {
		return fmt.Errorf("remove secret: %w", err)
	}

	logger(ctx).Info("Step-up secret cleared", logx.FieldAccountID, account)

	return nil
}

// MarkInvalid records that the platform rejected the stored secret.
func (v *Vault) MarkInvalid(ctx context.Context, account string) error {
	if err := v.store.Set(ctx, invalidKeyPrefix+account, v.clock().UnixMilli()); err != nil {
		return fmt.Errorf("mark secret invalid: %w", err)
	}
	return nil
}

func (v *Vault) IsMarkedInvalid(ctx context.Context, account string) (bool, error) {
	var at int64
	found, err := v.store.Get(ctx, invalidKeyPrefix+account, &at)
	if err != nil {
		return false, fmt.Errorf("load invalid marker: %w", err)
	}
	return found, nil
}

func (v *Vault) ClearInvalid(ctx context.Context, account string) error {
	if err := v.store.Remove(ctx, invalidKeyPrefix+account); err != nil {
		return fmt.Errorf("clear invalid marker: %w", err)
	}
	return nil
}
