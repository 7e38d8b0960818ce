package server

import (
	"context"
	"fmt"
	"net/http"

	"trade_engine/internal/domain/service/vault"
	"trade_engine/pkg/httpx/reply"
	"trade_engine/pkg/httpx/req"
	"trade_engine/pkg/rest"
)

type secretVault interface {
	Enroll(ctx context.Context, account string, seed, password []byte) error
	Code(ctx context.Context, account string, password []byte) (string, error)
	Clear(ctx context.Context, account string) error
}

type passwordCache interface {
	Set(account string, password []byte)
	Clear(account string)
}

// VaultServer управляет секретом 2FA и паролем хранилища.
type VaultServer struct {
	vault     secretVault
	passwords passwordCache
	accountID string
}

func NewVaultServer(v secretVault, passwords passwordCache, accountID string) VaultServer {
	return VaultServer{
		vault:     v,
		passwords: passwords,
		accountID: accountID,
	}
}

// putV1Password проверяет пароль на сохранённом секрете и кладёт его в кэш.
func (s VaultServer) putV1Password(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()

	var request rest.PasswordRequest

	if err := req.Read(r, &request); err != nil {
		return fmt.Errorf("req.Read: %w", err)
	}

	password := []byte(request.Password)
	defer vault.Zero(password)

	if _, err := s.vault.Code(ctx, s.accountID, password); err != nil {
		return fmt.Errorf("vault.Code: %w", err)
	}

	s.passwords.Set(s.accountID, password)

	reply.OK(w)

	return nil
}

func (s VaultServer) deleteV1Password(w http.ResponseWriter, _ *http.Request) error {
	s.passwords.Clear(s.accountID)

	reply.OK(w)

	return nil
}

func (s VaultServer) postV1Secret(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()

	var request rest.EnrollRequest

	if err := req.Read(r, &request); err != nil {
		return fmt.Errorf("req.Read: %w", err)
	}

	seed, password := []byte(request.Seed), []byte(request.Password)
	defer vault.Zero(seed)
	defer vault.Zero(password)

	if err := s.vault.Enroll(ctx, s.accountID, seed, password); err != nil {
		return fmt.Errorf("vault.Enroll: %w", err)
	}

	s.passwords.Set(s.accountID, password)

	reply.JSON(ctx, w, http.StatusCreated, struct{}{})

	return nil
}

func (s VaultServer) deleteV1Secret(w http.ResponseWriter, r *http.Request) error {
	if err := s.vault.Clear(r.Context(), s.accountID); err != nil {
		return fmt.Errorf("vault.Clear: %w", err)
	}

	s.passwords.Clear(s.accountID)

	reply.OK(w)

	return nil
}
