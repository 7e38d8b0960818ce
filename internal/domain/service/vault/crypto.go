package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha512"
	"fmt"

	"golang.org/x/crypto/pbkdf2"

	"trade_engine/internal/domain"
	"trade_engine/internal/domain/entity"
	"trade_engine/pkg/errcodes"
)

const (
	DefaultIterations = 250000
	keyLen            = 32
	saltLen           = 32
	ivLen             = 12
)

// Encrypt seals plaintext with a key derived from password.
func Encrypt(plaintext, password []byte, iterations int) (entity.EncryptedSecret, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return entity.EncryptedSecret{}, fmt.Errorf("rand salt: %w", err)
	}

	iv := make([]byte, ivLen)
	if _, err := rand.Read(iv); err != nil {
		return entity.EncryptedSecret{}, fmt.Errorf("rand iv: %w", err)
	}

	gcm, err := newGCM(password, salt, iterations)
	if err != nil {
		return entity.EncryptedSecret{}, err
	}

	return entity.EncryptedSecret{
		Salt:       salt,
		IV:         iv,
		Ciphertext: gcm.Seal(nil, iv, plaintext, nil),
	}, nil
}

// Decrypt opens secret. A wrong password surfaces as errcodes.InvalidPassword.
func Decrypt(secret entity.EncryptedSecret, password []byte, iterations int) ([]byte, error) {
	if len(secret.Salt) == 0 || len(secret.IV) != ivLen || len(secret.Ciphertext) == 0 {
		return nil, domain.NewError(errcodes.InvalidSecret, "malformed secret envelope")
	}

	gcm, err := newGCM(password, secret.Salt, iterations)
	if err != nil {
		return nil, err
	}

	plaintext, err := gcm.Open(nil, secret.IV, secret.Ciphertext, nil)
	if err != nil {
		return nil, domain.WrapError(err, errcodes.InvalidPassword, "invalid password")
	}

	return plaintext, nil
}

func newGCM(password, salt []byte, iterations int) (cipher.AEAD, error) {
	key := pbkdf2.Key(password, salt, iterations, keyLen, sha512.New)
	defer Zero(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("aes.NewCipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("cipher.NewGCM: %w", err)
	}

	return gcm, nil
}

// Zero overwrites b in place.
func Zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
