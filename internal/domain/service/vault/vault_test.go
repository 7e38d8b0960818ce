package vault_test

import (
	"context"
	"testing"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/require"

	"trade_engine/internal/domain"
	"trade_engine/internal/domain/service/vault"
	"trade_engine/internal/infrastructure/storage"
	"trade_engine/pkg/errcodes"
)

// RFC 6238 reference seed "12345678901234567890" in base32.
const rfcSeed = "GEZDGNBVGY3TQOJQGEZDGNBVGY3TQOJQ"

const testIterations = 1000

func TestGenerateCode(t *testing.T) {
	rq := require.New(t)

	testCases := []struct {
		name     string
		seed     string
		unix     int64
		expected string
	}{
		{name: "rfc 59", seed: rfcSeed, unix: 59, expected: "287082"},
		{name: "rfc 1111111109", seed: rfcSeed, unix: 1111111109, expected: "081804"},
		{name: "rfc 1234567890", seed: rfcSeed, unix: 1234567890, expected: "005924"},
		{name: "lowercase with spaces", seed: "gezd gnbv gy3t qojq gezd gnbv gy3t qojq", unix: 59, expected: "287082"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(*testing.T) {
			code, err := vault.GenerateCode([]byte(tc.seed), time.Unix(tc.unix, 0))
			rq.NoError(err)
			rq.Len(code, vault.CodeDigits)
			rq.Equal(tc.expected, code)
		})
	}
}

func TestGenerateCodeWindows(t *testing.T) {
	rq := require.New(t)

	at := time.Unix(1_700_000_010, 0)

	a, err := vault.GenerateCode([]byte(rfcSeed), at)
	rq.NoError(err)
	b, err := vault.GenerateCode([]byte(rfcSeed), at.Add(10*time.Second))
	rq.NoError(err)
	c, err := vault.GenerateCode([]byte(rfcSeed), at.Add(vault.CodeStep))
	rq.NoError(err)

	rq.Equal(a, b)
	rq.NotEqual(a, c)
}

func TestGenerateCodeAcceptedByAuthenticator(t *testing.T) {
	rq := require.New(t)

	at := time.Unix(1_700_000_010, 0)
	code, err := vault.GenerateCode([]byte("gezd gnbv gy3t qojq gezd gnbv gy3t qojq"), at)
	rq.NoError(err)

	ok, err := totp.ValidateCustom(code, rfcSeed, at, totp.ValidateOpts{
		Period:    30,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	rq.NoError(err)
	rq.True(ok)
}

func TestGenerateCodeInvalidSeed(t *testing.T) {
	rq := require.New(t)

	_, err := vault.GenerateCode([]byte("not base32!"), time.Now())
	rq.True(domain.HasCode(err, errcodes.InvalidSecret))

	_, err = vault.GenerateCode(nil, time.Now())
	rq.True(domain.HasCode(err, errcodes.InvalidSecret))
}

func TestEncryptDecrypt(t *testing.T) {
	rq := require.New(t)

	secret, err := vault.Encrypt([]byte(rfcSeed), []byte("hunter2"), testIterations)
	rq.NoError(err)
	rq.Len(secret.Salt, 32)
	rq.Len(secret.IV, 12)
	rq.NotContains(string(secret.Ciphertext), rfcSeed)

	plain, err := vault.Decrypt(secret, []byte("hunter2"), testIterations)
	rq.NoError(err)
	rq.Equal(rfcSeed, string(plain))

	_, err = vault.Decrypt(secret, []byte("wrong"), testIterations)
	rq.True(domain.HasCode(err, errcodes.InvalidPassword))

	secret.IV = secret.IV[:4]
	_, err = vault.Decrypt(secret, []byte("hunter2"), testIterations)
	rq.True(domain.HasCode(err, errcodes.InvalidSecret))
}

func TestVault(t *testing.T) {
	rq := require.New(t)
	ctx := context.Background()

	store := storage.New(ctx, storage.NewMemory())
	v := vault.New(store).
		WithIterations(testIterations).
		WithClock(func() time.Time { return time.Unix(59, 0) })

	_, err := v.Code(ctx, "1001", []byte("pw"))
	rq.True(domain.HasCode(err, errcodes.SecretNotFound))

	rq.True(domain.HasCode(v.Enroll(ctx, "1001", []byte(rfcSeed), nil), errcodes.PasswordRequired))
	rq.True(domain.HasCode(v.Enroll(ctx, "1001", []byte("???"), []byte("pw")), errcodes.InvalidSecret))

	rq.NoError(v.MarkInvalid(ctx, "1001"))
	rq.NoError(v.Enroll(ctx, "1001", []byte(rfcSeed), []byte("pw")))

	invalid, err := v.IsMarkedInvalid(ctx, "1001")
	rq.NoError(err)
	rq.False(invalid)

	has, err := v.HasSecret(ctx, "1001")
	rq.NoError(err)
	rq.True(has)

	code, err := v.Code(ctx, "1001", []byte("pw"))
	rq.NoError(err)
	rq.Equal("287082", code)

	_, err = v.Code(ctx, "1001", []byte("nope"))
	rq.True(domain.HasCode(err, errcodes.InvalidPassword))

	rq.NoError(v.Clear(ctx, "1001"))
	has, err = v.HasSecret(ctx, "1001")
	rq.NoError(err)
	rq.False(has)
}

func TestPasswordCache(t *testing.T) {
	rq := require.New(t)

	c := vault.NewPasswordCache(time.Hour)

	input := []byte("secret")
	c.Set("1001", input)
	input[0] = 'X'

	p, ok := c.Get("1001")
	rq.True(ok)
	rq.Equal("secret", string(p.Bytes()))

	raw := p.Bytes()
	p.Release()
	rq.Nil(p.Bytes())
	rq.Equal(make([]byte, len("secret")), raw)

	again, ok := c.Get("1001")
	rq.True(ok)
	rq.Equal("secret", string(again.Bytes()))
	again.Release()

	c.Clear("1001")
	_, ok = c.Get("1001")
	rq.False(ok)

	c.Set("a", []byte("1"))
	c.Set("b", []byte("2"))
	c.Purge()
	rq.False(c.Has("a"))
	rq.False(c.Has("b"))
}

func TestPasswordCacheExpiry(t *testing.T) {
	rq := require.New(t)

	c := vault.NewPasswordCache(20 * time.Millisecond)
	c.Set("1001", []byte("pw"))

	rq.Eventually(func() bool { return !c.Has("1001") }, time.Second, 5*time.Millisecond)
}
