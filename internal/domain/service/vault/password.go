package vault

import (
	"time"

	"github.com/patrickmn/go-cache"
)

const DefaultPasswordTTL = 30 * time.Minute

// Password is a scoped copy of a cached vault password. Callers must Release
// it as soon as the plaintext is no longer needed.
type Password struct {
	b []byte
}

func (p *Password) Bytes() []byte {
	return p.b
}

// Release zeroizes the handle. It is safe to call more than once.
func (p *Password) Release() {
	if p == nil {
		return
	}
	Zero(p.b)
	p.b = nil
}

// PasswordCache keeps vault passwords in memory only, per account, with a hard
// expiry. Evicted entries are zeroized.
type PasswordCache struct {
	items *cache.Cache
}

func NewPasswordCache(ttl time.Duration) *PasswordCache {
	if ttl <= 0 {
		ttl = DefaultPasswordTTL
	}

	items := cache.New(ttl, min(ttl, time.Minute))
	items.OnEvicted(func(_ string, v any) {
		if b, ok := v.([]byte); ok {
			Zero(b)
		}
	})

	return &PasswordCache{items: items}
}

// Set stores a private copy of password and restarts the expiry clock.
func (c *PasswordCache) Set(account string, password []byte) {
	c.items.Delete(account)

	stored := make([]byte, len(password))
	copy(stored, password)
	c.items.Set(account, stored, cache.DefaultExpiration)
}

// Get returns a fresh handle or false when nothing valid is cached.
func (c *PasswordCache) Get(account string) (*Password, bool) {
	v, ok := c.items.Get(account)
	if !ok {
		return nil, false
	}

	stored, ok := v.([]byte)
	if !ok || len(stored) == 0 {
		return nil, false
	}

	out := make([]byte, len(stored))
	copy(out, stored)

	return &Password{b: out}, true
}

func (c *PasswordCache) Has(account string) bool {
	_, ok := c.items.Get(account)
	return ok
}

// Clear drops and zeroizes the cached password of account.
func (c *PasswordCache) Clear(account string) {
	c.items.Delete(account)
}

// Purge zeroizes every cached password. Called on shutdown.
func (c *PasswordCache) Purge() {
	for account := range c.items.Items() {
		c.items.Delete(account)
	}
	c.items.DeleteExpired()
}
