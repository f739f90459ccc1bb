package smp

import (
	"crypto/rand"

	"github.com/panjf2000/ants/v2"
	"github.com/pkg/errors"
)

// Crypto is the AES-128 and random number service. Results are delivered
// through done, which may run on any goroutine, before or after the call
// returns.
type Crypto interface {
	Encrypt(key, plaintext [16]byte, done func([16]byte, error))
	Random(n int, done func([]byte, error))
}

// LocalCrypto runs the primitives on the calling goroutine.
type LocalCrypto struct{}

func (LocalCrypto) Encrypt(key, plaintext [16]byte, done func([16]byte, error)) {
	done(aes128(key, plaintext))
}

func (LocalCrypto) Random(n int, done func([]byte, error)) {
	done(randomBytes(n))
}

func randomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, errors.Wrap(err, "can't read random")
	}
	return b, nil
}

// PoolCrypto runs the primitives on a goroutine pool, the way a controller
// answers LE Encrypt and LE Rand asynchronously.
type PoolCrypto struct {
	pool *ants.Pool
}

// NewPoolCrypto creates a pool of size workers.
func NewPoolCrypto(size int) (*PoolCrypto, error) {
	if size <= 0 {
		size = 4
	}
	pool, err := ants.NewPool(size, ants.WithPreAlloc(true))
	if err != nil {
		return nil, errors.Wrap(err, "can't create crypto pool")
	}
	return &PoolCrypto{pool: pool}, nil
}

func (c *PoolCrypto) Encrypt(key, plaintext [16]byte, done func([16]byte, error)) {
	err := c.pool.Submit(func() {
		done(aes128(key, plaintext))
	})
	if err != nil {
		done([16]byte{}, errors.Wrap(err, "encrypt not scheduled"))
	}
}

func (c *PoolCrypto) Random(n int, done func([]byte, error)) {
	err := c.pool.Submit(func() {
		done(randomBytes(n))
	})
	if err != nil {
		done(nil, errors.Wrap(err, "random not scheduled"))
	}
}

// Release stops the workers. Pending requests still complete.
func (c *PoolCrypto) Release() {
	c.pool.Release()
}
