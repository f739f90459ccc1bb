package smp

import (
	"time"

	"github.com/pkg/errors"
	ble "github.com/rigado/blesmp"
)

// An Option is a configuration function, which configures the Manager.
type Option func(*Manager) error

// OptTransport sets the link layer the manager sends through.
func OptTransport(t Transport) Option {
	return func(m *Manager) error {
		m.transport = t
		return nil
	}
}

// OptHandler sets the receiver of user notifications. Without one, the
// manager grants every request with its local pairing params.
func OptHandler(h Handler) Option {
	return func(m *Manager) error {
		m.handler = h
		return nil
	}
}

// OptCrypto overrides the AES and random number service.
func OptCrypto(c Crypto) Option {
	return func(m *Manager) error {
		if c == nil {
			return errors.New("nil crypto service")
		}
		m.crypto = c
		return nil
	}
}

// OptSecurityDB overrides the security record store.
func OptSecurityDB(db SecurityDB) Option {
	return func(m *Manager) error {
		if db == nil {
			return errors.New("nil security db")
		}
		m.db = db
		return nil
	}
}

// OptLocalParams sets the params used for security requests and automatic
// IO capability responses.
func OptLocalParams(p PairingParams) Option {
	return func(m *Manager) error {
		if p.IOCap >= IOCapReservedStart {
			return errors.Errorf("invalid io capability %d", p.IOCap)
		}
		if p.MaxKeySize < MinEncKeySize || p.MaxKeySize > MaxEncKeySize {
			return errors.Errorf("invalid max key size %d", p.MaxKeySize)
		}
		m.local = p
		return nil
	}
}

// OptResponseTimeout sets how long to wait for the peer's next PDU.
func OptResponseTimeout(d time.Duration) Option {
	return func(m *Manager) error {
		if d <= 0 {
			return errors.Errorf("invalid response timeout %v", d)
		}
		m.responseTimeout = d
		return nil
	}
}

// OptReleaseDelay sets how long a finished attempt blocks a new one.
func OptReleaseDelay(d time.Duration) Option {
	return func(m *Manager) error {
		if d < 0 {
			return errors.Errorf("invalid release delay %v", d)
		}
		m.releaseDelay = d
		return nil
	}
}

// OptMinKeySize sets the smallest acceptable encryption key size.
func OptMinKeySize(n int) Option {
	return func(m *Manager) error {
		if n < MinEncKeySize || n > MaxEncKeySize {
			return errors.Errorf("invalid min key size %d", n)
		}
		m.minKeySize = n
		return nil
	}
}

// OptDeviceKeys sets the encryption root ER and identity root IR.
func OptDeviceKeys(er, ir [16]byte) Option {
	return func(m *Manager) error {
		m.er, m.ir = er, ir
		m.rootsSet = true
		return nil
	}
}

// OptLogger sets the logger; each link logs through a child of it.
func OptLogger(l ble.Logger) Option {
	return func(m *Manager) error {
		m.log = l
		return nil
	}
}
