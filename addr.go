package ble

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// Addr represents a device address.
// String returns the usual colon separated form, Bytes returns the address
// most significant octet first, as printed.
type Addr interface {
	String() string
	Bytes() []byte
}

// AddrType is the LE address type carried in pairing and identity PDUs.
type AddrType uint8

const (
	AddrTypePublic AddrType = 0x00
	AddrTypeRandom AddrType = 0x01
)

func (t AddrType) String() string {
	switch t {
	case AddrTypePublic:
		return "public"
	case AddrTypeRandom:
		return "random"
	default:
		return fmt.Sprintf("reserved(0x%02x)", uint8(t))
	}
}

// NewAddr creates an Addr from string
func NewAddr(s string) Addr {
	return addr(strings.ToLower(s))
}

// ParseAddr validates a 6 octet address in colon or plain hex form.
func ParseAddr(s string) (Addr, error) {
	b, err := hex.DecodeString(strings.Replace(s, ":", "", -1))
	if err != nil {
		return nil, errors.Wrapf(err, "invalid address %q", s)
	}
	if len(b) != 6 {
		return nil, errors.Errorf("invalid address %q: %d octets", s, len(b))
	}
	return AddrFromBytes(b), nil
}

// AddrFromBytes builds an Addr from octets in printed (big endian) order.
func AddrFromBytes(b []byte) Addr {
	parts := make([]string, len(b))
	for i, v := range b {
		parts[i] = fmt.Sprintf("%02x", v)
	}
	return addr(strings.Join(parts, ":"))
}

type addr string

func (a addr) String() string {
	return string(a)
}

func (a addr) Bytes() []byte {
	hexStr := strings.Replace(a.String(), ":", "", -1)

	out, err := hex.DecodeString(hexStr)
	if err != nil {
		GetLogger().Errorf("error decoding address %v: %v", a.String(), err)
	}

	return out
}
