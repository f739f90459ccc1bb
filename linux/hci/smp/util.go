package smp

import (
	"crypto/aes"
	"encoding/binary"

	"github.com/pkg/errors"
	"github.com/rigado/blesmp/sliceops"
)

// All 128 bit values in this package are LSB first, the byte order of the
// HCI LE Encrypt command and of the PDUs on air.

// aes128 is the security function e. Key and plaintext are LSB first.
func aes128(key, plaintext [16]byte) ([16]byte, error) {
	var out [16]byte
	c, err := aes.NewCipher(sliceops.SwapBuf(key[:]))
	if err != nil {
		return out, errors.Wrap(err, "can't create cipher")
	}
	c.Encrypt(out[:], sliceops.SwapBuf(plaintext[:]))
	copy(out[:], sliceops.SwapBuf(out[:]))
	return out, nil
}

func xor16(a, b [16]byte) [16]byte {
	var out [16]byte
	copy(out[:], sliceops.Xor(a[:], b[:]))
	return out
}

// c1P1 builds p1 = pres || preq || rat' || iat'. preq and pres are the 7
// byte PDUs as sent on air.
func c1P1(preq, pres []byte, iat, rat byte) [16]byte {
	var p1 [16]byte
	copy(p1[:], sliceops.Concat([]byte{iat, rat}, preq[:7], pres[:7]))
	return p1
}

// c1P2 builds p2 = padding || ia || ra. Addresses are LSB first.
func c1P2(ia, ra []byte) [16]byte {
	var p2 [16]byte
	copy(p2[:], sliceops.Concat(ra[:6], ia[:6]))
	return p2
}

// c1 is the legacy confirm value generation function.
func c1(k, r [16]byte, preq, pres []byte, iat, rat byte, ia, ra []byte) ([16]byte, error) {
	t, err := aes128(k, xor16(r, c1P1(preq, pres, iat, rat)))
	if err != nil {
		return t, err
	}
	return aes128(k, xor16(t, c1P2(ia, ra)))
}

// s1Input is r1' || r2', the lower halves of srand and mrand.
func s1Input(mrand, srand [16]byte) [16]byte {
	var r [16]byte
	copy(r[:8], mrand[:8])
	copy(r[8:], srand[:8])
	return r
}

// s1 is the STK generation function.
func s1(k, mrand, srand [16]byte) ([16]byte, error) {
	return aes128(k, s1Input(mrand, srand))
}

// d1Input is padding || r || d.
func d1Input(d, r uint16) [16]byte {
	var in [16]byte
	binary.LittleEndian.PutUint16(in[0:], d)
	binary.LittleEndian.PutUint16(in[2:], r)
	return in
}

func d1(k [16]byte, d, r uint16) ([16]byte, error) {
	return aes128(k, d1Input(d, r))
}

func dmInput(r uint64) [16]byte {
	var in [16]byte
	binary.LittleEndian.PutUint64(in[:], r)
	return in
}

// dm is the DIV mask generation function, dm(k, r) mod 2^16.
func dm(k [16]byte, r uint64) (uint16, error) {
	out, err := aes128(k, dmInput(r))
	if err != nil {
		return 0, err
	}
	return dmOutput(out), nil
}

func dmOutput(b [16]byte) uint16 {
	return binary.LittleEndian.Uint16(b[:2])
}

// maskKey zeroes the octets above the negotiated key size.
func maskKey(k [16]byte, size int) [16]byte {
	if size < 0 {
		size = 0
	}
	for i := size; i < len(k); i++ {
		k[i] = 0
	}
	return k
}

// passkeyFromRandom folds 4 random octets into 0..999999.
func passkeyFromRandom(b []byte) uint32 {
	v := binary.LittleEndian.Uint32(b) & passkeyMask
	for v > maxPasskey {
		v >>= 1
	}
	return v
}

// legacyPairingTK places the passkey into the low octets of the TK.
func legacyPairingTK(key uint32) [16]byte {
	var tk [16]byte
	binary.LittleEndian.PutUint32(tk[:], key)
	return tk
}

// leAddr returns the 6 address octets LSB first.
func leAddr(b []byte) []byte {
	return sliceops.SwapBuf(b)
}

func isZero(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}
