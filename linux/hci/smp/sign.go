package smp

import (
	"crypto/aes"
	"crypto/subtle"
	"encoding/binary"

	"github.com/aead/cmac"
	"github.com/pkg/errors"
	"github.com/rigado/blesmp/sliceops"
)

// SignatureLen is the size of a data signature: SignCounter (4) || MAC (8).
const SignatureLen = 12

func aesCMAC(key, msg []byte) ([]byte, error) {
	tmp := sliceops.SwapBuf(key)
	mCipher, err := aes.NewCipher(tmp)
	if err != nil {
		return nil, err
	}

	msgMsb := sliceops.SwapBuf(msg)

	mMac, err := cmac.New(mCipher)
	if err != nil {
		return nil, err
	}

	mMac.Write(msgMsb)

	return sliceops.SwapBuf(mMac.Sum(nil)), nil
}

// SignData signs msg with a CSRK [Vol 3, Part H, 2.4.5]. The returned
// signature is appended to the data by the caller.
func SignData(csrk []byte, counter uint32, msg []byte) ([]byte, error) {
	if len(csrk) != 16 {
		return nil, errors.Errorf("invalid csrk length %d", len(csrk))
	}

	c := make([]byte, 4)
	binary.LittleEndian.PutUint32(c, counter)

	mac, err := aesCMAC(csrk, sliceops.Concat(msg, c))
	if err != nil {
		return nil, errors.Wrap(err, "can't sign data")
	}

	// the MAC is the 64 most significant bits of the CMAC output
	return sliceops.Concat(c, mac[8:]), nil
}

// VerifySignature checks a signature made by SignData and returns its counter.
func VerifySignature(csrk []byte, msg, sig []byte) (uint32, error) {
	if len(sig) != SignatureLen {
		return 0, errors.Errorf("invalid signature length %d", len(sig))
	}

	counter := binary.LittleEndian.Uint32(sig)
	want, err := SignData(csrk, counter, msg)
	if err != nil {
		return 0, err
	}
	if subtle.ConstantTimeCompare(want, sig) != 1 {
		return 0, errors.New("signature mismatch")
	}
	return counter, nil
}
