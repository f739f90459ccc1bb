package smp

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecode(t *testing.T) {
	params := PairingParams{
		IOCap:       IOCapKeyboardDisplay,
		OOBFlag:     OOBDataNotPresent,
		AuthReq:     AuthReqBond | AuthReqMITM,
		MaxKeySize:  16,
		InitKeyDist: KeyDistEnc | KeyDistId,
		RespKeyDist: KeyDistAll,
	}

	cmds := []Command{
		PairingReq{Params: params},
		PairingRsp{Params: params},
		PairingConfirm{Value: [16]byte{1, 2, 3, 15: 0xff}},
		PairingFailed{Reason: ConfirmValueMismatch},
		MasterIdent{EDIV: 0xbeef, Rand: 0x0102030405060708},
		IdentityAddrInfo{AddrType: 1, Addr: [6]byte{0x66, 0x55, 0x44, 0x33, 0x22, 0xc1}},
		SecurityReq{AuthReq: AuthReqBond},
	}

	for _, c := range cmds {
		b := Encode(c)
		require.NotEmpty(t, b)
		assert.Equal(t, c.Code(), b[0])
		assert.Len(t, b, pduLength[c.Code()]+1, pduName(c.Code()))

		got, err := Decode(b)
		require.NoError(t, err)
		assert.Equal(t, c, got)
	}
}

func TestEncodeLayout(t *testing.T) {
	b := Encode(PairingReq{Params: PairingParams{
		IOCap:       IOCapNoInputNoOutput,
		AuthReq:     AuthReqBond,
		MaxKeySize:  16,
		InitKeyDist: KeyDistEnc | KeyDistId,
		RespKeyDist: KeyDistEnc | KeyDistId,
	}})
	if !bytes.Equal(b, []byte{0x01, 0x03, 0x00, 0x01, 0x10, 0x03, 0x03}) {
		t.Fatalf("unexpected pairing request %X", b)
	}

	b = Encode(MasterIdent{EDIV: 0x1234, Rand: 0x1122334455667788})
	exp := []byte{0x07, 0x34, 0x12, 0x88, 0x77, 0x66, 0x55, 0x44, 0x33, 0x22, 0x11}
	if !bytes.Equal(b, exp) {
		t.Fatalf("unexpected master id %X", b)
	}
}

func TestDecodeErrors(t *testing.T) {
	_, err := Decode(nil)
	assert.Equal(t, ErrMalformedPDU, errors.Cause(err))

	_, err = Decode([]byte{pairingConfirm, 1, 2, 3})
	assert.Equal(t, ErrMalformedPDU, errors.Cause(err))

	_, err = Decode([]byte{pairingRequest, 0x03, 0x00})
	assert.Equal(t, ErrMalformedPDU, errors.Cause(err))

	for _, code := range []byte{0x00, pairingPublicKey, pairingDHKeyCheck, pairingKeypress, 0x42} {
		_, err = Decode([]byte{code, 0, 0, 0})
		assert.Equal(t, ErrUnsupportedCommand, errors.Cause(err), "opcode 0x%02x", code)
	}
}

func TestDecodeIgnoresTrailingBytes(t *testing.T) {
	c, err := Decode([]byte{pairingFailed, byte(PasskeyEntryFailed), 0xaa, 0xbb})
	require.NoError(t, err)
	assert.Equal(t, PairingFailed{Reason: PasskeyEntryFailed}, c)
}

func TestIdentityAddress(t *testing.T) {
	c := IdentityAddrInfo{Addr: [6]byte{0x66, 0x55, 0x44, 0x33, 0x22, 0xc1}}
	assert.Equal(t, "c1:22:33:44:55:66", c.Address().String())
}

func TestReasonWire(t *testing.T) {
	assert.False(t, Success.wire())
	assert.True(t, PasskeyEntryFailed.wire())
	assert.True(t, DHKeyCheckFailed.wire())
	assert.False(t, ResponseTimeout.wire())
	assert.False(t, InternalError.wire())

	var err error = ConfirmValueMismatch
	assert.Equal(t, "pairing failed: confirm value failed", err.Error())

	assert.Equal(t, "success", Success.Error())
	assert.Equal(t, "success", fmt.Sprintf("%v", Success))
}
