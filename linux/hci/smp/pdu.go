package smp

import (
	"encoding/binary"
	"fmt"

	"github.com/pkg/errors"
	ble "github.com/rigado/blesmp"
	"github.com/rigado/blesmp/sliceops"
)

var (
	ErrMalformedPDU       = errors.New("malformed smp pdu")
	ErrUnsupportedCommand = errors.New("unsupported smp command")
)

// PairingParams is the payload of a Pairing Request or Pairing Response.
type PairingParams struct {
	IOCap       IOCapability
	OOBFlag     uint8
	AuthReq     AuthReq
	MaxKeySize  uint8
	InitKeyDist KeyDist
	RespKeyDist KeyDist
}

func (p PairingParams) String() string {
	return fmt.Sprintf("io %v, oob %d, auth 0x%02x, maxKey %d, initKeys %v, respKeys %v",
		p.IOCap, p.OOBFlag, uint8(p.AuthReq), p.MaxKeySize, p.InitKeyDist, p.RespKeyDist)
}

// bytes returns the on-air form including the opcode, as used by c1.
func (p PairingParams) bytes(code byte) []byte {
	return []byte{code, byte(p.IOCap), p.OOBFlag, byte(p.AuthReq), p.MaxKeySize, byte(p.InitKeyDist), byte(p.RespKeyDist)}
}

func parsePairingParams(b []byte) PairingParams {
	return PairingParams{
		IOCap:       IOCapability(b[0]),
		OOBFlag:     b[1],
		AuthReq:     AuthReq(b[2]),
		MaxKeySize:  b[3],
		InitKeyDist: KeyDist(b[4]),
		RespKeyDist: KeyDist(b[5]),
	}
}

// Command is a decoded SMP PDU.
type Command interface {
	Code() byte
}

type PairingReq struct{ Params PairingParams }
type PairingRsp struct{ Params PairingParams }
type PairingConfirm struct{ Value [16]byte }
type PairingRandom struct{ Value [16]byte }
type PairingFailed struct{ Reason Reason }
type EncryptionInfo struct{ LTK [16]byte }

type MasterIdent struct {
	EDIV uint16
	Rand uint64
}

type IdentityInfo struct{ IRK [16]byte }

// IdentityAddrInfo carries the peer identity address. Addr is stored in
// on-air (little-endian) order.
type IdentityAddrInfo struct {
	AddrType ble.AddrType
	Addr     [6]byte
}

// Address returns the identity address in display order.
func (c IdentityAddrInfo) Address() ble.Addr {
	return ble.AddrFromBytes(sliceops.SwapBuf(c.Addr[:]))
}

type SigningInfo struct{ CSRK [16]byte }
type SecurityReq struct{ AuthReq AuthReq }

func (PairingReq) Code() byte       { return pairingRequest }
func (PairingRsp) Code() byte       { return pairingResponse }
func (PairingConfirm) Code() byte   { return pairingConfirm }
func (PairingRandom) Code() byte    { return pairingRandom }
func (PairingFailed) Code() byte    { return pairingFailed }
func (EncryptionInfo) Code() byte   { return encryptionInformation }
func (MasterIdent) Code() byte      { return masterIdentification }
func (IdentityInfo) Code() byte     { return identityInformation }
func (IdentityAddrInfo) Code() byte { return identityAddrInformation }
func (SigningInfo) Code() byte      { return signingInformation }
func (SecurityReq) Code() byte      { return securityRequest }

// payload sizes, opcode excluded
// pairingParamsLen is the size of an encoded pairing request or response.
const pairingParamsLen = 7

var pduLength = map[byte]int{
	pairingRequest:          6,
	pairingResponse:         6,
	pairingConfirm:          16,
	pairingRandom:           16,
	pairingFailed:           1,
	encryptionInformation:   16,
	masterIdentification:    10,
	identityInformation:     16,
	identityAddrInformation: 7,
	signingInformation:      16,
	securityRequest:         1,
}

var pduNames = map[byte]string{
	pairingRequest:          "pairing request",
	pairingResponse:         "pairing response",
	pairingConfirm:          "pairing confirm",
	pairingRandom:           "pairing random",
	pairingFailed:           "pairing failed",
	encryptionInformation:   "encryption info",
	masterIdentification:    "master id",
	identityInformation:     "id info",
	identityAddrInformation: "id addr info",
	signingInformation:      "signing info",
	securityRequest:         "security req",
	pairingPublicKey:        "pairing pub key",
	pairingDHKeyCheck:       "pairing dhkey check",
	pairingKeypress:         "pairing keypress",
}

func pduName(code byte) string {
	if s, ok := pduNames[code]; ok {
		return s
	}
	return fmt.Sprintf("opcode 0x%02x", code)
}

// Encode returns the on-air bytes of c, opcode first.
func Encode(c Command) []byte {
	switch v := c.(type) {
	case PairingReq:
		return v.Params.bytes(pairingRequest)
	case PairingRsp:
		return v.Params.bytes(pairingResponse)
	case PairingConfirm:
		return append([]byte{pairingConfirm}, v.Value[:]...)
	case PairingRandom:
		return append([]byte{pairingRandom}, v.Value[:]...)
	case PairingFailed:
		return []byte{pairingFailed, byte(v.Reason)}
	case EncryptionInfo:
		return append([]byte{encryptionInformation}, v.LTK[:]...)
	case MasterIdent:
		out := make([]byte, 11)
		out[0] = masterIdentification
		binary.LittleEndian.PutUint16(out[1:], v.EDIV)
		binary.LittleEndian.PutUint64(out[3:], v.Rand)
		return out
	case IdentityInfo:
		return append([]byte{identityInformation}, v.IRK[:]...)
	case IdentityAddrInfo:
		return append([]byte{identityAddrInformation, byte(v.AddrType)}, v.Addr[:]...)
	case SigningInfo:
		return append([]byte{signingInformation}, v.CSRK[:]...)
	case SecurityReq:
		return []byte{securityRequest, byte(v.AuthReq)}
	}
	return nil
}

// Decode parses an SMP PDU. Trailing bytes beyond the fixed payload are ignored.
func Decode(b []byte) (Command, error) {
	if len(b) == 0 {
		return nil, errors.Wrap(ErrMalformedPDU, "empty pdu")
	}

	code, data := b[0], b[1:]
	n, ok := pduLength[code]
	if !ok {
		return nil, errors.Wrapf(ErrUnsupportedCommand, "%v", pduName(code))
	}
	if len(data) < n {
		return nil, errors.Wrapf(ErrMalformedPDU, "%v: payload len %d, want %d", pduName(code), len(data), n)
	}

	switch code {
	case pairingRequest:
		return PairingReq{parsePairingParams(data)}, nil
	case pairingResponse:
		return PairingRsp{parsePairingParams(data)}, nil
	case pairingConfirm:
		c := PairingConfirm{}
		copy(c.Value[:], data)
		return c, nil
	case pairingRandom:
		c := PairingRandom{}
		copy(c.Value[:], data)
		return c, nil
	case pairingFailed:
		return PairingFailed{Reason(data[0])}, nil
	case encryptionInformation:
		c := EncryptionInfo{}
		copy(c.LTK[:], data)
		return c, nil
	case masterIdentification:
		return MasterIdent{
			EDIV: binary.LittleEndian.Uint16(data),
			Rand: binary.LittleEndian.Uint64(data[2:]),
		}, nil
	case identityInformation:
		c := IdentityInfo{}
		copy(c.IRK[:], data)
		return c, nil
	case identityAddrInformation:
		c := IdentityAddrInfo{AddrType: ble.AddrType(data[0])}
		copy(c.Addr[:], data[1:])
		return c, nil
	case signingInformation:
		c := SigningInfo{}
		copy(c.CSRK[:], data)
		return c, nil
	default:
		return SecurityReq{AuthReq(data[0])}, nil
	}
}
