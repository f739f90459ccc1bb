package smp

import (
	"bytes"
	"encoding/binary"

	"github.com/pkg/errors"
	ble "github.com/rigado/blesmp"
)

// Transport is the link layer below the security manager.
type Transport interface {
	// SendPDU sends an SMP PDU, opcode first, on the SMP channel of peer.
	SendPDU(peer ble.Addr, pdu []byte) error

	// StartEncryption asks the controller to encrypt the link (master only).
	StartEncryption(peer ble.Addr, key []byte, ediv uint16, rand uint64) error

	// ReplyLongTermKey answers an LTK request (slave only). A nil key is a
	// negative reply.
	ReplyLongTermKey(peer ble.Addr, key []byte) error
}

// Frame adds the basic L2CAP header for the SMP channel.
func Frame(pdu []byte) ([]byte, error) {
	buf := bytes.NewBuffer(make([]byte, 0, 4+len(pdu)))
	if err := binary.Write(buf, binary.LittleEndian, uint16(len(pdu))); err != nil {
		return nil, err
	}
	if err := binary.Write(buf, binary.LittleEndian, CidSMP); err != nil {
		return nil, err
	}
	if err := binary.Write(buf, binary.LittleEndian, pdu); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Unframe strips the basic L2CAP header and checks the channel and length.
func Unframe(b []byte) ([]byte, error) {
	if len(b) < 4 {
		return nil, errors.Wrapf(ErrMalformedPDU, "l2cap frame len %d", len(b))
	}
	n := int(binary.LittleEndian.Uint16(b))
	cid := binary.LittleEndian.Uint16(b[2:])
	if cid != CidSMP {
		return nil, errors.Errorf("unexpected cid 0x%04x", cid)
	}
	if len(b)-4 != n {
		return nil, errors.Wrapf(ErrMalformedPDU, "l2cap length %d, payload %d", n, len(b)-4)
	}
	return b[4:], nil
}
