package smp

import "fmt"

// Reason is a pairing failure code. Values up to maxWireReason travel in
// Pairing Failed PDUs, the rest are local.
type Reason uint8

const (
	Success                          Reason = 0x00
	PasskeyEntryFailed               Reason = 0x01
	OOBNotAvailable                  Reason = 0x02
	AuthenticationRequirementsNotMet Reason = 0x03
	ConfirmValueMismatch             Reason = 0x04
	PairingNotSupported              Reason = 0x05
	EncryptionKeySizeTooSmall        Reason = 0x06
	CommandNotSupported              Reason = 0x07
	UnspecifiedReason                Reason = 0x08
	RepeatedAttempts                 Reason = 0x09
	InvalidParameters                Reason = 0x0A
	DHKeyCheckFailed                 Reason = 0x0B

	maxWireReason = DHKeyCheckFailed

	InternalError     Reason = 0x80
	ResponseTimeout   Reason = 0x81
	ConnectionTimeout Reason = 0x82
	EncryptionFailed  Reason = 0x83
)

//Core spec v5.2, Vol 3, Part H, 3.5.5, Table 3.7
var reasonStrings = map[Reason]string{
	Success:                          "success",
	PasskeyEntryFailed:               "passkey entry failed",
	OOBNotAvailable:                  "oob not available",
	AuthenticationRequirementsNotMet: "authentication requirements",
	ConfirmValueMismatch:             "confirm value failed",
	PairingNotSupported:              "pairing not supported",
	EncryptionKeySizeTooSmall:        "encryption key size",
	CommandNotSupported:              "command not supported",
	UnspecifiedReason:                "unspecified reason",
	RepeatedAttempts:                 "repeated attempts",
	InvalidParameters:                "invalid parameters",
	DHKeyCheckFailed:                 "dhkey check failed",
	InternalError:                    "internal error",
	ResponseTimeout:                  "response timeout",
	ConnectionTimeout:                "connection timeout",
	EncryptionFailed:                 "link encryption failed",
}

func (r Reason) String() string {
	if s, ok := reasonStrings[r]; ok {
		return s
	}
	return fmt.Sprintf("reason(0x%02x)", uint8(r))
}

func (r Reason) Error() string {
	if r == Success {
		return r.String()
	}
	return "pairing failed: " + r.String()
}

// wire reports whether r may be sent to the peer in a Pairing Failed PDU.
func (r Reason) wire() bool {
	return r != Success && r <= maxWireReason
}
