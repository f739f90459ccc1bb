package smp

import "fmt"

type eventCode int

// The PDU events share their values with the opcodes.
const (
	evtNone eventCode = iota
	evtPairingRequest
	evtPairingResponse
	evtConfirm
	evtRandom
	evtPairingFailed
	evtEncryptionInfo
	evtMasterID
	evtIdentityInfo
	evtIDAddrInfo
	evtSigningInfo
	evtSecurityRequest

	evtKeyReady
	evtEncrypted
	evtLinkConnected
	evtLinkDisconnected
	evtIOCapResponse
	evtSecurityGrant
	evtTKRequest
	evtAuthComplete
	evtEncryptionRequest
	evtBondRequest
	evtDiscardSecurityRequest
	evtReleaseDelay
	evtReleaseDelayTimeout

	numEvents
)

var eventStrings = [numEvents]string{
	evtNone:                   "none",
	evtPairingRequest:         "pairing request",
	evtPairingResponse:        "pairing response",
	evtConfirm:                "confirm",
	evtRandom:                 "random",
	evtPairingFailed:          "pairing failed",
	evtEncryptionInfo:         "encryption info",
	evtMasterID:               "master id",
	evtIdentityInfo:           "identity info",
	evtIDAddrInfo:             "id addr info",
	evtSigningInfo:            "signing info",
	evtSecurityRequest:        "security request",
	evtKeyReady:               "key ready",
	evtEncrypted:              "encrypted",
	evtLinkConnected:          "link connected",
	evtLinkDisconnected:       "link disconnected",
	evtIOCapResponse:          "io capability response",
	evtSecurityGrant:          "security grant",
	evtTKRequest:              "tk request",
	evtAuthComplete:           "auth complete",
	evtEncryptionRequest:      "encryption request",
	evtBondRequest:            "bond request",
	evtDiscardSecurityRequest: "discard security request",
	evtReleaseDelay:           "release delay",
	evtReleaseDelayTimeout:    "release delay timeout",
}

func (c eventCode) String() string {
	if c >= 0 && c < numEvents {
		return eventStrings[c]
	}
	return fmt.Sprintf("event(%d)", int(c))
}

type event interface {
	code() eventCode
}

// evSignal is an event without payload.
type evSignal eventCode

func (e evSignal) code() eventCode { return eventCode(e) }

// evPDU is a received command. cmd is nil when a deferred command is
// replayed from the stored value.
type evPDU struct {
	op  eventCode
	cmd Command
}

func (e evPDU) code() eventCode { return e.op }

func newPDUEvent(c Command) evPDU {
	return evPDU{op: eventCode(c.Code()), cmd: c}
}

type readyKind int

const (
	keyTK readyKind = iota
	keyConfirm
	keyCompare
	keySTK
	keyLTK
	keyCSRK
)

var readyKindNames = map[readyKind]string{
	keyTK:      "tk",
	keyConfirm: "confirm",
	keyCompare: "compare",
	keySTK:     "stk",
	keyLTK:     "ltk",
	keyCSRK:    "csrk",
}

func (k readyKind) String() string {
	return readyKindNames[k]
}

// tkSource is where the TK of the current attempt comes from.
type tkSource int

const (
	tkNone tkSource = iota
	tkInternal
	tkApp
)

// evKeyReady carries the result of a key derivation step.
type evKeyReady struct {
	kind  readyKind
	value [16]byte

	// confirm
	rand [16]byte

	// tk
	passkey uint32
	display bool
	app     bool // from PasskeyReply or OOBDataReply

	// ltk
	div     uint16
	ediv    uint16
	encRand uint64
}

func (evKeyReady) code() eventCode { return evtKeyReady }

type evEncrypted struct{ ok bool }

func (evEncrypted) code() eventCode { return evtEncrypted }

type evDisconnected struct{ reason uint8 }

func (evDisconnected) code() eventCode { return evtLinkDisconnected }

type evIOResponse struct{ params PairingParams }

func (evIOResponse) code() eventCode { return evtIOCapResponse }

type evSecGrant struct{ reason Reason }

func (evSecGrant) code() eventCode { return evtSecurityGrant }

// evAuthComplete fails or ends the attempt. timer is non-zero when it was
// raised by the response timer armed with that sequence number.
type evAuthComplete struct {
	reason Reason
	timer  uint64
}

func (evAuthComplete) code() eventCode { return evtAuthComplete }
