package smp

import "time"

const (
	pairingRequest          = 0x01 // Pairing Request LE-U, ACL-U
	pairingResponse         = 0x02 // Pairing Response LE-U, ACL-U
	pairingConfirm          = 0x03 // Pairing Confirm LE-U
	pairingRandom           = 0x04 // Pairing Random LE-U
	pairingFailed           = 0x05 // Pairing Failed LE-U, ACL-U
	encryptionInformation   = 0x06 // Encryption Information LE-U
	masterIdentification    = 0x07 // Master Identification LE-U
	identityInformation     = 0x08 // Identity Information LE-U, ACL-U
	identityAddrInformation = 0x09 // Identity Address Information LE-U, ACL-U
	signingInformation      = 0x0A // Signing Information LE-U, ACL-U
	securityRequest         = 0x0B // Security Request LE-U
	pairingPublicKey        = 0x0C // Pairing Public Key LE-U
	pairingDHKeyCheck       = 0x0D // Pairing DHKey Check LE-U
	pairingKeypress         = 0x0E // Pairing Keypress Notification LE-U
)

// CidSMP is the fixed L2CAP channel of the security manager [Vol 3, Part H].
const CidSMP uint16 = 0x0006

// IOCapability of a device [Vol 3, Part H, 3.5.1, Table 3.4].
type IOCapability uint8

const (
	IOCapDisplayOnly     IOCapability = 0x00
	IOCapDisplayYesNo    IOCapability = 0x01
	IOCapKeyboardOnly    IOCapability = 0x02
	IOCapNoInputNoOutput IOCapability = 0x03
	IOCapKeyboardDisplay IOCapability = 0x04
	IOCapReservedStart   IOCapability = 0x05
)

var ioCapStrings = map[IOCapability]string{
	IOCapDisplayOnly:     "DisplayOnly",
	IOCapDisplayYesNo:    "DisplayYesNo",
	IOCapKeyboardOnly:    "KeyboardOnly",
	IOCapNoInputNoOutput: "NoInputNoOutput",
	IOCapKeyboardDisplay: "KeyboardDisplay",
}

func (c IOCapability) String() string {
	if s, ok := ioCapStrings[c]; ok {
		return s
	}
	return "reserved"
}

// ParseIOCapability is the inverse of IOCapability.String.
func ParseIOCapability(s string) (IOCapability, bool) {
	for k, v := range ioCapStrings {
		if v == s {
			return k, true
		}
	}
	return IOCapReservedStart, false
}

const (
	OOBDataNotPresent = 0x00
	OOBDataPresent    = 0x01
)

// AuthReq is the authentication requirements field [Vol 3, Part H, 3.5.1].
type AuthReq uint8

const (
	AuthReqBondMask AuthReq = 0x03
	AuthReqBond     AuthReq = 0x01
	AuthReqNoBond   AuthReq = 0x00
	AuthReqMITM     AuthReq = 0x04
	AuthReqSC       AuthReq = 0x08
)

func (a AuthReq) Bonding() bool {
	return a&AuthReqBondMask == AuthReqBond
}

func (a AuthReq) MITM() bool {
	return a&AuthReqMITM != 0
}

// Role of the local device on the link.
type Role uint8

const (
	RoleMaster Role = 0x00
	RoleSlave  Role = 0x01
)

func (r Role) String() string {
	if r == RoleMaster {
		return "master"
	}
	return "slave"
}

const (
	MinEncKeySize = 7
	MaxEncKeySize = 16

	DefaultResponseTimeout = 30 * time.Second
	DefaultReleaseDelay    = 5 * time.Second

	// passkeys are six decimal digits
	passkeyMask = 0x000fffff
	maxPasskey  = 999999
)

// hciRemoteUserTerminated is the disconnect reason of a clean peer close.
const hciRemoteUserTerminated = 0x13
