package smp

// Model is the association model used for the TK.
type Model int

const (
	ModelEncryptionOnly  Model = iota // Just Works, TK = 0
	ModelPasskey                      // local side enters the passkey
	ModelKeyNotification              // local side displays the passkey
	ModelOOB
)

var modelStrings = map[Model]string{
	ModelEncryptionOnly:  "just works",
	ModelPasskey:         "passkey entry",
	ModelKeyNotification: "passkey display",
	ModelOOB:             "out of band",
}

func (m Model) String() string {
	return modelStrings[m]
}

// SecurityLevel reached by a link.
type SecurityLevel int

const (
	SecurityNone SecurityLevel = iota
	SecurityUnauthenticated
	SecurityAuthenticated
)

func (l SecurityLevel) String() string {
	switch l {
	case SecurityUnauthenticated:
		return "unauthenticated"
	case SecurityAuthenticated:
		return "authenticated"
	default:
		return "none"
	}
}

const (
	jw = ModelEncryptionOnly
	pk = ModelPasskey
	kn = ModelKeyNotification
)

// associationTable[role][initiator io][responder io], with the io index in
// IOCapability order. The entry is the model from the local side's view:
// Passkey means this device inputs, KeyNotification means it displays.
var associationTable = [2][5][5]Model{
	RoleMaster: {
		IOCapDisplayOnly:     {jw, jw, kn, jw, kn},
		IOCapDisplayYesNo:    {jw, jw, kn, jw, kn},
		IOCapKeyboardOnly:    {pk, pk, pk, jw, pk},
		IOCapNoInputNoOutput: {jw, jw, jw, jw, jw},
		IOCapKeyboardDisplay: {pk, pk, kn, jw, kn},
	},
	RoleSlave: {
		IOCapDisplayOnly:     {jw, jw, pk, jw, pk},
		IOCapDisplayYesNo:    {jw, jw, pk, jw, pk},
		IOCapKeyboardOnly:    {kn, kn, pk, jw, kn},
		IOCapNoInputNoOutput: {jw, jw, jw, jw, jw},
		IOCapKeyboardDisplay: {kn, kn, pk, jw, pk},
	},
}

// SelectorInput is everything SelectModel looks at.
type SelectorInput struct {
	Role      Role
	Initiator PairingParams
	Responder PairingParams
}

func (in SelectorInput) local() PairingParams {
	if in.Role == RoleMaster {
		return in.Initiator
	}
	return in.Responder
}

// SelectModel picks the association model and the security level it yields.
// It has no side effects; reason is Success unless pairing must fail.
func SelectModel(in SelectorInput) (Model, SecurityLevel, Reason) {
	ii, ri := in.Initiator.IOCap, in.Responder.IOCap
	if ii >= IOCapReservedStart || ri >= IOCapReservedStart || in.Role > RoleSlave {
		return ModelEncryptionOnly, SecurityNone, InvalidParameters
	}

	if in.Initiator.OOBFlag == OOBDataPresent && in.Responder.OOBFlag == OOBDataPresent {
		return ModelOOB, SecurityAuthenticated, Success
	}

	if !in.Initiator.AuthReq.MITM() && !in.Responder.AuthReq.MITM() {
		return ModelEncryptionOnly, SecurityUnauthenticated, Success
	}

	m := associationTable[in.Role][ii][ri]
	if m == ModelEncryptionOnly {
		if in.local().AuthReq.MITM() {
			return m, SecurityNone, AuthenticationRequirementsNotMet
		}
		return m, SecurityUnauthenticated, Success
	}
	return m, SecurityAuthenticated, Success
}
