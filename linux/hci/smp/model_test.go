package smp

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func params(io IOCapability, auth AuthReq) PairingParams {
	return PairingParams{IOCap: io, AuthReq: auth, MaxKeySize: 16}
}

func TestSelectModel(t *testing.T) {
	mitm := AuthReqBond | AuthReqMITM

	cases := []struct {
		name  string
		in    SelectorInput
		model Model
		level SecurityLevel
		rsn   Reason
	}{
		{
			name:  "no mitm is just works",
			in:    SelectorInput{RoleMaster, params(IOCapKeyboardDisplay, AuthReqBond), params(IOCapKeyboardDisplay, AuthReqBond)},
			model: ModelEncryptionOnly,
			level: SecurityUnauthenticated,
		},
		{
			name:  "master keyboard, slave display",
			in:    SelectorInput{RoleMaster, params(IOCapKeyboardOnly, mitm), params(IOCapDisplayOnly, mitm)},
			model: ModelPasskey,
			level: SecurityAuthenticated,
		},
		{
			name:  "slave display, master keyboard",
			in:    SelectorInput{RoleSlave, params(IOCapKeyboardOnly, mitm), params(IOCapDisplayOnly, mitm)},
			model: ModelKeyNotification,
			level: SecurityAuthenticated,
		},
		{
			name:  "keyboard display both ways, master displays",
			in:    SelectorInput{RoleMaster, params(IOCapKeyboardDisplay, mitm), params(IOCapKeyboardDisplay, mitm)},
			model: ModelKeyNotification,
			level: SecurityAuthenticated,
		},
		{
			name:  "keyboard display both ways, slave enters",
			in:    SelectorInput{RoleSlave, params(IOCapKeyboardDisplay, mitm), params(IOCapKeyboardDisplay, mitm)},
			model: ModelPasskey,
			level: SecurityAuthenticated,
		},
		{
			name:  "keyboard only both ways",
			in:    SelectorInput{RoleSlave, params(IOCapKeyboardOnly, mitm), params(IOCapKeyboardOnly, mitm)},
			model: ModelPasskey,
			level: SecurityAuthenticated,
		},
		{
			name:  "peer wants mitm, io can't",
			in:    SelectorInput{RoleSlave, params(IOCapNoInputNoOutput, mitm), params(IOCapDisplayOnly, AuthReqBond)},
			model: ModelEncryptionOnly,
			level: SecurityUnauthenticated,
		},
		{
			name:  "we want mitm, io can't",
			in:    SelectorInput{RoleMaster, params(IOCapNoInputNoOutput, mitm), params(IOCapDisplayOnly, AuthReqBond)},
			model: ModelEncryptionOnly,
			level: SecurityNone,
			rsn:   AuthenticationRequirementsNotMet,
		},
		{
			name:  "reserved io",
			in:    SelectorInput{RoleMaster, params(IOCapReservedStart, mitm), params(IOCapDisplayOnly, mitm)},
			model: ModelEncryptionOnly,
			level: SecurityNone,
			rsn:   InvalidParameters,
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			m, l, r := SelectModel(c.in)
			assert.Equal(t, c.model, m)
			assert.Equal(t, c.level, l)
			assert.Equal(t, c.rsn, r)
		})
	}
}

func TestSelectModelOOB(t *testing.T) {
	i := params(IOCapNoInputNoOutput, AuthReqBond)
	r := params(IOCapNoInputNoOutput, AuthReqBond)
	i.OOBFlag, r.OOBFlag = OOBDataPresent, OOBDataPresent

	m, l, rsn := SelectModel(SelectorInput{RoleMaster, i, r})
	assert.Equal(t, ModelOOB, m)
	assert.Equal(t, SecurityAuthenticated, l)
	assert.Equal(t, Success, rsn)

	// both sides must have it
	r.OOBFlag = OOBDataNotPresent
	m, _, _ = SelectModel(SelectorInput{RoleMaster, i, r})
	assert.Equal(t, ModelEncryptionOnly, m)
}

// The two ends of a link always agree on who enters and who displays.
func TestSelectModelAgreement(t *testing.T) {
	mitm := AuthReqBond | AuthReqMITM
	for ii := IOCapDisplayOnly; ii < IOCapReservedStart; ii++ {
		for ri := IOCapDisplayOnly; ri < IOCapReservedStart; ri++ {
			in := SelectorInput{Initiator: params(ii, mitm), Responder: params(ri, mitm)}
			in.Role = RoleMaster
			mm, ml, _ := SelectModel(in)
			in.Role = RoleSlave
			sm, sl, _ := SelectModel(in)

			assert.Equal(t, ml, sl, "%v/%v", ii, ri)
			switch mm {
			case ModelKeyNotification:
				assert.Equal(t, ModelPasskey, sm, "%v/%v", ii, ri)
			case ModelEncryptionOnly:
				assert.Equal(t, ModelEncryptionOnly, sm, "%v/%v", ii, ri)
			case ModelPasskey:
				if ii == IOCapKeyboardOnly && ri == IOCapKeyboardOnly {
					assert.Equal(t, ModelPasskey, sm)
				} else {
					assert.Equal(t, ModelKeyNotification, sm, "%v/%v", ii, ri)
				}
			}
		}
	}
}
