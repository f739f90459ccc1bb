package smp

import "fmt"

// State of the pairing state machine of one link.
type State int32

const (
	StateIdle State = iota
	StateWaitAppResponse
	StateSecurityRequestPending
	StatePairRequestResponse
	StateWaitConfirm
	StateConfirm
	StateRand
	StateEncryptionPending
	StateBondPending
	StateReleaseDelay

	numStates
)

var stateStrings = [numStates]string{
	StateIdle:                   "idle",
	StateWaitAppResponse:        "wait app response",
	StateSecurityRequestPending: "security request pending",
	StatePairRequestResponse:    "pair request/response",
	StateWaitConfirm:            "wait confirm",
	StateConfirm:                "confirm",
	StateRand:                   "rand",
	StateEncryptionPending:      "encryption pending",
	StateBondPending:            "bond pending",
	StateReleaseDelay:           "release delay",
}

func (s State) String() string {
	if s >= 0 && s < numStates {
		return stateStrings[s]
	}
	return fmt.Sprintf("state(%d)", int32(s))
}
