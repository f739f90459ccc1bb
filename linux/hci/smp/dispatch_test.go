package smp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatcherComplete(t *testing.T) {
	for a := actProcLinkUp; a <= actProcReleaseDelayTimeout; a++ {
		d, ok := dispatcher[a]
		require.True(t, ok, "action %d has no handler", a)
		assert.NotNil(t, d.handler)
		assert.NotEqual(t, "none", a.String())
	}
	assert.Equal(t, "none", actNone.String())
}

func TestTablesReferenceKnownActions(t *testing.T) {
	for _, table := range []map[State][]row{masterTable, slaveTable} {
		for s, rows := range table {
			for _, r := range rows {
				for _, a := range r.actions {
					if a == actNone {
						continue
					}
					_, ok := dispatcher[a]
					assert.True(t, ok, "%v/%v: action %d", s, r.event, a)
				}
				assert.True(t, r.next >= 0 && r.next < numStates)
			}
		}
	}
}

func TestAllStatesRows(t *testing.T) {
	for _, role := range []Role{RoleMaster, RoleSlave} {
		for s := State(0); s < numStates; s++ {
			for _, ev := range []eventCode{evtPairingFailed, evtAuthComplete, evtLinkDisconnected} {
				e := lookup(role, ev, s)
				assert.Equal(t, sourceAllStates, e.source, "%v %v %v", role, ev, s)
			}
		}
	}

	e := lookup(RoleMaster, evtLinkDisconnected, StateRand)
	assert.Equal(t, StateIdle, e.row.next)
	assert.Equal(t, actPairTerminate, e.row.actions[0])
}

func TestLookup(t *testing.T) {
	e := lookup(RoleMaster, evtLinkConnected, StateIdle)
	assert.Equal(t, sourcePerState, e.source)
	assert.Equal(t, StateWaitAppResponse, e.row.next)

	e = lookup(RoleSlave, evtLinkConnected, StateIdle)
	assert.Equal(t, StateSecurityRequestPending, e.row.next)

	// a master never answers a pairing request
	assert.Equal(t, sourceNone, lookup(RoleMaster, evtPairingRequest, StateIdle).source)

	// nor a slave a security request
	assert.Equal(t, sourceNone, lookup(RoleSlave, evtSecurityRequest, StateIdle).source)

	// duplicates are ignored
	assert.Equal(t, sourceNone, lookup(RoleMaster, evtPairingResponse, StateConfirm).source)

	assert.Equal(t, sourceNone, lookup(Role(2), evtConfirm, StateIdle).source)
	assert.Equal(t, sourceNone, lookup(RoleMaster, numEvents, StateIdle).source)
	assert.Equal(t, sourceNone, lookup(RoleMaster, evtConfirm, numStates).source)
}

func TestEveryStateReachable(t *testing.T) {
	for _, table := range []map[State][]row{masterTable, slaveTable} {
		seen := map[State]bool{StateIdle: true}
		for _, rows := range table {
			for _, r := range rows {
				seen[r.next] = true
			}
		}
		for _, r := range allStatesTable {
			seen[r.next] = true
		}
		for s, rows := range table {
			assert.NotEmpty(t, rows, "%v", s)
			assert.True(t, seen[s], "%v not reachable", s)
		}
	}
}
