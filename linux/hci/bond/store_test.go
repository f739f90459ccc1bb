package bond

import (
	"testing"

	"github.com/pkg/errors"
	ble "github.com/rigado/blesmp"
	"github.com/rigado/blesmp/linux/hci/smp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	peerA = ble.NewAddr("c0:00:00:00:00:0a")
	peerB = ble.NewAddr("c0:00:00:00:00:0b")
)

// testSecurityDB runs the behaviour every store shares.
func testSecurityDB(t *testing.T, db smp.SecurityDB) {
	_, err := db.Find(peerA)
	assert.Equal(t, smp.ErrRecordNotFound, errors.Cause(err))

	da, err := db.DIV(peerA)
	require.NoError(t, err)
	assert.NotZero(t, da)

	again, err := db.DIV(peerA)
	require.NoError(t, err)
	assert.Equal(t, da, again)

	dbB, err := db.DIV(peerB)
	require.NoError(t, err)
	assert.NotEqual(t, da, dbB)

	ltk := []byte{0x10, 0x11, 0x12, 0x13, 0x14, 0x15, 0x16, 0x17, 0x18, 0x19, 0, 0, 0, 0, 0, 0}
	require.NoError(t, db.SaveKey(peerA, smp.Key{
		Kind:  smp.KeyLocalEncryption,
		Value: ltk,
		EDIV:  0x1234,
		Rand:  0xfedcba9876543210,
		DIV:   da,
		Size:  10,
		Level: smp.SecurityAuthenticated,
	}, true))
	require.NoError(t, db.SaveKey(peerA, smp.Key{
		Kind:     smp.KeyPeerIdentity,
		Value:    make([]byte, 16),
		AddrType: ble.AddrTypeRandom,
		Addr:     "c1:00:00:00:00:0a",
	}, true))

	r, err := db.Find(peerA)
	require.NoError(t, err)
	assert.Equal(t, peerA.String(), r.Address)
	assert.True(t, r.Bonded)
	assert.Equal(t, da, r.DIV)

	k, ok := r.Key(smp.KeyLocalEncryption)
	require.True(t, ok)
	assert.Equal(t, ltk, k.Value)
	assert.Equal(t, uint16(0x1234), k.EDIV)
	assert.Equal(t, uint64(0xfedcba9876543210), k.Rand)
	assert.Equal(t, 10, k.Size)
	assert.Equal(t, smp.SecurityAuthenticated, k.Level)

	id, ok := r.Key(smp.KeyPeerIdentity)
	require.True(t, ok)
	assert.Equal(t, ble.AddrTypeRandom, id.AddrType)
	assert.Equal(t, "c1:00:00:00:00:0a", id.Addr)

	require.NoError(t, db.Delete(peerA))
	_, err = db.Find(peerA)
	assert.Equal(t, smp.ErrRecordNotFound, errors.Cause(err))
	require.NoError(t, db.Delete(peerA), "deleting twice is fine")

	_, err = db.Find(peerB)
	assert.NoError(t, err)
}
