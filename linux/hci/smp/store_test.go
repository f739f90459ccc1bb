package smp

import (
	"testing"

	"github.com/pkg/errors"
	ble "github.com/rigado/blesmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryDB(t *testing.T) {
	db := NewMemoryDB()
	a := ble.NewAddr("c0:00:00:00:00:01")
	b := ble.NewAddr("c0:00:00:00:00:02")

	_, err := db.Find(a)
	assert.Equal(t, ErrRecordNotFound, errors.Cause(err))

	da, err := db.DIV(a)
	require.NoError(t, err)
	db2, err := db.DIV(b)
	require.NoError(t, err)
	assert.NotZero(t, da)
	assert.NotEqual(t, da, db2)

	again, _ := db.DIV(a)
	assert.Equal(t, da, again, "div is stable per peer")

	ltk := []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16}
	require.NoError(t, db.SaveKey(a, Key{Kind: KeyPeerEncryption, Value: ltk, EDIV: 7, Rand: 9, Size: 16}, true))
	ltk[0] = 0xff

	r, err := db.Find(a)
	require.NoError(t, err)
	assert.True(t, r.Bonded)
	k, ok := r.Key(KeyPeerEncryption)
	require.True(t, ok)
	assert.Equal(t, byte(1), k.Value[0], "stored key must be a copy")
	assert.Equal(t, uint16(7), k.EDIV)

	// the result is a copy too
	r.Keys[KeyPeerEncryption].Value[1] = 0xff
	r2, _ := db.Find(a)
	k, _ = r2.Key(KeyPeerEncryption)
	assert.Equal(t, byte(2), k.Value[1])

	assert.Len(t, db.Records(), 2)

	require.NoError(t, db.Delete(a))
	_, err = db.Find(a)
	assert.Error(t, err)
}

func TestRecordApply(t *testing.T) {
	var r *Record
	_, ok := r.Key(KeyPeerIdentity)
	assert.False(t, ok)

	r = &Record{}
	r.Apply(Key{Kind: KeyLocalEncryption, DIV: 42}, false)
	assert.Equal(t, uint16(42), r.DIV)
	assert.False(t, r.Bonded)

	r.Apply(Key{Kind: KeyPeerSigning}, true)
	r.Apply(Key{Kind: KeyPeerIdentity}, false)
	assert.True(t, r.Bonded, "bonded is sticky")
	assert.Len(t, r.Keys, 3)
}
