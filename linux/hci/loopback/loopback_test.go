package loopback

import (
	"testing"

	ble "github.com/rigado/blesmp"
	"github.com/rigado/blesmp/linux/hci/smp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLink() *Link {
	return New(
		Endpoint{Addr: ble.NewAddr("c0:00:00:00:00:01"), Type: ble.AddrTypeRandom},
		Endpoint{Addr: ble.NewAddr("c0:00:00:00:00:02"), Type: ble.AddrTypeRandom},
	)
}

func TestConnectNeedsManagers(t *testing.T) {
	l := newLink()
	defer l.Close()
	assert.Error(t, l.Connect())
}

func TestRoles(t *testing.T) {
	l := newLink()
	defer l.Close()

	peer := ble.NewAddr("c0:00:00:00:00:02")
	assert.Error(t, l.Transport(smp.RoleSlave).StartEncryption(peer, make([]byte, 16), 0, 0))
	assert.Error(t, l.Transport(smp.RoleMaster).ReplyLongTermKey(peer, make([]byte, 16)))
}

func TestClose(t *testing.T) {
	l := newLink()
	require.NoError(t, l.Close())
	require.NoError(t, l.Close())

	err := l.Transport(smp.RoleMaster).SendPDU(ble.NewAddr("c0:00:00:00:00:02"), []byte{0x05, 0x08})
	assert.Equal(t, ErrClosed, err)
}
