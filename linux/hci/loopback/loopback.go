// Package loopback connects two security managers in process. It carries
// SMP PDUs in L2CAP frames and plays the controller's part of link
// encryption.
package loopback

import (
	"bytes"
	"sync"

	"github.com/pkg/errors"
	ble "github.com/rigado/blesmp"
	"github.com/rigado/blesmp/linux/hci/smp"
)

const queueSize = 64

// ErrClosed is returned once the link is closed.
var ErrClosed = errors.New("loopback closed")

// Endpoint is one side of the link.
type Endpoint struct {
	Addr ble.Addr
	Type ble.AddrType
}

// Filter sees every PDU before delivery; returning false drops it.
type Filter func(from smp.Role, pdu []byte) bool

// Link is an in-process connection between a master and a slave.
type Link struct {
	master, slave Endpoint
	log           ble.Logger

	mmu           sync.RWMutex
	mgrs          [2]*smp.Manager
	filter        Filter
	encKey        []byte
	encryptions   int
	failedEncrypt int

	queues [2]chan func() // indexed by receiving role
	done   chan struct{}
	cmu    sync.Mutex
	wg     sync.WaitGroup
}

// New creates a link. Attach the managers before Connect.
func New(master, slave Endpoint) *Link {
	l := &Link{
		master: master,
		slave:  slave,
		log:    ble.GetLogger().ChildLogger(map[string]interface{}{"svc": "loopback"}),
		done:   make(chan struct{}),
	}
	for i := range l.queues {
		l.queues[i] = make(chan func(), queueSize)
		l.wg.Add(1)
		go l.deliverLoop(l.queues[i])
	}
	return l
}

// Transport returns the transport used by the manager of role.
func (l *Link) Transport(role smp.Role) smp.Transport {
	return &side{l: l, role: role}
}

// Attach sets the managers driven by the link.
func (l *Link) Attach(master, slave *smp.Manager) {
	l.mmu.Lock()
	defer l.mmu.Unlock()
	l.mgrs[smp.RoleMaster] = master
	l.mgrs[smp.RoleSlave] = slave
}

// SetFilter installs f, nil removes it.
func (l *Link) SetFilter(f Filter) {
	l.mmu.Lock()
	defer l.mmu.Unlock()
	l.filter = f
}

// Connect reports the connection to both managers.
func (l *Link) Connect() error {
	m, s := l.manager(smp.RoleMaster), l.manager(smp.RoleSlave)
	if m == nil || s == nil {
		return errors.New("managers not attached")
	}
	err := m.LinkUp(smp.LinkInfo{Peer: l.slave.Addr, PeerType: l.slave.Type, Local: l.master.Addr, LocalType: l.master.Type, Role: smp.RoleMaster})
	if err != nil {
		return errors.Wrap(err, "master link up")
	}
	err = s.LinkUp(smp.LinkInfo{Peer: l.master.Addr, PeerType: l.master.Type, Local: l.slave.Addr, LocalType: l.slave.Type, Role: smp.RoleSlave})
	return errors.Wrap(err, "slave link up")
}

// Disconnect reports the end of the connection with an HCI reason.
func (l *Link) Disconnect(reason uint8) error {
	merr := l.manager(smp.RoleMaster).LinkDown(l.slave.Addr, reason)
	serr := l.manager(smp.RoleSlave).LinkDown(l.master.Addr, reason)
	if merr != nil {
		return merr
	}
	return serr
}

// Encryptions returns how many encryption requests succeeded and failed.
func (l *Link) Encryptions() (ok, failed int) {
	l.mmu.RLock()
	defer l.mmu.RUnlock()
	return l.encryptions, l.failedEncrypt
}

// Close stops the delivery goroutines. Queued work is discarded.
func (l *Link) Close() error {
	l.cmu.Lock()
	defer l.cmu.Unlock()

	select {
	case <-l.done:
		return nil
	default:
		close(l.done)
	}
	l.wg.Wait()
	return nil
}

func (l *Link) isOpen() bool {
	select {
	case <-l.done:
		return false
	default:
		return true
	}
}

func (l *Link) manager(role smp.Role) *smp.Manager {
	l.mmu.RLock()
	defer l.mmu.RUnlock()
	return l.mgrs[role]
}

func (l *Link) endpoint(role smp.Role) Endpoint {
	if role == smp.RoleMaster {
		return l.master
	}
	return l.slave
}

func other(role smp.Role) smp.Role {
	if role == smp.RoleMaster {
		return smp.RoleSlave
	}
	return smp.RoleMaster
}

// schedule runs fn on the delivery goroutine of the receiving role.
func (l *Link) schedule(to smp.Role, fn func()) error {
	if !l.isOpen() {
		return ErrClosed
	}
	select {
	case l.queues[to] <- fn:
		return nil
	case <-l.done:
		return ErrClosed
	}
}

func (l *Link) deliverLoop(q chan func()) {
	defer l.wg.Done()
	for {
		select {
		case <-l.done:
			return
		case fn := <-q:
			fn()
		}
	}
}

type side struct {
	l    *Link
	role smp.Role
}

func (s *side) SendPDU(peer ble.Addr, pdu []byte) error {
	frame, err := smp.Frame(pdu)
	if err != nil {
		return err
	}

	l, to := s.l, other(s.role)
	return l.schedule(to, func() {
		b, err := smp.Unframe(frame)
		if err != nil {
			l.log.Errorf("drop frame from %v: %v", s.role, err)
			return
		}

		l.mmu.RLock()
		f := l.filter
		l.mmu.RUnlock()
		if f != nil && !f(s.role, b) {
			l.log.Debugf("filter dropped [%X] from %v", b, s.role)
			return
		}

		if err := l.manager(to).Receive(l.endpoint(s.role).Addr, b); err != nil {
			l.log.Warnf("%v receive: %v", to, err)
		}
	})
}

func (s *side) StartEncryption(peer ble.Addr, key []byte, ediv uint16, rand uint64) error {
	if s.role != smp.RoleMaster {
		return errors.New("only the master starts encryption")
	}

	l := s.l
	l.mmu.Lock()
	l.encKey = append([]byte(nil), key...)
	l.mmu.Unlock()

	return l.schedule(smp.RoleSlave, func() {
		if err := l.manager(smp.RoleSlave).LongTermKeyRequest(l.master.Addr, ediv, rand); err != nil {
			l.log.Warnf("ltk request: %v", err)
		}
	})
}

// ReplyLongTermKey completes the encryption started by the master. The
// slave learns the result first so it is encrypted before any PDU the
// master sends afterwards reaches it.
func (s *side) ReplyLongTermKey(peer ble.Addr, key []byte) error {
	if s.role != smp.RoleSlave {
		return errors.New("only the slave replies with a key")
	}

	l := s.l
	l.mmu.Lock()
	ok := key != nil && l.encKey != nil && bytes.Equal(key, l.encKey)
	l.encKey = nil
	if ok {
		l.encryptions++
	} else {
		l.failedEncrypt++
	}
	l.mmu.Unlock()

	serr := l.manager(smp.RoleSlave).EncryptionChanged(l.master.Addr, ok)
	merr := l.manager(smp.RoleMaster).EncryptionChanged(l.slave.Addr, ok)
	if serr != nil {
		return serr
	}
	return merr
}
