package smp

import (
	"sync"
	"sync/atomic"

	ble "github.com/rigado/blesmp"
)

// LinkInfo identifies a connection.
type LinkInfo struct {
	Peer      ble.Addr
	PeerType  ble.AddrType
	Local     ble.Addr
	LocalType ble.AddrType
	Role      Role
}

type queued struct {
	ev       event
	gen      uint64
	checkGen bool
}

// link runs the state machine of one connection. Events are queued on the
// mailbox; whichever goroutine finds the link idle drains it.
type link struct {
	m    *Manager
	info LinkInfo
	log  ble.Logger

	qmu     sync.Mutex
	mailbox []queued
	busy    bool

	state atomic.Int32

	// owned by the draining goroutine
	p         pairing
	prev      State
	internal  []event
	gen       uint64
	encrypted bool
	level     SecurityLevel
}

func newLink(m *Manager, info LinkInfo) *link {
	l := &link{
		m:    m,
		info: info,
		log: m.log.ChildLogger(map[string]interface{}{
			"peer": info.Peer.String(),
			"role": info.Role.String(),
		}),
	}
	l.p = pairing{l: l, log: l.log}
	return l
}

func (l *link) State() State {
	return State(l.state.Load())
}

func (l *link) setState(s State) {
	old := State(l.state.Swap(int32(s)))
	if old != s {
		l.log.Debugf("state %v -> %v", old, s)
	}
}

// post queues an API or lower layer event.
func (l *link) post(ev event) {
	l.enqueue(queued{ev: ev})
}

// postGen queues a completion issued under gen. It is dropped if the link
// was reset in the meantime.
func (l *link) postGen(gen uint64, ev event) {
	l.enqueue(queued{ev: ev, gen: gen, checkGen: true})
}

func (l *link) enqueue(q queued) {
	l.qmu.Lock()
	l.mailbox = append(l.mailbox, q)
	if l.busy {
		l.qmu.Unlock()
		return
	}
	l.busy = true
	l.qmu.Unlock()

	l.drain()
}

func (l *link) drain() {
	for {
		l.qmu.Lock()
		if len(l.mailbox) == 0 {
			l.busy = false
			l.qmu.Unlock()
			return
		}
		q := l.mailbox[0]
		l.mailbox[0] = queued{}
		l.mailbox = l.mailbox[1:]
		l.qmu.Unlock()

		if q.checkGen && q.gen != l.gen {
			l.log.Debugf("drop stale %v", q.ev.code())
			continue
		}
		l.dispatch(q.ev)

		for len(l.internal) > 0 {
			ev := l.internal[0]
			l.internal[0] = nil
			l.internal = l.internal[1:]
			l.dispatch(ev)
		}
	}
}

func (l *link) dispatch(ev event) {
	if a, ok := ev.(evAuthComplete); ok && a.timer != 0 {
		if a.timer != l.p.timerSeq || l.p.respTimer == nil {
			return
		}
		l.p.respTimer = nil
		l.log.Warnf("no response from peer in %v", l.m.responseTimeout)
	}

	state := l.State()
	l.prev = state
	ent := lookup(l.info.Role, ev.code(), state)
	if ent.source == sourceNone {
		l.log.Debugf("ignore %v in %v", ev.code(), state)
		return
	}

	l.setState(ent.row.next)
	l.p.aborted = false
	for _, a := range ent.row.actions {
		if a == actNone {
			break
		}
		d, ok := dispatcher[a]
		if !ok {
			l.log.Errorf("no handler for action %d", a)
			continue
		}
		d.handler(&l.p, ev)
		if l.p.aborted {
			break
		}
	}
}
