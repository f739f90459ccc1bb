package smp

import (
	"time"

	ble "github.com/rigado/blesmp"
)

// pairing is the control block of one pairing attempt. It is only touched
// from the goroutine draining the owning link.
type pairing struct {
	l   *link
	log ble.Logger

	inProgress      bool
	completed       bool
	weStarted       bool
	peerStarted     bool
	confirmReceived bool
	peerFailed      bool
	keyPending      bool
	aborted         bool
	status          Reason

	local PairingParams
	peer  PairingParams
	preq  []byte
	pres  []byte

	peerAuthReq AuthReq
	encSize     int
	initKeys    KeyDist
	respKeys    KeyDist
	bonding     bool
	model       Model
	tkWait      tkSource
	secLevel    SecurityLevel
	passkey     uint32

	tk       [16]byte
	rand     [16]byte
	rrand    [16]byte
	confirm  [16]byte
	rconfirm [16]byte
	stk      [16]byte
	ltk      [16]byte
	csrk     [16]byte
	div      uint16
	ediv     uint16
	encRand  uint64

	peerLTK [16]byte
	peerIRK [16]byte

	pendingCallback Notification

	respTimer *time.Timer
	relTimer  *time.Timer
	timerSeq  uint64
}

// reset clears everything but the link identity. Callbacks issued for the
// previous attempt are dropped from then on.
func (p *pairing) reset() {
	p.stopResponseTimer()
	if p.relTimer != nil {
		p.relTimer.Stop()
	}
	seq := p.timerSeq
	*p = pairing{l: p.l, log: p.log, timerSeq: seq}
	p.l.gen++
}

// begin starts a new attempt if none is running.
func (p *pairing) begin() {
	if p.inProgress {
		return
	}
	p.reset()
	p.inProgress = true
}

func (p *pairing) isMaster() bool {
	return p.l.info.Role == RoleMaster
}

func (p *pairing) m() *Manager {
	return p.l.m
}

// post queues an event behind the current one.
func (p *pairing) post(ev event) {
	p.l.internal = append(p.l.internal, ev)
}

// fail ends the attempt with reason and skips the rest of the transition.
func (p *pairing) fail(reason Reason) {
	p.log.Warnf("pairing failed in %v: %v", p.l.State(), reason)
	p.status = reason
	p.aborted = true
	p.post(evAuthComplete{reason: reason})
}

func (p *pairing) send(c Command) {
	b := Encode(c)
	p.log.Debugf("smp tx %v [%X]", pduName(c.Code()), b)
	p.startResponseTimer()
	if err := p.m().transport.SendPDU(p.l.info.Peer, b); err != nil {
		p.log.Errorf("send %v: %v", pduName(c.Code()), err)
		p.fail(InternalError)
	}
}

func (p *pairing) startResponseTimer() {
	p.stopResponseTimer()
	p.timerSeq++
	seq, gen, l := p.timerSeq, p.l.gen, p.l
	p.respTimer = time.AfterFunc(p.m().responseTimeout, func() {
		l.postGen(gen, evAuthComplete{reason: ResponseTimeout, timer: seq})
	})
}

func (p *pairing) stopResponseTimer() {
	if p.respTimer != nil {
		p.respTimer.Stop()
		p.respTimer = nil
	}
}

// addresses returns the initiator and responder addresses, LSB first, with
// their types.
func (p *pairing) addresses() (ia, ra []byte, iat, rat byte) {
	info := p.l.info
	local, peer := leAddr(info.Local.Bytes()), leAddr(info.Peer.Bytes())
	if p.isMaster() {
		return local, peer, byte(info.LocalType), byte(info.PeerType)
	}
	return peer, local, byte(info.PeerType), byte(info.LocalType)
}

// masterSlaveRand orders the nonces by role.
func (p *pairing) masterSlaveRand() (mrand, srand [16]byte) {
	if p.isMaster() {
		return p.rand, p.rrand
	}
	return p.rrand, p.rand
}
