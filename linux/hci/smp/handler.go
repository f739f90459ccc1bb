package smp

import (
	"crypto/subtle"
	"time"
)

func command(ev event) Command {
	if e, ok := ev.(evPDU); ok {
		return e.cmd
	}
	return nil
}

func keyReady(ev event) (evKeyReady, bool) {
	k, ok := ev.(evKeyReady)
	return k, ok
}

func (p *pairing) procLinkUp(ev event) {
	p.begin()
	p.weStarted = true
	if p.isMaster() {
		p.pendingCallback = IOCapRequest{}
	}
}

func (p *pairing) sendSecReq(ev event) {
	p.send(SecurityReq{AuthReq: p.m().local.AuthReq & (AuthReqBondMask | AuthReqMITM)})
}

func (p *pairing) procSecReq(ev event) {
	cmd, ok := command(ev).(SecurityReq)
	if !ok {
		return
	}

	p.begin()
	p.peerStarted = true
	p.peerAuthReq = cmd.AuthReq

	want := SecurityUnauthenticated
	if cmd.AuthReq.MITM() {
		want = SecurityAuthenticated
	}

	if p.l.encrypted && p.l.level >= want {
		p.log.Debugf("security request satisfied by current link level %v", p.l.level)
		p.post(evSignal(evtDiscardSecurityRequest))
		return
	}

	if rec, err := p.m().db.Find(p.l.info.Peer); err == nil {
		if k, ok := rec.Key(KeyPeerEncryption); ok && k.Level >= want {
			p.log.Debugf("security request: encrypting with bonded key")
			p.post(evSignal(evtEncryptionRequest))
			return
		}
	}

	p.pendingCallback = SecurityRequest{AuthReq: cmd.AuthReq}
}

func (p *pairing) procDiscard(ev event) {
	p.reset()
}

func (p *pairing) procSecGrant(ev event) {
	g, ok := ev.(evSecGrant)
	if !ok {
		return
	}
	if g.reason != Success {
		p.fail(g.reason)
		return
	}
	p.pendingCallback = IOCapRequest{}
}

func (p *pairing) sendAppCallback(ev event) {
	n := p.pendingCallback
	p.pendingCallback = nil
	if n != nil {
		p.m().notify(p.l.info.Peer, n)
	}
}

func (p *pairing) procIOResponse(ev event) {
	r, ok := ev.(evIOResponse)
	if !ok {
		return
	}

	params := r.params
	if params.IOCap >= IOCapReservedStart || params.MaxKeySize < MinEncKeySize || params.MaxKeySize > MaxEncKeySize {
		p.log.Errorf("invalid local pairing params: %v", params)
		p.fail(InvalidParameters)
		return
	}

	// legacy pairing only
	params.AuthReq &= AuthReqBondMask | AuthReqMITM
	params.InitKeyDist &= KeyDistAll
	params.RespKeyDist &= KeyDistAll
	p.local = params
}

func (p *pairing) sendPairReq(ev event) {
	c := PairingReq{Params: p.local}
	p.preq = Encode(c)
	p.send(c)
}

// checkPeerParams validates the peer half of the exchange.
func (p *pairing) checkPeerParams(params PairingParams) bool {
	if params.IOCap >= IOCapReservedStart || params.MaxKeySize > MaxEncKeySize {
		p.fail(InvalidParameters)
		return false
	}
	if params.OOBFlag > OOBDataPresent {
		p.fail(InvalidParameters)
		return false
	}
	return true
}

// negotiate computes the key size and the key distribution masks from the
// initiator and responder params.
func (p *pairing) negotiate(init, resp PairingParams) bool {
	p.encSize = int(init.MaxKeySize)
	if int(resp.MaxKeySize) < p.encSize {
		p.encSize = int(resp.MaxKeySize)
	}
	if p.encSize < p.m().minKeySize {
		p.log.Warnf("key size %d below minimum %d", p.encSize, p.m().minKeySize)
		p.fail(EncryptionKeySizeTooSmall)
		return false
	}

	p.bonding = init.AuthReq.Bonding() && resp.AuthReq.Bonding()
	if p.bonding {
		p.initKeys = init.InitKeyDist & resp.InitKeyDist & KeyDistAll
		p.respKeys = init.RespKeyDist & resp.RespKeyDist & KeyDistAll
	}
	return true
}

func (p *pairing) procPairCmd(ev event) {
	switch cmd := command(ev).(type) {
	case PairingReq:
		p.begin()
		p.peerStarted = true
		p.peer = cmd.Params
		p.preq = Encode(cmd)
		if !p.checkPeerParams(cmd.Params) {
			return
		}
		if p.weStarted {
			p.pendingCallback = IOCapRequest{}
		} else {
			p.pendingCallback = SecurityRequest{AuthReq: cmd.Params.AuthReq}
		}

	case PairingRsp:
		p.stopResponseTimer()
		p.peer = cmd.Params
		p.pres = Encode(cmd)
		if !p.checkPeerParams(cmd.Params) {
			return
		}
		if cmd.Params.InitKeyDist&^p.local.InitKeyDist != 0 || cmd.Params.RespKeyDist&^p.local.RespKeyDist != 0 {
			p.log.Warnf("responder asked for keys that were not offered: %v", cmd.Params)
		}
		p.negotiate(p.local, p.peer)
	}
}

func (p *pairing) sendPairRsp(ev event) {
	rsp := p.local
	rsp.InitKeyDist &= p.peer.InitKeyDist
	rsp.RespKeyDist &= p.peer.RespKeyDist
	if !(rsp.AuthReq.Bonding() && p.peer.AuthReq.Bonding()) {
		rsp.InitKeyDist, rsp.RespKeyDist = 0, 0
	}
	p.local = rsp

	if !p.negotiate(p.peer, rsp) {
		return
	}

	c := PairingRsp{Params: rsp}
	p.pres = Encode(c)
	p.send(c)
	if p.aborted {
		return
	}

	p.startModel()
}

func (p *pairing) decideAssociationModel(ev event) {
	p.startModel()
}

// startModel selects the association model and starts collecting the TK.
func (p *pairing) startModel() {
	in := SelectorInput{Role: p.l.info.Role, Initiator: p.local, Responder: p.peer}
	if !p.isMaster() {
		in.Initiator, in.Responder = p.peer, p.local
	}

	model, level, reason := SelectModel(in)
	if reason != Success {
		p.fail(reason)
		return
	}
	p.model, p.secLevel = model, level
	p.log.Infof("association model %v, key size %d, keys init %v resp %v", model, p.encSize, p.initKeys, p.respKeys)

	switch model {
	case ModelEncryptionOnly:
		p.tkWait = tkInternal
		p.post(evKeyReady{kind: keyTK})
	case ModelPasskey:
		p.tkWait = tkApp
		p.pendingCallback = PasskeyRequest{}
		p.post(evSignal(evtTKRequest))
	case ModelKeyNotification:
		p.tkWait = tkInternal
		p.startPasskey()
	case ModelOOB:
		p.tkWait = tkApp
		p.pendingCallback = OOBRequest{}
		p.post(evSignal(evtTKRequest))
	}
}

// acceptTK reports whether k is the TK the attempt waits for. A TK is only
// taken once, after the pairing request and response were exchanged.
func (p *pairing) acceptTK(k evKeyReady) bool {
	want := tkInternal
	if k.app {
		want = tkApp
	}
	if p.tkWait != want || len(p.preq) != pairingParamsLen || len(p.pres) != pairingParamsLen {
		return false
	}
	p.tkWait = tkNone
	return true
}

// dropKey ignores a key nobody waits for and undoes the transition it
// triggered.
func (p *pairing) dropKey(k evKeyReady) {
	p.log.Warnf("drop unexpected %v key in %v", k.kind, p.l.prev)
	p.l.setState(p.l.prev)
}

// useTK stores the TK and tells the user the passkey to display.
func (p *pairing) useTK(k evKeyReady) {
	p.tk = k.value
	p.passkey = k.passkey
	if k.display {
		p.m().notify(p.l.info.Peer, PasskeyNotification{Passkey: k.passkey})
	}
}

func (p *pairing) generateConfirm(ev event) {
	k, ok := keyReady(ev)
	if !ok || k.kind != keyTK || !p.acceptTK(k) {
		p.dropKey(k)
		return
	}
	p.useTK(k)
	p.startConfirm()
}

func (p *pairing) procSlaveKey(ev event) {
	k, ok := keyReady(ev)
	if !ok {
		return
	}

	switch k.kind {
	case keyTK:
		if !p.acceptTK(k) {
			p.dropKey(k)
			return
		}
		p.useTK(k)
		p.startConfirm()
	case keyConfirm:
		p.confirm, p.rand = k.value, k.rand
		p.l.setState(StateWaitConfirm)
		if p.confirmReceived {
			p.post(evPDU{op: evtConfirm})
		}
	default:
		p.log.Warnf("slave key: unexpected key %v", k.kind)
	}
}

func (p *pairing) sendConfirm(ev event) {
	if k, ok := keyReady(ev); ok {
		if k.kind != keyConfirm {
			p.dropKey(k)
			return
		}
		p.confirm, p.rand = k.value, k.rand
	}
	p.send(PairingConfirm{Value: p.confirm})
}

func (p *pairing) procConfirm(ev event) {
	p.stopResponseTimer()
	if c, ok := command(ev).(PairingConfirm); ok {
		p.rconfirm = c.Value
		p.confirmReceived = true
	}
}

func (p *pairing) sendRand(ev event) {
	p.send(PairingRandom{Value: p.rand})
}

func (p *pairing) procRand(ev event) {
	p.stopResponseTimer()
	if c, ok := command(ev).(PairingRandom); ok {
		p.rrand = c.Value
	}
}

func (p *pairing) generateCompare(ev event) {
	p.startCompare()
}

func (p *pairing) procCompare(ev event) {
	k, ok := keyReady(ev)
	if !ok || k.kind != keyCompare {
		return
	}

	if subtle.ConstantTimeCompare(k.value[:], p.rconfirm[:]) != 1 {
		p.log.Warnf("confirm mismatch, exp %X got %X", p.rconfirm, k.value)
		p.fail(ConfirmValueMismatch)
		return
	}

	if p.isMaster() {
		p.post(evSignal(evtEncryptionRequest))
		return
	}
	p.sendRand(ev)
}

func (p *pairing) generateSTK(ev event) {
	p.startSTK()
}

func (p *pairing) startEncryption(ev event) {
	m, peer := p.m(), p.l.info.Peer

	if k, ok := keyReady(ev); ok {
		if k.kind != keySTK {
			return
		}
		p.stk = k.value
		if err := m.transport.StartEncryption(peer, p.stk[:], 0, 0); err != nil {
			p.internalError("start encryption", err)
		}
		return
	}

	// re-encryption with a bonded key
	rec, err := m.db.Find(peer)
	if err != nil {
		p.internalError("find bond", err)
		return
	}
	key, ok := rec.Key(KeyPeerEncryption)
	if !ok {
		p.log.Errorf("no peer encryption key for %v", peer)
		p.fail(InternalError)
		return
	}
	p.secLevel, p.encSize, p.bonding = key.Level, key.Size, rec.Bonded
	if err := m.transport.StartEncryption(peer, key.Value, key.EDIV, key.Rand); err != nil {
		p.internalError("start encryption", err)
	}
}

func (p *pairing) sendLTKReply(ev event) {
	k, ok := keyReady(ev)
	if !ok || k.kind != keySTK {
		return
	}
	p.stk = k.value
	if err := p.m().transport.ReplyLongTermKey(p.l.info.Peer, p.stk[:]); err != nil {
		p.internalError("ltk reply", err)
	}
}

func (p *pairing) checkAuthReq(ev event) {
	p.stopResponseTimer()
	e, ok := ev.(evEncrypted)
	if !ok {
		return
	}
	if !e.ok {
		p.fail(EncryptionFailed)
		return
	}

	if p.secLevel == SecurityNone {
		// encrypted with a bond, no pairing happened
		kind := KeyPeerEncryption
		if !p.isMaster() {
			kind = KeyLocalEncryption
		}
		if rec, err := p.m().db.Find(p.l.info.Peer); err == nil {
			if k, ok := rec.Key(kind); ok {
				p.secLevel, p.encSize, p.bonding = k.Level, k.Size, rec.Bonded
			}
		}
		if p.secLevel == SecurityNone {
			p.secLevel = SecurityUnauthenticated
		}
	}

	p.l.encrypted = true
	p.l.level = p.secLevel

	if p.initKeys != 0 || p.respKeys != 0 {
		p.post(evSignal(evtBondRequest))
		return
	}
	p.complete()
}

// complete ends a successful attempt.
func (p *pairing) complete() {
	p.status = Success
	p.post(evAuthComplete{reason: Success})
}

func (p *pairing) keyDistribute(ev event) {
	p.distribute()
}

// ownKeys and peerKeys are the masks of keys this side sends and receives.
func (p *pairing) ownKeys() *KeyDist {
	if p.isMaster() {
		return &p.initKeys
	}
	return &p.respKeys
}

func (p *pairing) peerKeys() *KeyDist {
	if p.isMaster() {
		return &p.respKeys
	}
	return &p.initKeys
}

// distribute sends the next local key. The responder sends first; the
// initiator starts once every responder key has arrived.
func (p *pairing) distribute() {
	if p.keyPending || p.completed || p.aborted {
		return
	}
	if p.isMaster() && p.respKeys != 0 {
		p.startResponseTimer()
		return
	}

	own := p.ownKeys()
	switch own.Next() {
	case KeyDistEnc:
		p.keyPending = true
		p.startLTK()
	case KeyDistId:
		m, info := p.m(), p.l.info
		p.send(IdentityInfo{IRK: m.irk})
		ia := IdentityAddrInfo{AddrType: info.LocalType}
		copy(ia.Addr[:], leAddr(info.Local.Bytes()))
		p.send(ia)
		*own &^= KeyDistId
		p.distribute()
	case KeyDistSign:
		p.keyPending = true
		p.startCSRK()
	default:
		if *p.peerKeys() != 0 {
			p.startResponseTimer()
			return
		}
		if p.initKeys == 0 && p.respKeys == 0 {
			p.complete()
		}
	}
}

func (p *pairing) saveKey(key Key) bool {
	if err := p.m().db.SaveKey(p.l.info.Peer, key, p.bonding); err != nil {
		p.internalError("save key", err)
		return false
	}
	return true
}

func (p *pairing) sendKeyInfo(ev event) {
	k, ok := keyReady(ev)
	if !ok {
		return
	}

	own := p.ownKeys()
	switch k.kind {
	case keyLTK:
		p.ltk, p.div, p.ediv, p.encRand = k.value, k.div, k.ediv, k.encRand
		p.send(EncryptionInfo{LTK: p.ltk})
		p.send(MasterIdent{EDIV: p.ediv, Rand: p.encRand})
		if !p.saveKey(Key{
			Kind:  KeyLocalEncryption,
			Value: p.ltk[:],
			EDIV:  p.ediv,
			Rand:  p.encRand,
			DIV:   p.div,
			Size:  p.encSize,
			Level: p.secLevel,
		}) {
			return
		}
		*own &^= KeyDistEnc
	case keyCSRK:
		p.csrk = k.value
		p.send(SigningInfo{CSRK: p.csrk})
		if !p.saveKey(Key{Kind: KeyLocalSigning, Value: p.csrk[:], DIV: k.div, Level: p.secLevel}) {
			return
		}
		*own &^= KeyDistSign
	default:
		p.log.Warnf("key info: unexpected key %v", k.kind)
		return
	}

	p.keyPending = false
	p.distribute()
}

// expect reports whether the peer may send key f now.
func (p *pairing) expect(f KeyDist, what string) bool {
	p.startResponseTimer()
	if !p.peerKeys().Has(f) {
		p.log.Warnf("unexpected %v, expecting %v", what, *p.peerKeys())
		return false
	}
	return true
}

func (p *pairing) procEncInfo(ev event) {
	if c, ok := command(ev).(EncryptionInfo); ok && p.expect(KeyDistEnc, "encryption info") {
		p.peerLTK = c.LTK
	}
}

func (p *pairing) procMasterID(ev event) {
	c, ok := command(ev).(MasterIdent)
	if !ok || !p.expect(KeyDistEnc, "master id") {
		return
	}
	if !p.saveKey(Key{
		Kind:  KeyPeerEncryption,
		Value: p.peerLTK[:],
		EDIV:  c.EDIV,
		Rand:  c.Rand,
		Size:  p.encSize,
		Level: p.secLevel,
	}) {
		return
	}
	*p.peerKeys() &^= KeyDistEnc
	p.distribute()
}

func (p *pairing) procIDInfo(ev event) {
	if c, ok := command(ev).(IdentityInfo); ok && p.expect(KeyDistId, "identity info") {
		p.peerIRK = c.IRK
	}
}

func (p *pairing) procIDAddr(ev event) {
	c, ok := command(ev).(IdentityAddrInfo)
	if !ok || !p.expect(KeyDistId, "identity address") {
		return
	}
	if !p.saveKey(Key{
		Kind:     KeyPeerIdentity,
		Value:    p.peerIRK[:],
		AddrType: c.AddrType,
		Addr:     c.Address().String(),
		Level:    p.secLevel,
	}) {
		return
	}
	*p.peerKeys() &^= KeyDistId
	p.distribute()
}

func (p *pairing) procSigningInfo(ev event) {
	c, ok := command(ev).(SigningInfo)
	if !ok || !p.expect(KeyDistSign, "signing info") {
		return
	}
	if !p.saveKey(Key{Kind: KeyPeerSigning, Value: c.CSRK[:], Level: p.secLevel}) {
		return
	}
	*p.peerKeys() &^= KeyDistSign
	p.distribute()
}

func (p *pairing) procPairFail(ev event) {
	p.stopResponseTimer()
	c, ok := command(ev).(PairingFailed)
	if !ok {
		return
	}
	p.peerFailed = true
	p.status = c.Reason
	if p.status == Success {
		p.status = UnspecifiedReason
	}
	p.log.Warnf("peer failed pairing: %v", p.status)
}

func (p *pairing) sendPairFail(ev event) {
	a, ok := ev.(evAuthComplete)
	if !ok {
		return
	}
	p.status = a.reason
	if !a.reason.wire() || p.peerFailed || !p.inProgress || p.completed {
		return
	}
	b := Encode(PairingFailed{Reason: a.reason})
	if err := p.m().transport.SendPDU(p.l.info.Peer, b); err != nil {
		p.log.Errorf("send pairing failed: %v", err)
	}
}

func (p *pairing) pairingComplete(ev event) {
	p.stopResponseTimer()
	if p.inProgress && !p.completed {
		p.completed = true
		level := SecurityNone
		if p.status == Success {
			level = p.secLevel
		}
		p.m().notify(p.l.info.Peer, PairingComplete{Reason: p.status, Level: level, Bonded: p.bonding && p.status == Success})
	}
	p.post(evSignal(evtReleaseDelay))
}

func (p *pairing) pairTerminate(ev event) {
	d, _ := ev.(evDisconnected)
	if p.inProgress && !p.completed {
		p.completed = true
		n := PairingComplete{Reason: ConnectionTimeout}
		if d.reason == hciRemoteUserTerminated {
			n = PairingComplete{Reason: Success, Level: p.l.level}
		}
		p.m().notify(p.l.info.Peer, n)
	}
	p.l.encrypted, p.l.level = false, SecurityNone
	p.reset()
}

func (p *pairing) procReleaseDelay(ev event) {
	p.stopResponseTimer()
	if p.relTimer != nil {
		p.relTimer.Stop()
	}
	l, gen := p.l, p.l.gen
	p.relTimer = time.AfterFunc(p.m().releaseDelay, func() {
		l.postGen(gen, evSignal(evtReleaseDelayTimeout))
	})
}

func (p *pairing) procReleaseDelayTimeout(ev event) {
	p.reset()
}
