package smp

import (
	"sync"
	"time"

	"github.com/pkg/errors"
	ble "github.com/rigado/blesmp"
)

// ErrUnknownLink is returned for a peer without LinkUp.
var ErrUnknownLink = errors.New("unknown link")

// Notification is delivered to the Handler.
type Notification interface {
	notification()
}

// IOCapRequest asks for the local params, answer with IOCapabilityResponse.
type IOCapRequest struct{}

// SecurityRequest reports a peer started pairing, answer with SecurityGrant.
type SecurityRequest struct{ AuthReq AuthReq }

// PasskeyRequest asks for the passkey shown on the peer, answer with PasskeyReply.
type PasskeyRequest struct{}

// PasskeyNotification carries the passkey to display to the user.
type PasskeyNotification struct{ Passkey uint32 }

// OOBRequest asks for the out of band TK, answer with OOBDataReply.
type OOBRequest struct{}

// PairingComplete ends every attempt exactly once.
type PairingComplete struct {
	Reason Reason
	Level  SecurityLevel
	Bonded bool
}

// Err returns nil on success and the failure reason otherwise.
func (c PairingComplete) Err() error {
	if c.Reason == Success {
		return nil
	}
	return c.Reason
}

func (IOCapRequest) notification()        {}
func (SecurityRequest) notification()     {}
func (PasskeyRequest) notification()      {}
func (PasskeyNotification) notification() {}
func (OOBRequest) notification()          {}
func (PairingComplete) notification()     {}

// Handler receives notifications on the goroutine running the link. It may
// call back into the Manager but must not block.
type Handler interface {
	HandleSecurity(peer ble.Addr, n Notification)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(peer ble.Addr, n Notification)

func (f HandlerFunc) HandleSecurity(peer ble.Addr, n Notification) {
	f(peer, n)
}

// Manager is the security manager of a device. It keeps one state machine
// per connected peer.
type Manager struct {
	log       ble.Logger
	transport Transport
	crypto    Crypto
	db        SecurityDB
	handler   Handler

	local           PairingParams
	minKeySize      int
	responseTimeout time.Duration
	releaseDelay    time.Duration

	// device keys, read only after NewManager
	er, ir   [16]byte
	irk, dhk [16]byte
	rootsSet bool

	lock  sync.RWMutex
	links map[string]*link
}

// DefaultParams are the local params used when none are configured.
var DefaultParams = PairingParams{
	IOCap:       IOCapNoInputNoOutput,
	OOBFlag:     OOBDataNotPresent,
	AuthReq:     AuthReqBond,
	MaxKeySize:  MaxEncKeySize,
	InitKeyDist: KeyDistEnc | KeyDistId,
	RespKeyDist: KeyDistEnc | KeyDistId,
}

// NewManager creates a Manager. OptTransport is required.
func NewManager(opts ...Option) (*Manager, error) {
	m := &Manager{
		log:             ble.GetLogger().ChildLogger(map[string]interface{}{"svc": "smp"}),
		crypto:          LocalCrypto{},
		db:              NewMemoryDB(),
		local:           DefaultParams,
		minKeySize:      MinEncKeySize,
		responseTimeout: DefaultResponseTimeout,
		releaseDelay:    DefaultReleaseDelay,
		links:           make(map[string]*link),
	}

	for _, opt := range opts {
		if err := opt(m); err != nil {
			return nil, errors.Wrap(err, "invalid option")
		}
	}

	if m.transport == nil {
		return nil, errors.New("no transport")
	}

	if !m.rootsSet {
		b, err := randomBytes(32)
		if err != nil {
			return nil, err
		}
		copy(m.er[:], b)
		copy(m.ir[:], b[16:])
		m.log.Warn("no device keys configured, bonds will not survive a restart")
	}

	var err error
	if m.irk, err = d1(m.ir, 1, 0); err != nil {
		return nil, errors.Wrap(err, "can't derive irk")
	}
	if m.dhk, err = d1(m.ir, 3, 0); err != nil {
		return nil, errors.Wrap(err, "can't derive dhk")
	}

	return m, nil
}

// IRK returns the identity resolving key distributed to peers.
func (m *Manager) IRK() [16]byte {
	return m.irk
}

// SecurityDB returns the record store in use.
func (m *Manager) SecurityDB() SecurityDB {
	return m.db
}

func (m *Manager) notify(peer ble.Addr, n Notification) {
	if m.handler != nil {
		m.handler.HandleSecurity(peer, n)
		return
	}

	var err error
	switch v := n.(type) {
	case SecurityRequest:
		err = m.SecurityGrant(peer, Success)
	case IOCapRequest:
		err = m.IOCapabilityResponse(peer, m.local)
	case PasskeyRequest:
		err = m.PasskeyReply(peer, PasskeyEntryFailed, 0)
	case OOBRequest:
		err = m.OOBDataReply(peer, OOBNotAvailable, nil)
	case PairingComplete:
		m.log.Infof("%v: pairing complete: %s, level %v", peer, v.Reason.String(), v.Level)
	}
	if err != nil {
		m.log.Errorf("%v: auto reply: %v", peer, err)
	}
}

func (m *Manager) link(peer ble.Addr) (*link, error) {
	if peer == nil {
		return nil, errors.Wrap(ErrUnknownLink, "nil peer")
	}
	m.lock.RLock()
	defer m.lock.RUnlock()

	l, ok := m.links[peer.String()]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownLink, "%v", peer)
	}
	return l, nil
}

// State returns the pairing state of peer.
func (m *Manager) State(peer ble.Addr) (State, error) {
	l, err := m.link(peer)
	if err != nil {
		return StateIdle, err
	}
	return l.State(), nil
}

// LinkUp registers a new connection.
func (m *Manager) LinkUp(info LinkInfo) error {
	if info.Peer == nil || info.Local == nil {
		return errors.New("link addresses missing")
	}
	if len(info.Peer.Bytes()) != 6 || len(info.Local.Bytes()) != 6 {
		return errors.Errorf("invalid link addresses %v, %v", info.Peer, info.Local)
	}
	if info.Role > RoleSlave {
		return errors.Errorf("invalid role %d", info.Role)
	}

	m.lock.Lock()
	defer m.lock.Unlock()

	if _, ok := m.links[info.Peer.String()]; ok {
		return errors.Errorf("link to %v already up", info.Peer)
	}
	m.links[info.Peer.String()] = newLink(m, info)
	return nil
}

// LinkDown ends the connection to peer with an HCI disconnect reason.
func (m *Manager) LinkDown(peer ble.Addr, reason uint8) error {
	l, err := m.link(peer)
	if err != nil {
		return err
	}

	m.lock.Lock()
	delete(m.links, peer.String())
	m.lock.Unlock()

	l.post(evDisconnected{reason: reason})
	return nil
}

// Receive handles an SMP PDU, opcode first, from peer.
func (m *Manager) Receive(peer ble.Addr, pdu []byte) error {
	l, err := m.link(peer)
	if err != nil {
		return err
	}

	cmd, err := Decode(pdu)
	if err != nil {
		l.log.Warnf("smp rx [%X]: %v", pdu, err)
		if errors.Cause(err) == ErrUnsupportedCommand {
			// C.5.1, answer commands we don't implement
			b := Encode(PairingFailed{Reason: CommandNotSupported})
			if serr := m.transport.SendPDU(peer, b); serr != nil {
				return errors.Wrap(serr, "can't reject command")
			}
		}
		return err
	}

	l.log.Debugf("smp rx %v [%X]", pduName(cmd.Code()), pdu)
	l.post(newPDUEvent(cmd))
	return nil
}

// LongTermKeyRequest handles the controller asking a slave for the key of
// an encryption request. EDIV and Rand of zero select the STK of the
// pairing in progress; otherwise the LTK of the bond is rebuilt.
func (m *Manager) LongTermKeyRequest(peer ble.Addr, ediv uint16, rand uint64) error {
	l, err := m.link(peer)
	if err != nil {
		return err
	}
	if l.info.Role != RoleSlave {
		return errors.Errorf("ltk request on %v link", l.info.Role)
	}

	if ediv == 0 && rand == 0 {
		l.post(evSignal(evtEncryptionRequest))
		return nil
	}

	rec, err := m.db.Find(peer)
	if err != nil && errors.Cause(err) != ErrRecordNotFound {
		return errors.Wrap(err, "can't look up bond")
	}
	key, ok := rec.Key(KeyLocalEncryption)
	if !ok || key.EDIV != ediv || key.Rand != rand {
		l.log.Warnf("no ltk for ediv 0x%04x", ediv)
		return m.transport.ReplyLongTermKey(peer, nil)
	}

	regenerateLTK(m.crypto, m.er, m.dhk, ediv, rand, key.Size, func(ltk [16]byte, div uint16, err error) {
		var reply []byte
		switch {
		case err != nil:
			l.log.Errorf("regenerate ltk: %v", err)
		case div != key.DIV:
			l.log.Warnf("recovered div 0x%04x, bond has 0x%04x", div, key.DIV)
		default:
			reply = ltk[:]
		}
		if err := m.transport.ReplyLongTermKey(peer, reply); err != nil {
			l.log.Errorf("ltk reply: %v", err)
		}
	})
	return nil
}

// EncryptionChanged reports the result of link encryption.
func (m *Manager) EncryptionChanged(peer ble.Addr, ok bool) error {
	return m.post(peer, evEncrypted{ok: ok})
}

func (m *Manager) post(peer ble.Addr, ev event) error {
	l, err := m.link(peer)
	if err != nil {
		return err
	}
	l.post(ev)
	return nil
}

// StartPairing starts security on the link. A master sends a pairing
// request once the IO capabilities are known, a slave sends a security
// request.
func (m *Manager) StartPairing(peer ble.Addr) error {
	return m.post(peer, evSignal(evtLinkConnected))
}

// IOCapabilityResponse answers IOCapRequest.
func (m *Manager) IOCapabilityResponse(peer ble.Addr, p PairingParams) error {
	return m.post(peer, evIOResponse{params: p})
}

// SecurityGrant answers SecurityRequest. Any reason but Success rejects.
func (m *Manager) SecurityGrant(peer ble.Addr, reason Reason) error {
	return m.post(peer, evSecGrant{reason: reason})
}

// PasskeyReply answers PasskeyRequest.
func (m *Manager) PasskeyReply(peer ble.Addr, reason Reason, passkey uint32) error {
	if reason != Success || passkey > maxPasskey {
		return m.post(peer, evAuthComplete{reason: PasskeyEntryFailed})
	}
	return m.post(peer, evKeyReady{kind: keyTK, value: legacyPairingTK(passkey), passkey: passkey, app: true})
}

// OOBDataReply answers OOBRequest with the 16 octet TK, LSB first.
func (m *Manager) OOBDataReply(peer ble.Addr, reason Reason, data []byte) error {
	if reason != Success || len(data) != 16 {
		return m.post(peer, evAuthComplete{reason: OOBNotAvailable})
	}
	k := evKeyReady{kind: keyTK, app: true}
	copy(k.value[:], data)
	return m.post(peer, k)
}

// CancelPairing aborts the attempt in progress.
func (m *Manager) CancelPairing(peer ble.Addr) error {
	return m.post(peer, evAuthComplete{reason: UnspecifiedReason})
}
