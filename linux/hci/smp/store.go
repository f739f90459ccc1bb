package smp

import (
	"fmt"
	"sync"

	"github.com/pkg/errors"
	ble "github.com/rigado/blesmp"
)

// ErrRecordNotFound is returned by SecurityDB.Find for unknown peers.
var ErrRecordNotFound = errors.New("security record not found")

// KeyKind identifies a key kept in a security record.
type KeyKind uint8

const (
	KeyPeerEncryption  KeyKind = iota + 1 // LTK handed out by the peer
	KeyLocalEncryption                    // LTK we distributed, kept for its DIV
	KeyPeerIdentity                       // peer IRK and identity address
	KeyLocalSigning                       // our CSRK
	KeyPeerSigning                        // peer CSRK
)

var keyKindStrings = map[KeyKind]string{
	KeyPeerEncryption:  "peer-enc",
	KeyLocalEncryption: "local-enc",
	KeyPeerIdentity:    "peer-id",
	KeyLocalSigning:    "local-csrk",
	KeyPeerSigning:     "peer-csrk",
}

func (k KeyKind) String() string {
	if s, ok := keyKindStrings[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Key is one piece of distributed key material.
type Key struct {
	Kind     KeyKind       `json:"kind"`
	Value    []byte        `json:"value"`
	EDIV     uint16        `json:"ediv,omitempty"`
	Rand     uint64        `json:"rand,omitempty"`
	DIV      uint16        `json:"div,omitempty"`
	Size     int           `json:"size,omitempty"`
	Level    SecurityLevel `json:"level,omitempty"`
	AddrType ble.AddrType  `json:"addrType,omitempty"`
	Addr     string        `json:"addr,omitempty"`
	Counter  uint32        `json:"counter,omitempty"`
}

// Record holds everything known about one peer.
type Record struct {
	Address string          `json:"address"`
	DIV     uint16          `json:"div,omitempty"`
	Bonded  bool            `json:"bonded"`
	Keys    map[KeyKind]Key `json:"keys"`
}

// Key returns the key of kind k if present.
func (r *Record) Key(k KeyKind) (Key, bool) {
	if r == nil || r.Keys == nil {
		return Key{}, false
	}
	v, ok := r.Keys[k]
	return v, ok
}

// Clone returns a deep copy of r.
func (r *Record) Clone() *Record {
	out := &Record{Address: r.Address, DIV: r.DIV, Bonded: r.Bonded, Keys: make(map[KeyKind]Key, len(r.Keys))}
	for k, v := range r.Keys {
		v.Value = append([]byte(nil), v.Value...)
		out.Keys[k] = v
	}
	return out
}

// Apply merges key into r, the way every SecurityDB stores a key.
func (r *Record) Apply(key Key, bonding bool) {
	if r.Keys == nil {
		r.Keys = make(map[KeyKind]Key)
	}
	key.Value = append([]byte(nil), key.Value...)
	r.Keys[key.Kind] = key
	if key.Kind == KeyLocalEncryption && key.DIV != 0 {
		r.DIV = key.DIV
	}
	r.Bonded = r.Bonded || bonding
}

// SecurityDB is the long-term store of security records.
type SecurityDB interface {
	// DIV returns the diversifier of peer, allocating one if needed.
	DIV(peer ble.Addr) (uint16, error)
	SaveKey(peer ble.Addr, key Key, bonding bool) error
	Find(peer ble.Addr) (*Record, error)
	Delete(peer ble.Addr) error
}

// MemoryDB is a SecurityDB kept in memory.
type MemoryDB struct {
	lock    sync.RWMutex
	records map[string]*Record
	lastDIV uint16
}

func NewMemoryDB() *MemoryDB {
	return &MemoryDB{records: make(map[string]*Record)}
}

func (m *MemoryDB) record(peer ble.Addr) *Record {
	r, ok := m.records[peer.String()]
	if !ok {
		r = &Record{Address: peer.String(), Keys: make(map[KeyKind]Key)}
		m.records[peer.String()] = r
	}
	return r
}

func (m *MemoryDB) DIV(peer ble.Addr) (uint16, error) {
	m.lock.Lock()
	defer m.lock.Unlock()

	r := m.record(peer)
	if r.DIV == 0 {
		m.lastDIV++
		if m.lastDIV == 0 {
			m.lastDIV++
		}
		r.DIV = m.lastDIV
	}
	return r.DIV, nil
}

func (m *MemoryDB) SaveKey(peer ble.Addr, key Key, bonding bool) error {
	m.lock.Lock()
	defer m.lock.Unlock()

	m.record(peer).Apply(key, bonding)
	return nil
}

func (m *MemoryDB) Find(peer ble.Addr) (*Record, error) {
	m.lock.RLock()
	defer m.lock.RUnlock()

	r, ok := m.records[peer.String()]
	if !ok {
		return nil, errors.Wrapf(ErrRecordNotFound, "%v", peer)
	}
	return r.Clone(), nil
}

func (m *MemoryDB) Delete(peer ble.Addr) error {
	m.lock.Lock()
	defer m.lock.Unlock()

	delete(m.records, peer.String())
	return nil
}

// Records returns a copy of every record.
func (m *MemoryDB) Records() []*Record {
	m.lock.RLock()
	defer m.lock.RUnlock()

	out := make([]*Record, 0, len(m.records))
	for _, r := range m.records {
		out = append(out, r.Clone())
	}
	return out
}
