package smp

import "strings"

// KeyDist is the key distribution bitfield of the pairing request and response.
type KeyDist uint8

const (
	KeyDistEnc  KeyDist = 0x01 // LTK, EDIV, Rand
	KeyDistId   KeyDist = 0x02 // IRK, identity address
	KeyDistSign KeyDist = 0x04 // CSRK
	KeyDistLink KeyDist = 0x08 // BR/EDR link key, never distributed here

	KeyDistAll = KeyDistEnc | KeyDistId | KeyDistSign
)

// fixed distribution order
var keyDistOrder = []KeyDist{KeyDistEnc, KeyDistId, KeyDistSign}

var keyDistNames = map[KeyDist]string{
	KeyDistEnc:  "enc",
	KeyDistId:   "id",
	KeyDistSign: "sign",
	KeyDistLink: "link",
}

func (k KeyDist) Has(f KeyDist) bool {
	return k&f != 0
}

// Next returns the highest priority key still set, or 0.
func (k KeyDist) Next() KeyDist {
	for _, f := range keyDistOrder {
		if k.Has(f) {
			return f
		}
	}
	return 0
}

func (k KeyDist) String() string {
	if k == 0 {
		return "none"
	}
	var s []string
	for _, f := range []KeyDist{KeyDistEnc, KeyDistId, KeyDistSign, KeyDistLink} {
		if k.Has(f) {
			s = append(s, keyDistNames[f])
		}
	}
	return strings.Join(s, "|")
}
