package smp

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// Key derivations run as chains over the Crypto service. Inputs are copied
// from the control block before the first request so completions never
// read it; every result is posted back to the link as an event.

// encrypt2 computes e(k, e(k, a) ^ b).
func encrypt2(c Crypto, k, a, b [16]byte, done func([16]byte, error)) {
	c.Encrypt(k, a, func(t [16]byte, err error) {
		if err != nil {
			done(t, err)
			return
		}
		c.Encrypt(k, xor16(t, b), done)
	})
}

// c1Async is c1 on the crypto service.
func c1Async(c Crypto, k, r [16]byte, preq, pres []byte, iat, rat byte, ia, ra []byte, done func([16]byte, error)) {
	encrypt2(c, k, xor16(r, c1P1(preq, pres, iat, rat)), c1P2(ia, ra), done)
}

// deliver returns a completion that posts ok(result) or fails the attempt.
func (p *pairing) deliver(what string, ok func([16]byte) event) func([16]byte, error) {
	l, gen, log := p.l, p.l.gen, p.log
	return func(v [16]byte, err error) {
		if err != nil {
			log.Errorf("%v: %v", what, err)
			l.postGen(gen, evAuthComplete{reason: InternalError})
			return
		}
		l.postGen(gen, ok(v))
	}
}

func (p *pairing) internalError(what string, err error) {
	p.log.Errorf("%v: %v", what, err)
	p.fail(InternalError)
}

// startConfirm draws a nonce and computes the local confirm value.
func (p *pairing) startConfirm() {
	cr, l, gen, log := p.m().crypto, p.l, p.l.gen, p.log
	tk, preq, pres := p.tk, p.preq, p.pres
	ia, ra, iat, rat := p.addresses()

	cr.Random(16, func(b []byte, err error) {
		if err == nil && len(b) < 16 {
			err = errors.Errorf("short random %d", len(b))
		}
		if err != nil {
			log.Errorf("confirm nonce: %v", err)
			l.postGen(gen, evAuthComplete{reason: InternalError})
			return
		}
		var r [16]byte
		copy(r[:], b)
		c1Async(cr, tk, r, preq, pres, iat, rat, ia, ra, func(v [16]byte, err error) {
			if err != nil {
				log.Errorf("confirm: %v", err)
				l.postGen(gen, evAuthComplete{reason: InternalError})
				return
			}
			l.postGen(gen, evKeyReady{kind: keyConfirm, value: v, rand: r})
		})
	})
}

// startCompare computes the confirm value the peer should have sent.
func (p *pairing) startCompare() {
	ia, ra, iat, rat := p.addresses()
	c1Async(p.m().crypto, p.tk, p.rrand, p.preq, p.pres, iat, rat, ia, ra,
		p.deliver("compare", func(v [16]byte) event {
			return evKeyReady{kind: keyCompare, value: v}
		}))
}

// startSTK computes STK = s1(TK, Srand, Mrand), masked to the key size.
func (p *pairing) startSTK() {
	mrand, srand := p.masterSlaveRand()
	size := p.encSize
	p.m().crypto.Encrypt(p.tk, s1Input(mrand, srand),
		p.deliver("stk", func(v [16]byte) event {
			return evKeyReady{kind: keySTK, value: maskKey(v, size)}
		}))
}

// startPasskey draws the passkey this device displays.
func (p *pairing) startPasskey() {
	l, gen, log := p.l, p.l.gen, p.log
	p.m().crypto.Random(4, func(b []byte, err error) {
		if err == nil && len(b) < 4 {
			err = errors.Errorf("short random %d", len(b))
		}
		if err != nil {
			log.Errorf("passkey: %v", err)
			l.postGen(gen, evAuthComplete{reason: InternalError})
			return
		}
		pk := passkeyFromRandom(b)
		l.postGen(gen, evKeyReady{kind: keyTK, value: legacyPairingTK(pk), passkey: pk, display: true})
	})
}

// startLTK generates the LTK we distribute: LTK = d1(ER, DIV, 0) and
// EDIV = DIV ^ dm(DHK, Rand).
func (p *pairing) startLTK() {
	m := p.m()
	div, err := m.db.DIV(p.l.info.Peer)
	if err != nil {
		p.internalError("div", err)
		return
	}

	cr, l, gen, log := m.crypto, p.l, p.l.gen, p.log
	er, dhk, size := m.er, m.dhk, p.encSize
	failed := func(what string, err error) {
		log.Errorf("%v: %v", what, err)
		l.postGen(gen, evAuthComplete{reason: InternalError})
	}

	cr.Random(8, func(b []byte, err error) {
		if err == nil && len(b) < 8 {
			err = errors.Errorf("short random %d", len(b))
		}
		if err != nil {
			failed("ltk rand", err)
			return
		}
		encRand := binary.LittleEndian.Uint64(b)
		cr.Encrypt(er, d1Input(div, 0), func(ltk [16]byte, err error) {
			if err != nil {
				failed("ltk", err)
				return
			}
			cr.Encrypt(dhk, dmInput(encRand), func(y [16]byte, err error) {
				if err != nil {
					failed("ediv", err)
					return
				}
				l.postGen(gen, evKeyReady{
					kind:    keyLTK,
					value:   maskKey(ltk, size),
					div:     div,
					ediv:    div ^ dmOutput(y),
					encRand: encRand,
				})
			})
		})
	})
}

// startCSRK generates CSRK = d1(ER, DIV, 1).
func (p *pairing) startCSRK() {
	m := p.m()
	div, err := m.db.DIV(p.l.info.Peer)
	if err != nil {
		p.internalError("div", err)
		return
	}
	m.crypto.Encrypt(m.er, d1Input(div, 1),
		p.deliver("csrk", func(v [16]byte) event {
			return evKeyReady{kind: keyCSRK, value: v, div: div}
		}))
}

// regenerateLTK recovers DIV from EDIV and rebuilds the LTK of a bond.
// done receives the key and the recovered DIV.
func regenerateLTK(c Crypto, er, dhk [16]byte, ediv uint16, rand uint64, size int, done func([16]byte, uint16, error)) {
	c.Encrypt(dhk, dmInput(rand), func(y [16]byte, err error) {
		if err != nil {
			done(y, 0, errors.Wrap(err, "dm"))
			return
		}
		div := ediv ^ dmOutput(y)
		c.Encrypt(er, d1Input(div, 0), func(ltk [16]byte, err error) {
			if err != nil {
				done(ltk, div, errors.Wrap(err, "d1"))
				return
			}
			done(maskKey(ltk, size), div, nil)
		})
	})
}
