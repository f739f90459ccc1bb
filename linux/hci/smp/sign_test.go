package smp

import (
	"bytes"
	"testing"
)

func TestAesCMAC(t *testing.T) {
	key := []byte("Stt8Zh+srft8Uv0q26R2FNo/QtQJ+RJL")
	msg := []byte("message")
	response := []byte{206, 52, 198, 186, 125, 62, 93, 46, 130, 150, 87, 239, 31, 97, 228, 37}

	r, err := aesCMAC(key, msg)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(r, response) {
		t.Fatal("Response didn't match")
	}

}

func TestSignData(t *testing.T) {
	csrk := bytes.Repeat([]byte{0x5a}, 16)
	msg := []byte{0x12, 0x34, 0x00, 0x01}

	sig, err := SignData(csrk, 7, msg)
	if err != nil {
		t.Fatal(err)
	}
	if len(sig) != SignatureLen {
		t.Fatalf("signature length %d", len(sig))
	}

	counter, err := VerifySignature(csrk, msg, sig)
	if err != nil {
		t.Fatal(err)
	}
	if counter != 7 {
		t.Fatalf("counter %d", counter)
	}

	sig2, err := SignData(csrk, 8, msg)
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Equal(sig[4:], sig2[4:]) {
		t.Fatal("counter not covered by the mac")
	}

	bad := append([]byte(nil), msg...)
	bad[0] ^= 1
	if _, err := VerifySignature(csrk, bad, sig); err == nil {
		t.Fatal("tampered message verified")
	}

	if _, err := SignData(csrk[:8], 0, msg); err == nil {
		t.Fatal("short csrk accepted")
	}
}
