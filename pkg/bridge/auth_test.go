package bridge

import (
	"bytes"
	"testing"
)

func TestProveAndVerify(t *testing.T) {
	challenge, err := newChallenge()
	if err != nil {
		t.Fatalf("newChallenge failed: %v", err)
	}

	proof, err := prove("pit-lane-secret", challenge)
	if err != nil {
		t.Fatalf("prove failed: %v", err)
	}

	ok, err := verifyProof("pit-lane-secret", challenge, proof)
	if err != nil {
		t.Fatalf("verifyProof failed: %v", err)
	}
	if !ok {
		t.Error("valid proof rejected")
	}
}

func TestVerifyRejectsWrongPassphrase(t *testing.T) {
	challenge, err := newChallenge()
	if err != nil {
		t.Fatalf("newChallenge failed: %v", err)
	}

	proof, err := prove("wrong", challenge)
	if err != nil {
		t.Fatalf("prove failed: %v", err)
	}

	ok, err := verifyProof("right", challenge, proof)
	if err != nil {
		t.Fatalf("verifyProof failed: %v", err)
	}
	if ok {
		t.Error("proof with wrong passphrase accepted")
	}
}

func TestVerifyRejectsTamperedProof(t *testing.T) {
	challenge, err := newChallenge()
	if err != nil {
		t.Fatalf("newChallenge failed: %v", err)
	}
	proof, err := prove("secret", challenge)
	if err != nil {
		t.Fatalf("prove failed: %v", err)
	}
	proof[0] ^= 0xFF

	ok, err := verifyProof("secret", challenge, proof)
	if err != nil {
		t.Fatalf("verifyProof failed: %v", err)
	}
	if ok {
		t.Error("tampered proof accepted")
	}
}

func TestChallengeUniqueness(t *testing.T) {
	a, err := newChallenge()
	if err != nil {
		t.Fatalf("newChallenge failed: %v", err)
	}
	b, err := newChallenge()
	if err != nil {
		t.Fatalf("newChallenge failed: %v", err)
	}
	if bytes.Equal(a.Nonce, b.Nonce) {
		t.Error("consecutive challenges share a nonce")
	}
	if len(a.Salt) != saltSize || len(a.Nonce) != nonceSize {
		t.Errorf("challenge sizes = %d/%d, want %d/%d", len(a.Salt), len(a.Nonce), saltSize, nonceSize)
	}
}

func TestDeriveKeyDependsOnSalt(t *testing.T) {
	k1, err := deriveKey("secret", []byte("salt-one........"))
	if err != nil {
		t.Fatalf("deriveKey failed: %v", err)
	}
	k2, err := deriveKey("secret", []byte("salt-two........"))
	if err != nil {
		t.Fatalf("deriveKey failed: %v", err)
	}
	if bytes.Equal(k1, k2) {
		t.Error("different salts produced the same key")
	}
}
