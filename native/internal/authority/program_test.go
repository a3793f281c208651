package authority

import (
	"testing"

	"epochstake/crypto"
)

func TestDeriveControlsOnlyItsAddress(t *testing.T) {
	p := Derive([]byte("staking_wallet"))
	want := crypto.DeriveAddress([]byte("staking_wallet"))
	if p.Signer() != want || !p.Controls(want) {
		t.Fatalf("expected capability over %s, got %s", want, p.Signer())
	}
	if p.Controls(crypto.DeriveAddress([]byte("other"))) {
		t.Fatalf("capability must not cover another address")
	}
}

func TestZeroProgramAuthorizesNothing(t *testing.T) {
	var nilProgram *Program
	if nilProgram.Controls(crypto.DeriveAddress([]byte("staking_wallet"))) {
		t.Fatalf("nil capability must not authorize")
	}
	if (&Program{}).Controls(crypto.Address{}) {
		t.Fatalf("zero capability must not authorize")
	}
}

func TestDeriveCopiesSeeds(t *testing.T) {
	seed := []byte("staking_wallet")
	p := Derive(seed)
	want := p.Signer()
	seed[0] = 'X'
	if !p.Controls(want) {
		t.Fatalf("mutating the caller's seed must not affect the capability")
	}
}
