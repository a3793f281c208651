package crypto

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
)

func TestAddressBech32RoundTrip(t *testing.T) {
	var addr Address
	copy(addr[:], bytes.Repeat([]byte{0x42}, AddressLength))

	encoded := addr.String()
	if !strings.HasPrefix(encoded, AddressPrefix+"1") {
		t.Fatalf("expected %s prefix, got %s", AddressPrefix, encoded)
	}
	decoded, err := ParseAddress(encoded)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if decoded != addr {
		t.Fatalf("round trip mismatch: %x != %x", decoded, addr)
	}
}

func TestParseAddressRejectsForeignPrefix(t *testing.T) {
	if _, err := ParseAddress("bc1qw508d6qejxtdg4y5r3zarvary0c5xw7kv8f3t4"); err == nil {
		t.Fatalf("expected prefix error")
	}
	if _, err := ParseAddress("   "); err == nil {
		t.Fatalf("expected empty address error")
	}
}

func TestAddressJSON(t *testing.T) {
	addr := DeriveAddress([]byte("json"))
	payload, err := json.Marshal(struct {
		Owner Address `json:"owner"`
	}{Owner: addr})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded struct {
		Owner Address `json:"owner"`
	}
	if err := json.Unmarshal(payload, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.Owner != addr {
		t.Fatalf("json round trip mismatch")
	}
}

func TestDeriveAddressDeterministic(t *testing.T) {
	a := DeriveAddress([]byte("staking_wallet"))
	b := DeriveAddress([]byte("staking_wallet"))
	if a != b {
		t.Fatalf("derivation not deterministic")
	}
	if a.IsZero() {
		t.Fatalf("derived address must not be zero")
	}
	// Seed boundaries are length-prefixed, so re-splitting the same bytes
	// yields a different address.
	if DeriveAddress([]byte("ab"), []byte("c")) == DeriveAddress([]byte("a"), []byte("bc")) {
		t.Fatalf("seed boundaries must affect derivation")
	}
}

func TestKeystoreRoundTrip(t *testing.T) {
	key, err := GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	path := filepath.Join(t.TempDir(), "keys", "user.json")
	if err := SaveToKeystore(path, key, "secret"); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := SaveToKeystore(path, key, "secret"); err == nil {
		t.Fatalf("expected refusal to overwrite keystore")
	}
	loaded, err := LoadFromKeystore(path, "secret")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.PubKey().Address() != key.PubKey().Address() {
		t.Fatalf("loaded key controls a different address")
	}
	if _, err := LoadFromKeystore(path, "wrong"); err == nil {
		t.Fatalf("expected wrong passphrase to fail")
	}
}
