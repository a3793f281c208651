// Package authority holds the capabilities that let native engines move funds
// out of program-owned accounts. Only packages under native/ can import it,
// so code outside the ledger cannot mint a capability for a known seed.
package authority

import "epochstake/crypto"

// Program is a keyless authority over the address derived from its seeds.
// The zero value authorizes nothing.
type Program struct {
	addr  crypto.Address
	seeds [][]byte
}

// Derive returns the capability for the address derived from seeds.
func Derive(seeds ...[]byte) *Program {
	copied := make([][]byte, len(seeds))
	for i, seed := range seeds {
		copied[i] = append([]byte(nil), seed...)
	}
	return &Program{addr: crypto.DeriveAddress(copied...), seeds: copied}
}

// Signer returns the derived address.
func (p *Program) Signer() crypto.Address {
	if p == nil {
		return crypto.Address{}
	}
	return p.addr
}

// Controls reports whether p is a well-formed capability over addr.
func (p *Program) Controls(addr crypto.Address) bool {
	if p == nil || len(p.seeds) == 0 || addr.IsZero() {
		return false
	}
	return p.addr == addr && crypto.DeriveAddress(p.seeds...) == addr
}
