package state

import (
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"epochstake/crypto"
)

var (
	stakeRecordPrefix = []byte("epochstake/record/")
	stakePoolKeyBytes = []byte("epochstake/pool")
	bankAccountPrefix = []byte("bank/account/")
	stateVersionKey   = []byte("state/version")
)

func prefixedKey(prefix []byte, suffix []byte) []byte {
	buf := make([]byte, len(prefix)+len(suffix))
	copy(buf, prefix)
	copy(buf[len(prefix):], suffix)
	return buf
}

// StakeRecordKey returns the unhashed key of owner's stake record.
func StakeRecordKey(owner crypto.Address) []byte {
	return prefixedKey(stakeRecordPrefix, owner[:])
}

// StakePoolKey returns the unhashed key of the pool singleton.
func StakePoolKey() []byte {
	return append([]byte(nil), stakePoolKeyBytes...)
}

// BankAccountKey returns the unhashed key of the bank account at addr.
func BankAccountKey(addr crypto.Address) []byte {
	return prefixedKey(bankAccountPrefix, addr[:])
}

func kvKey(key []byte) []byte {
	return ethcrypto.Keccak256(key)
}
