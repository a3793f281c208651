package state

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"epochstake/crypto"
	"epochstake/storage"
)

func newTestManager(t *testing.T) (*Manager, *storage.MemDB) {
	t.Helper()
	db := storage.NewMemDB()
	t.Cleanup(db.Close)
	return NewManager(db), db
}

func TestUpdateCommitsAndReadsOwnWrites(t *testing.T) {
	mgr, db := newTestManager(t)
	key := []byte("counter")

	err := mgr.Update([][]byte{key}, func(txn *Txn) error {
		require.NoError(t, txn.KVPut(key, uint64(7)))
		var got uint64
		ok, err := txn.KVGet(key, &got)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, uint64(7), got)
		require.Empty(t, db.Keys(), "writes must stay staged until commit")
		return nil
	})
	require.NoError(t, err)
	require.Len(t, db.Keys(), 1)

	err = mgr.View([][]byte{key}, func(txn *Txn) error {
		var got uint64
		ok, err := txn.KVGet(key, &got)
		require.True(t, ok)
		require.Equal(t, uint64(7), got)
		return err
	})
	require.NoError(t, err)
}

func TestUpdateDiscardsOnError(t *testing.T) {
	mgr, db := newTestManager(t)
	boom := errors.New("boom")
	err := mgr.Update([][]byte{[]byte("a")}, func(txn *Txn) error {
		require.NoError(t, txn.KVPut([]byte("a"), uint64(1)))
		require.NoError(t, txn.KVPut([]byte("b"), uint64(2)))
		return boom
	})
	require.ErrorIs(t, err, boom)
	require.Empty(t, db.Keys())
}

func TestKVDelete(t *testing.T) {
	mgr, _ := newTestManager(t)
	key := []byte("gone")
	require.NoError(t, mgr.Update(nil, func(txn *Txn) error { return txn.KVPut(key, "value") }))
	require.NoError(t, mgr.Update(nil, func(txn *Txn) error { return txn.KVDelete(key) }))
	require.NoError(t, mgr.View(nil, func(txn *Txn) error {
		ok, err := txn.KVGet(key, nil)
		require.False(t, ok)
		return err
	}))
}

func TestViewRejectsWrites(t *testing.T) {
	mgr, _ := newTestManager(t)
	err := mgr.View(nil, func(txn *Txn) error { return txn.KVPut([]byte("k"), uint64(1)) })
	require.Error(t, err)
}

func TestEmptyKeyRejected(t *testing.T) {
	mgr, _ := newTestManager(t)
	err := mgr.Update(nil, func(txn *Txn) error { return txn.KVPut(nil, uint64(1)) })
	require.Error(t, err)
}

func TestConcurrentUpdatesSerializePerKey(t *testing.T) {
	mgr, _ := newTestManager(t)
	key := []byte("shared")
	const workers = 16
	const rounds = 50

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < rounds; j++ {
				err := mgr.Update([][]byte{key, key}, func(txn *Txn) error {
					var n uint64
					if _, err := txn.KVGet(key, &n); err != nil {
						return err
					}
					return txn.KVPut(key, n+1)
				})
				if err != nil {
					t.Error(err)
					return
				}
			}
		}()
	}
	wg.Wait()

	var total uint64
	require.NoError(t, mgr.View([][]byte{key}, func(txn *Txn) error {
		_, err := txn.KVGet(key, &total)
		return err
	}))
	require.Equal(t, uint64(workers*rounds), total)
	require.Zero(t, mgr.locks.size())
}

func TestStateVersion(t *testing.T) {
	mgr, _ := newTestManager(t)
	_, ok, err := mgr.StateVersion()
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, mgr.EnsureStateVersion())
	version, ok, err := mgr.StateVersion()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, StateVersion, version)
	require.NoError(t, mgr.EnsureStateVersion())

	require.NoError(t, mgr.Update(nil, func(txn *Txn) error {
		return txn.KVPut(stateVersionKey, uint64(StateVersion+1))
	}))
	require.ErrorIs(t, mgr.EnsureStateVersion(), ErrStateVersionMismatch)
}

func TestKeysAreDistinct(t *testing.T) {
	addr := crypto.DeriveAddress([]byte("owner"))
	require.NotEqual(t, StakeRecordKey(addr), BankAccountKey(addr))
	require.NotEqual(t, kvKey(StakeRecordKey(addr)), kvKey(StakePoolKey()))
}
