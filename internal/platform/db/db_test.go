package db

import (
	"path/filepath"
	"testing"

	"github.com/dgraph-io/badger/v4"
)

func TestOpenBadgerOnDisk(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "votes")
	store, err := OpenBadger(dir, nil)
	if err != nil {
		t.Fatalf("open badger failed: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	if err := store.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte("voting/b-1"), []byte(`{}`))
	}); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if err := store.View(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte("voting/b-1"))
		return err
	}); err != nil {
		t.Fatalf("read back failed: %v", err)
	}
}

func TestOpenSQLiteFile(t *testing.T) {
	handle, err := OpenSQLite(filepath.Join(t.TempDir(), "data", "snt.db"))
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	t.Cleanup(func() { _ = handle.Close() })

	var one int
	if err := handle.DB.Raw("SELECT 1").Scan(&one).Error; err != nil || one != 1 {
		t.Fatalf("expected SELECT 1 to work, got %d err=%v", one, err)
	}
}
