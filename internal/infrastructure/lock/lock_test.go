package lock

import (
	"path/filepath"
	"testing"
)

func TestSecondHolderIsRefused(t *testing.T) {
	path := filepath.Join(t.TempDir(), "locks", "reconcile.lock")
	first, err := New(path)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	second, _ := New(path)

	ok, err := first.TryLock()
	if err != nil || !ok {
		t.Fatalf("first TryLock() = %v, %v", ok, err)
	}
	ok, err = second.TryLock()
	if err != nil || ok {
		t.Fatalf("second TryLock() = %v, %v; want false", ok, err)
	}

	if err := first.Unlock(); err != nil {
		t.Fatalf("Unlock() error = %v", err)
	}
	ok, err = second.TryLock()
	if err != nil || !ok {
		t.Fatalf("TryLock() after release = %v, %v", ok, err)
	}
	_ = second.Unlock()
}
