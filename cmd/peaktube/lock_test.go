package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestAcquireInstanceLock_CreatesMissingDir(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "fresh", "data", "bot.db")

	lock, err := acquireInstanceLock(dbPath)
	if err != nil {
		t.Fatalf("acquireInstanceLock: %v", err)
	}
	defer lock.Unlock()

	if _, err := os.Stat(dbPath + ".lock"); err != nil {
		t.Errorf("lock file missing: %v", err)
	}
}

func TestAcquireInstanceLock_SecondInstanceRefused(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "bot.db")

	lock, err := acquireInstanceLock(dbPath)
	if err != nil {
		t.Fatalf("first lock: %v", err)
	}
	defer lock.Unlock()

	if second, err := acquireInstanceLock(dbPath); err == nil {
		second.Unlock()
		t.Fatal("second lock on the same database should fail")
	}
}
