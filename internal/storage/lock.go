package storage

import (
	"os"
	"sync"
	"syscall"
)

// FileLock guards a storage file against concurrent writers. The mutex
// serializes goroutines within this process; the flock on a sidecar .lock
// file covers other processes sharing the data directory.
type FileLock struct {
	lockPath string
	mu       sync.Mutex
	f        *os.File
}

// NewFileLock returns a lock for the given storage file path.
func NewFileLock(path string) *FileLock {
	return &FileLock{lockPath: path + ".lock"}
}

// Lock blocks until the lock is held.
func (l *FileLock) Lock() error {
	l.mu.Lock()
	if err := l.acquire(syscall.LOCK_EX); err != nil {
		l.mu.Unlock()
		return err
	}
	return nil
}

// TryLock acquires the lock only if it is immediately available.
func (l *FileLock) TryLock() bool {
	if !l.mu.TryLock() {
		return false
	}
	if err := l.acquire(syscall.LOCK_EX | syscall.LOCK_NB); err != nil {
		l.mu.Unlock()
		return false
	}
	return true
}

// Unlock releases the lock and removes the sidecar file. Callers must
// hold the lock.
func (l *FileLock) Unlock() {
	if l.f != nil {
		syscall.Flock(int(l.f.Fd()), syscall.LOCK_UN)
		l.f.Close()
		os.Remove(l.lockPath)
		l.f = nil
	}
	l.mu.Unlock()
}

func (l *FileLock) acquire(how int) error {
	f, err := os.OpenFile(l.lockPath, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return err
	}
	if err := syscall.Flock(int(f.Fd()), how); err != nil {
		f.Close()
		return err
	}
	l.f = f
	return nil
}
