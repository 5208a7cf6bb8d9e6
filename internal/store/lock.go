package store

import (
	"os"
)

// fileLock is an advisory lock on a sidecar file. The operating system drops
// it when the process exits, so a crash never leaves the store locked.
type fileLock struct {
	f *os.File
}

// acquire blocks until the lock is held. Readers take a shared lock,
// writers an exclusive one.
func acquire(path string, exclusive bool) (*fileLock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, err
	}
	if err := lockFile(f, exclusive); err != nil {
		_ = f.Close()
		return nil, err
	}
	return &fileLock{f: f}, nil
}

func (l *fileLock) release() error {
	uerr := unlockFile(l.f)
	cerr := l.f.Close()
	if uerr != nil {
		return uerr
	}
	return cerr
}
