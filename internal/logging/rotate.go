package logging

import (
	"bufio"
	"errors"
	"os"
	"sync"
)

// DefaultMaxSize is the rotation threshold for the log file.
const DefaultMaxSize = 1 << 20

// RotatingFile is an append-only file that moves itself to path+".old" once
// a write would take it past maxSize. Only one old generation is kept.
type RotatingFile struct {
	mu      sync.Mutex
	path    string
	maxSize int64
	f       *os.File
}

func OpenRotating(path string, maxSize int64) (*RotatingFile, error) {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	rf := &RotatingFile{path: path, maxSize: maxSize}
	if err := rf.open(); err != nil {
		return nil, err
	}
	return rf, nil
}

func (rf *RotatingFile) Path() string    { return rf.path }
func (rf *RotatingFile) OldPath() string { return rf.path + ".old" }

func (rf *RotatingFile) open() error {
	f, err := os.OpenFile(rf.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return err
	}
	rf.f = f
	return nil
}

func (rf *RotatingFile) Write(p []byte) (int, error) {
	rf.mu.Lock()
	defer rf.mu.Unlock()

	if rf.f == nil {
		if err := rf.open(); err != nil {
			return 0, err
		}
	}
	// Stat every write: the CLI and the daemon append to the same file.
	if fi, err := rf.f.Stat(); err == nil && fi.Size() > 0 && fi.Size()+int64(len(p)) > rf.maxSize {
		if err := rf.rotate(); err != nil {
			return 0, err
		}
	}
	return rf.f.Write(p)
}

func (rf *RotatingFile) rotate() error {
	if err := rf.f.Close(); err != nil {
		return err
	}
	rf.f = nil
	if err := os.Rename(rf.path, rf.OldPath()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return rf.open()
}

// Size returns the combined size of the current and old generation.
func (rf *RotatingFile) Size() (current, old int64) {
	if fi, err := os.Stat(rf.path); err == nil {
		current = fi.Size()
	}
	if fi, err := os.Stat(rf.OldPath()); err == nil {
		old = fi.Size()
	}
	return current, old
}

// Tail returns up to the last n lines of the current generation, reaching
// into the old one when the current file is short.
func (rf *RotatingFile) Tail(n int) ([]string, error) {
	if n <= 0 {
		return nil, nil
	}
	lines, err := readLines(rf.path)
	if err != nil {
		return nil, err
	}
	if len(lines) < n {
		old, err := readLines(rf.OldPath())
		if err != nil {
			return nil, err
		}
		lines = append(old, lines...)
	}
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines, nil
}

// Clear truncates the log and removes the old generation.
func (rf *RotatingFile) Clear() error {
	rf.mu.Lock()
	defer rf.mu.Unlock()

	if rf.f != nil {
		_ = rf.f.Close()
		rf.f = nil
	}
	if err := os.Remove(rf.OldPath()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	if err := os.Truncate(rf.path, 0); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return rf.open()
}

func (rf *RotatingFile) Close() error {
	rf.mu.Lock()
	defer rf.mu.Unlock()
	if rf.f == nil {
		return nil
	}
	err := rf.f.Close()
	rf.f = nil
	return err
}

func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 1<<20)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	return lines, sc.Err()
}
