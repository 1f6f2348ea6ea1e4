package ipc

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/gofrs/flock"
	"golang.org/x/sys/unix"
)

var (
	// ErrPIDFileLocked means another live instance owns the PID file.
	ErrPIDFileLocked = errors.New("pid file is held by a running process")

	// ErrPIDFile covers PID file I/O failures.
	ErrPIDFile = errors.New("pid file error")
)

// PIDFile guards single-instance startup. The PID file itself holds the
// decimal pid; an advisory lock on "<path>.lock" closes the window between
// the liveness check and the write.
type PIDFile struct {
	path string
	lock *flock.Flock

	mu    sync.Mutex
	owned bool
}

// NewPIDFile создаёт PIDFile для указанного пути
func NewPIDFile(path string) *PIDFile {
	return &PIDFile{
		path: path,
		lock: flock.New(path + ".lock"),
	}
}

// Path returns the PID file path.
func (p *PIDFile) Path() string {
	return p.path
}

// Create acquires the lock and writes the current pid. A file naming a live
// process fails with ErrPIDFileLocked; a stale file is overwritten.
func (p *PIDFile) Create() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(p.path), 0755); err != nil {
		return fmt.Errorf("%w: create directory: %w", ErrPIDFile, err)
	}

	locked, err := p.lock.TryLock()
	if err != nil {
		return fmt.Errorf("%w: acquire lock: %w", ErrPIDFile, err)
	}
	if !locked {
		return fmt.Errorf("%w: lock %s held by another process", ErrPIDFileLocked, p.lock.Path())
	}

	if pid, err := ReadPID(p.path); err == nil && pid != os.Getpid() && IsRunning(pid) {
		_ = p.lock.Unlock()
		return fmt.Errorf("%w: pid %d (%s)", ErrPIDFileLocked, pid, p.path)
	}

	data := strconv.Itoa(os.Getpid()) + "\n"
	if err := os.WriteFile(p.path, []byte(data), 0600); err != nil {
		_ = p.lock.Unlock()
		return fmt.Errorf("%w: write %s: %w", ErrPIDFile, p.path, err)
	}

	p.owned = true
	return nil
}

// Read returns the pid stored in the file.
func (p *PIDFile) Read() (int, error) {
	return ReadPID(p.path)
}

// Exists reports whether the PID file is present.
func (p *PIDFile) Exists() bool {
	_, err := os.Stat(p.path)
	return err == nil
}

// Remove deletes the PID file and releases the lock. A missing file is not
// an error.
func (p *PIDFile) Remove() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var errs []error
	if err := os.Remove(p.path); err != nil && !os.IsNotExist(err) {
		errs = append(errs, fmt.Errorf("%w: remove %s: %w", ErrPIDFile, p.path, err))
	}
	if p.owned {
		if err := p.lock.Unlock(); err != nil {
			errs = append(errs, fmt.Errorf("%w: release lock: %w", ErrPIDFile, err))
		}
		p.owned = false
	}
	return errors.Join(errs...)
}

// ReadPID читает PID из файла
func ReadPID(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("%w: %s does not contain a pid: %w", ErrPIDFile, path, err)
	}
	if pid <= 0 {
		return 0, fmt.Errorf("%w: %s contains invalid pid %d", ErrPIDFile, path, pid)
	}

	return pid, nil
}

// IsRunning проверяет что процесс запущен (signal 0).
// EPERM означает, что процесс существует, но принадлежит другому пользователю.
func IsRunning(pid int) bool {
	if pid <= 0 {
		return false
	}

	err := unix.Kill(pid, 0)
	return err == nil || errors.Is(err, unix.EPERM)
}
