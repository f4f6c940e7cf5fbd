// Package shmna is the native-RMA substrate: unlike tcpna, which
// emulates one-sided PUT/GET over a two-sided connection and a
// dedicated service goroutine, shmna backs a registered memory region
// with an mmap'd file any peer sharing the same filesystem (same host,
// or a shared volume) can map directly. A PUT or GET becomes a
// synchronous memcpy into the mapped region under flock, with no
// control-record round trip and no service goroutine at all.
package shmna

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// mapping is one mmap'd shared-memory-backed region.
type mapping struct {
	file *os.File
	data []byte
}

func createMapping(path string, length int) (*mapping, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return nil, fmt.Errorf("shmna: open %s: %w", path, err)
	}
	if err := f.Truncate(int64(length)); err != nil {
		f.Close()
		os.Remove(path)
		return nil, fmt.Errorf("shmna: truncate %s: %w", path, err)
	}
	return mapFile(f, length)
}

func openMapping(path string, length int) (*mapping, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("shmna: open %s: %w", path, err)
	}
	return mapFile(f, length)
}

func mapFile(f *os.File, length int) (*mapping, error) {
	data, err := unix.Mmap(int(f.Fd()), 0, length, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("shmna: mmap: %w", err)
	}
	return &mapping{file: f, data: data}, nil
}

// withLock runs fn while holding an exclusive flock on the mapping's
// backing file, serializing cross-process access for the duration of a
// PUT/GET copy.
func (m *mapping) withLock(fn func(buf []byte) error) error {
	fd := int(m.file.Fd())
	if err := unix.Flock(fd, unix.LOCK_EX); err != nil {
		return fmt.Errorf("shmna: flock: %w", err)
	}
	defer unix.Flock(fd, unix.LOCK_UN)
	return fn(m.data)
}

func (m *mapping) close(remove bool) error {
	path := m.file.Name()
	err := unix.Munmap(m.data)
	m.file.Close()
	if remove {
		os.Remove(path)
	}
	return err
}
