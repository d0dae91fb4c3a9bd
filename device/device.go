// Package device wraps the single raw block device a kfs image is stored
// on. It is the "external collaborator" spec.md §1 mentions but never
// specifies: kfs (the core) only ever calls ReadBlock/WriteBlock on a
// *Device, never touches the backing file directly.
//
// Grounded on the teacher's io.ReaderAt/io.WriterAt split (super.go's
// `fs io.ReaderAt` field, writer.go's io.WriterAt detection of the sink).
package device

import (
	"fmt"
	"io"
	"os"

	"golang.org/x/sys/unix"
)

// Backend is anything that can back a Device. *os.File satisfies it; tests
// may substitute an in-memory implementation.
type Backend interface {
	io.ReaderAt
	io.WriterAt
	Sync() error
	Close() error
}

// Device is the single mounted block device. spec.md's non-goals exclude
// multiple devices; Device enforces that at the process level by taking an
// advisory exclusive lock on open when the backend is a regular file.
type Device struct {
	backend Backend
	label   string
	file    *os.File // non-nil only when backend came from Open, for Flock
}

// Open opens path as the backing store for one kfs device and takes an
// advisory exclusive lock on it so a second process cannot mount the same
// image concurrently. label is an in-memory-only identifier used in error
// messages; it is never persisted to disk.
func Open(path, label string) (*Device, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("device: open %s: %w", path, err)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		return nil, fmt.Errorf("device: %s is already mounted: %w", path, err)
	}
	return &Device{backend: f, label: label, file: f}, nil
}

// Wrap adapts an arbitrary Backend (e.g. an in-memory image used by tests)
// into a Device without taking a file lock.
func Wrap(b Backend, label string) *Device {
	return &Device{backend: b, label: label}
}

// Label returns the device's diagnostic label.
func (d *Device) Label() string { return d.label }

// ReadBlock reads one bsize-byte block numbered blockno into buf, which
// must be exactly bsize bytes.
func (d *Device) ReadBlock(bsize int, blockno uint32, buf []byte) error {
	if len(buf) != bsize {
		return fmt.Errorf("device: buffer size %d != block size %d", len(buf), bsize)
	}
	_, err := d.backend.ReadAt(buf, int64(blockno)*int64(bsize))
	if err != nil && err != io.EOF {
		return fmt.Errorf("device[%s]: read block %d: %w", d.label, blockno, err)
	}
	return nil
}

// WriteBlock writes buf (exactly bsize bytes) to block blockno.
func (d *Device) WriteBlock(bsize int, blockno uint32, buf []byte) error {
	if len(buf) != bsize {
		return fmt.Errorf("device: buffer size %d != block size %d", len(buf), bsize)
	}
	_, err := d.backend.WriteAt(buf, int64(blockno)*int64(bsize))
	if err != nil {
		return fmt.Errorf("device[%s]: write block %d: %w", d.label, blockno, err)
	}
	return nil
}

// Sync flushes any buffered writes to stable storage.
func (d *Device) Sync() error {
	if err := d.backend.Sync(); err != nil {
		return fmt.Errorf("device[%s]: sync: %w", d.label, err)
	}
	return nil
}

// Close releases the backend and, if held, the advisory lock.
func (d *Device) Close() error {
	if d.file != nil {
		unix.Flock(int(d.file.Fd()), unix.LOCK_UN)
	}
	return d.backend.Close()
}
