package device

import (
	"io"
	"sync"
)

// MemBackend is an in-memory Backend used by tests, grounded on the
// teacher's mock_test.go mockReader (a minimal io.ReaderAt stand-in used
// to exercise error paths without a real file).
type MemBackend struct {
	mu   sync.Mutex
	data []byte
}

// NewMemBackend returns a zero-filled backend of the given size in bytes.
func NewMemBackend(size int) *MemBackend {
	return &MemBackend{data: make([]byte, size)}
}

func (m *MemBackend) ReadAt(p []byte, off int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if off >= int64(len(m.data)) {
		return 0, io.EOF
	}
	n := copy(p, m.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (m *MemBackend) WriteAt(p []byte, off int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	end := off + int64(len(p))
	if end > int64(len(m.data)) {
		grown := make([]byte, end)
		copy(grown, m.data)
		m.data = grown
	}
	return copy(m.data[off:], p), nil
}

func (m *MemBackend) Sync() error { return nil }
func (m *MemBackend) Close() error { return nil }

// Bytes returns a copy of the whole backing store, useful for test
// assertions.
func (m *MemBackend) Bytes() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]byte, len(m.data))
	copy(out, m.data)
	return out
}
