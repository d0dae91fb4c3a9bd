// Package mkfs builds fresh kfs images on top of the kfs core (spec.md
// §4.N / SPEC_FULL.md §4.N). It stages the image in memory through
// orcaman/writerseeker -- the same "buffer when the sink can't do
// random-access writes" idea as the teacher's Writer (writer.go) falling
// back to a bytes.Buffer when its output io.Writer doesn't implement
// io.WriterAt -- then flushes the finished bytes to disk atomically via
// google/renameio.
package mkfs

import (
	"fmt"
	"io"
	"sync"

	"github.com/google/renameio"
	"github.com/orcaman/writerseeker"

	"github.com/kfsdev/kfs"
	"github.com/kfsdev/kfs/device"
)

// Options sizes a new image: the number of data blocks, inodes, and log
// blocks to reserve (spec.md §6's region layout).
type Options struct {
	DataBlocks uint32
	Ninodes    uint32
	NlogBlocks uint32
}

// DefaultOptions is a reasonably small image suitable for tests and
// examples: a few thousand data blocks, a few hundred inodes, a log big
// enough for the largest single transaction a Writei of one full
// doubly-indirect block could produce.
var DefaultOptions = Options{
	DataBlocks: 4096,
	Ninodes:    512,
	NlogBlocks: 32,
}

// Create formats a brand new image and atomically writes it to path.
func Create(path string, opts Options) error {
	sb := kfs.NewLayout(opts.DataBlocks, opts.Ninodes, opts.NlogBlocks)
	size := int64(sb.Size) * kfs.BSIZE

	ws := &writerseeker.WriterSeeker{}
	if _, err := ws.Write(make([]byte, size)); err != nil {
		return fmt.Errorf("mkfs: allocate staging buffer: %w", err)
	}

	backend := &stagingBackend{ws: ws}
	dev := device.Wrap(backend, path)

	if _, err := kfs.Mkfs(dev, opts.DataBlocks, opts.Ninodes, opts.NlogBlocks); err != nil {
		return fmt.Errorf("mkfs: format %s: %w", path, err)
	}

	data, err := io.ReadAll(ws.Reader())
	if err != nil {
		return fmt.Errorf("mkfs: read staged image: %w", err)
	}
	if err := renameio.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("mkfs: write %s: %w", path, err)
	}
	return nil
}

// stagingBackend adapts a writerseeker.WriterSeeker -- a plain
// Seek-then-Write buffer, not an io.ReaderAt/io.WriterAt itself -- to
// device.Backend, so kfs's own block-at-a-time I/O can build an image
// entirely in memory before anything touches the filesystem.
type stagingBackend struct {
	mu sync.Mutex
	ws *writerseeker.WriterSeeker
}

func (b *stagingBackend) WriteAt(p []byte, off int64) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, err := b.ws.Seek(off, io.SeekStart); err != nil {
		return 0, err
	}
	return b.ws.Write(p)
}

func (b *stagingBackend) ReadAt(p []byte, off int64) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	full, err := io.ReadAll(b.ws.Reader())
	if err != nil {
		return 0, err
	}
	if off >= int64(len(full)) {
		return 0, io.EOF
	}
	n := copy(p, full[off:])
	if n < len(p) {
		return n, io.ErrUnexpectedEOF
	}
	return n, nil
}

func (b *stagingBackend) Sync() error { return nil }
func (b *stagingBackend) Close() error { return nil }
