package kfs

import (
	"fmt"

	"github.com/kfsdev/kfs/bufcache"
	"github.com/kfsdev/kfs/device"
	"github.com/kfsdev/kfs/wal"
)

// FS is a mounted kfs device: the superblock plus the external
// collaborators (device, block cache, log) bound to one device,
// plus the inode cache (§4.C). There is exactly one FS per mounted
// device, matching spec.md's "exactly one mounted device at root"
// non-goal.
type FS struct {
	dev *device.Device
	buf *bufcache.Cache
	log *wal.Log
	sb  *Superblock
	ic  *inodeCache
}

// Fsinit mounts dev: it loads the superblock (§4.A), replays any
// committed-but-not-installed transaction left by a prior crash, and sets up
// the buffer and inode caches. It is fatal (panics) if the superblock's
// magic number does not match, per spec.md §4.A.
func Fsinit(dev *device.Device, nbuf int) (*FS, error) {
	sb, err := readSuperblock(dev)
	if err != nil {
		return nil, fmt.Errorf("kfs: fsinit: %w", err)
	}
	buf := bufcache.New(dev, BSIZE, nbuf)
	log, err := wal.Open(dev, BSIZE, sb.LogStart, sb.Nlog)
	if err != nil {
		return nil, fmt.Errorf("kfs: fsinit: log: %w", err)
	}
	return &FS{
		dev: dev,
		buf: buf,
		log: log,
		sb:  sb,
		ic:  newInodeCache(),
	}, nil
}

// Superblock returns the mounted filesystem's immutable layout
// descriptor.
func (fs *FS) Superblock() *Superblock { return fs.sb }

// Begin opens a new log transaction (spec.md §5's outermost lock). Every
// call that may allocate or free a block -- Iput, Itrunc, Balloc, Bfree,
// Writei, Dirlink, and the high-level ops in ops.go -- requires one of
// these as an explicit parameter.
func (fs *FS) Begin() *wal.Txn { return fs.log.Begin() }

// readDinodeBlock returns the locked buffer holding inum's dinode record,
// and that record's byte offset within the buffer.
func (fs *FS) readDinodeBlock(inum uint32) (*bufcache.Buffer, uint32, error) {
	blockno, offset := fs.sb.inodeLocation(inum)
	b, err := fs.buf.Read(blockno)
	if err != nil {
		return nil, 0, err
	}
	return b, offset, nil
}
