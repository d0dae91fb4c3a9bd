// Package bufcache implements the buffered block I/O cache spec.md §1
// calls out as an external collaborator ("bread, brelse, bwrite: provides
// pinned access to disk blocks with its own LRU and locking"). It is
// structured the way the teacher's inode cache and this repository's own
// icache are structured: a fixed-size table, a short identity-management
// critical section, and a per-buffer lock that may block across I/O.
package bufcache

import (
	"container/list"
	"fmt"
	"sync"

	"github.com/kfsdev/kfs/device"
	"github.com/kfsdev/kfs/metrics"
)

// Buffer is one pinned, locked in-memory copy of a disk block.
type Buffer struct {
	blockno uint32
	data    []byte
	valid   bool
	dirty   bool
	refcnt  int

	mu sync.Mutex // the buffer's sleep lock; held while examining/mutating Data()

	elem *list.Element // this buffer's node in the cache's recency list
}

// Blockno returns the block number this buffer holds.
func (b *Buffer) Blockno() uint32 { return b.blockno }

// Data returns the buffer's contents. Caller must hold the buffer locked
// (i.e. have obtained it from Cache.Read and not yet called Release).
func (b *Buffer) Data() []byte { return b.data }

// MarkDirty flags the buffer as modified; Cache.Release writes a dirty
// buffer back to the device immediately.
func (b *Buffer) MarkDirty() { b.dirty = true }

// Cache is a fixed-size table of NBUF buffers.
type Cache struct {
	dev   *device.Device
	bsize int
	nbuf  int

	mu    sync.Mutex // protects the index and recency list (spec.md's "cache.lock" role)
	index map[uint32]*list.Element
	lru   *list.List // front = most recently used, back = eviction candidate

	hits, misses, evictions int
}

// New returns a cache of nbuf buffers of bsize bytes each backed by dev.
func New(dev *device.Device, bsize, nbuf int) *Cache {
	return &Cache{
		dev:   dev,
		bsize: bsize,
		nbuf:  nbuf,
		index: make(map[uint32]*list.Element, nbuf),
		lru:   list.New(),
	}
}

// Read returns the locked buffer for blockno, reading it from the device
// on first touch. Mirrors xv6's bread: find-or-recycle under the identity
// lock, release the identity lock, then lock the buffer's content (which
// may block on disk I/O) -- matching spec.md §5's rule that the spin lock
// is released before any sleep lock is taken.
func (c *Cache) Read(blockno uint32) (*Buffer, error) {
	c.mu.Lock()
	if elem, ok := c.index[blockno]; ok {
		b := elem.Value.(*Buffer)
		b.refcnt++
		c.lru.MoveToFront(elem)
		c.hits++
		c.mu.Unlock()
		b.mu.Lock()
		return b, nil
	}

	var b *Buffer
	if c.lru.Len() < c.nbuf {
		b = &Buffer{data: make([]byte, c.bsize), blockno: blockno, refcnt: 1}
		b.elem = c.lru.PushFront(b)
		c.index[blockno] = b.elem
	} else {
		// Evict the least-recently-used unreferenced buffer.
		var victim *list.Element
		for e := c.lru.Back(); e != nil; e = e.Prev() {
			if e.Value.(*Buffer).refcnt == 0 {
				victim = e
				break
			}
		}
		if victim == nil {
			c.mu.Unlock()
			return nil, fmt.Errorf("bufcache: no free buffers (all %d pinned)", c.nbuf)
		}
		b = victim.Value.(*Buffer)
		delete(c.index, b.blockno)
		c.lru.Remove(victim)
		b.blockno = blockno
		b.valid = false
		b.dirty = false
		b.refcnt = 1
		b.elem = c.lru.PushFront(b)
		c.index[blockno] = b.elem
		c.evictions++
		metrics.BufferCacheEvictions.Inc()
	}
	c.misses++
	c.mu.Unlock()

	b.mu.Lock()
	if !b.valid {
		if err := c.dev.ReadBlock(c.bsize, blockno, b.data); err != nil {
			c.Release(b)
			return nil, err
		}
		b.valid = true
	}
	return b, nil
}

// Release unlocks b. If the buffer was marked dirty (MarkDirty), it is
// flushed to the device immediately (bwrite-on-release). Writes staged
// through a wal.Txn do not mark the buffer dirty, so they reach the device
// only through the log.
func (c *Cache) Release(b *Buffer) {
	if b.dirty {
		if err := c.dev.WriteBlock(c.bsize, b.blockno, b.data); err == nil {
			b.dirty = false
		}
	}
	b.mu.Unlock()

	c.mu.Lock()
	b.refcnt--
	if b.refcnt < 0 {
		b.refcnt = 0
	}
	c.mu.Unlock()
}

// Stats reports hit/miss/eviction counters for package metrics to export.
func (c *Cache) Stats() (hits, misses, evictions int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses, c.evictions
}
