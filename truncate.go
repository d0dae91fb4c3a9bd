package kfs

import (
	"encoding/binary"

	"github.com/kfsdev/kfs/wal"
)

// Itrunc frees every block reachable from ip and sets its size to zero
// (spec.md §4.E). Caller holds ip's content lock and is inside
// transaction t. Traversal order is direct first, then singly-indirect
// (each leaf, then the indirect block itself), then doubly-indirect (each
// leaf, then each second-level indirect, then the top-level indirect) --
// the exact inverse of bmap's allocation order.
func (fs *FS) Itrunc(t *wal.Txn, ip *Inode) {
	for i := 0; i < NDIRECT; i++ {
		if ip.Addrs[i] != 0 {
			fs.Bfree(t, ip.Addrs[i])
			ip.Addrs[i] = 0
		}
	}

	if ip.Addrs[NDIRECT] != 0 {
		fs.freeIndirectLeaves(t, ip.Addrs[NDIRECT], NINDIRECT)
		fs.Bfree(t, ip.Addrs[NDIRECT])
		ip.Addrs[NDIRECT] = 0
	}

	if ip.Addrs[NDIRECT+1] != 0 {
		buf, err := fs.buf.Read(ip.Addrs[NDIRECT+1])
		if err != nil {
			fatalf("kfs: itrunc: read doubly-indirect block: %v", err)
		}
		seconds := make([]uint32, NINDIRECT)
		for i := range seconds {
			seconds[i] = binary.LittleEndian.Uint32(buf.Data()[i*4 : i*4+4])
		}
		fs.buf.Release(buf)

		for _, second := range seconds {
			if second == 0 {
				continue
			}
			fs.freeIndirectLeaves(t, second, NINDIRECT)
			fs.Bfree(t, second)
		}
		fs.Bfree(t, ip.Addrs[NDIRECT+1])
		ip.Addrs[NDIRECT+1] = 0
	}

	ip.Size = 0
	fs.Iupdate(t, ip)
}

// freeIndirectLeaves frees every non-zero block pointer stored in the
// indirect block indirectBlock.
func (fs *FS) freeIndirectLeaves(t *wal.Txn, indirectBlock uint32, n int) {
	buf, err := fs.buf.Read(indirectBlock)
	if err != nil {
		fatalf("kfs: itrunc: read indirect block %d: %v", indirectBlock, err)
	}
	leaves := make([]uint32, n)
	for i := 0; i < n; i++ {
		leaves[i] = binary.LittleEndian.Uint32(buf.Data()[i*4 : i*4+4])
	}
	fs.buf.Release(buf)

	for _, leaf := range leaves {
		if leaf != 0 {
			fs.Bfree(t, leaf)
		}
	}
}
