package kfs

import (
	"encoding/binary"

	"github.com/kfsdev/kfs/wal"
)

// bmap translates logical block index bn (0-based) within ip's content
// into a disk block number, lazily allocating direct and indirect blocks
// as needed (spec.md §4.D). Caller holds ip's content lock and is inside
// transaction t, since this may call Balloc and will mark ip dirty (the
// caller is responsible for an eventual Iupdate). Out-of-range bn is a
// fatal design error per spec.md §4.D -- callers must check MAXFILE
// first.
func (fs *FS) bmap(t *wal.Txn, ip *Inode, bn uint32) uint32 {
	if bn < NDIRECT {
		if ip.Addrs[bn] == 0 {
			ip.Addrs[bn] = fs.Balloc(t)
		}
		return ip.Addrs[bn]
	}
	bn -= NDIRECT

	if bn < NINDIRECT {
		if ip.Addrs[NDIRECT] == 0 {
			ip.Addrs[NDIRECT] = fs.Balloc(t)
		}
		return fs.indirectSlot(t, ip.Addrs[NDIRECT], bn)
	}
	bn -= NINDIRECT

	if bn < NINDIRECT*NINDIRECT {
		outer := bn / NINDIRECT
		inner := bn % NINDIRECT
		if ip.Addrs[NDIRECT+1] == 0 {
			ip.Addrs[NDIRECT+1] = fs.Balloc(t)
		}
		second := fs.indirectSlot(t, ip.Addrs[NDIRECT+1], outer)
		return fs.indirectSlot(t, second, inner)
	}

	fatalf("kfs: bmap: logical block %d out of range (MAXFILE=%d)", bn, MAXFILE)
	panic("unreachable")
}

// indirectSlot returns the block number stored at position idx within
// the indirect block indirectBlock, allocating it (and persisting the new
// pointer into the indirect block) if the slot is currently empty.
func (fs *FS) indirectSlot(t *wal.Txn, indirectBlock uint32, idx uint32) uint32 {
	buf, err := fs.buf.Read(indirectBlock)
	if err != nil {
		fatalf("kfs: bmap: read indirect block %d: %v", indirectBlock, err)
	}
	offset := idx * 4
	val := binary.LittleEndian.Uint32(buf.Data()[offset : offset+4])
	if val == 0 {
		val = fs.Balloc(t)
		binary.LittleEndian.PutUint32(buf.Data()[offset:offset+4], val)
		t.Write(indirectBlock, buf.Data())
	}
	fs.buf.Release(buf)
	return val
}
