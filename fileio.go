package kfs

import (
	"github.com/kfsdev/kfs/wal"
)

// Readi copies up to len(dst) bytes from ip's content starting at off into
// dst, clamped so off+n never exceeds the inode's size (spec.md §4.F).
// Caller holds ip's content lock. Returns the number of bytes actually
// copied and an error for the two documented range violations (off
// negative or beyond size, or the off+n arithmetic overflowing).
func (fs *FS) Readi(ip *Inode, dst []byte, off uint32) (int, error) {
	n := uint32(len(dst))
	if off > ip.Size {
		return 0, ErrInvalidArg
	}
	if off+n < off {
		return 0, ErrInvalidArg
	}
	if off+n > ip.Size {
		n = ip.Size - off
	}

	total := uint32(0)
	for total < n {
		bn := (off + total) / BSIZE
		boff := (off + total) % BSIZE
		blockno := fs.bmapRead(ip, bn)

		buf, err := fs.buf.Read(blockno)
		if err != nil {
			return int(total), err
		}
		m := BSIZE - boff
		if rem := n - total; m > rem {
			m = rem
		}
		copy(dst[total:total+m], buf.Data()[boff:boff+m])
		fs.buf.Release(buf)
		total += m
	}
	return int(total), nil
}

// bmapRead is bmap called without a transaction, for readi (which never
// extends a file). ip must already have every block index <
// ceil(size/BSIZE) allocated, by construction of writei, so bmap never
// reaches Balloc here; if it did, Balloc's nil-transaction check would be
// fatal.
func (fs *FS) bmapRead(ip *Inode, bn uint32) uint32 {
	// readi's bn is always < ceil(ip.Size/BSIZE), and writei never leaves
	// a gap short of size unallocated, so every slot bmap would touch
	// here is already populated; no transaction is needed because bmap
	// only allocates on a zero slot, which cannot occur within a valid
	// file's existing size.
	return fs.bmap(nil, ip, bn)
}

// Writei copies n bytes from src into ip's content starting at off,
// allocating blocks as needed and growing Size if the write extends past
// the current end of file (spec.md §4.F). Caller holds ip's content lock
// and is inside transaction t. Rejects off strictly greater than the
// current size (no seeking past a real EOF to create a hole) and any
// write that would exceed MAXFILE*BSIZE.
func (fs *FS) Writei(t *wal.Txn, ip *Inode, src []byte, off uint32) (int, error) {
	n := uint32(len(src))
	if off > ip.Size {
		return 0, ErrInvalidArg
	}
	if off+n < off || uint64(off)+uint64(n) > uint64(MAXFILE)*BSIZE {
		return 0, ErrInvalidArg
	}

	total := uint32(0)
	for total < n {
		bn := (off + total) / BSIZE
		boff := (off + total) % BSIZE
		blockno := fs.bmap(t, ip, bn)

		buf, err := fs.buf.Read(blockno)
		if err != nil {
			break
		}
		m := BSIZE - boff
		if rem := n - total; m > rem {
			m = rem
		}
		copy(buf.Data()[boff:boff+m], src[total:total+m])
		t.Write(blockno, buf.Data())
		fs.buf.Release(buf)
		total += m
	}

	if total > 0 {
		if off+total > ip.Size {
			ip.Size = off + total
		}
		fs.Iupdate(t, ip)
	}

	if total < n {
		return int(total), ErrInvalidArg
	}
	return int(total), nil
}
