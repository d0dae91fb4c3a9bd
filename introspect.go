package kfs

import (
	"encoding/binary"

	bitmap "github.com/boljen/go-bitmap"
)

// ReadDinode returns a standalone snapshot of inum's on-disk record: a
// throwaway *Inode that is never installed in the inode cache and holds
// no reference count, safe for read-only tools (fsck) to inspect via
// Readi/ListDirents without risking Iput ever freeing it -- that path
// only exists for cache-backed inodes with a real ref count.
func (fs *FS) ReadDinode(inum uint32) (*Inode, error) {
	b, offset, err := fs.readDinodeBlock(inum)
	if err != nil {
		return nil, err
	}
	d := unmarshalDinode(b.Data()[offset : offset+dinodeDiskSize])
	fs.buf.Release(b)
	return &Inode{fs: fs, dev: ROOTDEV, inum: inum, valid: true, Dinode: *d}, nil
}

// DirEntry is one resolved (name, inum) pair read back out of a
// directory's content, exposed read-only for tools like fsck that need
// to walk directory structure without going through Dirlookup's
// by-name interface.
type DirEntry struct {
	Name string
	Inum uint32
}

// ListDirents returns every non-free entry in directory dp's content.
// Caller holds dp's content lock.
func (fs *FS) ListDirents(dp *Inode) ([]DirEntry, error) {
	if !dp.Type.IsDir() {
		fatalf("kfs: listdirents: inode %d is not a directory", dp.inum)
	}
	var out []DirEntry
	buf := make([]byte, direntSize)
	for off := uint32(0); off < dp.Size; off += direntSize {
		n, err := fs.Readi(dp, buf, off)
		if err != nil || n != direntSize {
			return nil, ErrInvalidArg
		}
		d := unmarshalDirent(buf)
		if d.inum == 0 {
			continue
		}
		out = append(out, DirEntry{Name: d.nameString(), Inum: d.inum})
	}
	return out, nil
}

// IndirectTargets returns every non-zero block pointer stored in the
// indirect block indirectBlock, for tools that need to walk a block map
// without allocating (unlike bmap, this never calls Balloc).
func (fs *FS) IndirectTargets(indirectBlock uint32) []uint32 {
	buf, err := fs.buf.Read(indirectBlock)
	if err != nil {
		fatalf("kfs: indirecttargets: read %d: %v", indirectBlock, err)
	}
	defer fs.buf.Release(buf)

	var out []uint32
	data := buf.Data()
	for i := 0; i < NINDIRECT; i++ {
		v := binary.LittleEndian.Uint32(data[i*4 : i*4+4])
		if v != 0 {
			out = append(out, v)
		}
	}
	return out
}

// BitmapBit reports whether data block blockno is currently marked
// allocated in the free-block bitmap.
func (fs *FS) BitmapBit(blockno uint32) bool {
	sb := fs.sb
	rel := blockno - sb.DataStart()
	bb := rel / bitsPerBlock
	bit := int(rel % bitsPerBlock)
	bitmapBlockno := sb.BmapStart + bb

	buf, err := fs.buf.Read(bitmapBlockno)
	if err != nil {
		fatalf("kfs: bitmapbit: read bitmap block %d: %v", bitmapBlockno, err)
	}
	defer fs.buf.Release(buf)
	return bitmap.Bitmap(buf.Data()).Get(bit)
}

// ReadRawBlock reads block blockno's raw bytes, bypassing the inode
// layer entirely -- used by fsck's whole-device checksum mode.
func (fs *FS) ReadRawBlock(blockno uint32, dst []byte) error {
	buf, err := fs.buf.Read(blockno)
	if err != nil {
		return err
	}
	copy(dst, buf.Data())
	fs.buf.Release(buf)
	return nil
}
