package kfs

import (
	"encoding/binary"

	"github.com/kfsdev/kfs/wal"
)

// dirent is the packed on-disk content format of a directory (spec.md
// §3/§6): a u16 inum (0 means free) followed by a fixed DIRSIZ-byte name
// field, no separator. Grounded in shape on the teacher's direntry
// (dir.go), though squashfs directory entries are variable-length and
// metadata-block-relative while kfs's are fixed-size records living
// directly in the directory inode's own content, addressed like any
// other file content through readi/writei.
const direntSize = 2 + DIRSIZ

type dirent struct {
	inum uint32 // stored on disk as u16; kept as uint32 in memory for simplicity
	name [DIRSIZ]byte
}

func (d *dirent) marshal() []byte {
	buf := make([]byte, direntSize)
	binary.LittleEndian.PutUint16(buf[0:2], uint16(d.inum))
	copy(buf[2:], d.name[:])
	return buf
}

func unmarshalDirent(buf []byte) dirent {
	var d dirent
	d.inum = uint32(binary.LittleEndian.Uint16(buf[0:2]))
	copy(d.name[:], buf[2:direntSize])
	return d
}

// setName packs name into the fixed DIRSIZ field, truncating if longer
// (spec.md §4.H's skipelem/dirlookup truncation semantics).
func (d *dirent) setName(name string) {
	for i := range d.name {
		d.name[i] = 0
	}
	copy(d.name[:], name)
}

// nameEquals implements spec.md §4.G's fixed-length name comparison:
// equal if both are shorter than DIRSIZ and bytewise equal, or both fill
// DIRSIZ and match on every byte (so two over-length names that agree on
// their first DIRSIZ bytes compare equal, per spec.md §8 scenario 6).
func (d *dirent) nameEquals(name string) bool {
	nb := []byte(name)
	if len(nb) < DIRSIZ {
		for i, c := range nb {
			if d.name[i] != c {
				return false
			}
		}
		return d.name[len(nb)] == 0
	}
	for i := 0; i < DIRSIZ; i++ {
		if d.name[i] != nb[i] {
			return false
		}
	}
	return true
}

func (d *dirent) nameString() string {
	n := DIRSIZ
	for i, c := range d.name {
		if c == 0 {
			n = i
			break
		}
	}
	return string(d.name[:n])
}

// Dirlookup scans dp's content for name, returning the referenced inode
// (not locked) and, if poff is non-nil, the byte offset of the matching
// entry (spec.md §4.G). dp must be a directory and caller holds dp's
// content lock; it is fatal to call this on a non-directory.
func (fs *FS) Dirlookup(dp *Inode, name string, poff *uint32) *Inode {
	if !dp.Type.IsDir() {
		fatalf("kfs: dirlookup: inode %d is not a directory", dp.inum)
	}

	buf := make([]byte, direntSize)
	for off := uint32(0); off < dp.Size; off += direntSize {
		n, err := fs.Readi(dp, buf, off)
		if err != nil || n != direntSize {
			fatalf("kfs: dirlookup: short directory read at offset %d", off)
		}
		d := unmarshalDirent(buf)
		if d.inum == 0 {
			continue
		}
		if d.nameEquals(name) {
			if poff != nil {
				*poff = off
			}
			return fs.Iget(dp.dev, d.inum)
		}
	}
	return nil
}

// Dirlink inserts (name, inum) into directory dp, failing with ErrExists
// if name is already present. The first free (inum==0) slot is reused if
// one exists; otherwise the entry is appended at dp.Size. Caller holds
// dp's content lock and is inside transaction t.
func (fs *FS) Dirlink(t *wal.Txn, dp *Inode, name string, inum uint32) error {
	if existing := fs.Dirlookup(dp, name, nil); existing != nil {
		fs.Iput(t, existing)
		return ErrExists
	}

	buf := make([]byte, direntSize)
	off := uint32(0)
	for ; off < dp.Size; off += direntSize {
		n, err := fs.Readi(dp, buf, off)
		if err != nil || n != direntSize {
			fatalf("kfs: dirlink: short directory read at offset %d", off)
		}
		d := unmarshalDirent(buf)
		if d.inum == 0 {
			break
		}
	}

	var d dirent
	d.inum = inum
	d.setName(name)
	if _, err := fs.Writei(t, dp, d.marshal(), off); err != nil {
		return err
	}
	return nil
}
