package kfs

import "encoding/binary"

// Dinode is the on-disk representation of one inode (spec.md §3). Fields
// and packing are fixed-size and never compressed, unlike the teacher's
// variable-length, compressed squashfs inode records (inode.go) -- kfs's
// reader therefore collapses to plain offset arithmetic into a dinode
// block instead of the teacher's chained io.Reader over a decompressed
// metadata stream.
type Dinode struct {
	Type  Type
	Major uint16
	Minor uint16
	Nlink uint16
	Size  uint32
	Addrs [NDIRECT + 2]uint32 // NDIRECT direct, 1 singly-indirect, 1 doubly-indirect
	// Target holds a symlink's path, valid only when Type == TypeSymlink.
	// The first TargetLen bytes are meaningful.
	Target    [MAXPATH]byte
	TargetLen uint16
}

const dinodeDiskSize = 2 /*type*/ + 2 /*major*/ + 2 /*minor*/ + 2 /*nlink*/ + 4 /*size*/ +
	4*(NDIRECT+2) /*addrs*/ + MAXPATH /*target*/ + 2 /*targetlen*/

func (sb *Superblock) inodeLocation(inum uint32) (block uint32, offset uint32) {
	ipb := sb.IPB()
	return sb.InodeStart + inum/ipb, (inum % ipb) * dinodeDiskSize
}

func (d *Dinode) marshalInto(buf []byte) {
	binary.LittleEndian.PutUint16(buf[0:2], uint16(d.Type))
	binary.LittleEndian.PutUint16(buf[2:4], d.Major)
	binary.LittleEndian.PutUint16(buf[4:6], d.Minor)
	binary.LittleEndian.PutUint16(buf[6:8], d.Nlink)
	binary.LittleEndian.PutUint32(buf[8:12], d.Size)
	off := 12
	for i := 0; i < NDIRECT+2; i++ {
		binary.LittleEndian.PutUint32(buf[off:off+4], d.Addrs[i])
		off += 4
	}
	copy(buf[off:off+MAXPATH], d.Target[:])
	off += MAXPATH
	binary.LittleEndian.PutUint16(buf[off:off+2], d.TargetLen)
}

func unmarshalDinode(buf []byte) *Dinode {
	d := &Dinode{}
	d.Type = Type(binary.LittleEndian.Uint16(buf[0:2]))
	d.Major = binary.LittleEndian.Uint16(buf[2:4])
	d.Minor = binary.LittleEndian.Uint16(buf[4:6])
	d.Nlink = binary.LittleEndian.Uint16(buf[6:8])
	d.Size = binary.LittleEndian.Uint32(buf[8:12])
	off := 12
	for i := 0; i < NDIRECT+2; i++ {
		d.Addrs[i] = binary.LittleEndian.Uint32(buf[off : off+4])
		off += 4
	}
	copy(d.Target[:], buf[off:off+MAXPATH])
	off += MAXPATH
	d.TargetLen = binary.LittleEndian.Uint16(buf[off : off+2])
	return d
}

// SetTarget stores a symlink target, truncated to MAXPATH per spec.md
// §4.I's symlink contract.
func (d *Dinode) SetTarget(target string) {
	n := copy(d.Target[:], target)
	d.TargetLen = uint16(n)
}

// TargetString returns the stored symlink target.
func (d *Dinode) TargetString() string {
	return string(d.Target[:d.TargetLen])
}
