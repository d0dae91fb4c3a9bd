package kfs

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/kfsdev/kfs/device"
)

// Superblock is the fixed layout descriptor stored in block 1, read once
// at mount and immutable thereafter (spec.md §3/§4.A). Field order here
// is the on-disk field order -- grounded on the teacher's
// Superblock.UnmarshalBinary (super.go), which decodes a fixed record
// field-by-field with encoding/binary, generalized from squashfs's
// reflect-driven decode to kfs's smaller, writable record.
type Superblock struct {
	Magic      uint32 // FSMAGIC
	Size       uint32 // total blocks in the image, including boot+super
	Nblocks    uint32 // number of data blocks
	Ninodes    uint32 // number of inodes
	Nlog       uint32 // number of log blocks, including the log header
	LogStart   uint32 // first block of the log region
	InodeStart uint32 // first block of the inode region
	BmapStart  uint32 // first block of the free-bitmap region
}

const superblockDiskSize = 8 * 4 // eight uint32 fields

// IPB is the number of dinode records packed into one block.
func (sb *Superblock) IPB() uint32 { return BSIZE / dinodeDiskSize }

// bitmapBlocks is the number of blocks needed to hold one bit per data
// block.
func (sb *Superblock) bitmapBlocks() uint32 {
	return (sb.Nblocks + BSIZE*8 - 1) / (BSIZE * 8)
}

// DataStart is the first block number of the data region.
func (sb *Superblock) DataStart() uint32 {
	return sb.BmapStart + sb.bitmapBlocks()
}

// inodeBlocks is the number of blocks needed to hold Ninodes dinodes.
func (sb *Superblock) inodeBlocks() uint32 {
	ipb := sb.IPB()
	return (sb.Ninodes + ipb - 1) / ipb
}

// NewLayout computes a fresh Superblock for an image with the given data
// block capacity, inode count, and log capacity. Region order is fixed --
// boot (block 0), superblock (block 1), log, inodes, bitmap, data (spec.md
// §6) -- so every other region's start follows directly from the ones
// before it.
func NewLayout(dataBlocks, ninodes, nlogBlocks uint32) *Superblock {
	sb := &Superblock{
		Magic:   FSMAGIC,
		Nblocks: dataBlocks,
		Ninodes: ninodes,
		Nlog:    nlogBlocks,
	}
	sb.LogStart = 2 // block 0 is boot, block 1 is the superblock itself
	sb.InodeStart = sb.LogStart + sb.Nlog
	sb.BmapStart = sb.InodeStart + sb.inodeBlocks()
	sb.Size = sb.DataStart() + sb.Nblocks
	return sb
}

func (sb *Superblock) marshal() []byte {
	buf := make([]byte, superblockDiskSize)
	binary.LittleEndian.PutUint32(buf[0:4], sb.Magic)
	binary.LittleEndian.PutUint32(buf[4:8], sb.Size)
	binary.LittleEndian.PutUint32(buf[8:12], sb.Nblocks)
	binary.LittleEndian.PutUint32(buf[12:16], sb.Ninodes)
	binary.LittleEndian.PutUint32(buf[16:20], sb.Nlog)
	binary.LittleEndian.PutUint32(buf[20:24], sb.LogStart)
	binary.LittleEndian.PutUint32(buf[24:28], sb.InodeStart)
	binary.LittleEndian.PutUint32(buf[28:32], sb.BmapStart)
	return buf
}

func unmarshalSuperblock(buf []byte) (*Superblock, error) {
	if len(buf) < superblockDiskSize {
		return nil, fmt.Errorf("kfs: superblock block truncated")
	}
	r := bytes.NewReader(buf[:superblockDiskSize])
	sb := &Superblock{}
	fields := []*uint32{
		&sb.Magic, &sb.Size, &sb.Nblocks, &sb.Ninodes,
		&sb.Nlog, &sb.LogStart, &sb.InodeStart, &sb.BmapStart,
	}
	for _, f := range fields {
		if err := binary.Read(r, binary.LittleEndian, f); err != nil {
			return nil, err
		}
	}
	return sb, nil
}

// readSuperblock loads block 1 directly through dev (the buffer cache
// does not exist yet when this is called; Fsinit creates it afterwards).
func readSuperblock(dev *device.Device) (*Superblock, error) {
	buf := make([]byte, BSIZE)
	if err := dev.ReadBlock(BSIZE, 1, buf); err != nil {
		return nil, err
	}
	sb, err := unmarshalSuperblock(buf)
	if err != nil {
		return nil, err
	}
	if sb.Magic != FSMAGIC {
		fatalf("kfs: bad superblock magic 0x%x, refusing to mount", sb.Magic)
	}
	return sb, nil
}

func writeSuperblock(dev *device.Device, sb *Superblock) error {
	buf := make([]byte, BSIZE)
	copy(buf, sb.marshal())
	return dev.WriteBlock(BSIZE, 1, buf)
}
