package kfs

import (
	"github.com/kfsdev/kfs/device"
)

// Mkfs formats dev as a fresh, empty kfs image: it lays out the fixed
// regions (spec.md §6), writes the superblock, zeroes the log header and
// the free-block bitmap, and creates the root directory (ROOTINO) with
// "." and ".." both pointing at itself. dev is assumed to be zero-filled
// already -- Mkfs does not zero the inode or data regions itself, since a
// freshly allocated image already reads as zero there.
//
// Grounded on xv6's mkfs.c in spirit (same region layout, same "ialloc
// root, dirlink . and .. into it" sequence) though expressed here through
// kfs's own Balloc/Ialloc/Dirlink rather than a standalone tool that
// pokes the image directly -- Mkfs runs the same log-protected path any
// other kfs operation does, so a crash mid-format leaves the log's normal
// recovery to clean it up.
func Mkfs(dev *device.Device, dataBlocks, ninodes, nlogBlocks uint32) (*FS, error) {
	sb := NewLayout(dataBlocks, ninodes, nlogBlocks)
	if err := writeSuperblock(dev, sb); err != nil {
		return nil, err
	}

	zero := make([]byte, BSIZE)
	if err := dev.WriteBlock(BSIZE, sb.LogStart, zero); err != nil {
		return nil, err
	}
	for bb := uint32(0); bb < sb.bitmapBlocks(); bb++ {
		if err := dev.WriteBlock(BSIZE, sb.BmapStart+bb, zero); err != nil {
			return nil, err
		}
	}

	fs, err := Fsinit(dev, 64)
	if err != nil {
		return nil, err
	}

	t := fs.Begin()
	rootInum := fs.Ialloc(t, TypeDir)
	if rootInum != ROOTINO {
		fatalf("kfs: mkfs: root directory did not land on inode %d (got %d)", ROOTINO, rootInum)
	}
	root := fs.Iget(ROOTDEV, rootInum)
	fs.Ilock(root)
	root.Nlink = 1
	fs.Iupdate(t, root)
	if err := fs.dirInit(t, root, root.inum); err != nil {
		fs.IunlockPut(t, root)
		t.End()
		return nil, err
	}
	fs.IunlockPut(t, root)
	if err := t.End(); err != nil {
		return nil, err
	}

	return fs, nil
}
