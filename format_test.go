package kfs

import (
	"testing"

	"github.com/kfsdev/kfs/device"
)

func testImage(t *testing.T, dataBlocks, ninodes, nlog uint32) (*FS, *device.Device) {
	t.Helper()
	sb := NewLayout(dataBlocks, ninodes, nlog)
	size := int(sb.Size) * BSIZE
	dev := device.Wrap(device.NewMemBackend(size), "test")
	fs, err := Mkfs(dev, dataBlocks, ninodes, nlog)
	if err != nil {
		t.Fatalf("Mkfs: %v", err)
	}
	return fs, dev
}

func TestMkfsCreatesRootDirectory(t *testing.T) {
	fs, _ := testImage(t, 256, 64, 16)

	root := fs.Iget(ROOTDEV, ROOTINO)
	fs.Ilock(root)
	defer fs.IunlockPut(nil, root)

	if !root.Type.IsDir() {
		t.Fatalf("root type = %v, want directory", root.Type)
	}
	if root.Nlink != 1 {
		t.Fatalf("root nlink = %d, want 1", root.Nlink)
	}

	dot := fs.Dirlookup(root, ".", nil)
	if dot == nil || dot.inum != ROOTINO {
		t.Fatalf("root \".\" does not point at itself")
	}
	fs.Iput(nil, dot)

	dotdot := fs.Dirlookup(root, "..", nil)
	if dotdot == nil || dotdot.inum != ROOTINO {
		t.Fatalf("root \"..\" does not point at itself")
	}
	fs.Iput(nil, dotdot)
}

func TestMkfsRejectsWrongMagicOnMount(t *testing.T) {
	_, dev := testImage(t, 64, 32, 8)

	corrupt := make([]byte, BSIZE)
	if err := dev.WriteBlock(BSIZE, 1, corrupt); err != nil {
		t.Fatalf("corrupt superblock: %v", err)
	}

	defer func() {
		if r := recover(); r == nil {
			t.Fatalf("expected fatal panic mounting an image with a zeroed superblock")
		}
	}()
	Fsinit(dev, 16)
}
