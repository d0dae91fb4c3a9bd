package mkfs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/kfsdev/kfs"
	"github.com/kfsdev/kfs/device"
)

func TestCreateProducesMountableImage(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "image.kfs")

	opts := Options{DataBlocks: 256, Ninodes: 64, NlogBlocks: 16}
	if err := Create(path, opts); err != nil {
		t.Fatalf("Create: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat image: %v", err)
	}
	sb := kfs.NewLayout(opts.DataBlocks, opts.Ninodes, opts.NlogBlocks)
	if want := int64(sb.Size) * kfs.BSIZE; info.Size() != want {
		t.Fatalf("image size = %d, want %d", info.Size(), want)
	}

	dev, err := device.Open(path, "test")
	if err != nil {
		t.Fatalf("device.Open: %v", err)
	}
	defer dev.Close()

	fs, err := kfs.Fsinit(dev, 32)
	if err != nil {
		t.Fatalf("Fsinit: %v", err)
	}
	root := fs.Iget(kfs.ROOTDEV, kfs.ROOTINO)
	fs.Ilock(root)
	if !root.Type.IsDir() {
		t.Fatalf("root type = %v, want directory", root.Type)
	}
	fs.IunlockPut(nil, root)
}
