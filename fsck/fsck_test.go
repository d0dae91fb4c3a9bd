package fsck

import (
	"testing"

	"github.com/kfsdev/kfs"
	"github.com/kfsdev/kfs/device"
	"github.com/kfsdev/kfs/mkfs"
)

func freshFS(t *testing.T, dataBlocks, ninodes, nlog uint32) *kfs.FS {
	t.Helper()
	sb := kfs.NewLayout(dataBlocks, ninodes, nlog)
	dev := device.Wrap(device.NewMemBackend(int(sb.Size)*kfs.BSIZE), "test")
	fs, err := kfs.Mkfs(dev, dataBlocks, ninodes, nlog)
	if err != nil {
		t.Fatalf("Mkfs: %v", err)
	}
	return fs
}

func TestCheckCleanImage(t *testing.T) {
	fs := freshFS(t, 256, 64, 16)

	report, err := Check(fs, Options{})
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if !report.Clean() {
		t.Fatalf("fresh mkfs image reported problems: %+v", report.Problems)
	}
}

func TestCheckDetectsUnlinkedButAllocatedBlock(t *testing.T) {
	fs := freshFS(t, 256, 64, 16)

	t0 := fs.Begin()
	blockno := fs.Balloc(t0)
	if err := t0.End(); err != nil {
		t.Fatalf("End: %v", err)
	}

	report, err := Check(fs, Options{})
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if report.Clean() {
		t.Fatalf("expected a bitmap-reachability problem for unreferenced block %d", blockno)
	}
	found := false
	for _, p := range report.Problems {
		if p.Check == "bitmap-reachability" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a bitmap-reachability problem, got %+v", report.Problems)
	}
}

func TestCheckWithChecksumIsStableAcrossRuns(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/image.kfs"
	if err := mkfs.Create(path, mkfs.Options{DataBlocks: 128, Ninodes: 32, NlogBlocks: 8}); err != nil {
		t.Fatalf("mkfs.Create: %v", err)
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

	r1, err := Check(fs, Options{Checksum: true})
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	r2, err := Check(fs, Options{Checksum: true})
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if !Equal(r1.Checksum, r2.Checksum) {
		t.Fatalf("checksum changed across two read-only Check runs on the same image")
	}
}
