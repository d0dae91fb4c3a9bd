package cpioseed

import (
	"bytes"
	"testing"

	"github.com/cavaliercoder/go-cpio"

	"github.com/kfsdev/kfs"
	"github.com/kfsdev/kfs/device"
)

func freshFS(t *testing.T) *kfs.FS {
	t.Helper()
	const dataBlocks, ninodes, nlog = 256, 64, 16
	sb := kfs.NewLayout(dataBlocks, ninodes, nlog)
	dev := device.Wrap(device.NewMemBackend(int(sb.Size)*kfs.BSIZE), "test")
	fs, err := kfs.Mkfs(dev, dataBlocks, ninodes, nlog)
	if err != nil {
		t.Fatalf("Mkfs: %v", err)
	}
	return fs
}

func buildArchive(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := cpio.NewWriter(&buf)

	entries := []struct {
		name    string
		mode    cpio.FileMode
		content string
	}{
		{"bin", cpio.TypeDir | 0755, ""},
		{"bin/hello", cpio.TypeReg | 0644, "echo hello\n"},
		{"bin/link", cpio.TypeSymlink | 0777, "hello"},
	}
	for _, e := range entries {
		hdr := &cpio.Header{
			Name: e.name,
			Mode: e.mode,
			Size: int64(len(e.content)),
		}
		if err := w.WriteHeader(hdr); err != nil {
			t.Fatalf("WriteHeader(%s): %v", e.name, err)
		}
		if e.content != "" {
			if _, err := w.Write([]byte(e.content)); err != nil {
				t.Fatalf("Write(%s): %v", e.name, err)
			}
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	return buf.Bytes()
}

func TestSeedReplaysArchive(t *testing.T) {
	fs := freshFS(t)
	archive := buildArchive(t)

	n, err := Seed(fs, bytes.NewReader(archive))
	if err != nil {
		t.Fatalf("Seed: %v", err)
	}
	if n != 3 {
		t.Fatalf("Seed applied %d entries, want 3", n)
	}

	t0 := fs.Begin()
	bin, err := fs.Namei(t0, "/bin", nil)
	if err != nil {
		t.Fatalf("Namei(/bin): %v", err)
	}
	fs.Ilock(bin)
	if !bin.Type.IsDir() {
		t.Fatalf("/bin is not a directory")
	}
	fs.IunlockPut(t0, bin)

	hello, err := fs.Namei(t0, "/bin/hello", nil)
	if err != nil {
		t.Fatalf("Namei(/bin/hello): %v", err)
	}
	fs.Ilock(hello)
	buf := make([]byte, 64)
	nread, err := fs.Readi(hello, buf, 0)
	if err != nil {
		t.Fatalf("Readi: %v", err)
	}
	if string(buf[:nread]) != "echo hello\n" {
		t.Fatalf("/bin/hello content = %q, want %q", buf[:nread], "echo hello\n")
	}
	fs.IunlockPut(t0, hello)

	link, err := fs.Namei(t0, "/bin/link", nil)
	if err != nil {
		t.Fatalf("Namei(/bin/link): %v", err)
	}
	fs.Ilock(link)
	if !link.Type.IsSymlink() {
		t.Fatalf("/bin/link is not a symlink")
	}
	if target := link.TargetString(); target != "hello" {
		t.Fatalf("/bin/link target = %q, want %q", target, "hello")
	}
	fs.IunlockPut(t0, link)
	if err := t0.End(); err != nil {
		t.Fatalf("End: %v", err)
	}
}

func TestSeedRejectsArchiveWithMissingParent(t *testing.T) {
	fs := freshFS(t)

	var buf bytes.Buffer
	w := cpio.NewWriter(&buf)
	hdr := &cpio.Header{Name: "nosuchdir/file", Mode: cpio.TypeReg | 0644, Size: 0}
	if err := w.WriteHeader(hdr); err != nil {
		t.Fatalf("WriteHeader: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if _, err := Seed(fs, bytes.NewReader(buf.Bytes())); err == nil {
		t.Fatalf("expected an error seeding an entry whose parent directory does not exist")
	}
}
