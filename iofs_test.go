package kfs

import (
	"io/fs"
	"testing"
)

func seedIOFSTree(t *testing.T, kfsys *FS) {
	t.Helper()

	tx := kfsys.Begin()
	defer tx.End()

	dir, err := kfsys.Mkdir(tx, "/etc", nil)
	if err != nil {
		t.Fatalf("Mkdir: %v", err)
	}
	kfsys.IunlockPut(tx, dir)

	file, err := kfsys.Create(tx, "/etc/motd", nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := kfsys.Writei(tx, file, []byte("hello\n"), 0); err != nil {
		t.Fatalf("Writei: %v", err)
	}
	kfsys.IunlockPut(tx, file)

	link, err := kfsys.Symlink(tx, "/etc/alias", "motd", nil)
	if err != nil {
		t.Fatalf("Symlink: %v", err)
	}
	kfsys.IunlockPut(tx, link)
}

func TestIOFSReadFile(t *testing.T) {
	kfsys, _ := testImage(t, 256, 64, 16)
	seedIOFSTree(t, kfsys)

	iofsys := kfsys.IOFS()

	got, err := fs.ReadFile(iofsys, "etc/motd")
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(got) != "hello\n" {
		t.Fatalf("ReadFile content = %q, want %q", got, "hello\n")
	}
}

func TestIOFSGlobAndWalk(t *testing.T) {
	kfsys, _ := testImage(t, 256, 64, 16)
	seedIOFSTree(t, kfsys)

	iofsys := kfsys.IOFS()

	matches, err := fs.Glob(iofsys, "etc/*")
	if err != nil {
		t.Fatalf("Glob: %v", err)
	}
	want := map[string]bool{"etc/motd": true, "etc/alias": true}
	if len(matches) != len(want) {
		t.Fatalf("Glob matches = %v, want keys of %v", matches, want)
	}
	for _, m := range matches {
		if !want[m] {
			t.Fatalf("unexpected glob match %q", m)
		}
	}

	var walked []string
	err = fs.WalkDir(iofsys, ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		walked = append(walked, path)
		return nil
	})
	if err != nil {
		t.Fatalf("WalkDir: %v", err)
	}
	if len(walked) == 0 {
		t.Fatalf("WalkDir visited nothing")
	}
}

func TestIOFSOpenRejectsInvalidPath(t *testing.T) {
	kfsys, _ := testImage(t, 256, 64, 16)
	iofsys := kfsys.IOFS()

	if _, err := iofsys.Open("../escape"); err == nil {
		t.Fatalf("expected error opening an invalid io/fs path")
	}
}

func TestIOFSStatDirectory(t *testing.T) {
	kfsys, _ := testImage(t, 256, 64, 16)
	seedIOFSTree(t, kfsys)

	iofsys := kfsys.IOFS()

	info, err := fs.Stat(iofsys, "etc")
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if !info.IsDir() {
		t.Fatalf("Stat(etc).IsDir() = false, want true")
	}
}
