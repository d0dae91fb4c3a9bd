// Package cpioseed populates a freshly formatted kfs image from a cpio
// (newc format) archive -- the same role an initramfs payload plays when
// a kernel first brings up its root filesystem. It is the only component
// in this module that drives create/mkdir/symlink/writei end-to-end
// without a VFS layer in front of it (spec.md §4.I's high-level ops,
// SPEC_FULL.md §4.R).
package cpioseed

import (
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/cavaliercoder/go-cpio"

	"github.com/kfsdev/kfs"
)

// modeTypeMask is the standard Unix S_IFMT mask; cpio's newc header packs
// the same file-type bits into its mode field as stat(2) does.
const modeTypeMask = 0170000

func isSymlink(mode cpio.FileMode) bool {
	return uint32(mode)&modeTypeMask == uint32(cpio.TypeSymlink)
}

// Seed replays every entry in the cpio archive read from r against fs,
// starting at the root directory, and returns the number of entries
// successfully applied. Archive order matters: a file under a directory
// must be preceded by that directory's own entry, exactly as a real cpio
// payload is laid out. Each entry commits in its own log transaction, the
// same granularity a syscall-driven populate would use.
func Seed(fs *kfs.FS, r io.Reader) (int, error) {
	cr := cpio.NewReader(r)
	count := 0
	for {
		hdr, err := cr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return count, fmt.Errorf("cpioseed: read header: %w", err)
		}

		name := normalizeName(hdr.Name)
		if name == "/" {
			continue // the archive's own "." root entry; root already exists
		}

		if err := seedEntry(fs, cr, name, hdr); err != nil {
			return count, fmt.Errorf("cpioseed: %s: %w", name, err)
		}
		count++
	}
	return count, nil
}

// normalizeName turns a cpio-relative path ("bin/sh", "./etc/passwd")
// into the absolute path kfs's path resolver expects.
func normalizeName(name string) string {
	name = strings.TrimPrefix(name, "./")
	if !strings.HasPrefix(name, "/") {
		name = "/" + name
	}
	return path.Clean(name)
}

func seedEntry(fs *kfs.FS, r io.Reader, name string, hdr *cpio.Header) error {
	t := fs.Begin()

	switch {
	case hdr.Mode.IsDir():
		ip, err := fs.Mkdir(t, name, nil)
		if err != nil {
			t.End()
			return err
		}
		fs.IunlockPut(t, ip)

	case isSymlink(hdr.Mode):
		target := make([]byte, hdr.Size)
		if _, err := io.ReadFull(r, target); err != nil {
			t.End()
			return fmt.Errorf("read symlink target: %w", err)
		}
		ip, err := fs.Symlink(t, name, string(target), nil)
		if err != nil {
			t.End()
			return err
		}
		fs.IunlockPut(t, ip)

	default:
		ip, err := fs.Create(t, name, nil)
		if err != nil {
			t.End()
			return err
		}
		if hdr.Size > 0 {
			content := make([]byte, hdr.Size)
			if _, err := io.ReadFull(r, content); err != nil {
				fs.IunlockPut(t, ip)
				t.End()
				return fmt.Errorf("read file content: %w", err)
			}
			if _, err := fs.Writei(t, ip, content, 0); err != nil {
				fs.IunlockPut(t, ip)
				t.End()
				return fmt.Errorf("write file content: %w", err)
			}
		}
		fs.IunlockPut(t, ip)
	}

	return t.End()
}
