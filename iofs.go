package kfs

import (
	"io"
	iofs "io/fs"
	"path"
	"time"
)

// FileSystem is a read-only io/fs.FS view of a mounted FS, the
// Go-idiomatic equivalent of the teacher's file.go convenience wrapper:
// it lets tests and tooling drive kfs with stdlib fs.ReadFile, fs.Glob,
// and fs.WalkDir instead of the core's own Open/Readi pair. Every call
// opens its own short transaction; nothing here holds a lock across
// calls the way the core's own Readi contract expects its caller to.
type FileSystem struct {
	fs *FS
}

// IOFS returns a read-only io/fs.FS rooted at fs's root directory.
func (fs *FS) IOFS() iofs.FS { return &FileSystem{fs: fs} }

var (
	_ iofs.FS         = (*FileSystem)(nil)
	_ iofs.ReadFileFS = (*FileSystem)(nil)
	_ iofs.StatFS     = (*FileSystem)(nil)
)

func ioFSPath(name string) (string, error) {
	if !iofs.ValidPath(name) {
		return "", iofs.ErrInvalid
	}
	if name == "." {
		return "/", nil
	}
	return "/" + name, nil
}

func (fsys *FileSystem) Open(name string) (iofs.File, error) {
	p, err := ioFSPath(name)
	if err != nil {
		return nil, &iofs.PathError{Op: "open", Path: name, Err: err}
	}

	t := fsys.fs.Begin()
	defer t.End()
	ip, err := fsys.fs.Open(t, p, nil, OpenFlags{})
	if err != nil {
		return nil, &iofs.PathError{Op: "open", Path: name, Err: err}
	}

	if ip.Type.IsDir() {
		entries, err := fsys.fs.ListDirents(ip)
		fsys.fs.IunlockPut(t, ip)
		if err != nil {
			return nil, &iofs.PathError{Op: "open", Path: name, Err: err}
		}
		return &ioDir{fsys: fsys.fs, name: name, entries: entries}, nil
	}

	st := fsys.fs.Stati(ip)
	fsys.fs.IunlockPut(t, ip)
	return &ioFile{fsys: fsys.fs, inum: st.Inum, name: name, size: int64(st.Size)}, nil
}

func (fsys *FileSystem) ReadFile(name string) ([]byte, error) {
	f, err := fsys.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, &iofs.PathError{Op: "read", Path: name, Err: iofs.ErrInvalid}
	}

	buf := make([]byte, info.Size())
	if _, err := io.ReadFull(f.(io.Reader), buf); err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return nil, err
	}
	return buf, nil
}

func (fsys *FileSystem) Stat(name string) (iofs.FileInfo, error) {
	f, err := fsys.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return f.Stat()
}

// ioFile is a non-seekable, read-only view of one kfs file. It re-fetches
// the inode from the cache on every Read instead of holding it locked
// across the whole read sequence -- fine for the tooling/test convenience
// this type exists for, not a pattern the core itself uses internally.
type ioFile struct {
	fsys *FS
	inum uint32
	name string
	size int64
	off  uint32
}

var (
	_ iofs.File = (*ioFile)(nil)
	_ io.Reader = (*ioFile)(nil)
)

func (f *ioFile) Stat() (iofs.FileInfo, error) {
	return &ioFileInfo{name: path.Base(f.name), size: f.size}, nil
}

func (f *ioFile) Read(p []byte) (int, error) {
	t := f.fsys.Begin()
	defer t.End()
	ip := f.fsys.Iget(ROOTDEV, f.inum)
	f.fsys.Ilock(ip)
	n, err := f.fsys.Readi(ip, p, f.off)
	f.fsys.IunlockPut(t, ip)
	if err != nil {
		return 0, err
	}
	f.off += uint32(n)
	if n == 0 {
		return 0, io.EOF
	}
	return n, nil
}

func (f *ioFile) Close() error { return nil }

// ioDir implements fs.ReadDirFile over a directory's already-resolved
// entry list (read once, up front, under the directory's content lock).
type ioDir struct {
	fsys    *FS
	name    string
	entries []DirEntry
	off     int
}

var _ iofs.ReadDirFile = (*ioDir)(nil)

func (d *ioDir) Stat() (iofs.FileInfo, error) {
	return &ioFileInfo{name: path.Base(d.name), dir: true}, nil
}

func (d *ioDir) Read(p []byte) (int, error) {
	return 0, &iofs.PathError{Op: "read", Path: d.name, Err: iofs.ErrInvalid}
}

func (d *ioDir) Close() error { return nil }

func (d *ioDir) ReadDir(n int) ([]iofs.DirEntry, error) {
	var out []iofs.DirEntry
	for d.off < len(d.entries) {
		e := d.entries[d.off]
		d.off++
		if e.Name == "." || e.Name == ".." {
			continue
		}
		dinode, err := d.fsys.ReadDinode(e.Inum)
		if err != nil {
			return out, err
		}
		out = append(out, &ioFileInfo{name: e.Name, size: int64(dinode.Size), dir: dinode.Type.IsDir()})
		if n > 0 && len(out) == n {
			return out, nil
		}
	}
	if n > 0 && len(out) == 0 {
		return nil, io.EOF
	}
	return out, nil
}

// ioFileInfo satisfies both fs.FileInfo and fs.DirEntry, the minimal set
// io/fs callers need; kfs has no mod-time or permission bits of its own
// to report, so Mode and ModTime are synthesized.
type ioFileInfo struct {
	name string
	size int64
	dir  bool
}

var (
	_ iofs.FileInfo = (*ioFileInfo)(nil)
	_ iofs.DirEntry = (*ioFileInfo)(nil)
)

func (fi *ioFileInfo) Name() string       { return fi.name }
func (fi *ioFileInfo) Size() int64        { return fi.size }
func (fi *ioFileInfo) IsDir() bool        { return fi.dir }
func (fi *ioFileInfo) ModTime() time.Time { return time.Time{} }
func (fi *ioFileInfo) Sys() any           { return nil }

func (fi *ioFileInfo) Mode() iofs.FileMode {
	if fi.dir {
		return iofs.ModeDir | 0755
	}
	return 0644
}

func (fi *ioFileInfo) Type() iofs.FileMode            { return fi.Mode().Type() }
func (fi *ioFileInfo) Info() (iofs.FileInfo, error)   { return fi, nil }
