package kfs

import (
	"github.com/kfsdev/kfs/wal"
)

// dirInit writes dp's initial "." and ".." entries: "." points at dp.inum
// and ".." at the given parent inum. Caller holds dp's
// content lock and is inside transaction t.
func (fs *FS) dirInit(t *wal.Txn, dp *Inode, parent uint32) error {
	if err := fs.Dirlink(t, dp, ".", dp.inum); err != nil {
		return err
	}
	if err := fs.Dirlink(t, dp, "..", parent); err != nil {
		return err
	}
	return nil
}

// create is the shared engine behind Create, Mkdir, and Symlink (spec.md
// §4.I): resolve path's parent directory, fail if an entry of that name
// already exists with an incompatible type, otherwise allocate a fresh
// inode of typ, link it into the parent, and (for directories) populate
// "." and "..". Returns the new inode locked and referenced.
func (fs *FS) create(t *wal.Txn, path string, cwd *Inode, typ Type) (*Inode, bool, error) {
	dp, name, err := fs.NameiParent(t, path, cwd)
	if err != nil {
		return nil, false, err
	}
	fs.Ilock(dp)
	if !dp.Type.IsDir() {
		fs.IunlockPut(t, dp)
		return nil, false, ErrNotDir
	}

	if existing := fs.Dirlookup(dp, name, nil); existing != nil {
		fs.Iunlock(dp)
		fs.Ilock(existing)
		if typ == TypeFile && existing.Type == TypeFile {
			fs.Iput(t, dp)
			return existing, false, nil
		}
		fs.IunlockPut(t, existing)
		fs.Iput(t, dp)
		return nil, false, ErrExists
	}

	inum := fs.Ialloc(t, typ)
	ip := fs.Iget(dp.dev, inum)
	fs.Ilock(ip)
	ip.Nlink = 1
	fs.Iupdate(t, ip)

	if typ == TypeDir {
		dp.Nlink++
		fs.Iupdate(t, dp)
		if err := fs.dirInit(t, ip, dp.inum); err != nil {
			fs.IunlockPut(t, ip)
			fs.IunlockPut(t, dp)
			return nil, false, err
		}
	}

	if err := fs.Dirlink(t, dp, name, ip.inum); err != nil {
		// Lost the create race to a concurrent caller that linked name
		// first: unwind the inode we just allocated (still inside this
		// same transaction) and hand back whichever inode actually won.
		ip.Nlink = 0
		if typ == TypeDir {
			dp.Nlink--
			fs.Iupdate(t, dp)
		}
		fs.IunlockPut(t, ip)

		winner := fs.Dirlookup(dp, name, nil)
		fs.IunlockPut(t, dp)
		if winner == nil {
			return nil, false, err
		}
		fs.Ilock(winner)
		if typ == TypeFile && winner.Type == TypeFile {
			return winner, false, nil
		}
		fs.IunlockPut(t, winner)
		return nil, false, ErrExists
	}

	fs.Iunlock(dp)
	fs.Iput(t, dp)
	return ip, true, nil
}

// Create implements open(O_CREATE) semantics (spec.md §4.I): returns the
// existing regular file if path already names one, creates a fresh one
// otherwise. Fails with ErrExists if path names a non-regular-file entry.
func (fs *FS) Create(t *wal.Txn, path string, cwd *Inode) (*Inode, error) {
	ip, _, err := fs.create(t, path, cwd, TypeFile)
	return ip, err
}

// Mkdir creates a new, empty directory at path (spec.md §4.I).
func (fs *FS) Mkdir(t *wal.Txn, path string, cwd *Inode) (*Inode, error) {
	ip, _, err := fs.create(t, path, cwd, TypeDir)
	return ip, err
}

// Symlink creates a symbolic link at path whose content is target (spec.md
// §4.I). target is stored verbatim and is not validated or resolved at
// creation time.
func (fs *FS) Symlink(t *wal.Txn, path, target string, cwd *Inode) (*Inode, error) {
	ip, _, err := fs.create(t, path, cwd, TypeSymlink)
	if err != nil {
		return nil, err
	}
	ip.SetTarget(target)
	fs.Iupdate(t, ip)
	return ip, nil
}

// Link creates a new directory entry newpath pointing at the existing
// inode named by oldpath, incrementing its link count (spec.md §4.I).
// Directories cannot be hard-linked.
func (fs *FS) Link(t *wal.Txn, oldpath, newpath string, cwd *Inode) error {
	ip, err := fs.Namei(t, oldpath, cwd)
	if err != nil {
		return err
	}
	fs.Ilock(ip)
	if ip.Type.IsDir() {
		fs.IunlockPut(t, ip)
		return ErrIsDir
	}
	ip.Nlink++
	fs.Iupdate(t, ip)
	fs.Iunlock(ip)

	dp, name, err := fs.NameiParent(t, newpath, cwd)
	if err != nil {
		fs.Ilock(ip)
		ip.Nlink--
		fs.Iupdate(t, ip)
		fs.IunlockPut(t, ip)
		return err
	}
	fs.Ilock(dp)
	if dp.dev != ip.dev {
		fs.IunlockPut(t, dp)
		fs.Ilock(ip)
		ip.Nlink--
		fs.Iupdate(t, ip)
		fs.IunlockPut(t, ip)
		return ErrCrossDevice
	}
	if err := fs.Dirlink(t, dp, name, ip.inum); err != nil {
		fs.IunlockPut(t, dp)
		fs.Ilock(ip)
		ip.Nlink--
		fs.Iupdate(t, ip)
		fs.IunlockPut(t, ip)
		return err
	}
	fs.IunlockPut(t, dp)
	fs.Iput(t, ip)
	return nil
}

// Unlink removes the directory entry at path, decrementing the target
// inode's link count and freeing it (via Iput) if that count reaches zero
// (spec.md §4.I). Refuses to unlink a non-empty directory or "."/"..".
func (fs *FS) Unlink(t *wal.Txn, path string, cwd *Inode) error {
	dp, name, err := fs.NameiParent(t, path, cwd)
	if err != nil {
		return err
	}
	if name == "." || name == ".." {
		fs.Iput(t, dp)
		return ErrInvalidArg
	}

	fs.Ilock(dp)
	if !dp.Type.IsDir() {
		fs.IunlockPut(t, dp)
		return ErrNotDir
	}

	var off uint32
	ip := fs.Dirlookup(dp, name, &off)
	if ip == nil {
		fs.IunlockPut(t, dp)
		return ErrNotExist
	}
	fs.Ilock(ip)

	if ip.Nlink < 1 {
		fatalf("kfs: unlink: inode %d has nlink<1 before unlink", ip.inum)
	}
	if ip.Type.IsDir() && !dirEmpty(fs, ip) {
		fs.IunlockPut(t, ip)
		fs.IunlockPut(t, dp)
		return ErrDirNotEmpty
	}

	var zero dirent
	if _, err := fs.Writei(t, dp, zero.marshal(), off); err != nil {
		fs.IunlockPut(t, ip)
		fs.IunlockPut(t, dp)
		return err
	}

	if ip.Type.IsDir() {
		dp.Nlink--
		fs.Iupdate(t, dp)
	}
	fs.IunlockPut(t, dp)

	ip.Nlink--
	fs.Iupdate(t, ip)
	fs.IunlockPut(t, ip)
	return nil
}

// dirEmpty reports whether directory dp contains only "." and "..".
// Caller holds dp's content lock.
func dirEmpty(fs *FS, dp *Inode) bool {
	buf := make([]byte, direntSize)
	for off := uint32(2 * direntSize); off < dp.Size; off += direntSize {
		n, err := fs.Readi(dp, buf, off)
		if err != nil || n != direntSize {
			fatalf("kfs: dirEmpty: short directory read at offset %d", off)
		}
		d := unmarshalDirent(buf)
		if d.inum != 0 {
			return false
		}
	}
	return true
}

// OpenFlags mirrors the subset of POSIX open(2) flags spec.md §4.I's Open
// bundles: O_CREATE to create the file if absent, O_EXCL to require that
// this call create it, O_TRUNC to truncate an existing regular file,
// O_NOFOLLOW to return a final-component symlink itself rather than
// following it.
type OpenFlags struct {
	Create   bool
	Excl     bool
	Trunc    bool
	NoFollow bool
}

// Open resolves (optionally creates) path, returning the target inode
// locked and referenced, ready for Readi/Writei (spec.md §4.I). Unlike
// namei, Open follows a final-component symlink itself, iteratively, up
// to MaxSymlinkDepth hops, unless flags.NoFollow is set -- namex has no
// symlink awareness at all, so this is the only place in the core a
// symlink is ever transparently followed. The resolved inode is always
// either returned locked or fully unlocked+put before an error is
// returned, never left locked on an error path.
func (fs *FS) Open(t *wal.Txn, path string, cwd *Inode, flags OpenFlags) (*Inode, error) {
	if flags.Create {
		ip, created, err := fs.create(t, path, cwd, TypeFile)
		if err != nil {
			return nil, err
		}
		if flags.Excl && !created {
			fs.IunlockPut(t, ip)
			return nil, ErrExists
		}
		return ip, nil
	}

	ip, err := fs.Namei(t, path, cwd)
	if err != nil {
		return nil, err
	}

	if !flags.NoFollow {
		ip, err = fs.followSymlinks(t, ip, cwd)
		if err != nil {
			return nil, err
		}
	}

	fs.Ilock(ip)
	if ip.Type.IsDir() && flags.Trunc {
		fs.IunlockPut(t, ip)
		return nil, ErrIsDir
	}
	if flags.Trunc && ip.Type == TypeFile {
		fs.Itrunc(t, ip)
	}
	return ip, nil
}

// followSymlinks repeatedly resolves ip's target while ip is itself a
// symlink, up to MaxSymlinkDepth hops, implementing spec.md §4.I's "follow
// iteratively... then fail as a cycle" requirement. ip is referenced but
// unlocked on entry (as namei returns it); the result is likewise
// referenced but unlocked, or nil with ip fully unlocked+put on error.
func (fs *FS) followSymlinks(t *wal.Txn, ip *Inode, cwd *Inode) (*Inode, error) {
	for depth := 0; ; depth++ {
		fs.Ilock(ip)
		if !ip.Type.IsSymlink() {
			fs.Iunlock(ip)
			return ip, nil
		}
		if depth >= MaxSymlinkDepth {
			fs.IunlockPut(t, ip)
			return nil, ErrSymlinkLoop
		}
		target := ip.TargetString()
		fs.IunlockPut(t, ip)

		if target == "" {
			return nil, ErrInvalidArg
		}

		// A relative target resolves against cwd, not against the
		// directory the link lived in -- spec.md §4.I doesn't require
		// tracking the link's containing directory separately, and xv6
		// itself has no symlinks to set a precedent either way.
		var (
			next *Inode
			err  error
		)
		if target[0] != '/' {
			next, err = fs.Namei(t, target, cwd)
		} else {
			next, err = fs.Namei(t, target, nil)
		}
		if err != nil {
			return nil, err
		}
		ip = next
	}
}

// Chdir resolves path and returns it locked only long enough to check it
// is a directory, then unlocked (but still referenced) so the caller can
// store it as a new current-working-directory handle (spec.md §4.I).
func (fs *FS) Chdir(t *wal.Txn, path string, cwd *Inode) (*Inode, error) {
	ip, err := fs.Namei(t, path, cwd)
	if err != nil {
		return nil, err
	}
	fs.Ilock(ip)
	if !ip.Type.IsDir() {
		fs.IunlockPut(t, ip)
		return nil, ErrNotDir
	}
	fs.Iunlock(ip)
	return ip, nil
}
