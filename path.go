package kfs

import (
	"strings"

	"github.com/kfsdev/kfs/wal"
)

// skipelem splits the next path element off the front of path, returning
// the element name, whether one was found, and the remainder of path with
// leading slashes consumed (spec.md §4.H). Mirrors xv6's skipelem: a path
// of all slashes yields ok==false.
func skipelem(path string) (elem string, ok bool, rest string) {
	for len(path) > 0 && path[0] == '/' {
		path = path[1:]
	}
	if len(path) == 0 {
		return "", false, ""
	}
	i := strings.IndexByte(path, '/')
	if i < 0 {
		return path, true, ""
	}
	elem = path[:i]
	rest = path[i:]
	for len(rest) > 0 && rest[0] == '/' {
		rest = rest[1:]
	}
	return elem, true, rest
}

// namex is the shared engine behind Namei and NameiParent (spec.md §4.H):
// it resolves path one element at a time starting from either the root
// directory (absolute path) or cwd (relative path), following directory
// entries. It has no notion of symlinks at all -- a symlink encountered
// mid-path or as the final component is returned to the caller exactly
// like any other inode, unresolved. Symlink-following is scoped entirely
// to Open (spec.md §4.I); every other caller of namei/nameiparent (Link's
// oldpath, Unlink, Chdir) resolves the raw path with no symlink semantics,
// matching xv6's own namex, which has no symlinks to follow. If
// nameiparent is true, resolution stops one element short and *lastElem
// is set to the final path component; the caller is responsible for
// looking that name up (or creating it) in the returned directory.
func (fs *FS) namex(t *wal.Txn, path string, cwd *Inode, nameiparent bool, lastElem *string) (*Inode, error) {
	var ip *Inode
	if len(path) > 0 && path[0] == '/' {
		ip = fs.Iget(ROOTDEV, ROOTINO)
	} else if cwd != nil {
		ip = fs.Idup(cwd)
	} else {
		ip = fs.Iget(ROOTDEV, ROOTINO)
	}

	for {
		elem, ok, rest := skipelem(path)
		if !ok {
			break
		}

		fs.Ilock(ip)
		if !ip.Type.IsDir() {
			fs.IunlockPut(t, ip)
			return nil, ErrNotDir
		}

		if nameiparent && rest == "" {
			fs.Iunlock(ip)
			*lastElem = elem
			return ip, nil
		}

		next := fs.Dirlookup(ip, elem, nil)
		if next == nil {
			fs.IunlockPut(t, ip)
			return nil, ErrNotExist
		}
		fs.IunlockPut(t, ip)

		ip = next
		path = rest
	}

	if nameiparent {
		fs.Iput(t, ip)
		return nil, ErrInvalidArg
	}
	return ip, nil
}

// Namei resolves path to its inode (spec.md §4.H). It does not follow a
// symlink named by the final component -- Open is the only caller that
// needs to, and does its own iterative follow loop. cwd may be nil to
// resolve purely-absolute paths.
func (fs *FS) Namei(t *wal.Txn, path string, cwd *Inode) (*Inode, error) {
	return fs.namex(t, path, cwd, false, nil)
}

// NameiParent resolves all but the last element of path, returning the
// parent directory (not locked) and the final element's name. The caller
// looks up or creates that name within the returned directory.
func (fs *FS) NameiParent(t *wal.Txn, path string, cwd *Inode) (*Inode, string, error) {
	var last string
	dp, err := fs.namex(t, path, cwd, true, &last)
	if err != nil {
		return nil, "", err
	}
	// xv6's skipelem never errors on an over-length element; it silently
	// truncates to DIRSIZ (spec.md §4.H). dirent.setName does the actual
	// truncation on disk and nameEquals compares over-length names on
	// their first DIRSIZ bytes, so two long names sharing a DIRSIZ-byte
	// prefix collide by design (spec.md §8 scenario 6) -- nothing here
	// needs to reject the name up front.
	return dp, last, nil
}
