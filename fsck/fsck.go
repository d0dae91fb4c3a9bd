// Package fsck verifies the testable properties spec.md §8 names against
// a mounted kfs image: bitmap-vs-reachability, nlink-vs-directory-entries,
// "."/".." uniqueness, and (optionally) a whole-device checksum for
// before/after comparison in tests. No example repo in the retrieval pack
// implements an fsck, so the checks themselves are grounded directly in
// spec.md §8; the concurrency and hashing plumbing around them borrows
// from the rest of the pack's dependency set.
package fsck

import (
	"context"
	"crypto/subtle"
	"fmt"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/sync/errgroup"

	"github.com/kfsdev/kfs"
)

// Problem is one violated invariant, naming the check that found it and a
// human-readable description. fsck never repairs; it only reports.
type Problem struct {
	Check       string
	Description string
}

// Report is the result of a full fsck pass.
type Report struct {
	Problems []Problem
	Checksum []byte // only set if Options.Checksum was requested
}

// Clean reports whether no problems were found.
func (r *Report) Clean() bool { return len(r.Problems) == 0 }

// Options controls which optional checks run.
type Options struct {
	// Checksum hashes the whole device with blake2b for later
	// before/after comparison; the hash is never written to disk.
	Checksum bool
}

// Check runs every structural invariant check concurrently (they only
// read) and returns a
// combined report. It never mutates the image.
func Check(fs *kfs.FS, opts Options) (*Report, error) {
	report := &Report{}
	var bitmapProblems, nlinkProblems, dotdotProblems []Problem
	var checksum []byte

	g, _ := errgroup.WithContext(context.Background())
	g.Go(func() (err error) {
		bitmapProblems, err = checkBitmapReachability(fs)
		return err
	})
	g.Go(func() (err error) {
		nlinkProblems, err = checkNlinkAgainstDirents(fs)
		return err
	})
	g.Go(func() (err error) {
		dotdotProblems, err = checkDotDot(fs)
		return err
	})
	if opts.Checksum {
		g.Go(func() (err error) {
			checksum, err = checksumDevice(fs)
			return err
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	report.Problems = append(report.Problems, bitmapProblems...)
	report.Problems = append(report.Problems, nlinkProblems...)
	report.Problems = append(report.Problems, dotdotProblems...)
	report.Checksum = checksum
	return report, nil
}

// allocatedInodes returns every inode number whose on-disk type is not
// TypeFree. Uses ReadDinode snapshots, not the live inode cache: fsck must
// never risk triggering Iput's free-on-last-reference path against a
// possibly-corrupt inode (nlink==0 on an otherwise allocated inode is
// exactly the kind of corruption checkNlinkAgainstDirents exists to
// report, not silently repair).
func allocatedInodes(fs *kfs.FS) ([]uint32, error) {
	sb := fs.Superblock()
	var out []uint32
	for inum := uint32(1); inum < sb.Ninodes; inum++ {
		d, err := fs.ReadDinode(inum)
		if err != nil {
			return nil, err
		}
		if d.Type != kfs.TypeFree {
			out = append(out, inum)
		}
	}
	return out, nil
}

// reachableBlocks returns every data block number ip's block map
// currently points at, direct and indirect.
func reachableBlocks(fs *kfs.FS, ip *kfs.Inode) []uint32 {
	var out []uint32
	for _, a := range ip.Addrs[:kfs.NDIRECT] {
		if a != 0 {
			out = append(out, a)
		}
	}
	if ip.Addrs[kfs.NDIRECT] != 0 {
		indirect := ip.Addrs[kfs.NDIRECT]
		out = append(out, indirect)
		out = append(out, fs.IndirectTargets(indirect)...)
	}
	if ip.Addrs[kfs.NDIRECT+1] != 0 {
		top := ip.Addrs[kfs.NDIRECT+1]
		out = append(out, top)
		for _, second := range fs.IndirectTargets(top) {
			out = append(out, second)
			out = append(out, fs.IndirectTargets(second)...)
		}
	}
	return out
}

func checkBitmapReachability(fs *kfs.FS) ([]Problem, error) {
	var problems []Problem
	sb := fs.Superblock()

	reachable := make(map[uint32]bool)
	inodes, err := allocatedInodes(fs)
	if err != nil {
		return nil, err
	}
	for _, inum := range inodes {
		d, err := fs.ReadDinode(inum)
		if err != nil {
			return nil, err
		}
		for _, b := range reachableBlocks(fs, d) {
			reachable[b] = true
		}
	}

	for b := sb.DataStart(); b < sb.DataStart()+sb.Nblocks; b++ {
		set := fs.BitmapBit(b)
		if set && !reachable[b] {
			problems = append(problems, Problem{"bitmap-reachability",
				fmt.Sprintf("block %d is marked allocated but is not reachable from any inode", b)})
		}
		if !set && reachable[b] {
			problems = append(problems, Problem{"bitmap-reachability",
				fmt.Sprintf("block %d is reachable from an inode but not marked allocated", b)})
		}
	}
	return problems, nil
}

func checkNlinkAgainstDirents(fs *kfs.FS) ([]Problem, error) {
	var problems []Problem
	counts := make(map[uint32]int)

	inodes, err := allocatedInodes(fs)
	if err != nil {
		return nil, err
	}
	for _, inum := range inodes {
		d, err := fs.ReadDinode(inum)
		if err != nil {
			return nil, err
		}
		if !d.Type.IsDir() {
			continue
		}
		entries, err := fs.ListDirents(d)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			if e.Name == "." {
				continue // by design: "." never contributes to nlink
			}
			counts[e.Inum]++
		}
	}

	for _, inum := range inodes {
		d, err := fs.ReadDinode(inum)
		if err != nil {
			return nil, err
		}
		// root's ".." is self-referential, so its own directory listing
		// (walked above like any other) already contributes its one count.
		want := counts[inum]
		if int(d.Nlink) != want {
			problems = append(problems, Problem{"nlink-dirents",
				fmt.Sprintf("inode %d: nlink=%d but %d directory entries reference it", inum, d.Nlink, want)})
		}
	}
	return problems, nil
}

func checkDotDot(fs *kfs.FS) ([]Problem, error) {
	var problems []Problem
	inodes, err := allocatedInodes(fs)
	if err != nil {
		return nil, err
	}
	for _, inum := range inodes {
		d, err := fs.ReadDinode(inum)
		if err != nil {
			return nil, err
		}
		if !d.Type.IsDir() {
			continue
		}
		entries, err := fs.ListDirents(d)
		if err != nil {
			return nil, err
		}

		var dots, dotdots int
		for _, e := range entries {
			switch e.Name {
			case ".":
				dots++
				if e.Inum != inum {
					problems = append(problems, Problem{"dotdot",
						fmt.Sprintf("inode %d: \".\" points at %d, not itself", inum, e.Inum)})
				}
			case "..":
				dotdots++
			}
		}
		if dots != 1 {
			problems = append(problems, Problem{"dotdot",
				fmt.Sprintf("inode %d: has %d \".\" entries, want 1", inum, dots)})
		}
		if dotdots != 1 {
			problems = append(problems, Problem{"dotdot",
				fmt.Sprintf("inode %d: has %d \"..\" entries, want 1", inum, dotdots)})
		}
	}
	return problems, nil
}

func checksumDevice(fs *kfs.FS) ([]byte, error) {
	sb := fs.Superblock()
	h, err := blake2b.New256(nil)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, kfs.BSIZE)
	for b := uint32(0); b < sb.Size; b++ {
		if err := fs.ReadRawBlock(b, buf); err != nil {
			return nil, err
		}
		if _, err := h.Write(buf); err != nil {
			return nil, err
		}
	}
	return h.Sum(nil), nil
}

// Equal reports whether two checksums produced by Options{Checksum:true}
// match, using a constant-time comparison since the hash is sometimes
// compared across trust boundaries (e.g. a verifying client vs. an
// untrusted image source).
func Equal(a, b []byte) bool {
	return len(a) == len(b) && subtle.ConstantTimeCompare(a, b) == 1
}
