package kfs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestUnlinkFreesBitmapInodeAndDirent is spec.md §8 scenario 1: unlinking
// a file zeros its block's bitmap bit, its inode's on-disk type, and the
// parent directory entry that named it.
func TestUnlinkFreesBitmapInodeAndDirent(t *testing.T) {
	fs, _ := testImage(t, 256, 64, 16)

	tx := fs.Begin()
	ip, err := fs.Create(tx, "/a", nil)
	require.NoError(t, err)
	_, err = fs.Writei(tx, ip, []byte("hello"), 0)
	require.NoError(t, err)
	blockno := ip.Addrs[0]
	inum := ip.inum
	fs.IunlockPut(tx, ip)
	require.NoError(t, tx.End())

	assert.True(t, fs.BitmapBit(blockno), "block %d not marked allocated after write", blockno)

	tx = fs.Begin()
	require.NoError(t, fs.Unlink(tx, "/a", nil))
	require.NoError(t, tx.End())

	assert.False(t, fs.BitmapBit(blockno), "block %d still marked allocated after unlink", blockno)
	dinode, err := fs.ReadDinode(inum)
	require.NoError(t, err)
	assert.Equal(t, TypeFree, dinode.Type)

	tx = fs.Begin()
	root := fs.Iget(ROOTDEV, ROOTINO)
	fs.Ilock(root)
	got := fs.Dirlookup(root, "a", nil)
	if got != nil {
		fs.Iput(tx, got)
	}
	assert.Nil(t, got, "directory entry for \"a\" still present after unlink")
	fs.IunlockPut(tx, root)
	require.NoError(t, tx.End())
}

// countAllocatedBlocks sums the free-bitmap bits set across the entire
// data region, for the before/after comparison spec.md §8's idempotence
// property requires.
func countAllocatedBlocks(fs *FS) int {
	sb := fs.Superblock()
	n := 0
	for b := sb.DataStart(); b < sb.DataStart()+sb.Nblocks; b++ {
		if fs.BitmapBit(b) {
			n++
		}
	}
	return n
}

// TestTruncateGrowsThroughDoublyIndirectAndFrees is spec.md §8 scenario 2:
// a file large enough to need its doubly-indirect pointer reads back the
// byte it was given at every block, and itrunc returns every block
// (direct, singly-indirect, and doubly-indirect alike) to the free pool.
func TestTruncateGrowsThroughDoublyIndirectAndFrees(t *testing.T) {
	const nblocks = NDIRECT + NINDIRECT + 5
	// The whole file is written inside a single transaction, so the log
	// region must hold every distinct block the write and its block-map
	// growth touch: every leaf data block, the singly- and
	// doubly-indirect tables, the bitmap block, the inode block, and the
	// root directory's own content block. nblocks+20 leaves comfortable
	// headroom over that count.
	fs, _ := testImage(t, nblocks+16, 32, nblocks+20)

	baseline := countAllocatedBlocks(fs)

	tx := fs.Begin()
	ip, err := fs.Create(tx, "/big", nil)
	require.NoError(t, err)

	buf := make([]byte, nblocks*BSIZE)
	for k := 0; k < nblocks; k++ {
		buf[k*BSIZE] = byte(k & 0xff)
	}
	_, err = fs.Writei(tx, ip, buf, 0)
	require.NoError(t, err)
	inum := ip.inum
	fs.IunlockPut(tx, ip)
	require.NoError(t, tx.End())

	tx = fs.Begin()
	ip2 := fs.Iget(ROOTDEV, inum)
	fs.Ilock(ip2)
	checkOff := uint32(NDIRECT+NINDIRECT+3) * BSIZE
	got := make([]byte, 1)
	_, err = fs.Readi(ip2, got, checkOff)
	require.NoError(t, err)
	want := byte((NDIRECT + NINDIRECT + 3) & 0xff)
	assert.Equal(t, want, got[0], "byte at block %d", NDIRECT+NINDIRECT+3)

	var allocated []uint32
	for i := 0; i < NDIRECT+2; i++ {
		if ip2.Addrs[i] != 0 {
			allocated = append(allocated, ip2.Addrs[i])
		}
	}
	for _, b := range allocated {
		assert.True(t, fs.BitmapBit(b), "block %d not marked allocated before truncate", b)
	}

	fs.Itrunc(tx, ip2)
	assert.EqualValues(t, 0, ip2.Size)
	for i := range ip2.Addrs {
		assert.EqualValues(t, 0, ip2.Addrs[i], "Addrs[%d] after Itrunc", i)
	}
	fs.IunlockPut(tx, ip2)
	require.NoError(t, tx.End())

	for _, b := range allocated {
		assert.False(t, fs.BitmapBit(b), "block %d still marked allocated after Itrunc", b)
	}

	assert.Equal(t, baseline, countAllocatedBlocks(fs), "allocated block count after Itrunc should return to pre-create baseline")
}

// TestLinkIncrementsAndUnlinkDecrementsRefcount is spec.md §8 scenario 3.
func TestLinkIncrementsAndUnlinkDecrementsRefcount(t *testing.T) {
	fs, _ := testImage(t, 256, 64, 16)

	tx := fs.Begin()
	ip, err := fs.Create(tx, "/x", nil)
	require.NoError(t, err)
	inum := ip.inum
	fs.IunlockPut(tx, ip)
	require.NoError(t, tx.End())

	tx = fs.Begin()
	require.NoError(t, fs.Link(tx, "/x", "/y", nil))
	require.NoError(t, tx.End())

	dinode, err := fs.ReadDinode(inum)
	require.NoError(t, err)
	assert.EqualValues(t, 2, dinode.Nlink)

	tx = fs.Begin()
	require.NoError(t, fs.Unlink(tx, "/x", nil))
	require.NoError(t, tx.End())

	dinode, err = fs.ReadDinode(inum)
	require.NoError(t, err)
	assert.NotEqual(t, TypeFree, dinode.Type, "inode %d freed after only one of two links removed", inum)
	assert.EqualValues(t, 1, dinode.Nlink)

	tx = fs.Begin()
	require.NoError(t, fs.Unlink(tx, "/y", nil))
	require.NoError(t, tx.End())

	dinode, err = fs.ReadDinode(inum)
	require.NoError(t, err)
	assert.Equal(t, TypeFree, dinode.Type, "inode %d after both links removed", inum)
}

// TestLinkRefusesDirectory is spec.md §8 scenario 4.
func TestLinkRefusesDirectory(t *testing.T) {
	fs, _ := testImage(t, 256, 64, 16)

	tx := fs.Begin()
	ip, err := fs.Mkdir(tx, "/d", nil)
	require.NoError(t, err)
	fs.IunlockPut(tx, ip)
	require.NoError(t, tx.End())

	tx = fs.Begin()
	err = fs.Link(tx, "/d", "/e", nil)
	tx.End()
	assert.Equal(t, ErrIsDir, err)

	tx = fs.Begin()
	root := fs.Iget(ROOTDEV, ROOTINO)
	fs.Ilock(root)
	got := fs.Dirlookup(root, "e", nil)
	if got != nil {
		fs.Iput(tx, got)
	}
	assert.Nil(t, got, "Link(dir) created a directory entry for \"e\" despite failing")
	fs.IunlockPut(tx, root)
	tx.End()
}

// TestOpenSymlinkCycleFailsWithoutUnboundedRecursion is spec.md §8
// scenario 5: a mutual symlink cycle must fail with ErrSymlinkLoop after
// at most MaxSymlinkDepth hops, not recurse without bound.
func TestOpenSymlinkCycleFailsWithoutUnboundedRecursion(t *testing.T) {
	fs, _ := testImage(t, 256, 64, 16)

	tx := fs.Begin()
	ip, err := fs.Symlink(tx, "/b", "/a", nil)
	require.NoError(t, err)
	fs.IunlockPut(tx, ip)
	ip, err = fs.Symlink(tx, "/a", "/b", nil)
	require.NoError(t, err)
	fs.IunlockPut(tx, ip)
	require.NoError(t, tx.End())

	tx = fs.Begin()
	_, err = fs.Open(tx, "/a", nil, OpenFlags{})
	tx.End()
	assert.Equal(t, ErrSymlinkLoop, err)
}

// TestOpenNoFollowReturnsSymlinkItself checks that O_NOFOLLOW keeps
// symlink-following scoped to Open's own flag, not the path resolver.
func TestOpenNoFollowReturnsSymlinkItself(t *testing.T) {
	fs, _ := testImage(t, 256, 64, 16)

	tx := fs.Begin()
	target, err := fs.Create(tx, "/real", nil)
	require.NoError(t, err)
	fs.IunlockPut(tx, target)
	link, err := fs.Symlink(tx, "/link", "/real", nil)
	require.NoError(t, err)
	fs.IunlockPut(tx, link)
	require.NoError(t, tx.End())

	tx = fs.Begin()
	ip, err := fs.Open(tx, "/link", nil, OpenFlags{NoFollow: true})
	require.NoError(t, err)
	assert.True(t, ip.Type.IsSymlink(), "Open(NoFollow) returned type %v, want symlink", ip.Type)
	fs.IunlockPut(tx, ip)
	tx.End()

	tx = fs.Begin()
	ip, err = fs.Open(tx, "/link", nil, OpenFlags{})
	require.NoError(t, err)
	assert.Equal(t, TypeFile, ip.Type, "Open(follow) should resolve through the symlink")
	fs.IunlockPut(tx, ip)
	tx.End()
}

// TestCreateWithOverLongNameTruncatesAndCollides is spec.md §8 scenario 6:
// skipelem/setName silently truncate at DIRSIZ rather than erroring, so
// two names agreeing on their first DIRSIZ bytes refer to the same entry.
func TestCreateWithOverLongNameTruncatesAndCollides(t *testing.T) {
	fs, _ := testImage(t, 256, 64, 16)

	tx := fs.Begin()
	ip, err := fs.Create(tx, "/abcdefghijklmnop", nil)
	require.NoError(t, err)
	inum := ip.inum
	fs.IunlockPut(tx, ip)
	require.NoError(t, tx.End())

	tx = fs.Begin()
	root := fs.Iget(ROOTDEV, ROOTINO)
	fs.Ilock(root)
	match := fs.Dirlookup(root, "abcdefghijklmnXX", nil)
	require.NotNil(t, match, "lookup of \"abcdefghijklmnXX\" did not match the over-length entry")
	assert.Equal(t, inum, match.inum)
	fs.Iput(tx, match)
	fs.IunlockPut(tx, root)
	require.NoError(t, tx.End())
}
