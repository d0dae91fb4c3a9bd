// Package kfs implements a crash-consistent on-disk file system core meant
// to run inside an operating-system kernel on top of a single raw block
// device. It provides inodes, hard links, symbolic links, device nodes,
// and directories above a bitmap-backed block allocator, with every
// metadata-affecting write grouped into a write-ahead-logged transaction
// (package wal) so the on-disk state survives a crash at any instruction
// boundary.
//
// The package does not include a buffered block I/O cache, a logging
// daemon, sleep/spin primitives, or a file-descriptor/VFS layer in the
// traditional kernel sense -- those live in sibling packages (device,
// bufcache, wal) so kfs itself only deals with inodes, block maps,
// directories, and path resolution.
package kfs
