// Package mmap provides read-only memory-mapped file access for zero-copy
// snapshot loading.
//
// On unix platforms the file is mapped with PROT_READ; elsewhere the file is
// read into an anonymous buffer so callers see the same API everywhere. The
// returned byte slice stays valid until Close.
package mmap
