// Package fs is the filesystem seam under snapshot persistence, the manifest
// catalog and the local model store.
//
//   - [File]: an open file with read/write/sync capabilities
//   - [FileSystem]: the operations those layers perform (open, remove,
//     rename, stat, mkdir, readdir)
//
// Production code uses [Default] (backed by [OS]):
//
//	f, err := fs.Default.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
//
// Tests inject [FaultyFS] to simulate torn writes and lost sync barriers:
//
//	ffs := fs.NewFaultyFS(nil)
//	ffs.AddRule(".tmp", fs.Fault{FailAfterBytes: 32})
//
// Operations deliberately take no context.Context: local filesystem calls are
// fast and non-interruptible at the syscall level. Remote stores with real
// cancellation needs live in the modelstore package.
package fs
