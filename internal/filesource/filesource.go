// Package filesource resolves a file URI to byte-range-readable storage,
// so the rest of the core never depends on os or AWS specifics beyond this
// seam (SPEC_FULL.md §4.9/§6.1a). Two implementations ship: a local
// filesystem source (optionally mmap'd) and an S3-compatible object store
// source that spools the object to a local temp file before handing out
// byte ranges.
package filesource

import (
	"context"
	"io"
)

// FileSource resolves a URI into a byte-range-capable handle.
type FileSource interface {
	Open(ctx context.Context, uri string) (FileHandle, error)
}

// FileHandle is shared read-only byte-range access to one resolved file.
// Clone is used to hand an independently closeable reference to each
// worker that parses a disjoint row range of the same file; the
// underlying resource (an open fd, an mmap) is released once every clone
// has been closed.
type FileHandle interface {
	io.ReaderAt
	io.Closer
	Size() int64
	Clone() (FileHandle, error)
}
