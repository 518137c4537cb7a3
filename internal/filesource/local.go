package filesource

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"github.com/edsrzf/mmap-go"
)

// LocalFileSource resolves plain filesystem paths. When UseMmap is set,
// the file is memory-mapped once per Open and the mapping is shared
// (reference-counted) across every clone handed to a worker.
type LocalFileSource struct {
	UseMmap bool
}

func NewLocalFileSource(useMmap bool) *LocalFileSource {
	return &LocalFileSource{UseMmap: useMmap}
}

func (l *LocalFileSource) Open(ctx context.Context, uri string) (FileHandle, error) {
	f, err := os.Open(uri)
	if err != nil {
		return nil, fmt.Errorf("filesource: open %q: %w", uri, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("filesource: stat %q: %w", uri, err)
	}
	size := info.Size()

	if !l.UseMmap || size == 0 {
		return newFileHandle(f, size), nil
	}

	m, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("filesource: mmap %q: %w", uri, err)
	}

	shared := &mmapShared{f: f, mapping: m, size: size}
	shared.refs.Store(1)
	return &mmapHandle{shared: shared}, nil
}

// fileHandle is a non-mmap'd local handle backed directly by os.File
// reads. os.File.ReadAt uses positioned I/O (pread) and never moves the
// file offset, so it is safe for concurrent use by every clone sharing
// the same descriptor; Clone therefore shares the fd and reference-counts
// the close instead of reopening by path (which would break once the
// source file is a removed S3 spool temp).
type fileHandle struct {
	shared *sharedFile
}

type sharedFile struct {
	f    *os.File
	size int64
	refs atomic.Int64
}

func newFileHandle(f *os.File, size int64) *fileHandle {
	sf := &sharedFile{f: f, size: size}
	sf.refs.Store(1)
	return &fileHandle{shared: sf}
}

func (h *fileHandle) ReadAt(p []byte, off int64) (int, error) { return h.shared.f.ReadAt(p, off) }
func (h *fileHandle) Size() int64                             { return h.shared.size }

func (h *fileHandle) Close() error {
	if h.shared.refs.Add(-1) > 0 {
		return nil
	}
	return h.shared.f.Close()
}

func (h *fileHandle) Clone() (FileHandle, error) {
	h.shared.refs.Add(1)
	return &fileHandle{shared: h.shared}, nil
}

// mmapShared is the reference-counted mapping underlying every clone of
// one Open call. The mapping and the file descriptor backing it are only
// released once every clone has been closed.
type mmapShared struct {
	f       *os.File
	mapping mmap.MMap
	size    int64
	refs    atomic.Int64
	mu      sync.Mutex
	closed  bool
}

func (s *mmapShared) release() error {
	if s.refs.Add(-1) > 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if err := s.mapping.Unmap(); err != nil {
		s.f.Close()
		return fmt.Errorf("filesource: unmap: %w", err)
	}
	return s.f.Close()
}

type mmapHandle struct {
	shared *mmapShared
}

func (h *mmapHandle) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off >= h.shared.size {
		if len(p) == 0 {
			return 0, nil
		}
		return 0, fmt.Errorf("filesource: read offset %d out of range [0,%d)", off, h.shared.size)
	}
	n := copy(p, h.shared.mapping[off:])
	var err error
	if n < len(p) {
		err = fmt.Errorf("filesource: short read at offset %d: got %d want %d", off, n, len(p))
	}
	return n, err
}

func (h *mmapHandle) Size() int64 { return h.shared.size }
func (h *mmapHandle) Close() error { return h.shared.release() }

func (h *mmapHandle) Clone() (FileHandle, error) {
	h.shared.refs.Add(1)
	return &mmapHandle{shared: h.shared}, nil
}
