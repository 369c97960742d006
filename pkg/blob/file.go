package blob

import (
	"fmt"
	"os"

	"github.com/edsrzf/mmap-go"
)

// FileReader memory-maps an existing blob file for reading. It owns the
// mapping; the bytes stay valid while any blob referencing it is reachable.
type FileReader struct {
	path    string
	offset  uint64
	mapping mmap.MMap
	file    *os.File
}

// OpenFileReader maps size bytes at offset in the given file. size < 0
// maps the remainder of the file.
func OpenFileReader(path string, offset uint64, size int64) (*FileReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open blob file: %w", err)
	}
	if size < 0 {
		info, err := f.Stat()
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to stat blob file: %w", err)
		}
		size = info.Size() - int64(offset)
	}
	m, err := mmap.MapRegion(f, int(size), mmap.RDONLY, 0, int64(offset))
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to map blob file %s: %w", path, err)
	}
	return &FileReader{path: path, offset: offset, mapping: m, file: f}, nil
}

func (r *FileReader) Bytes() []byte      { return r.mapping }
func (r *FileReader) MappedFile() string { return r.path }
func (r *FileReader) Offset() uint64     { return r.offset }

// Close unmaps the file. The owner must not be closed while a blob over it
// is still in use.
func (r *FileReader) Close() error {
	if err := r.mapping.Unmap(); err != nil {
		r.file.Close()
		return err
	}
	return r.file.Close()
}

// Blob returns a blob over the full mapped region.
func (r *FileReader) Blob() Blob {
	return FromOwner(r, r.mapping)
}

// FileWriter creates a new blob file of a fixed size and memory-maps it
// for writing. Bytes are mutable until OnWriteCompleted is called; after
// that the contents are immutable and the writer serves reads.
type FileWriter struct {
	path      string
	mapping   mmap.MMap
	file      *os.File
	completed bool
}

// NewFileWriter creates the file and maps size writable bytes.
func NewFileWriter(path string, size int) (*FileWriter, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to create blob file: %w", err)
	}
	if err := f.Truncate(int64(size)); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to size blob file %s: %w", path, err)
	}
	m, err := mmap.Map(f, mmap.RDWR, 0)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to map blob file %s: %w", path, err)
	}
	return &FileWriter{path: path, mapping: m, file: f}, nil
}

func (w *FileWriter) Bytes() []byte      { return w.mapping }
func (w *FileWriter) MappedFile() string { return w.path }
func (w *FileWriter) Offset() uint64     { return 0 }

// OnWriteCompleted flushes the mapping. The contents must not be modified
// afterwards.
func (w *FileWriter) OnWriteCompleted() error {
	if w.completed {
		return nil
	}
	if err := w.mapping.Flush(); err != nil {
		return fmt.Errorf("failed to flush blob file %s: %w", w.path, err)
	}
	w.completed = true
	return nil
}

// Completed reports whether OnWriteCompleted has been called.
func (w *FileWriter) Completed() bool {
	return w.completed
}

// Close unmaps and closes the file.
func (w *FileWriter) Close() error {
	if err := w.mapping.Unmap(); err != nil {
		w.file.Close()
		return err
	}
	return w.file.Close()
}

// Blob returns a blob over the full mapped region.
func (w *FileWriter) Blob() Blob {
	return FromOwner(w, w.mapping)
}
