// Package mount exposes remote files to the SQLite engine. A Table is an
// fs.FS of mounted files registered as a SQLite VFS, so the engine opens and
// reads a mounted name like a local database file.
package mount

import (
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"strings"
	"sync"
	"time"

	"modernc.org/sqlite/vfs"

	"github.com/xet7/httpvfs/domain/model"
)

// File is the read side of a remote file as the engine sees it.
type File interface {
	io.ReaderAt
	Name() string
	Size() int64
}

// Table maps filenames to mounted files. Each name is backed by exactly one
// file at a time.
//
// Thread Safety: All methods are safe for concurrent use by multiple goroutines.
type Table struct {
	mu    sync.RWMutex
	files map[string]File

	vfsOnce sync.Once
	vfsName string
	vfs     *vfs.FS
	vfsErr  error
}

var (
	defaultTable *Table
	defaultOnce  sync.Once
)

// Default returns the process wide mount table.
func Default() *Table {
	defaultOnce.Do(func() {
		defaultTable = NewTable()
	})
	return defaultTable
}

// NewTable creates an empty mount table.
func NewTable() *Table {
	return &Table{files: make(map[string]File)}
}

// Mount backs name with f. Mounting a name twice fails with ErrAlreadyMounted.
func (t *Table) Mount(name string, f File) error {
	name = clean(name)
	if name == "" || !fs.ValidPath(name) {
		return fmt.Errorf("%w: invalid filename %q", model.ErrConfig, name)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.files[name]; ok {
		return fmt.Errorf("%w: %s", model.ErrAlreadyMounted, name)
	}
	t.files[name] = f
	return nil
}

// Unmount removes name. Open handles keep reading the file they were opened on.
func (t *Table) Unmount(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.files, clean(name))
}

// Lookup returns the file mounted under name.
func (t *Table) Lookup(name string) (File, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	f, ok := t.files[clean(name)]
	return f, ok
}

// Names returns the mounted filenames.
func (t *Table) Names() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	names := make([]string, 0, len(t.files))
	for name := range t.files {
		names = append(names, name)
	}
	return names
}

// Open implements fs.FS. Every call returns an independent handle with its
// own offset.
func (t *Table) Open(name string) (fs.File, error) {
	f, ok := t.Lookup(name)
	if !ok {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
	}
	return &handle{file: f, name: clean(name)}, nil
}

// VFS registers the table with the engine on first use and returns the VFS
// name to pass in the vfs query parameter.
func (t *Table) VFS() (string, error) {
	t.vfsOnce.Do(func() {
		t.vfsName, t.vfs, t.vfsErr = vfs.New(t)
		if t.vfsErr != nil {
			t.vfsErr = fmt.Errorf("%w: failed to register vfs: %w", model.ErrConfig, t.vfsErr)
		}
	})
	return t.vfsName, t.vfsErr
}

// DSN returns the connection string opening name read-only through the table's VFS.
func (t *Table) DSN(name string) (string, error) {
	vfsName, err := t.VFS()
	if err != nil {
		return "", err
	}
	if _, ok := t.Lookup(name); !ok {
		return "", fmt.Errorf("%w: %s is not mounted", model.ErrConfig, name)
	}
	q := url.Values{}
	q.Set("vfs", vfsName)
	q.Set("mode", "ro")
	q.Set("immutable", "1")
	return "file:" + escapePath(clean(name)) + "?" + q.Encode(), nil
}

// Close unregisters the VFS. Mounted files are left untouched.
func (t *Table) Close() error {
	if t.vfs == nil {
		return nil
	}
	return t.vfs.Close()
}

// clean strips the leading slash the engine may add to absolute names
func clean(name string) string {
	return strings.TrimPrefix(name, "/")
}

// escapePath escapes the characters that end or escape the path part of a SQLite URI
func escapePath(name string) string {
	return strings.NewReplacer("%", "%25", "?", "%3f", "#", "%23").Replace(name)
}

// handle is one open view of a mounted file
type handle struct {
	file   File
	name   string
	offset int64
	closed bool
	mu     sync.Mutex
}

// Read reads from the current offset. A read is satisfied fully unless it
// reaches the end of the file.
func (h *handle) Read(p []byte) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return 0, fs.ErrClosed
	}
	n, err := h.file.ReadAt(p, h.offset)
	h.offset += int64(n)
	return n, err
}

// ReadAt implements io.ReaderAt
func (h *handle) ReadAt(p []byte, off int64) (int, error) {
	h.mu.Lock()
	closed := h.closed
	h.mu.Unlock()
	if closed {
		return 0, fs.ErrClosed
	}
	return h.file.ReadAt(p, off)
}

// Seek implements io.Seeker
func (h *handle) Seek(offset int64, whence int) (int64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return 0, fs.ErrClosed
	}

	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = h.offset + offset
	case io.SeekEnd:
		abs = h.file.Size() + offset
	default:
		return 0, fmt.Errorf("%w: invalid whence %d", model.ErrProtocol, whence)
	}
	if abs < 0 {
		return 0, fmt.Errorf("%w: negative position %d", model.ErrProtocol, abs)
	}
	h.offset = abs
	return abs, nil
}

// Write rejects every write, remote files are read-only.
func (h *handle) Write([]byte) (int, error) {
	return 0, &fs.PathError{Op: "write", Path: h.name, Err: fs.ErrPermission}
}

// Stat implements fs.File
func (h *handle) Stat() (fs.FileInfo, error) {
	return fileInfo{name: h.name, size: h.file.Size()}, nil
}

// Close implements fs.File. Closing twice is a no-op.
func (h *handle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	return nil
}

type fileInfo struct {
	name string
	size int64
}

func (fi fileInfo) Name() string       { return fi.name }
func (fi fileInfo) Size() int64        { return fi.size }
func (fi fileInfo) Mode() fs.FileMode  { return 0o444 }
func (fi fileInfo) ModTime() time.Time { return time.Time{} }
func (fi fileInfo) IsDir() bool        { return false }
func (fi fileInfo) Sys() any           { return nil }
