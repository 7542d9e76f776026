package httpvfs

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/xet7/httpvfs/domain/model"
)

// chunkServer serves a byte slice split into chunk files the same way
// SplitFile lays them out on disk.
type chunkServer struct {
	*httptest.Server
	requests atomic.Int64

	mu     sync.Mutex
	chunks map[string][]byte
}

func newChunkServer(t *testing.T, data []byte, serverChunkSize int64) (*chunkServer, model.SplitFileConfig) {
	t.Helper()

	cs := &chunkServer{chunks: make(map[string][]byte)}
	for i := int64(0); i*serverChunkSize < int64(len(data)); i++ {
		end := min((i+1)*serverChunkSize, int64(len(data)))
		cs.chunks[fmt.Sprintf("/db.sqlite3.%03d", i)] = data[i*serverChunkSize : end]
	}
	cs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cs.requests.Add(1)
		cs.mu.Lock()
		chunk, ok := cs.chunks[r.URL.Path]
		cs.mu.Unlock()
		if !ok {
			http.NotFound(w, r)
			return
		}
		http.ServeContent(w, r, r.URL.Path, time.Time{}, bytes.NewReader(chunk))
	}))
	t.Cleanup(cs.Close)

	cfg := model.SplitFileConfig{
		LastUpdated:         time.Now().UnixMilli(),
		URLPrefix:           cs.URL + "/db.sqlite3.",
		ServerChunkSize:     serverChunkSize,
		DatabaseLengthBytes: int64(len(data)),
		RequestChunkSize:    serverChunkSize,
	}
	return cs, cfg
}

// put replaces a served object, used to serve compressed variants
func (cs *chunkServer) put(path string, data []byte) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.chunks[path] = data
}

// randomBytes returns n deterministic pseudo random bytes
func randomBytes(n int) []byte {
	r := rand.New(rand.NewSource(int64(n))) //nolint:gosec // test data
	b := make([]byte, n)
	_, _ = r.Read(b)
	return b
}

// memoryFetcher serves ranges of a single in-memory object and counts calls
type memoryFetcher struct {
	data  []byte
	calls atomic.Int64
	fail  atomic.Bool
	delay time.Duration
}

func (m *memoryFetcher) Fetch(_ context.Context, r model.ChunkRange) ([]byte, error) {
	m.calls.Add(1)
	if m.delay > 0 {
		time.Sleep(m.delay)
	}
	if m.fail.Load() {
		return nil, fmt.Errorf("%w: connection refused", model.ErrTransport)
	}
	if r.ToByte < 0 {
		return bytes.Clone(m.data), nil
	}
	return bytes.Clone(m.data[r.FromByte:r.ToByte]), nil
}

func mustContain(t *testing.T, s, sub string) {
	t.Helper()
	if !strings.Contains(s, sub) {
		t.Fatalf("%q does not contain %q", s, sub)
	}
}

// testPageSize is the page size of databases built by newTestDatabase
const testPageSize = 1024

// newTestDatabase builds a SQLite database with a titles table of n rows
// and an index on year, and returns its path.
func newTestDatabase(t *testing.T, n int) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "titles.sqlite3")
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()

	for _, stmt := range []string{
		fmt.Sprintf("PRAGMA page_size = %d", testPageSize),
		"CREATE TABLE titles (id INTEGER PRIMARY KEY, name TEXT NOT NULL, year INTEGER, rating REAL)",
		"CREATE INDEX titles_year ON titles (year)",
	} {
		_, err := db.Exec(stmt)
		require.NoError(t, err, stmt)
	}

	tx, err := db.Begin()
	require.NoError(t, err)
	stmt, err := tx.Prepare("INSERT INTO titles (id, name, year, rating) VALUES (?, ?, ?, ?)")
	require.NoError(t, err)
	for i := 1; i <= n; i++ {
		_, err := stmt.Exec(i, fmt.Sprintf("title-%d", i), 1900+i%120, float64(i%100)/10)
		require.NoError(t, err)
	}
	require.NoError(t, stmt.Close())
	require.NoError(t, tx.Commit())
	return path
}

// splitServer serves a directory written by SplitFile and counts requests
type splitServer struct {
	*httptest.Server
	requests atomic.Int64
}

// serveSplitDatabase splits the database at path into chunks of
// serverChunkSize bytes and serves them. It returns the server and the URL
// of the config file.
func serveSplitDatabase(t *testing.T, path string, serverChunkSize int64) (*splitServer, string) {
	t.Helper()

	dir := t.TempDir()
	_, err := SplitFile(path, dir, serverChunkSize, 0)
	require.NoError(t, err)

	ss := newStaticServer(t, dir)
	return ss, ss.URL + "/" + ConfigFileName
}

// newStaticServer serves the files in dir with range support
func newStaticServer(t *testing.T, dir string) *splitServer {
	t.Helper()

	files := http.FileServer(http.Dir(dir))
	ss := &splitServer{}
	ss.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ss.requests.Add(1)
		files.ServeHTTP(w, r)
	}))
	t.Cleanup(ss.Close)
	return ss
}
