package httpvfs

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xet7/httpvfs/domain/model"
	"github.com/xet7/httpvfs/mount"
)

func openTestDatabase(t *testing.T, rows int, serverChunkSize int64) (*Database, *splitServer) {
	t.Helper()

	ss, configURL := serveSplitDatabase(t, newTestDatabase(t, rows), serverChunkSize)
	db, err := NewBuilder().WithConfigFile(configURL).WithMountTable(mount.NewTable()).Open(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db, ss
}

func TestDatabase_Query(t *testing.T) {
	t.Parallel()

	db, _ := openTestDatabase(t, 2000, 16*1024)
	ctx := context.Background()

	t.Run("point query", func(t *testing.T) {
		rows, err := db.Query(ctx, "SELECT id, name FROM titles WHERE id = ?", 42)
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, model.Object{"id": int64(42), "name": "title-42"}, rows[0])
	})

	t.Run("aggregate", func(t *testing.T) {
		rows, err := db.Query(ctx, "SELECT count(*) AS n FROM titles")
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, int64(2000), rows[0]["n"])
	})

	t.Run("no rows", func(t *testing.T) {
		rows, err := db.Query(ctx, "SELECT id FROM titles WHERE id < 0")
		require.NoError(t, err)
		assert.Empty(t, rows)
		assert.NotNil(t, rows)

		sets, err := db.Exec(ctx, "SELECT id FROM titles WHERE id < 0; SELECT 7 AS n")
		require.NoError(t, err)
		require.Len(t, sets, 1, "statements without rows add no result set")
		assert.Equal(t, model.Header{"n"}, sets[0].Columns)
	})

	t.Run("generate_series", func(t *testing.T) {
		rows, err := db.Query(ctx, "SELECT value FROM generate_series(1, 5)")
		require.NoError(t, err)
		require.Len(t, rows, 5)
		for i, row := range rows {
			assert.Equal(t, int64(i+1), row["value"])
		}
	})

	t.Run("join with generate_series", func(t *testing.T) {
		rows, err := db.Query(ctx, "SELECT t.name FROM generate_series(10, 30, 10) AS s JOIN titles t ON t.id = s.value")
		require.NoError(t, err)
		require.Len(t, rows, 3)
		assert.Equal(t, "title-30", rows[2]["name"])
	})
}

func TestDatabase_Exec(t *testing.T) {
	t.Parallel()

	db, _ := openTestDatabase(t, 100, 8*1024)
	ctx := context.Background()

	t.Run("one result set per statement with rows", func(t *testing.T) {
		sets, err := db.Exec(ctx, "SELECT 1 AS a; CREATE TEMP TABLE scratch (x); SELECT name, year FROM titles WHERE id IN (1, 2) ORDER BY id")
		require.NoError(t, err)
		require.Len(t, sets, 2)
		assert.Equal(t, model.Header{"a"}, sets[0].Columns)
		assert.Equal(t, model.Header{"name", "year"}, sets[1].Columns)
		assert.Equal(t, []model.Row{{"title-1", int64(1901)}, {"title-2", int64(1902)}}, sets[1].Values)
	})

	t.Run("temp tables are writable", func(t *testing.T) {
		sets, err := db.Exec(ctx, "CREATE TEMP TABLE picks (id); INSERT INTO picks VALUES (3), (5); SELECT count(*) FROM picks")
		require.NoError(t, err)
		require.Len(t, sets, 1)
		assert.Equal(t, int64(2), sets[0].Values[0][0])
	})

	t.Run("main database is read-only", func(t *testing.T) {
		_, err := db.Exec(ctx, "INSERT INTO titles (id, name) VALUES (100000, 'x')")
		require.Error(t, err)
	})

	t.Run("syntax error", func(t *testing.T) {
		_, err := db.Exec(ctx, "SELEC 1")
		require.Error(t, err)
	})
}

func TestDatabase_Prepare(t *testing.T) {
	t.Parallel()

	db, _ := openTestDatabase(t, 200, 8*1024)
	ctx := context.Background()

	stmt, err := db.Prepare(ctx, "SELECT name, rating FROM titles WHERE year = ? ORDER BY id")
	require.NoError(t, err)
	defer stmt.Close()

	assert.Same(t, db, stmt.DB)
	assert.Equal(t, "SELECT name, rating FROM titles WHERE year = ? ORDER BY id", stmt.SQL())

	rs, err := stmt.Exec(ctx, 1910)
	require.NoError(t, err)
	assert.Equal(t, model.Header{"name", "rating"}, rs.Columns)
	assert.Equal(t, 2, rs.Len(), "ids 10 and 130")

	row, err := stmt.Get(ctx, 1910)
	require.NoError(t, err)
	assert.Equal(t, "title-10", row["name"])

	row, err = stmt.Get(ctx, 1)
	require.NoError(t, err)
	assert.Nil(t, row)
}

func TestDatabase_Stats(t *testing.T) {
	t.Parallel()

	db, ss := openTestDatabase(t, 5000, 32*1024)
	ctx := context.Background()

	st := db.Stats()
	assert.Equal(t, db.Filename(), st.Filename)
	assert.Positive(t, st.TotalBytes)

	_, err := db.Query(ctx, "SELECT name FROM titles WHERE id = 4321")
	require.NoError(t, err)

	st = db.Stats()
	assert.Positive(t, st.TotalRequests)
	assert.Less(t, st.TotalFetchedBytes, st.TotalBytes, "a point query must not download the database")
	assert.Zero(t, st.TotalFetchedBytes%testPageSize, "fetches are aligned to the page size")

	served := ss.requests.Load()
	_, err = db.Query(ctx, "SELECT name FROM titles WHERE id = 4321")
	require.NoError(t, err)
	assert.Equal(t, st, db.Stats(), "a repeated query is served from the cache")
	assert.Equal(t, served, ss.requests.Load())
}

func TestDatabase_TransportError(t *testing.T) {
	t.Parallel()

	db, ss := openTestDatabase(t, 3000, 16*1024)
	ss.Close()

	_, err := db.Query(context.Background(), "SELECT sum(rating) FROM titles")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTransport)
	assert.Equal(t, model.ClassTransport, ErrorClass(err))
}

func TestDatabase_Close(t *testing.T) {
	t.Parallel()

	_, configURL := serveSplitDatabase(t, newTestDatabase(t, 10), 4096)
	table := mount.NewTable()

	db, err := NewBuilder().WithConfigFile(configURL).WithMountTable(table).Open(context.Background())
	require.NoError(t, err)

	_, mounted := table.Lookup(db.Filename())
	require.True(t, mounted)

	require.NoError(t, db.Close())
	require.NoError(t, db.Close(), "close is idempotent")

	_, mounted = table.Lookup(db.Filename())
	assert.False(t, mounted, "closing unmounts the file")

	_, err = db.Query(context.Background(), "SELECT 1")
	require.Error(t, err)
}

func TestOpen_Errors(t *testing.T) {
	t.Parallel()

	t.Run("zero length database is a configuration error", func(t *testing.T) {
		t.Parallel()

		table := mount.NewTable()
		_, err := NewBuilder().
			WithConfig(model.SplitFileConfig{
				URLPrefix:           "http://127.0.0.1:1/db.sqlite3.",
				ServerChunkSize:     4096,
				DatabaseLengthBytes: 0,
				RequestChunkSize:    4096,
			}).
			WithMountTable(table).
			Open(context.Background())
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrConfig)
		assert.Empty(t, table.Names(), "nothing is mounted")
	})

	t.Run("unreachable server is a transport error", func(t *testing.T) {
		t.Parallel()

		table := mount.NewTable()
		_, err := NewBuilder().
			WithConfig(model.SplitFileConfig{
				URLPrefix:           "http://127.0.0.1:1/db.sqlite3.",
				ServerChunkSize:     4096,
				DatabaseLengthBytes: 8192,
				RequestChunkSize:    4096,
			}).
			WithMountTable(table).
			Open(context.Background())
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrTransport)
		assert.Empty(t, table.Names(), "failed construction unmounts")
	})

	t.Run("not a database", func(t *testing.T) {
		t.Parallel()

		data := randomBytes(8192)
		_, cfg := newChunkServer(t, data, 4096)
		table := mount.NewTable()
		_, err := NewBuilder().WithConfig(cfg).WithMountTable(table).Open(context.Background())
		require.Error(t, err)
		assert.Empty(t, table.Names())
	})

	t.Run("duplicate mount", func(t *testing.T) {
		t.Parallel()

		_, configURL := serveSplitDatabase(t, newTestDatabase(t, 10), 4096)
		table := mount.NewTable()

		first, err := NewBuilder().WithConfigFile(configURL).WithMountTable(table).Open(context.Background())
		require.NoError(t, err)

		_, err = NewBuilder().WithConfigFile(configURL).WithMountTable(table).Open(context.Background())
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrAlreadyMounted)
		assert.ErrorIs(t, err, ErrConfig)

		require.NoError(t, first.Close())
		second, err := NewBuilder().WithConfigFile(configURL).WithMountTable(table).Open(context.Background())
		require.NoError(t, err)
		require.NoError(t, second.Close())
	})
}

func TestOpen_DefaultMountTable(t *testing.T) {
	t.Parallel()

	_, configURL := serveSplitDatabase(t, newTestDatabase(t, 50), 4096)
	db, err := OpenConfigFile(context.Background(), configURL)
	require.NoError(t, err)
	defer db.Close()

	_, mounted := mount.Default().Lookup(db.Filename())
	assert.True(t, mounted)

	rows, err := db.Query(context.Background(), "SELECT max(id) AS id FROM titles")
	require.NoError(t, err)
	assert.Equal(t, []model.Object{{"id": int64(50)}}, rows)
}

func TestOpen_CompressedChunks(t *testing.T) {
	t.Parallel()

	path := newTestDatabase(t, 500)
	dir := t.TempDir()
	cfg, err := SplitFile(path, dir, 8*1024, 0)
	require.NoError(t, err)

	// replace every chunk by its gzip compressed variant
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	handler := NewCompressionHandler(model.CompressionGZ)
	for _, e := range entries {
		if e.Name() == ConfigFileName {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(dir, e.Name()))
		require.NoError(t, err)
		out, err := os.Create(filepath.Join(dir, e.Name()+handler.Extension()))
		require.NoError(t, err)
		w, closeFn, err := handler.CreateWriter(out)
		require.NoError(t, err)
		_, err = w.Write(raw)
		require.NoError(t, err)
		require.NoError(t, closeFn())
		require.NoError(t, out.Close())
		require.NoError(t, os.Remove(filepath.Join(dir, e.Name())))
	}

	ss := newStaticServer(t, dir)
	cfg.URLPrefix = ss.URL + "/" + cfg.URLPrefix

	db, err := NewBuilder().
		WithConfig(cfg).
		WithChunkCompression(model.CompressionGZ).
		WithMountTable(mount.NewTable()).
		Open(context.Background())
	require.NoError(t, err)
	defer db.Close()

	rows, err := db.Query(context.Background(), "SELECT name FROM titles WHERE id = 321")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "title-321", rows[0]["name"])
}

func TestDatabase_WrapErr(t *testing.T) {
	t.Parallel()

	fetcher := &memoryFetcher{data: randomBytes(100)}
	fetcher.fail.Store(true)
	file := NewLazyFile("wrap", 100, 10, NewFullRangeMapper("mem://wrap"), fetcher)
	d := &Database{file: file}

	engineErr := errors.New("disk I/O error")
	assert.Equal(t, engineErr, d.wrapErr(engineErr), "nothing recorded")

	_, err := file.Read(0, 10)
	require.Error(t, err)

	wrapped := d.wrapErr(engineErr)
	assert.ErrorIs(t, wrapped, ErrTransport)
	assert.ErrorIs(t, wrapped, engineErr)
	assert.NoError(t, file.LastError(), "the recorded failure is consumed")
	assert.NoError(t, d.wrapErr(nil))
}
