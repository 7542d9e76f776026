package main

import (
	"bytes"
	"database/sql"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/xet7/httpvfs"
	"github.com/xet7/httpvfs/domain/model"
)

func TestParseSize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{in: "", want: 0},
		{in: "0", want: 0},
		{in: "4096", want: 4096},
		{in: "4KiB", want: 4096},
		{in: "10MiB", want: 10 << 20},
		{in: "1kB", want: 1000},
		{in: "lots", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()

			got, err := parseSize(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, model.ErrConfig)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewServer(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "db.sqlite3.000"), []byte("0123456789"), 0o600))

	t.Run("range request", func(t *testing.T) {
		srv := httptest.NewServer(newServer(dir, true))
		defer srv.Close()

		req, err := http.NewRequest(http.MethodGet, srv.URL+"/db.sqlite3.000", nil)
		require.NoError(t, err)
		req.Header.Set("Range", "bytes=2-5")
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusPartialContent, resp.StatusCode)
		assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.Equal(t, "2345", string(body))
	})

	t.Run("preflight", func(t *testing.T) {
		srv := httptest.NewServer(newServer(dir, true))
		defer srv.Close()

		req, err := http.NewRequest(http.MethodOptions, srv.URL+"/db.sqlite3.000", nil)
		require.NoError(t, err)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusNoContent, resp.StatusCode)
		assert.Equal(t, "Range", resp.Header.Get("Access-Control-Allow-Headers"))
	})

	t.Run("without cors", func(t *testing.T) {
		srv := httptest.NewServer(newServer(dir, false))
		defer srv.Close()

		resp, err := http.Get(srv.URL + "/db.sqlite3.000")
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))
	})

	t.Run("missing file", func(t *testing.T) {
		srv := httptest.NewServer(newServer(dir, false))
		defer srv.Close()

		resp, err := http.Get(srv.URL + "/db.sqlite3.001")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

// newTitles writes a small titles database and returns its path
func newTitles(t *testing.T, n int) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "titles.sqlite3")
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec("PRAGMA page_size = 1024")
	require.NoError(t, err)
	_, err = db.Exec("CREATE TABLE titles (id INTEGER PRIMARY KEY, name TEXT NOT NULL)")
	require.NoError(t, err)
	for i := 1; i <= n; i++ {
		_, err := db.Exec("INSERT INTO titles (id, name) VALUES (?, ?)", i, fmt.Sprintf("title-%d", i))
		require.NoError(t, err)
	}
	return path
}

func run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()

	var out, errOut bytes.Buffer
	app := newApp()
	app.Writer = &out
	app.ErrWriter = &errOut
	err := app.Run(append([]string{"httpvfs"}, args...))
	return out.String(), errOut.String(), err
}

func TestApp(t *testing.T) {
	src := newTitles(t, 200)
	dst := filepath.Join(t.TempDir(), "public")

	out, _, err := run(t, "split", "--quiet", "--chunk-size", "4KiB", src, dst)
	require.NoError(t, err)
	assert.Contains(t, out, "chunks of 4.0 KiB")

	cfg, err := httpvfs.LoadConfig(t.Context(), filepath.Join(dst, httpvfs.ConfigFileName))
	require.NoError(t, err)
	assert.Equal(t, int64(4096), cfg.ServerChunkSize)
	assert.Equal(t, int64(1024), cfg.RequestChunkSize)

	srv := httptest.NewServer(newServer(dst, true))
	defer srv.Close()
	configURL := srv.URL + "/" + httpvfs.ConfigFileName

	t.Run("query to stdout", func(t *testing.T) {
		out, errOut, err := run(t, "query", "--config", configURL, "--stats",
			"SELECT id, name FROM titles WHERE id <= 2 ORDER BY id")
		require.NoError(t, err)
		assert.Equal(t, "id,name\n1,title-1\n2,title-2\n", out)
		assert.Contains(t, errOut, "requests:")
	})

	t.Run("query to file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "out.json")
		_, _, err := run(t, "query", "--config", configURL, "--out", path, "--format", "json",
			"SELECT value AS n FROM generate_series(1, 3)")
		require.NoError(t, err)

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, "{\"n\":1}\n{\"n\":2}\n{\"n\":3}\n", string(data))
	})

	t.Run("stats as json", func(t *testing.T) {
		out, _, err := run(t, "stats", "--config", configURL, "--json", "SELECT count(*) FROM titles")
		require.NoError(t, err)

		var s model.Stats
		require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(out)), &s))
		assert.Equal(t, cfg.DatabaseLengthBytes, s.TotalBytes)
		assert.Positive(t, s.TotalRequests)
	})

	t.Run("stats text", func(t *testing.T) {
		out, _, err := run(t, "stats", "--config", configURL)
		require.NoError(t, err)
		assert.Contains(t, out, "fetched:")
		assert.Contains(t, out, "size:")
	})

	t.Run("errors", func(t *testing.T) {
		_, _, err := run(t, "query", "--config", configURL)
		require.Error(t, err)

		_, _, err = run(t, "query", "--config", configURL, "--format", "yaml", "SELECT 1")
		assert.ErrorIs(t, err, model.ErrConfig)

		_, _, err = run(t, "query", "--config", configURL, "--out", filepath.Join(t.TempDir(), "x.csv"),
			"CREATE TEMP TABLE scratch (x)")
		require.Error(t, err)

		_, _, err = run(t, "split", src)
		require.Error(t, err)

		_, _, err = run(t, "--download-limit", "fast", "stats", "--config", configURL)
		assert.ErrorIs(t, err, model.ErrConfig)
	})
}
