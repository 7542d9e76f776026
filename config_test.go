package httpvfs

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xet7/httpvfs/domain/model"
)

func TestParseConfig(t *testing.T) {
	t.Parallel()

	want := model.SplitFileConfig{
		LastUpdated:         1700000000000,
		URLPrefix:           "https://example.com/db/db.sqlite3.",
		ServerChunkSize:     10485760,
		DatabaseLengthBytes: 52428800,
		RequestChunkSize:    4096,
	}

	tests := []struct {
		name   string
		format string
		data   string
	}{
		{
			name:   "json",
			format: "json",
			data: `{"lastUpdated": 1700000000000, "urlPrefix": "https://example.com/db/db.sqlite3.",
				"serverChunkSize": 10485760, "databaseLengthBytes": 52428800, "requestChunkSize": 4096}`,
		},
		{
			name:   "yaml",
			format: "yaml",
			data: `lastUpdated: 1700000000000
urlPrefix: https://example.com/db/db.sqlite3.
serverChunkSize: 10485760
databaseLengthBytes: 52428800
requestChunkSize: 4096
`,
		},
		{
			name:   "toml",
			format: "toml",
			data: `lastUpdated = 1700000000000
urlPrefix = "https://example.com/db/db.sqlite3."
serverChunkSize = 10485760
databaseLengthBytes = 52428800
requestChunkSize = 4096
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg, err := ParseConfig(tt.format, []byte(tt.data))
			require.NoError(t, err)
			assert.Equal(t, want, cfg)
		})
	}

	t.Run("unknown field", func(t *testing.T) {
		t.Parallel()

		_, err := ParseConfig("json", []byte(`{"urlPrefix": "x", "chunkSize": 1}`))
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrConfig)
	})

	t.Run("unknown format", func(t *testing.T) {
		t.Parallel()

		_, err := ParseConfig("ini", nil)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrConfig)
	})
}

func TestConfigFormat(t *testing.T) {
	t.Parallel()

	tests := []struct {
		location string
		want     string
	}{
		{"config.json", "json"},
		{"config.yml", "yaml"},
		{"/etc/httpvfs/config.YAML", "yaml"},
		{"config.toml", "toml"},
		{"config", "json"},
		{"https://example.com/db/config.yaml?v=2", "yaml"},
		{"https://example.com/db/config", "json"},
	}

	for _, tt := range tests {
		t.Run(tt.location, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, configFormat(tt.location))
		})
	}
}

func TestLoadConfig(t *testing.T) {
	t.Parallel()

	t.Run("local file", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(t.TempDir(), "config.toml")
		require.NoError(t, os.WriteFile(path, []byte(`urlPrefix = "https://example.com/db.sqlite3."
serverChunkSize = 1024
databaseLengthBytes = 4096
requestChunkSize = 1024
`), 0o600))

		cfg, err := LoadConfig(context.Background(), path)
		require.NoError(t, err)
		assert.Equal(t, "https://example.com/db.sqlite3.", cfg.URLPrefix)
		assert.Equal(t, int64(4096), cfg.DatabaseLengthBytes)
	})

	t.Run("relative prefix resolves against config url", func(t *testing.T) {
		t.Parallel()

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/db/config.json" {
				http.NotFound(w, r)
				return
			}
			_, _ = w.Write([]byte(`{"urlPrefix": "db.sqlite3.", "serverChunkSize": 1024, "databaseLengthBytes": 4096, "requestChunkSize": 1024}`))
		}))
		defer srv.Close()

		cfg, err := LoadConfig(context.Background(), srv.URL+"/db/config.json")
		require.NoError(t, err)
		assert.Equal(t, srv.URL+"/db/db.sqlite3.", cfg.URLPrefix)
	})

	t.Run("absolute prefix is kept", func(t *testing.T) {
		t.Parallel()

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"urlPrefix": "s3://bucket/db.sqlite3.", "serverChunkSize": 1024, "databaseLengthBytes": 4096, "requestChunkSize": 1024}`))
		}))
		defer srv.Close()

		cfg, err := LoadConfig(context.Background(), srv.URL+"/config.json")
		require.NoError(t, err)
		assert.Equal(t, "s3://bucket/db.sqlite3.", cfg.URLPrefix)
	})

	t.Run("http error is a transport error", func(t *testing.T) {
		t.Parallel()

		srv := httptest.NewServer(http.NotFoundHandler())
		defer srv.Close()

		_, err := LoadConfig(context.Background(), srv.URL+"/config.json")
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrTransport)
	})

	t.Run("invalid config", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(t.TempDir(), "config.json")
		require.NoError(t, os.WriteFile(path, []byte(`{"urlPrefix": "db.", "serverChunkSize": 1024, "databaseLengthBytes": 0, "requestChunkSize": 1024}`), 0o600))

		_, err := LoadConfig(context.Background(), path)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrConfig)
	})
}
