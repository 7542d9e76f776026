package model

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() SplitFileConfig {
	return SplitFileConfig{
		LastUpdated:         1620000000000,
		URLPrefix:           "https://example.com/db/db.sqlite3.",
		ServerChunkSize:     10 * 1024 * 1024,
		DatabaseLengthBytes: 2048,
		RequestChunkSize:    4096,
	}
}

func TestSplitFileConfig_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(c *SplitFileConfig)
		wantErr bool
	}{
		{name: "valid chunked config", mutate: func(*SplitFileConfig) {}},
		{name: "zero length database", mutate: func(c *SplitFileConfig) { c.DatabaseLengthBytes = 0 }, wantErr: true},
		{name: "negative length database", mutate: func(c *SplitFileConfig) { c.DatabaseLengthBytes = -1 }, wantErr: true},
		{name: "zero request chunk size", mutate: func(c *SplitFileConfig) { c.RequestChunkSize = 0 }, wantErr: true},
		{name: "zero server chunk size", mutate: func(c *SplitFileConfig) { c.ServerChunkSize = 0 }, wantErr: true},
		{name: "empty url prefix", mutate: func(c *SplitFileConfig) { c.URLPrefix = " " }, wantErr: true},
		{name: "negative suffix length", mutate: func(c *SplitFileConfig) { c.SuffixLength = -2 }, wantErr: true},
		{name: "unknown server mode", mutate: func(c *SplitFileConfig) { c.ServerMode = "torrent" }, wantErr: true},
		{
			name: "full mode with url",
			mutate: func(c *SplitFileConfig) {
				c.ServerMode = ServerModeFull
				c.URL = "https://example.com/db.sqlite3"
				c.URLPrefix = ""
				c.ServerChunkSize = 0
			},
		},
		{
			name:    "full mode without url",
			mutate:  func(c *SplitFileConfig) { c.ServerMode = ServerModeFull },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			c := validConfig()
			tt.mutate(&c)
			err := c.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrConfig), "error should be a configuration error")
				assert.Equal(t, ClassConfig, ClassOf(err))
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestSplitFileConfig_Filename(t *testing.T) {
	t.Parallel()

	c := validConfig()
	assert.Equal(t, "https:__example.com_db_db.sqlite3.", c.Filename())
	assert.Equal(t, 3, c.Suffix())
	assert.Equal(t, ServerModeChunked, c.Mode())

	c.ServerMode = ServerModeFull
	c.URL = "http://host/a.db"
	assert.Equal(t, "http:__host_a.db", c.Filename())
}

func TestClassOf(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "", ClassOf(nil))
	assert.Equal(t, "", ClassOf(errors.New("plain")))
	assert.Equal(t, ClassTransport, ClassOf(ErrShortRead))
	assert.Equal(t, ClassConfig, ClassOf(ErrAlreadyMounted))
	assert.Equal(t, ClassProxy, ClassOf(ErrChannelClosed))
	assert.Equal(t, ClassProtocol, ClassOf(ErrProtocol))

	for _, class := range []string{ClassTransport, ClassConfig, ClassProtocol, ClassProxy} {
		assert.Equal(t, class, ClassOf(ErrorForClass(class)))
	}
	assert.Nil(t, ErrorForClass("nope"))
}

func TestErrorContext(t *testing.T) {
	t.Parallel()

	base := errors.New("boom")
	err := NewErrorContext("fetch", "db.sqlite3").WithURL("http://x/000").WithDetails("range 0-10").Error(base)
	assert.EqualError(t, err, "httpvfs: fetch failed, file: db.sqlite3, url: http://x/000, details: range 0-10: boom")
	assert.ErrorIs(t, err, base)
}
