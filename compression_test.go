//nolint:errcheck // Test cleanup error handling is intentionally ignored
package httpvfs

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xet7/httpvfs/domain/model"
)

// compress encodes data with the handler for c
func compress(t *testing.T, c model.CompressionType, data []byte) []byte {
	t.Helper()

	var buf bytes.Buffer
	w, closeFn, err := NewCompressionHandler(c).CreateWriter(&buf)
	require.NoError(t, err)
	_, err = w.Write(data)
	require.NoError(t, err)
	require.NoError(t, closeFn())
	return buf.Bytes()
}

func TestCompressionHandler(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name            string
		compressionType model.CompressionType
		extension       string
		canWrite        bool
	}{
		{name: "No compression", compressionType: model.CompressionNone, extension: "", canWrite: true},
		{name: "Gzip compression", compressionType: model.CompressionGZ, extension: ".gz", canWrite: true},
		{name: "Bzip2 compression", compressionType: model.CompressionBZ2, extension: ".bz2", canWrite: false},
		{name: "XZ compression", compressionType: model.CompressionXZ, extension: ".xz", canWrite: true},
		{name: "ZSTD compression", compressionType: model.CompressionZSTD, extension: ".zst", canWrite: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			handler := NewCompressionHandler(tt.compressionType)
			assert.Equal(t, tt.extension, handler.Extension())

			_, _, err := handler.CreateWriter(&bytes.Buffer{})
			if !tt.canWrite {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)

			testData := []byte("test data for compression")
			reader, cleanup, err := handler.CreateReader(bytes.NewReader(compress(t, tt.compressionType, testData)))
			require.NoError(t, err)
			defer cleanup()

			readData, err := io.ReadAll(reader)
			require.NoError(t, err)
			assert.Equal(t, testData, readData)
		})
	}
}

func TestCompressionHandler_InvalidData(t *testing.T) {
	t.Parallel()

	_, _, err := NewCompressionHandler(model.CompressionGZ).CreateReader(bytes.NewReader([]byte("not gzip")))
	assert.Error(t, err)

	_, _, err = NewCompressionHandler(model.CompressionType(99)).CreateReader(bytes.NewReader(nil))
	assert.Error(t, err)
}

func TestDetectCompressionType(t *testing.T) {
	t.Parallel()

	tests := map[string]model.CompressionType{
		"db.sqlite3.000":     model.CompressionNone,
		"db.sqlite3.000.gz":  model.CompressionGZ,
		"DB.SQLITE3.001.BZ2": model.CompressionBZ2,
		"out.csv.xz":         model.CompressionXZ,
		"out.csv.zst":        model.CompressionZSTD,
	}
	for path, want := range tests {
		assert.Equal(t, want, DetectCompressionType(path), path)
	}
}

func TestDecompressingFetcher(t *testing.T) {
	t.Parallel()

	data := randomBytes(4000)
	cs, cfg := newChunkServer(t, data, 1000)
	for i := range 4 {
		cs.put(fmt.Sprintf("/db.sqlite3.%03d.zst", i), compress(t, model.CompressionZSTD, data[i*1000:(i+1)*1000]))
	}

	assert.Nil(t, NewDecompressingFetcher(nil, model.CompressionNone))

	fetcher := NewDecompressingFetcher(NewHTTPFetcher(cs.Client()), model.CompressionZSTD)
	f := NewLazyFile(cfg.Filename(), cfg.DatabaseLengthBytes, 500, NewRangeMapper(cfg), fetcher)

	got, err := f.Read(900, 1200)
	require.NoError(t, err)
	assert.Equal(t, data[900:2100], got)

	before := cs.requests.Load()
	got, err = f.Read(2600, 10)
	require.NoError(t, err)
	assert.Equal(t, data[2600:2610], got)
	assert.Equal(t, before, cs.requests.Load(), "decoded chunk objects are reused")

	_, err = fetcher.Fetch(context.Background(), model.ChunkRange{URL: cfg.URLPrefix + "000", FromByte: 900, ToByte: 1100})
	assert.ErrorIs(t, err, model.ErrShortRead)
}
