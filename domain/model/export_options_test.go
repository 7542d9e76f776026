package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExportOptions(t *testing.T) {
	t.Parallel()

	t.Run("defaults", func(t *testing.T) {
		t.Parallel()
		opts := NewExportOptions()
		assert.Equal(t, OutputFormatCSV, opts.Format)
		assert.Equal(t, CompressionNone, opts.Compression)
		assert.Equal(t, ".csv", opts.FileExtension())
	})

	t.Run("chained setters", func(t *testing.T) {
		t.Parallel()
		opts := NewExportOptions().WithFormat(OutputFormatTSV).WithCompression(CompressionZSTD)
		assert.Equal(t, ".tsv.zst", opts.FileExtension())
	})
}

func TestParseOutputFormat(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    OutputFormat
		wantErr bool
	}{
		{in: "csv", want: OutputFormatCSV},
		{in: "TSV", want: OutputFormatTSV},
		{in: "ltsv", want: OutputFormatLTSV},
		{in: "json", want: OutputFormatJSON},
		{in: "parquet", want: OutputFormatParquet},
		{in: "xlsx", want: OutputFormatXLSX},
		{in: "yaml", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			got, err := ParseOutputFormat(tt.in)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrConfig)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseCompressionType(t *testing.T) {
	t.Parallel()

	for _, c := range []CompressionType{CompressionNone, CompressionGZ, CompressionBZ2, CompressionXZ, CompressionZSTD} {
		got, err := ParseCompressionType(c.String())
		require.NoError(t, err)
		assert.Equal(t, c, got)
	}

	got, err := ParseCompressionType("")
	require.NoError(t, err)
	assert.Equal(t, CompressionNone, got)

	_, err = ParseCompressionType("lz4")
	assert.ErrorIs(t, err, ErrConfig)
}
