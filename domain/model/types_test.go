package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewHeader(t *testing.T) {
	t.Parallel()

	t.Run("Create header from slice", func(t *testing.T) {
		t.Parallel()

		headerSlice := []string{"col1", "col2", "col3"}
		header := NewHeader(headerSlice)

		assert.Len(t, header, 3)
		for i, expected := range headerSlice {
			assert.Equal(t, expected, header[i])
		}
	})
}

func TestHeader_Equal(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		header1  Header
		header2  Header
		expected bool
	}{
		{
			name:     "Equal headers",
			header1:  NewHeader([]string{"col1", "col2"}),
			header2:  NewHeader([]string{"col1", "col2"}),
			expected: true,
		},
		{
			name:     "Different length headers",
			header1:  NewHeader([]string{"col1", "col2"}),
			header2:  NewHeader([]string{"col1"}),
			expected: false,
		},
		{
			name:     "Different content headers",
			header1:  NewHeader([]string{"col1", "col2"}),
			header2:  NewHeader([]string{"col1", "col3"}),
			expected: false,
		},
		{
			name:     "Empty headers",
			header1:  NewHeader([]string{}),
			header2:  NewHeader([]string{}),
			expected: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, tt.header1.Equal(tt.header2))
		})
	}
}

func TestToObjects(t *testing.T) {
	t.Parallel()

	t.Run("two columns two rows", func(t *testing.T) {
		t.Parallel()

		sets := []ResultSet{{
			Columns: NewHeader([]string{"name", "value"}),
			Values:  []Row{{"a", int64(1)}, {"b", int64(2)}},
		}}

		got := ToObjects(sets)
		assert.Equal(t, []Object{
			{"name": "a", "value": int64(1)},
			{"name": "b", "value": int64(2)},
		}, got)
	})

	t.Run("no result set yields empty slice", func(t *testing.T) {
		t.Parallel()

		got := ToObjects(nil)
		assert.NotNil(t, got)
		assert.Empty(t, got)
	})

	t.Run("result set without rows yields empty slice", func(t *testing.T) {
		t.Parallel()

		got := ToObjects([]ResultSet{{Columns: NewHeader([]string{"x"})}})
		assert.NotNil(t, got)
		assert.Empty(t, got)
	})

	t.Run("only the first result set is used", func(t *testing.T) {
		t.Parallel()

		sets := []ResultSet{
			{Columns: NewHeader([]string{"x"}), Values: []Row{{int64(1)}}},
			{Columns: NewHeader([]string{"y"}), Values: []Row{{int64(2)}, {int64(3)}}},
		}
		assert.Equal(t, []Object{{"x": int64(1)}}, ToObjects(sets))
	})
}
