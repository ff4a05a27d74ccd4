package record_test

import (
	"math"
	"slices"
	"strings"
	"testing"

	"github.com/davidvella/logclean/record"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLine(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		want    record.Record
		wantErr error
	}{
		{
			name: "simple",
			line: "1700000000 abcd",
			want: record.Record{Key: 1700000000, Value: "abcd"},
		},
		{
			name: "empty value",
			line: "5 ",
			want: record.Record{Key: 5, Value: ""},
		},
		{
			name: "carriage return",
			line: "5 a\r",
			want: record.Record{Key: 5, Value: "a"},
		},
		{
			name: "max key",
			line: "18446744073709551615 x",
			want: record.Record{Key: math.MaxUint64, Value: "x"},
		},
		{
			name: "max value length",
			line: "1 " + strings.Repeat("v", record.MaxValueLen),
			want: record.Record{Key: 1, Value: strings.Repeat("v", record.MaxValueLen)},
		},
		{
			name:    "empty line",
			line:    "",
			wantErr: record.ErrEmptyLine,
		},
		{
			name:    "no separator",
			line:    "12345",
			wantErr: record.ErrMissingSeparator,
		},
		{
			name:    "key overflows",
			line:    "18446744073709551616 x",
			wantErr: record.ErrInvalidKey,
		},
		{
			name:    "negative key",
			line:    "-1 x",
			wantErr: record.ErrInvalidKey,
		},
		{
			name: "leading zeros",
			line: "0007 a",
			want: record.Record{Key: 7, Value: "a"},
		},
		{
			name:    "plus sign",
			line:    "+7 a",
			wantErr: record.ErrInvalidKey,
		},
		{
			name:    "digit separator",
			line:    "1_000 a",
			wantErr: record.ErrInvalidKey,
		},
		{
			name:    "more digits than a uint64 has",
			line:    "000000000000000000007 a",
			wantErr: record.ErrInvalidKey,
		},
		{
			name:    "empty key",
			line:    " x",
			wantErr: record.ErrInvalidKey,
		},
		{
			name:    "value too long",
			line:    "1 " + strings.Repeat("v", record.MaxValueLen+1),
			wantErr: record.ErrValueTooLong,
		},
		{
			name:    "value with separator",
			line:    "1 a b",
			wantErr: record.ErrInvalidValue,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := record.ParseLine([]byte(tt.line))
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)

			key, err := record.ParseKey([]byte(tt.line))
			require.NoError(t, err)
			assert.Equal(t, tt.want.Key, key)
		})
	}
}

func TestCompare(t *testing.T) {
	records := []record.Record{
		{Key: 5, Value: "b"},
		{Key: 3, Value: "a"},
		{Key: 10, Value: "a"},
		{Key: 5, Value: "a"},
		{Key: 5, Value: ""},
	}
	slices.SortFunc(records, record.Compare)

	assert.Equal(t, []record.Record{
		{Key: 3, Value: "a"},
		{Key: 5, Value: ""},
		{Key: 5, Value: "a"},
		{Key: 5, Value: "b"},
		{Key: 10, Value: "a"},
	}, records)

	assert.True(t, record.Record{Key: 9, Value: "z"}.Less(record.Record{Key: 10, Value: "a"}))
	assert.True(t, record.Record{Key: 1, Value: "a"}.Equal(record.Record{Key: 1, Value: "a"}))
}

func TestMax(t *testing.T) {
	largest := record.Record{Key: math.MaxUint64, Value: strings.Repeat("\xff", record.MaxValueLen)}
	assert.True(t, largest.Less(record.Max))
}

func TestAppendLine(t *testing.T) {
	r := record.Record{Key: 42, Value: "hello"}
	assert.Equal(t, "42 hello\n", string(record.AppendLine(nil, r)))
	assert.Equal(t, "42 hello", r.String())

	parsed, err := record.ParseLine(record.AppendLine(nil, r)[:len("42 hello")])
	require.NoError(t, err)
	assert.Equal(t, r, parsed)
}
