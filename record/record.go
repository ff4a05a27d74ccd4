// Package record defines the key/value pair the cleaning pipeline sorts and
// deduplicates, its text line format and the lightweight index entry used to
// find a line again in the source file.
package record

import (
	"cmp"
	"math"
	"strconv"
	"strings"
)

const (
	// Separator splits the key from the value on a line.
	Separator = ' '
	// MaxKeyLen is the number of decimal digits of math.MaxUint64.
	MaxKeyLen = 20
	// MaxValueLen is the longest value accepted, in bytes.
	MaxValueLen = 127
	// MaxLineLen is the longest valid line, excluding the line terminator.
	MaxLineLen = MaxKeyLen + 1 + MaxValueLen

	// headerSize is the in-memory size of a Record without its value bytes:
	// an uint64 plus a string header.
	headerSize = 8 + 16
	// MaxFootprint is an upper bound on the memory one record occupies
	// while a partition is being sorted.
	MaxFootprint = headerSize + MaxValueLen
)

// Max is greater than every valid record: its value is longer than
// MaxValueLen and made of 0xFF bytes.
var Max = Record{
	Key:   math.MaxUint64,
	Value: strings.Repeat("\xff", MaxValueLen+1),
}

// Record is one (key, value) pair of the log.
type Record struct {
	Key   uint64
	Value string
}

// Compare orders records by key, then by value. Keys compare numerically
// and values byte-wise.
func Compare(a, b Record) int {
	if c := cmp.Compare(a.Key, b.Key); c != 0 {
		return c
	}
	return strings.Compare(a.Value, b.Value)
}

// Less reports whether r sorts before o.
func (r Record) Less(o Record) bool {
	return Compare(r, o) < 0
}

// Equal reports whether both fields match.
func (r Record) Equal(o Record) bool {
	return r.Key == o.Key && r.Value == o.Value
}

// String returns the record as a line without terminator.
func (r Record) String() string {
	return strconv.FormatUint(r.Key, 10) + string(Separator) + r.Value
}

// AppendLine appends "<key> <value>\n" to dst.
func AppendLine(dst []byte, r Record) []byte {
	dst = strconv.AppendUint(dst, r.Key, 10)
	dst = append(dst, Separator)
	dst = append(dst, r.Value...)
	return append(dst, '\n')
}
