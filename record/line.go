package record

import (
	"bytes"
	"errors"
	"strconv"
)

var (
	ErrEmptyLine        = errors.New("empty line")
	ErrMissingSeparator = errors.New("missing separator")
	ErrInvalidKey       = errors.New("key is not an unsigned 64-bit integer")
	ErrValueTooLong     = errors.New("value longer than 127 bytes")
	ErrInvalidValue     = errors.New("value contains a separator or line break")
)

// ParseLine parses a line without its terminator. A trailing '\r' is
// ignored.
func ParseLine(line []byte) (Record, error) {
	key, value, err := split(line)
	if err != nil {
		return Record{}, err
	}
	return Record{Key: key, Value: string(value)}, nil
}

// ParseKey validates a whole line like ParseLine but returns only its key,
// without allocating the value.
func ParseKey(line []byte) (uint64, error) {
	key, _, err := split(line)
	return key, err
}

func split(line []byte) (uint64, []byte, error) {
	line = bytes.TrimSuffix(line, []byte{'\r'})
	if len(line) == 0 {
		return 0, nil, ErrEmptyLine
	}

	i := bytes.IndexByte(line, Separator)
	if i < 0 {
		return 0, nil, ErrMissingSeparator
	}

	key, ok := parseKey(line[:i])
	if !ok {
		return 0, nil, ErrInvalidKey
	}

	value := line[i+1:]
	if len(value) > MaxValueLen {
		return 0, nil, ErrValueTooLong
	}
	if bytes.ContainsAny(value, " \r\n") {
		return 0, nil, ErrInvalidValue
	}

	return key, value, nil
}

// parseKey parses a decimal key of at most MaxKeyLen digits. Leading zeros
// are accepted.
func parseKey(s []byte) (uint64, bool) {
	if len(s) == 0 || len(s) > MaxKeyLen {
		return 0, false
	}
	n, err := strconv.ParseUint(string(s), 10, 64)
	return n, err == nil
}
