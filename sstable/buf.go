package sstable

import (
	"bufio"
	"io"
)

// seekBuffer reads through a bufio.Reader and resets it after every seek.
// Relative seeks would be off by the buffered amount, so only io.SeekStart
// and io.SeekEnd are used.
type seekBuffer struct {
	*bufio.Reader
	src io.ReadSeeker
}

func newSeekBuffer(src io.ReadSeeker, size int) *seekBuffer {
	return &seekBuffer{Reader: bufio.NewReaderSize(src, size), src: src}
}

func (b *seekBuffer) Seek(offset int64, whence int) (int64, error) {
	pos, err := b.src.Seek(offset, whence)
	if err == nil {
		b.Reset(b.src)
	}
	return pos, err
}
