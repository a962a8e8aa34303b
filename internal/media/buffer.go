package media

import "bytes"

// Buffer is an ordered sequence of recorded chunks.
type Buffer struct {
	chunks [][]byte
	size   int
}

// Append adds a chunk. Empty chunks are ignored.
func (b *Buffer) Append(chunk []byte) {
	if len(chunk) == 0 {
		return
	}
	b.chunks = append(b.chunks, chunk)
	b.size += len(chunk)
}

// Len returns the number of chunks.
func (b *Buffer) Len() int { return len(b.chunks) }

// Size returns the total number of bytes.
func (b *Buffer) Size() int { return b.size }

// Bytes concatenates all chunks in order.
func (b *Buffer) Bytes() []byte {
	var out bytes.Buffer
	out.Grow(b.size)
	for _, c := range b.chunks {
		out.Write(c)
	}
	return out.Bytes()
}

// Reset discards all chunks.
func (b *Buffer) Reset() {
	b.chunks = nil
	b.size = 0
}
