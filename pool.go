package kvsession

import (
	"bytes"
	"sync"
)

var readerPool = sync.Pool{
	New: func() any {
		return bytes.NewReader(nil)
	},
}

var bufferPool = sync.Pool{
	New: func() any {
		return new(bytes.Buffer)
	},
}

// PutBuffer wipes the buffer's content and returns it to the pool, so
// serialized session data is not retained in memory longer than necessary.
func PutBuffer(buf *bytes.Buffer) {
	b := buf.Bytes()
	clear(b)
	buf.Reset()
	bufferPool.Put(buf)
}
