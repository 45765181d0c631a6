package gencache

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"
)

// Serializer defines the interface for cache record encoding and decoding.
type Serializer interface {
	// Marshal encodes a Go value to bytes.
	Marshal(v any) ([]byte, error)

	// Unmarshal decodes bytes into a Go value.
	Unmarshal(data []byte, v any) error
}

// MsgpackSerializer is the default Serializer.
type MsgpackSerializer struct{}

func (MsgpackSerializer) Marshal(v any) ([]byte, error) {
	return msgpack.Marshal(v)
}

func (MsgpackSerializer) Unmarshal(data []byte, v any) error {
	return msgpack.Unmarshal(data, v)
}

// maxFrame bounds a single record so a corrupt length prefix cannot make
// readFrame allocate unbounded memory.
const maxFrame = 64 << 20

// frames are length-prefixed: a 4-byte big-endian size, then the data.
func writeFrame(w io.Writer, data []byte) error {
	if len(data) > maxFrame {
		return fmt.Errorf("cache record too large: %d bytes", len(data))
	}
	var length [4]byte
	binary.BigEndian.PutUint32(length[:], uint32(len(data)))
	if _, err := w.Write(length[:]); err != nil {
		return err
	}
	_, err := w.Write(data)
	return err
}

func readFrame(r io.Reader, pool *bufferPool) ([]byte, error) {
	var length [4]byte
	if _, err := io.ReadFull(r, length[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(length[:])
	if n > maxFrame {
		return nil, fmt.Errorf("cache record too large: %d bytes", n)
	}

	// Small records are read through a pooled buffer.
	if int(n) <= pool.size {
		buf := pool.Get()[:n]
		defer pool.Put(buf)
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, err
		}
		out := make([]byte, n)
		copy(out, buf)
		return out, nil
	}

	data := make([]byte, n)
	_, err := io.ReadFull(r, data)
	return data, err
}
