// Package wire reads and writes JDWP payload data: big-endian fixed-width
// integers, u32-length-prefixed UTF-8 strings and DDM chunks.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
)

var (
	ErrShortValue = errors.New("wire: short value")
	ErrShortChunk = errors.New("wire: short ddm chunk")
)

// ChunkHeaderLen is the DDM chunk header: type u32, length u32.
const ChunkHeaderLen = 8

// Reader decodes values in order. The first failure sticks: later calls
// return zero values and Err reports it.
type Reader struct {
	b   []byte
	off int
	err error
}

func NewReader(b []byte) *Reader {
	return &Reader{b: b}
}

func (r *Reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || len(r.b)-r.off < n {
		r.err = fmt.Errorf("%w: offset=%d need=%d have=%d", ErrShortValue, r.off, n, len(r.b)-r.off)
		return nil
	}
	out := r.b[r.off : r.off+n]
	r.off += n
	return out
}

func (r *Reader) U8() uint8 {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *Reader) Bool() bool {
	return r.U8() != 0
}

func (r *Reader) U16() uint16 {
	b := r.take(2)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint16(b)
}

func (r *Reader) U32() uint32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint32(b)
}

func (r *Reader) Int32() int32 {
	return int32(r.U32())
}

func (r *Reader) U64() uint64 {
	b := r.take(8)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint64(b)
}

// String reads a u32 length followed by that many bytes.
func (r *Reader) String() string {
	n := r.U32()
	if r.err != nil {
		return ""
	}
	return string(r.take(int(n)))
}

// Bytes returns the next n bytes without copying.
func (r *Reader) Bytes(n int) []byte {
	return r.take(n)
}

func (r *Reader) Remaining() int {
	return len(r.b) - r.off
}

func (r *Reader) Err() error {
	return r.err
}

func AppendU8(b []byte, v uint8) []byte {
	return append(b, v)
}

func AppendBool(b []byte, v bool) []byte {
	if v {
		return append(b, 1)
	}
	return append(b, 0)
}

func AppendU16(b []byte, v uint16) []byte {
	return binary.BigEndian.AppendUint16(b, v)
}

func AppendU32(b []byte, v uint32) []byte {
	return binary.BigEndian.AppendUint32(b, v)
}

func AppendU64(b []byte, v uint64) []byte {
	return binary.BigEndian.AppendUint64(b, v)
}

func AppendString(b []byte, s string) []byte {
	b = AppendU32(b, uint32(len(s)))
	return append(b, s...)
}

// Chunk is one DDM chunk. Data aliases the decoded buffer.
type Chunk struct {
	Type uint32
	Data []byte
}

// ChunkType packs a four-letter chunk name such as "HELO".
func ChunkType(name string) uint32 {
	var b [4]byte
	copy(b[:], name)
	return binary.BigEndian.Uint32(b[:])
}

func ChunkName(t uint32) string {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], t)
	return string(b[:])
}

func DecodeChunk(payload []byte) (Chunk, error) {
	if len(payload) < ChunkHeaderLen {
		return Chunk{}, ErrShortChunk
	}
	t := binary.BigEndian.Uint32(payload[0:4])
	l := binary.BigEndian.Uint32(payload[4:8])
	if uint32(len(payload)-ChunkHeaderLen) < l {
		return Chunk{}, fmt.Errorf("%w: type=%s length=%d have=%d", ErrShortChunk, ChunkName(t), l, len(payload)-ChunkHeaderLen)
	}
	return Chunk{Type: t, Data: payload[ChunkHeaderLen : ChunkHeaderLen+int(l)]}, nil
}

func EncodeChunk(c Chunk) []byte {
	buf := make([]byte, ChunkHeaderLen+len(c.Data))
	binary.BigEndian.PutUint32(buf[0:4], c.Type)
	binary.BigEndian.PutUint32(buf[4:8], uint32(len(c.Data)))
	copy(buf[ChunkHeaderLen:], c.Data)
	return buf
}
