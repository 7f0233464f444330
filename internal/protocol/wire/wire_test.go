package wire

import (
	"bytes"
	"errors"
	"testing"
)

func TestReaderDecodesInOrder(t *testing.T) {
	var b []byte
	b = AppendU8(b, 7)
	b = AppendBool(b, true)
	b = AppendU16(b, 0x0102)
	b = AppendU32(b, 0xdeadbeef)
	b = AppendU64(b, 1<<40)
	b = AppendString(b, "main")
	b = AppendString(b, "")

	r := NewReader(b)
	if r.U8() != 7 || !r.Bool() || r.U16() != 0x0102 || r.U32() != 0xdeadbeef || r.U64() != 1<<40 {
		t.Fatalf("fixed-width values mismatch")
	}
	if s := r.String(); s != "main" {
		t.Fatalf("string=%q", s)
	}
	if s := r.String(); s != "" {
		t.Fatalf("empty string=%q", s)
	}
	if r.Err() != nil || r.Remaining() != 0 {
		t.Fatalf("err=%v remaining=%d", r.Err(), r.Remaining())
	}
}

func TestReaderErrorSticks(t *testing.T) {
	r := NewReader([]byte{0, 0, 0, 9, 'a'})
	if s := r.String(); s != "" {
		t.Fatalf("expected empty string on short value, got %q", s)
	}
	if !errors.Is(r.Err(), ErrShortValue) {
		t.Fatalf("expected ErrShortValue, got %v", r.Err())
	}
	if r.U8() != 0 {
		t.Fatalf("read after failure should yield zero")
	}
}

func TestChunkRoundTripAndShortLength(t *testing.T) {
	in := Chunk{Type: ChunkType("HELO"), Data: []byte{0, 0, 0, 1}}
	out, err := DecodeChunk(EncodeChunk(in))
	if err != nil {
		t.Fatalf("decode chunk: %v", err)
	}
	if ChunkName(out.Type) != "HELO" || !bytes.Equal(out.Data, in.Data) {
		t.Fatalf("unexpected chunk: %s %v", ChunkName(out.Type), out.Data)
	}

	// type=APNM, len=5, data only 2 bytes
	payload := []byte{'A', 'P', 'N', 'M', 0, 0, 0, 5, 'a', 'b'}
	if _, err := DecodeChunk(payload); !errors.Is(err, ErrShortChunk) {
		t.Fatalf("expected ErrShortChunk, got %v", err)
	}
	if _, err := DecodeChunk([]byte{1, 2}); !errors.Is(err, ErrShortChunk) {
		t.Fatalf("expected ErrShortChunk for header, got %v", err)
	}
}
