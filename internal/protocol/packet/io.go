package packet

import (
	"errors"
	"fmt"
	"io"
	"time"
)

// DeadlineReader is the read side of a transport. A zero deadline blocks
// without a timeout.
type DeadlineReader interface {
	Read(p []byte, deadline time.Time) (int, error)
}

// DeadlineWriter is the write side of a transport.
type DeadlineWriter interface {
	Write(p []byte, deadline time.Time) (int, error)
}

// Limits constrains decode memory use.
type Limits struct {
	MaxLength uint32
}

func DefaultLimits() Limits {
	return Limits{
		MaxLength: 64 * 1024 * 1024,
	}
}

// Reader decodes packets from one transport into a single reusable buffer.
// It must only be used by one goroutine.
type Reader struct {
	src    DeadlineReader
	limits Limits
	hdr    [HeaderLen]byte
	buf    roundBuffer
}

func NewReader(src DeadlineReader, limits Limits) *Reader {
	if limits.MaxLength == 0 {
		limits = DefaultLimits()
	}
	return &Reader{src: src, limits: limits}
}

// Next reads one packet. The returned packet's payload is channel-bound: it
// expires on the following call to Next or Invalidate.
//
// A clean end of stream before any header byte is io.EOF; a stream that ends
// inside a packet is io.ErrUnexpectedEOF.
func (r *Reader) Next(deadline time.Time) (Packet, error) {
	r.Invalidate()

	n, err := readFull(r.src, r.hdr[:], deadline)
	if err != nil {
		if errors.Is(err, io.EOF) && n == 0 {
			return Packet{}, io.EOF
		}
		if errors.Is(err, io.EOF) {
			return Packet{}, io.ErrUnexpectedEOF
		}
		return Packet{}, err
	}
	h, err := DecodeHeader(r.hdr[:])
	if err != nil {
		return Packet{}, err
	}
	if h.Length > r.limits.MaxLength {
		return Packet{}, fmt.Errorf("%w: length=%d limit=%d", ErrTooLarge, h.Length, r.limits.MaxLength)
	}

	size := int(h.PayloadLen())
	if size == 0 {
		return Packet{Header: h, payload: EmptyPayload()}, nil
	}
	data := r.buf.ensure(size)
	if _, err := readFull(r.src, data, deadline); err != nil {
		if errors.Is(err, io.EOF) {
			return Packet{}, io.ErrUnexpectedEOF
		}
		return Packet{}, err
	}
	return Packet{
		Header:  h,
		payload: &boundPayload{buf: &r.buf, gen: r.buf.gen.Load(), n: size},
	}, nil
}

// Invalidate expires every payload handed out by the previous Next. It blocks
// while any of them is still acquired.
func (r *Reader) Invalidate() {
	r.buf.invalidate()
}

func readFull(src DeadlineReader, buf []byte, deadline time.Time) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := src.Read(buf[total:], deadline)
		total += n
		if err != nil {
			if total == len(buf) && errors.Is(err, io.EOF) {
				return total, nil
			}
			return total, err
		}
	}
	return total, nil
}

// Write encodes p and writes it in one call.
func Write(dst DeadlineWriter, p Packet, deadline time.Time) error {
	b, err := p.Bytes()
	if err != nil {
		return err
	}
	for written := 0; written < len(b); {
		n, err := dst.Write(b[written:], deadline)
		written += n
		if err != nil {
			return err
		}
		if n == 0 {
			return io.ErrShortWrite
		}
	}
	return nil
}
