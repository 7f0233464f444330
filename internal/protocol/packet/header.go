package packet

import (
	"encoding/binary"
	"fmt"
)

const (
	HeaderLen uint32 = 11
	FlagReply uint8  = 0x80
)

// Header is the fixed JDWP wire header.
//
// Code carries cmdSet<<8|cmd for command packets and the error code for
// reply packets; use the typed accessors instead of reading it directly.
type Header struct {
	ID     uint32
	Length uint32
	Flags  uint8
	Code   uint16
}

func (h Header) IsReply() bool {
	return h.Flags&FlagReply != 0
}

func (h Header) IsCommand() bool {
	return !h.IsReply()
}

func (h Header) CmdSet() (uint8, error) {
	if h.IsReply() {
		return 0, fmt.Errorf("%w: cmdSet unavailable on reply id=%d", ErrNotCommand, h.ID)
	}
	return uint8(h.Code >> 8), nil
}

func (h Header) Cmd() (uint8, error) {
	if h.IsReply() {
		return 0, fmt.Errorf("%w: cmd unavailable on reply id=%d", ErrNotCommand, h.ID)
	}
	return uint8(h.Code), nil
}

func (h Header) ErrorCode() (uint16, error) {
	if h.IsCommand() {
		return 0, fmt.Errorf("%w: errorCode unavailable on command id=%d", ErrNotReply, h.ID)
	}
	return h.Code, nil
}

// PayloadLen is the number of payload bytes following the header.
func (h Header) PayloadLen() uint32 {
	if h.Length < HeaderLen {
		return 0
	}
	return h.Length - HeaderLen
}

// Validate checks the invariants every decoded or built header must hold.
func (h Header) Validate() error {
	if h.Length < HeaderLen {
		return fmt.Errorf("%w: length=%d smaller than header", ErrInvalidLength, h.Length)
	}
	return nil
}

func (h Header) String() string {
	if h.IsReply() {
		return fmt.Sprintf("reply{id=%d length=%d flags=0x%02x errorCode=%d}", h.ID, h.Length, h.Flags, h.Code)
	}
	return fmt.Sprintf("command{id=%d length=%d flags=0x%02x cmdSet=%d cmd=%d}",
		h.ID, h.Length, h.Flags, uint8(h.Code>>8), uint8(h.Code))
}

func EncodeHeader(h Header) []byte {
	buf := make([]byte, HeaderLen)
	PutHeader(buf, h)
	return buf
}

// PutHeader writes h into the first HeaderLen bytes of buf.
func PutHeader(buf []byte, h Header) {
	binary.BigEndian.PutUint32(buf[0:4], h.ID)
	binary.BigEndian.PutUint32(buf[4:8], h.Length)
	buf[8] = h.Flags
	binary.BigEndian.PutUint16(buf[9:11], h.Code)
}

func DecodeHeader(b []byte) (Header, error) {
	if len(b) != int(HeaderLen) {
		return Header{}, fmt.Errorf("%w: %d bytes", ErrShortHeader, len(b))
	}
	h := Header{
		ID:     binary.BigEndian.Uint32(b[0:4]),
		Length: binary.BigEndian.Uint32(b[4:8]),
		Flags:  b[8],
		Code:   binary.BigEndian.Uint16(b[9:11]),
	}
	if err := h.Validate(); err != nil {
		return Header{}, err
	}
	return h, nil
}

func commandCode(cmdSet, cmd uint8) uint16 {
	return uint16(cmdSet)<<8 | uint16(cmd)
}
