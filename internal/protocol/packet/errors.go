package packet

import "errors"

var (
	ErrShortHeader    = errors.New("packet: short header")
	ErrInvalidLength  = errors.New("packet: invalid length")
	ErrTooLarge       = errors.New("packet: packet too large")
	ErrNotCommand     = errors.New("packet: not a command packet")
	ErrNotReply       = errors.New("packet: not a reply packet")
	ErrPayloadExpired = errors.New("packet: payload no longer available")
	ErrPayloadLength  = errors.New("packet: payload length mismatch")
)
