package packet

import "fmt"

// Packet is an immutable view of one JDWP packet.
type Packet struct {
	Header
	payload Payload
}

// New builds a packet view over an existing payload. Length must already
// account for the payload.
func New(h Header, payload Payload) (Packet, error) {
	if err := h.Validate(); err != nil {
		return Packet{}, err
	}
	if payload == nil {
		payload = EmptyPayload()
	}
	return Packet{Header: h, payload: payload}, nil
}

// NewCommand returns an offline command packet.
func NewCommand(id uint32, cmdSet, cmd uint8, payload []byte) Packet {
	return Packet{
		Header: Header{
			ID:     id,
			Length: HeaderLen + uint32(len(payload)),
			Code:   commandCode(cmdSet, cmd),
		},
		payload: OwnedPayload(payload),
	}
}

// NewReply returns an offline reply packet.
func NewReply(id uint32, errorCode uint16, payload []byte) Packet {
	return Packet{
		Header: Header{
			ID:     id,
			Length: HeaderLen + uint32(len(payload)),
			Flags:  FlagReply,
			Code:   errorCode,
		},
		payload: OwnedPayload(payload),
	}
}

func (p Packet) payloadOrEmpty() Payload {
	if p.payload == nil {
		return EmptyPayload()
	}
	return p.payload
}

// WithPayload acquires the payload for the duration of fn.
func (p Packet) WithPayload(fn func(b []byte) error) error {
	pl := p.payloadOrEmpty()
	b, err := pl.Acquire()
	if err != nil {
		return err
	}
	defer pl.Release()
	return fn(b)
}

// Offline returns a copy of p whose payload outlives the current read round.
// Offline packets are returned unchanged.
func (p Packet) Offline() (Packet, error) {
	pl := p.payloadOrEmpty()
	if pl.IsOffline() {
		return Packet{Header: p.Header, payload: pl}, nil
	}
	owned, err := pl.Offline()
	if err != nil {
		return Packet{}, fmt.Errorf("offline %s: %w", p.Header, err)
	}
	return Packet{Header: p.Header, payload: owned}, nil
}

func (p Packet) IsOffline() bool {
	return p.payloadOrEmpty().IsOffline()
}

// Payload returns a copy of the payload bytes.
func (p Packet) Payload() ([]byte, error) {
	var out []byte
	err := p.WithPayload(func(b []byte) error {
		out = append([]byte(nil), b...)
		return nil
	})
	return out, err
}

// Bytes encodes header and payload into a fresh buffer.
func (p Packet) Bytes() ([]byte, error) {
	var out []byte
	err := p.WithPayload(func(b []byte) error {
		if uint32(len(b)) != p.PayloadLen() {
			return fmt.Errorf("%w: header=%d payload=%d", ErrPayloadLength, p.PayloadLen(), len(b))
		}
		out = make([]byte, p.Length)
		PutHeader(out, p.Header)
		copy(out[HeaderLen:], b)
		return nil
	})
	return out, err
}
