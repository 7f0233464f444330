package packet

import "fmt"

// MutablePacket builds packets for sending or for test fixtures. It is not
// safe for concurrent use.
type MutablePacket struct {
	hdr     Header
	payload []byte
}

func NewMutablePacket() *MutablePacket {
	return &MutablePacket{hdr: Header{Length: HeaderLen}}
}

func (m *MutablePacket) SetID(id uint32) *MutablePacket {
	m.hdr.ID = id
	return m
}

// SetLength overrides the length derived from the payload.
func (m *MutablePacket) SetLength(length uint32) error {
	if length < HeaderLen {
		return fmt.Errorf("%w: length=%d must be >= %d", ErrInvalidLength, length, HeaderLen)
	}
	m.hdr.Length = length
	return nil
}

func (m *MutablePacket) SetFlags(flags uint8) *MutablePacket {
	m.hdr.Flags = flags
	return m
}

func (m *MutablePacket) SetCommand(cmdSet, cmd uint8) *MutablePacket {
	m.hdr.Flags &^= FlagReply
	m.hdr.Code = commandCode(cmdSet, cmd)
	return m
}

func (m *MutablePacket) SetReply(errorCode uint16) *MutablePacket {
	m.hdr.Flags |= FlagReply
	m.hdr.Code = errorCode
	return m
}

// SetPayload copies b and updates the length.
func (m *MutablePacket) SetPayload(b []byte) *MutablePacket {
	m.payload = append(m.payload[:0], b...)
	m.hdr.Length = HeaderLen + uint32(len(m.payload))
	return m
}

func (m *MutablePacket) Header() Header {
	return m.hdr
}

// Packet snapshots the builder into an offline packet.
func (m *MutablePacket) Packet() (Packet, error) {
	if err := m.hdr.Validate(); err != nil {
		return Packet{}, err
	}
	if m.hdr.PayloadLen() != uint32(len(m.payload)) {
		return Packet{}, fmt.Errorf("%w: header=%d payload=%d", ErrPayloadLength, m.hdr.PayloadLen(), len(m.payload))
	}
	return Packet{Header: m.hdr, payload: OwnedPayload(m.payload)}, nil
}
