package smp

import (
	"encoding/binary"
	"fmt"
)

// HeaderSize is the size of an encoded SMP header in bytes.
const HeaderSize = 8

// Header represents the 8-byte SMP header.
type Header struct {
	Version   Version
	Op        Op
	Flags     uint8
	Length    uint16
	Group     Group
	Seq       uint8
	CommandID uint8
}

// Bytes returns the encoded header.
func (h Header) Bytes() []byte {
	return h.AppendTo(make([]byte, 0, HeaderSize))
}

// AppendTo appends the encoded header to buf and returns the extended slice.
func (h Header) AppendTo(buf []byte) []byte {
	buf = append(buf, (uint8(h.Version)&0x03)<<3|uint8(h.Op)&0x07, h.Flags)
	buf = binary.BigEndian.AppendUint16(buf, h.Length)
	buf = binary.BigEndian.AppendUint16(buf, uint16(h.Group))

	return append(buf, h.Seq, h.CommandID)
}

func (h Header) String() string {
	return fmt.Sprintf("%s %s group=%s seq=%d id=%d len=%d flags=0x%02x",
		h.Version, h.Op, h.Group, h.Seq, h.CommandID, h.Length, h.Flags)
}

// DecodeHeader decodes the header at the start of data.
//
// It returns ErrBadHeader if data is shorter than HeaderSize.
func DecodeHeader(data []byte) (Header, error) {
	if len(data) < HeaderSize {
		return Header{}, fmt.Errorf("%w: need %d bytes, got %d", ErrBadHeader, HeaderSize, len(data))
	}

	return Header{
		Version:   Version((data[0] >> 3) & 0x03),
		Op:        Op(data[0] & 0x07),
		Flags:     data[1],
		Length:    binary.BigEndian.Uint16(data[2:4]),
		Group:     Group(binary.BigEndian.Uint16(data[4:6])),
		Seq:       data[6],
		CommandID: data[7],
	}, nil
}
