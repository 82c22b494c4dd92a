package protocol

import (
	"encoding/binary"
	"fmt"
	"io"
)

const (
	// HeaderSize is the size of the big-endian length prefix of every frame
	HeaderSize = 4

	// DefaultMaxMessageSize is the largest payload the daemon accepts (512 KiB)
	DefaultMaxMessageSize = 512 * 1024

	// MaxNameLen bounds packet names, keys, section and list names (u8 length)
	MaxNameLen = 0xff

	// MaxValueLen bounds values and list items (u16 length)
	MaxValueLen = 0xffff
)

// Encode serialises a packet into a complete frame, length prefix included.
func Encode(t PacketType, name string, msg *Message) ([]byte, error) {
	return AppendPacket(nil, t, name, msg)
}

// AppendPacket appends the frame for a packet to dst and returns the extended
// buffer. On error dst is returned unchanged.
func AppendPacket(dst []byte, t PacketType, name string, msg *Message) ([]byte, error) {
	if !t.Valid() {
		return dst, fmt.Errorf("%w: packet type %d", ErrInvalidAttribute, uint8(t))
	}

	if t.Named() {
		if err := checkName(name); err != nil {
			return dst, fmt.Errorf("%w: %s name %q %s", ErrInvalidAttribute, t, name, err)
		}
	}

	if err := msg.Validate(); err != nil {
		return dst, err
	}

	start := len(dst)
	b := append(dst, 0, 0, 0, 0, byte(t))

	if t.Named() {
		b = appendName(b, name)
	}

	b = msg.appendElements(b)

	size := len(b) - start - HeaderSize
	if size > DefaultMaxMessageSize {
		return dst, fmt.Errorf("%w: %d > %d", ErrMessageTooLarge, size, DefaultMaxMessageSize)
	}

	binary.BigEndian.PutUint32(b[start:start+HeaderSize], uint32(size))
	return b, nil
}

// WritePacket encodes a packet and writes the frame to w in a single Write.
func WritePacket(w io.Writer, t PacketType, name string, msg *Message) error {
	b, err := Encode(t, name, msg)
	if err != nil {
		return err
	}

	_, err = w.Write(b)
	return err
}

func (m *Message) appendElements(b []byte) []byte {
	if m == nil {
		return b
	}

	for _, e := range m.entries {
		switch e.Kind {
		case KindValue:
			b = append(b, byte(elemKeyValue))
			b = appendName(b, e.Key)
			b = appendValue(b, e.Value)

		case KindSection:
			b = append(b, byte(elemSectionStart))
			b = appendName(b, e.Key)
			b = e.Section.appendElements(b)
			b = append(b, byte(elemSectionEnd))

		case KindList:
			b = append(b, byte(elemListStart))
			b = appendName(b, e.Key)
			for _, item := range e.List {
				b = append(b, byte(elemListItem))
				b = appendValue(b, item)
			}
			b = append(b, byte(elemListEnd))
		}
	}

	return b
}

func appendName(b []byte, name string) []byte {
	b = append(b, byte(len(name)))
	return append(b, name...)
}

func appendValue(b []byte, value []byte) []byte {
	b = binary.BigEndian.AppendUint16(b, uint16(len(value)))
	return append(b, value...)
}
