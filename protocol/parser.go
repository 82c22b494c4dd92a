package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

var (
	// ErrNeedMoreData means the buffer does not yet hold a complete frame. Nothing
	// was consumed, the caller should read more and try again.
	ErrNeedMoreData = errors.New("need more data to decode a complete frame")

	// ErrMalformedFrame means the inbound bytes cannot be parsed. The stream framing
	// is lost at this point, so the connection cannot be used any longer.
	ErrMalformedFrame = errors.New("malformed frame")

	// ErrInvalidAttribute is returned when a message cannot be encoded
	ErrInvalidAttribute = errors.New("invalid attribute")

	ErrMessageTooLarge = errors.New("message too large")
)

// ReadPacket decodes the first frame in data. It returns the packet and the number
// of bytes it occupied, including the length prefix.
//
// If data holds less than one complete frame ErrNeedMoreData is returned and zero
// bytes are consumed. Frames larger than maxSize (DefaultMaxMessageSize if maxSize
// is not positive) are rejected with ErrMalformedFrame without waiting for them to
// arrive in full.
func ReadPacket(data []byte, maxSize int) (*Packet, int, error) {
	if maxSize <= 0 {
		maxSize = DefaultMaxMessageSize
	}

	if len(data) < HeaderSize {
		return nil, 0, ErrNeedMoreData
	}

	size := binary.BigEndian.Uint32(data[:HeaderSize])
	if size == 0 {
		return nil, 0, fmt.Errorf("%w: empty frame", ErrMalformedFrame)
	}
	if uint64(size) > uint64(maxSize) {
		return nil, 0, fmt.Errorf("%w: frame of %d bytes exceeds limit of %d",
			ErrMalformedFrame, size, maxSize)
	}

	total := HeaderSize + int(size)
	if len(data) < total {
		return nil, 0, ErrNeedMoreData
	}

	pkt, err := parsePayload(data[HeaderSize:total])
	if err != nil {
		return nil, 0, err
	}

	return pkt, total, nil
}

// ReadPacketFrom reads exactly one frame from a blocking reader.
//
// To avoid denial of service attacks, maxSize bounds the payload that will be
// allocated for a single frame.
func ReadPacketFrom(r io.Reader, maxSize int) (*Packet, error) {
	if maxSize <= 0 {
		maxSize = DefaultMaxMessageSize
	}

	buf := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}

	size := binary.BigEndian.Uint32(buf)
	if size == 0 || uint64(size) > uint64(maxSize) {
		return nil, fmt.Errorf("%w: frame of %d bytes", ErrMalformedFrame, size)
	}

	buf = append(buf, make([]byte, size)...)
	if _, err := io.ReadFull(r, buf[HeaderSize:]); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.ErrUnexpectedEOF
		}
		return nil, err
	}

	pkt, _, err := ReadPacket(buf, maxSize)
	return pkt, err
}

type payloadReader struct {
	data []byte
	off  int
}

func (r *payloadReader) remaining() int {
	return len(r.data) - r.off
}

func (r *payloadReader) readByte() (byte, error) {
	if r.remaining() < 1 {
		return 0, fmt.Errorf("%w: truncated at offset %d", ErrMalformedFrame, r.off)
	}

	b := r.data[r.off]
	r.off++
	return b, nil
}

func (r *payloadReader) readName() (string, error) {
	n, err := r.readByte()
	if err != nil {
		return "", err
	}

	if r.remaining() < int(n) {
		return "", fmt.Errorf("%w: name of %d bytes truncated at offset %d",
			ErrMalformedFrame, n, r.off)
	}

	s := string(r.data[r.off : r.off+int(n)])
	r.off += int(n)
	return s, nil
}

func (r *payloadReader) readValue() ([]byte, error) {
	if r.remaining() < 2 {
		return nil, fmt.Errorf("%w: value length truncated at offset %d", ErrMalformedFrame, r.off)
	}

	n := int(binary.BigEndian.Uint16(r.data[r.off:]))
	r.off += 2

	if r.remaining() < n {
		return nil, fmt.Errorf("%w: value of %d bytes truncated at offset %d",
			ErrMalformedFrame, n, r.off)
	}

	v := make([]byte, n)
	copy(v, r.data[r.off:r.off+n])
	r.off += n
	return v, nil
}

func parsePayload(data []byte) (*Packet, error) {
	r := &payloadReader{data: data}

	t, err := r.readByte()
	if err != nil {
		return nil, err
	}

	pkt := &Packet{Type: PacketType(t)}
	if !pkt.Type.Valid() {
		return nil, fmt.Errorf("%w: unknown packet type %d", ErrMalformedFrame, t)
	}

	if pkt.Type.Named() {
		if pkt.Name, err = r.readName(); err != nil {
			return nil, err
		}
	}

	if pkt.Message, err = parseElements(r); err != nil {
		return nil, err
	}

	return pkt, nil
}

func parseElements(r *payloadReader) (*Message, error) {
	root := NewMessage()
	stack := []*Message{root}

	var list *Entry

	for r.remaining() > 0 {
		t, err := r.readByte()
		if err != nil {
			return nil, err
		}

		current := stack[len(stack)-1]

		if list != nil && elementType(t) != elemListItem && elementType(t) != elemListEnd {
			return nil, fmt.Errorf("%w: element type %d inside list %q",
				ErrMalformedFrame, t, list.Key)
		}

		switch elementType(t) {
		case elemSectionStart:
			name, err := r.readName()
			if err != nil {
				return nil, err
			}
			stack = append(stack, current.NewSection(name))

		case elemSectionEnd:
			if len(stack) == 1 {
				return nil, fmt.Errorf("%w: section end without section start", ErrMalformedFrame)
			}
			stack = stack[:len(stack)-1]

		case elemKeyValue:
			key, err := r.readName()
			if err != nil {
				return nil, err
			}
			value, err := r.readValue()
			if err != nil {
				return nil, err
			}
			current.entries = append(current.entries, Entry{Key: key, Kind: KindValue, Value: value})

		case elemListStart:
			name, err := r.readName()
			if err != nil {
				return nil, err
			}
			current.entries = append(current.entries, Entry{Key: name, Kind: KindList, List: [][]byte{}})
			list = &current.entries[len(current.entries)-1]

		case elemListItem:
			if list == nil {
				return nil, fmt.Errorf("%w: list item outside of a list", ErrMalformedFrame)
			}
			value, err := r.readValue()
			if err != nil {
				return nil, err
			}
			list.List = append(list.List, value)

		case elemListEnd:
			if list == nil {
				return nil, fmt.Errorf("%w: list end without list start", ErrMalformedFrame)
			}
			list = nil

		default:
			return nil, fmt.Errorf("%w: unknown element type %d", ErrMalformedFrame, t)
		}
	}

	if list != nil {
		return nil, fmt.Errorf("%w: unterminated list %q", ErrMalformedFrame, list.Key)
	}
	if len(stack) != 1 {
		return nil, fmt.Errorf("%w: %d unterminated sections", ErrMalformedFrame, len(stack)-1)
	}

	return root, nil
}
