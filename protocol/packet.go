package protocol

import "fmt"

type PacketType uint8

const (
	CmdRequest      PacketType = 0
	CmdResponse     PacketType = 1
	CmdUnknown      PacketType = 2
	EventRegister   PacketType = 3
	EventUnregister PacketType = 4
	EventConfirm    PacketType = 5
	EventUnknown    PacketType = 6
	Event           PacketType = 7
)

var packetTypeNames = [...]string{
	CmdRequest:      "CMD_REQUEST",
	CmdResponse:     "CMD_RESPONSE",
	CmdUnknown:      "CMD_UNKNOWN",
	EventRegister:   "EVENT_REGISTER",
	EventUnregister: "EVENT_UNREGISTER",
	EventConfirm:    "EVENT_CONFIRM",
	EventUnknown:    "EVENT_UNKNOWN",
	Event:           "EVENT",
}

func (t PacketType) String() string {
	if int(t) < len(packetTypeNames) {
		return packetTypeNames[t]
	}

	return fmt.Sprintf("PacketType(%d)", uint8(t))
}

// Named reports whether packets of this type carry a name after the type byte.
func (t PacketType) Named() bool {
	switch t {
	case CmdRequest, EventRegister, EventUnregister, Event:
		return true
	}

	return false
}

// Valid reports whether t is a packet type known to the protocol.
func (t PacketType) Valid() bool {
	return t <= Event
}

type elementType uint8

const (
	elemSectionStart elementType = 1
	elemSectionEnd   elementType = 2
	elemKeyValue     elementType = 3
	elemListStart    elementType = 4
	elemListItem     elementType = 5
	elemListEnd      elementType = 6
)

// Packet is one decoded frame: its type, its name for named packet types and the
// message carried in its body. Message is never nil for a decoded packet.
type Packet struct {
	Type    PacketType
	Name    string
	Message *Message
}

func (p *Packet) String() string {
	if p.Type.Named() {
		return fmt.Sprintf("%s %q", p.Type, p.Name)
	}

	return p.Type.String()
}
