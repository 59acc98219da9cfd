package realtime

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Engine.IO v4 packet types, sent as the first character of a text frame.
const (
	engineOpen    byte = '0'
	engineClose   byte = '1'
	enginePing    byte = '2'
	enginePong    byte = '3'
	engineMessage byte = '4'
	engineUpgrade byte = '5'
	engineNoop    byte = '6'
)

// PacketType is a Socket.IO v5 packet type carried inside an Engine.IO message.
type PacketType byte

const (
	PacketConnect PacketType = iota
	PacketDisconnect
	PacketEvent
	PacketAck
	PacketConnectError
	PacketBinaryEvent
	PacketBinaryAck
)

func (t PacketType) String() string {
	switch t {
	case PacketConnect:
		return "CONNECT"
	case PacketDisconnect:
		return "DISCONNECT"
	case PacketEvent:
		return "EVENT"
	case PacketAck:
		return "ACK"
	case PacketConnectError:
		return "CONNECT_ERROR"
	case PacketBinaryEvent:
		return "BINARY_EVENT"
	case PacketBinaryAck:
		return "BINARY_ACK"
	default:
		return "UNKNOWN(" + strconv.Itoa(int(t)) + ")"
	}
}

// Packet is a decoded Socket.IO packet. ID is nil when the packet carries no
// acknowledgement id.
type Packet struct {
	Type      PacketType
	Namespace string
	ID        *uint64
	Data      json.RawMessage
}

var errBinaryUnsupported = errors.New("realtime: binary packets are not supported")

// EncodePacket renders p in the Socket.IO text encoding, without the Engine.IO
// message prefix.
func EncodePacket(p Packet) string {
	var b strings.Builder
	b.WriteByte('0' + byte(p.Type))
	if p.Namespace != "" && p.Namespace != "/" {
		b.WriteString(p.Namespace)
		b.WriteByte(',')
	}
	if p.ID != nil {
		b.WriteString(strconv.FormatUint(*p.ID, 10))
	}
	if len(p.Data) > 0 {
		b.Write(p.Data)
	}
	return b.String()
}

// DecodePacket parses the Socket.IO text encoding produced by EncodePacket.
func DecodePacket(raw string) (Packet, error) {
	if raw == "" {
		return Packet{}, errors.New("realtime: empty packet")
	}
	if raw[0] < '0' || raw[0] > '6' {
		return Packet{}, fmt.Errorf("realtime: unknown packet type %q", raw[0])
	}
	p := Packet{Type: PacketType(raw[0] - '0'), Namespace: "/"}
	if p.Type == PacketBinaryEvent || p.Type == PacketBinaryAck {
		return Packet{}, errBinaryUnsupported
	}
	rest := raw[1:]

	if strings.HasPrefix(rest, "/") {
		end := strings.IndexByte(rest, ',')
		if end < 0 {
			p.Namespace = rest
			return p, nil
		}
		p.Namespace = rest[:end]
		rest = rest[end+1:]
	}

	digits := 0
	for digits < len(rest) && rest[digits] >= '0' && rest[digits] <= '9' {
		digits++
	}
	if digits > 0 {
		id, err := strconv.ParseUint(rest[:digits], 10, 64)
		if err != nil {
			return Packet{}, fmt.Errorf("realtime: invalid ack id: %w", err)
		}
		p.ID = &id
		rest = rest[digits:]
	}

	if rest != "" {
		if !json.Valid([]byte(rest)) {
			return Packet{}, fmt.Errorf("realtime: invalid %s payload", p.Type)
		}
		p.Data = json.RawMessage(rest)
	}
	return p, nil
}

// eventArgs splits an EVENT payload of the form ["name", arg0, arg1...].
func eventArgs(data json.RawMessage) (string, []json.RawMessage, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return "", nil, fmt.Errorf("realtime: decode event: %w", err)
	}
	if len(items) == 0 {
		return "", nil, errors.New("realtime: event without a name")
	}
	var name string
	if err := json.Unmarshal(items[0], &name); err != nil {
		return "", nil, fmt.Errorf("realtime: decode event name: %w", err)
	}
	return name, items[1:], nil
}

// ackArgs decodes the argument list of an ACK packet.
func ackArgs(data json.RawMessage) ([]json.RawMessage, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("realtime: decode ack: %w", err)
	}
	return items, nil
}

// openPayload is the body of the Engine.IO open packet.
type openPayload struct {
	SID          string   `json:"sid"`
	Upgrades     []string `json:"upgrades"`
	PingInterval int      `json:"pingInterval"`
	PingTimeout  int      `json:"pingTimeout"`
	MaxPayload   int      `json:"maxPayload"`
}
