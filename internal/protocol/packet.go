// Package protocol implements the framed request/response wire format
// used between the hypervisor host and the guest agent over the
// virtual serial port: a fixed header, an opaque body, and a CRC32
// footer.
package protocol

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// CommandType identifies the kind of a Packet.
type CommandType int

const (
	Command CommandType = iota
	Ack
	Received
	AuthResponse
	Response
)

var commandTypeNames = [...]string{"COMMAND", "ACK", "RECEIVED", "AUTHRESPONSE", "RESPONSE"}

func (t CommandType) String() string {
	if t < Command || t > Response {
		return fmt.Sprintf("CommandType(%d)", int(t))
	}
	return commandTypeNames[t]
}

func parseCommandType(s string) (CommandType, error) {
	for i, name := range commandTypeNames {
		if name == s {
			return CommandType(i), nil
		}
	}
	return 0, ErrBadCommand
}

// ResponseType is carried inside a Response/Received packet's body.
type ResponseType int

const (
	Success ResponseType = iota
	Error
	TimeOut
)

func (r ResponseType) String() string {
	switch r {
	case Success:
		return "Success"
	case Error:
		return "Error"
	case TimeOut:
		return "TimeOut"
	default:
		return fmt.Sprintf("ResponseType(%d)", int(r))
	}
}

// Wire layout constants, see spec §3/§4.2.
const (
	headerMagic    = 0x02
	footerMagic    = 0x03
	commandNameLen = 30
	guidLen        = 32
	reservedLen    = 16

	// offsets within the header
	offMagic    = 0
	offCommand  = 1
	offGUID     = offCommand + commandNameLen
	offNumber   = offGUID + guidLen
	offCount    = offNumber + 4
	offReserved = offCount + 4
	offBodySize = offReserved + reservedLen

	HeaderSize = offBodySize + 4 // 91
	FooterSize = 4 + 1           // 5
)

// Packet is an immutable framed message. Construct one either via
// Decode or via one of the New* factories below.
type Packet struct {
	CommandType CommandType
	GUID        string
	Number      uint32
	Count       uint32
	Body        []byte
}

// String renders a Packet for logs, truncating long bodies the way
// the original implementation's stream operator did.
func (p Packet) String() string {
	const limit = 300
	body := string(p.Body)
	if len(body) > limit {
		body = body[:limit] + " ..."
	}
	return fmt.Sprintf("Packet(guid=%s, type=%s, body=%s, number=%d, count=%d)",
		p.GUID, p.CommandType, body, p.Number, p.Count)
}

func newPacket(t CommandType, guid, body string, number, count uint32) Packet {
	return Packet{
		CommandType: t,
		GUID:        guid,
		Number:      number,
		Count:       count,
		Body:        []byte(body),
	}
}

// Encode serializes the packet to its on-wire representation:
// header, body, CRC32 footer.
func Encode(p Packet) []byte {
	total := HeaderSize + len(p.Body) + FooterSize
	buf := make([]byte, total)

	buf[offMagic] = headerMagic

	name := p.CommandType.String()
	copy(buf[offCommand:offCommand+commandNameLen], name)
	// remainder of the command-name field is already zero (NUL-padded)

	copy(buf[offGUID:offGUID+guidLen], p.GUID)

	binary.LittleEndian.PutUint32(buf[offNumber:], p.Number)
	binary.LittleEndian.PutUint32(buf[offCount:], p.Count)
	// reserved bytes stay zero
	binary.LittleEndian.PutUint32(buf[offBodySize:], uint32(len(p.Body)))

	copy(buf[HeaderSize:], p.Body)

	crc := crc32Of(buf[:HeaderSize+len(p.Body)])
	footerStart := HeaderSize + len(p.Body)
	binary.LittleEndian.PutUint32(buf[footerStart:], crc)
	buf[footerStart+4] = footerMagic

	return buf
}

// HasHeader reports whether buf is long enough to hold a full header.
func HasHeader(buf []byte) bool {
	return len(buf) >= HeaderSize
}

// bodySizeField reads the body_size field out of a buffer that is at
// least HeaderSize long.
func bodySizeField(buf []byte) uint32 {
	return binary.LittleEndian.Uint32(buf[offBodySize : offBodySize+4])
}

// HasFullPacket reports whether buf contains at least one complete,
// still-undecoded packet at its front.
func HasFullPacket(buf []byte) bool {
	if !HasHeader(buf) {
		return false
	}
	need := HeaderSize + int(bodySizeField(buf)) + FooterSize
	return len(buf) >= need
}

func guidIsValid(guid string) bool {
	if len(guid) != guidLen {
		return false
	}
	for i := 0; i < len(guid); i++ {
		c := guid[i]
		switch {
		case c >= '0' && c <= '9':
		case c >= 'a' && c <= 'f':
		case c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}

// Decode consumes exactly one packet from the front of buf and returns
// it along with the number of bytes consumed. Callers must ensure
// HasFullPacket(buf) beforehand; Decode itself only re-validates the
// invariants that matter for rejecting a malformed packet.
func Decode(buf []byte) (Packet, int, error) {
	if !HasHeader(buf) {
		return Packet{}, 0, ErrShortBuffer
	}
	if buf[offMagic] != headerMagic {
		return Packet{}, 0, ErrBadMagic
	}

	nameEnd := bytes.IndexByte(buf[offCommand:offGUID], 0)
	var name string
	if nameEnd < 0 {
		name = string(buf[offCommand:offGUID])
	} else {
		name = string(buf[offCommand : offCommand+nameEnd])
	}
	cmdType, err := parseCommandType(name)
	if err != nil {
		return Packet{}, 0, ErrBadCommand
	}

	guid := string(buf[offGUID : offGUID+guidLen])
	if !guidIsValid(guid) {
		return Packet{}, 0, ErrBadGUID
	}

	number := binary.LittleEndian.Uint32(buf[offNumber:])
	count := binary.LittleEndian.Uint32(buf[offCount:])
	if number > count {
		return Packet{}, 0, ErrNumberOutOfRange
	}

	bodySize := bodySizeField(buf)
	need := HeaderSize + int(bodySize) + FooterSize
	if len(buf) < need {
		return Packet{}, 0, ErrShortBuffer
	}

	body := make([]byte, bodySize)
	copy(body, buf[HeaderSize:HeaderSize+int(bodySize)])

	crcOffset := HeaderSize + int(bodySize)
	wantCRC := binary.LittleEndian.Uint32(buf[crcOffset:])
	gotCRC := crc32Of(buf[:crcOffset])
	if wantCRC != gotCRC {
		return Packet{}, 0, ErrBadCRC
	}
	if buf[crcOffset+4] != footerMagic {
		return Packet{}, 0, ErrBadMagic
	}

	return Packet{
		CommandType: cmdType,
		GUID:        guid,
		Number:      number,
		Count:       count,
		Body:        body,
	}, need, nil
}
