// Package proto implements the wire protocol: single-opcode frames with an
// optional space-separated payload.
//
// A frame is one opcode byte followed by raw payload bytes. There is no
// length prefix and no delimiter; one write carries one frame, and readers
// treat whatever a single read returns as one frame. This keeps the codec
// trivial at the cost of robustness against pipelining senders.
package proto

import "bytes"

// DefaultPort is the TCP port the server binds and the client dials.
const DefaultPort = 6667

// MaxFrameSize is the read buffer size on both sides. Longer frames are
// truncated by the read.
const MaxFrameSize = 1024

// MaxNameLength caps nickname and room name length at the client.
const MaxNameLength = 50

// Opcodes. Direction is noted where it matters.
const (
	OpJoinRoom        byte = 0x01 // C→S: payload is the room name
	OpLeaveRoom       byte = 0x03 // C→S: payload is the room name
	OpListRooms       byte = 0x04 // C→S: no payload
	OpMessage         byte = 0x05 // C→S broadcast to sender's rooms; S→C server notice
	OpRegisterNick    byte = 0x06 // C→S: payload is the nickname
	OpListUsers       byte = 0x07 // C→S: no payload
	OpListUsersInRoom byte = 0x08 // C→S: payload is the room name
	OpMessageRoom     byte = 0x09 // C→S: "room msg"; S→C: "room sender msg"
	OpQuit            byte = 0x0B // both directions, no payload
	OpKeepAlive       byte = 0x0C // C→S: no payload
	OpResponse        byte = 0x0D // S→C: human-readable text
	OpResponseOK      byte = 0x0E // S→C: no payload
	OpError           byte = 0x0F // S→C: one ErrCode byte follows
)

// ErrCode is the one-byte error sub-code carried by an OpError frame.
type ErrCode byte

const (
	ErrInvalidRoom       ErrCode = 0x10
	ErrNicknameCollision ErrCode = 0x11
	ErrServerFull        ErrCode = 0x12
	ErrAlreadyRegistered ErrCode = 0x13
	ErrNotYetRegistered  ErrCode = 0x14
	ErrMalformed         ErrCode = 0x15
	ErrAlreadyInRoom     ErrCode = 0x16
	ErrNotInRoom         ErrCode = 0x17
	ErrEmptyRoom         ErrCode = 0x18
)

func (c ErrCode) String() string {
	switch c {
	case ErrInvalidRoom:
		return "invalid room"
	case ErrNicknameCollision:
		return "nickname collision"
	case ErrServerFull:
		return "server full"
	case ErrAlreadyRegistered:
		return "already registered"
	case ErrNotYetRegistered:
		return "not yet registered"
	case ErrMalformed:
		return "malformed"
	case ErrAlreadyInRoom:
		return "already in room"
	case ErrNotInRoom:
		return "not in room"
	case ErrEmptyRoom:
		return "empty room"
	}
	return "unknown error"
}

// Frame is one decoded wire frame.
type Frame struct {
	Op      byte
	Payload []byte
}

// Decode interprets buf as one frame. ok is false for an empty buf
// (a zero-length read means the connection is closed).
func Decode(buf []byte) (f Frame, ok bool) {
	if len(buf) == 0 {
		return Frame{}, false
	}
	return Frame{Op: buf[0], Payload: buf[1:]}, true
}

// Param returns the payload as a string.
func (f Frame) Param() string {
	return string(f.Payload)
}

// ErrorCode returns the error sub-code of an OpError frame. Frames with a
// missing code byte report ErrMalformed.
func (f Frame) ErrorCode() ErrCode {
	if f.Op != OpError || len(f.Payload) < 1 {
		return ErrMalformed
	}
	return ErrCode(f.Payload[0])
}

// Bare encodes a frame with no payload.
func Bare(op byte) []byte {
	return []byte{op}
}

// Err encodes an OpError frame carrying code.
func Err(code ErrCode) []byte {
	return []byte{OpError, byte(code)}
}

// WithParam encodes op followed by a single parameter.
func WithParam(op byte, param string) []byte {
	buf := make([]byte, 0, 1+len(param))
	buf = append(buf, op)
	return append(buf, param...)
}

// WithParams2 encodes op followed by two space-separated parameters. Only
// the final parameter may itself contain spaces.
func WithParams2(op byte, p0, p1 string) []byte {
	buf := make([]byte, 0, 1+len(p0)+1+len(p1))
	buf = append(buf, op)
	buf = append(buf, p0...)
	buf = append(buf, ' ')
	return append(buf, p1...)
}

// WithParams3 encodes op followed by three space-separated parameters. Only
// the final parameter may itself contain spaces.
func WithParams3(op byte, p0, p1, p2 string) []byte {
	buf := make([]byte, 0, 1+len(p0)+1+len(p1)+1+len(p2))
	buf = append(buf, op)
	buf = append(buf, p0...)
	buf = append(buf, ' ')
	buf = append(buf, p1...)
	buf = append(buf, ' ')
	return append(buf, p2...)
}

// SplitOnce splits payload on the first space. ok is false when payload
// contains no space. The tail keeps any further spaces intact.
func SplitOnce(payload []byte) (head, tail string, ok bool) {
	h, t, found := bytes.Cut(payload, []byte{' '})
	if !found {
		return "", "", false
	}
	return string(h), string(t), true
}
