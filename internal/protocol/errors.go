package protocol

import "errors"

// Decode errors. A receiver must reject the offending packet without
// consuming more than its own prefix; see spec §6/§7.
var (
	ErrBadMagic         = errors.New("protocol: bad magic byte")
	ErrBadCommand       = errors.New("protocol: unrecognized command type")
	ErrBadGUID          = errors.New("protocol: guid is not 32 hex digits")
	ErrNumberOutOfRange = errors.New("protocol: packet_number greater than packet_count")
	ErrBadCRC           = errors.New("protocol: crc32 mismatch")
	// ErrShortBuffer is internal: callers should always check
	// HasFullPacket before calling Decode, so this should not surface
	// in practice.
	ErrShortBuffer = errors.New("protocol: buffer does not hold a full packet")
)
