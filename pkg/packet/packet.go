// Package packet implements the bootloader wire frame:
//
//	┌───────┬────────┬─────────────────┬─────────────────┐
//	│  id 1B│ len 1B │ payload (len B) │   crc32 4B LE   │
//	└───────┴────────┴─────────────────┴─────────────────┘
//
// The CRC-32/MPEG-2 trailer covers id ‖ len ‖ payload. Both directions use
// the same format.
package packet

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/fotakit/bootmon/pkg/crc"
)

// Response ids sent by the bootloader.
const (
	ACK        byte = 0xE0
	NACK       byte = 0xE1
	Retransmit byte = 0xE2
)

// MinFrameSize is id + length + CRC trailer with an empty payload.
const MinFrameSize = 6

var (
	// ErrMalformed means the buffer cannot hold even an empty frame.
	ErrMalformed = errors.New("packet: malformed frame")
	// ErrTruncated means fewer bytes than the header declares.
	ErrTruncated = errors.New("packet: truncated frame")
	// ErrCRCMismatch means the recomputed CRC differs from the trailer.
	ErrCRCMismatch = errors.New("packet: CRC mismatch")
)

// Packet is one frame in either direction. It is transient per exchange.
type Packet struct {
	ID      byte
	Length  byte
	Payload []byte
	CRC32   uint32
}

// New builds an outbound packet for id with the given payload. Payloads are
// limited to 255 bytes by the one-byte length field.
func New(id byte, payload []byte) Packet {
	p := Packet{ID: id, Length: byte(len(payload)), Payload: payload}
	p.CRC32 = p.checksum()
	return p
}

// checksum computes the CRC-32/MPEG-2 over id ‖ len ‖ payload.
func (p Packet) checksum() uint32 {
	data := make([]byte, 0, 2+len(p.Payload))
	data = append(data, p.ID, p.Length)
	data = append(data, p.Payload...)
	return crc.Checksum(data)
}

// Encode serializes the packet: id, length, payload, CRC32 little-endian.
func (p Packet) Encode() []byte {
	raw := make([]byte, 0, 2+len(p.Payload)+4)
	raw = append(raw, p.ID, p.Length)
	raw = append(raw, p.Payload...)
	raw = binary.LittleEndian.AppendUint32(raw, p.checksum())
	return raw
}

func (p Packet) String() string {
	return fmt.Sprintf("id=0x%02X len=%d crc=0x%08X", p.ID, p.Length, p.CRC32)
}

// ByteReader yields one byte per call, blocking up to timeout.
type ByteReader interface {
	ReadByte(timeout time.Duration) (byte, error)
}

// Decode consumes one frame from r in wire order: id, length, payload bytes,
// four CRC bytes. A read error at any step (typically a transport timeout)
// aborts the frame and is returned wrapped; a CRC mismatch returns
// ErrCRCMismatch. Decode never panics and never surfaces a corrupt packet
// as data.
func Decode(r ByteReader, timeout time.Duration) (Packet, error) {
	id, err := r.ReadByte(timeout)
	if err != nil {
		return Packet{}, fmt.Errorf("reading id byte: %w", err)
	}
	length, err := r.ReadByte(timeout)
	if err != nil {
		return Packet{}, fmt.Errorf("reading length byte: %w", err)
	}
	var payload []byte
	for i := 0; i < int(length); i++ {
		b, err := r.ReadByte(timeout)
		if err != nil {
			return Packet{}, fmt.Errorf("reading payload byte %d/%d: %w", i+1, length, err)
		}
		payload = append(payload, b)
	}
	var trailer [4]byte
	for i := range trailer {
		b, err := r.ReadByte(timeout)
		if err != nil {
			return Packet{}, fmt.Errorf("reading CRC byte %d/4: %w", i+1, err)
		}
		trailer[i] = b
	}
	return validate(id, length, payload, binary.LittleEndian.Uint32(trailer[:]))
}

// DecodeBytes parses a fully buffered frame. Short buffers return
// ErrMalformed (no room for a header) or ErrTruncated (fewer payload bytes
// than the header declares).
func DecodeBytes(raw []byte) (Packet, error) {
	if len(raw) < MinFrameSize {
		return Packet{}, fmt.Errorf("%w: need at least %d bytes, got %d", ErrMalformed, MinFrameSize, len(raw))
	}
	id, length := raw[0], raw[1]
	if len(raw) < 2+int(length)+4 {
		return Packet{}, fmt.Errorf("%w: header declares %d payload bytes, frame is %d bytes", ErrTruncated, length, len(raw))
	}
	payload := raw[2 : 2+int(length)]
	received := binary.LittleEndian.Uint32(raw[2+int(length):])
	return validate(id, length, payload, received)
}

func validate(id, length byte, payload []byte, received uint32) (Packet, error) {
	p := Packet{ID: id, Length: length, Payload: payload, CRC32: received}
	if computed := p.checksum(); computed != received {
		return Packet{}, fmt.Errorf("%w: computed 0x%08X, received 0x%08X", ErrCRCMismatch, computed, received)
	}
	return p, nil
}
