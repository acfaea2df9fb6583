package command

import (
	"encoding/binary"
	"fmt"
	"os"

	"github.com/fotakit/bootmon/pkg/packet"
)

// MaxPayload is the largest SEND_BIN_IN_PACKETS payload the bootloader
// accepts per frame.
const MaxPayload = 16

// DefaultDeviceID is the expected device identity for the supported target.
const DefaultDeviceID uint16 = 0x6415

// UpdateContext is the streaming state for a firmware transfer. It lives
// from SEND_BIN_SIZE through the last SEND_BIN_IN_PACKETS frame. The raw
// bytes must not be mutated mid-stream; the chunk sequence is finite and
// non-restartable.
type UpdateContext struct {
	Raw          []byte
	Size         int
	TotalPackets int
	sent         int
}

// NewUpdateContext buffers the signed image at path and derives the frame
// count.
func NewUpdateContext(path string) (*UpdateContext, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading firmware image: %w", err)
	}
	return NewUpdateContextFromBytes(raw), nil
}

// NewUpdateContextFromBytes wraps an already-buffered image.
func NewUpdateContextFromBytes(raw []byte) *UpdateContext {
	return &UpdateContext{
		Raw:          raw,
		Size:         len(raw),
		TotalPackets: (len(raw) + MaxPayload - 1) / MaxPayload,
	}
}

// NextChunk returns the next ≤16-byte window and advances the counter.
func (u *UpdateContext) NextChunk() ([]byte, bool) {
	if u.sent >= u.TotalPackets {
		return nil, false
	}
	start := u.sent * MaxPayload
	end := start + MaxPayload
	if end > u.Size {
		end = u.Size
	}
	u.sent++
	return u.Raw[start:end], true
}

// Sent returns how many frames have been produced so far.
func (u *UpdateContext) Sent() int { return u.sent }

// Sync opens the update handshake; the device answers with a bare ACK.
type Sync struct {
	Next []Command
}

func (c *Sync) Info() Info {
	return Info{ID: IDSync, Mnemonic: "FW Update Sync"}
}
func (c *Sync) GatherInput() error { return nil }
func (c *Sync) BuildPacket() (packet.Packet, error) {
	return packet.New(IDSync, nil), nil
}
func (c *Sync) HandleResponse(p packet.Packet) ExecutionResponse {
	resp := NewResponse()
	resp.Success = true
	return resp
}
func (c *Sync) Successors() []Command { return c.Next }

// VerifyDeviceID proves to the bootloader that the host is talking to the
// intended chip before any flash traffic.
type VerifyDeviceID struct {
	DeviceID uint16
	Next     []Command
}

func (c *VerifyDeviceID) Info() Info {
	return Info{ID: IDVerifyDeviceID, Mnemonic: "FW Verify Device ID"}
}
func (c *VerifyDeviceID) GatherInput() error {
	if c.DeviceID == 0 {
		c.DeviceID = DefaultDeviceID
	}
	return nil
}
func (c *VerifyDeviceID) BuildPacket() (packet.Packet, error) {
	payload := make([]byte, 2)
	binary.LittleEndian.PutUint16(payload, c.DeviceID)
	return packet.New(IDVerifyDeviceID, payload), nil
}
func (c *VerifyDeviceID) HandleResponse(p packet.Packet) ExecutionResponse {
	resp := NewResponse()
	resp.Success = true
	resp.Data["device_id"] = fmt.Sprintf("0x%04X", c.DeviceID)
	return resp
}
func (c *VerifyDeviceID) Successors() []Command { return c.Next }

// SendBinSize negotiates the transfer: the host announces the image size and
// the device answers with the flash start address and expected frame count.
type SendBinSize struct {
	Ctx  *UpdateContext
	Next []Command
}

func (c *SendBinSize) Info() Info {
	return Info{ID: IDSendBinSize, Mnemonic: "FW Send Binary Size"}
}
func (c *SendBinSize) GatherInput() error {
	if c.Ctx == nil {
		return fmt.Errorf("no firmware image loaded")
	}
	return nil
}
func (c *SendBinSize) BuildPacket() (packet.Packet, error) {
	if c.Ctx == nil {
		return packet.Packet{}, fmt.Errorf("no firmware image loaded")
	}
	payload := make([]byte, 4)
	binary.LittleEndian.PutUint32(payload, uint32(c.Ctx.Size))
	return packet.New(IDSendBinSize, payload), nil
}
func (c *SendBinSize) HandleResponse(p packet.Packet) ExecutionResponse {
	resp := NewResponse()
	if len(p.Payload) < 8 {
		resp.Data["error"] = fmt.Sprintf("expected 8-byte size reply, got %d", p.Length)
		return resp
	}
	addr := binary.LittleEndian.Uint32(p.Payload[0:4])
	total := binary.LittleEndian.Uint32(p.Payload[4:8])
	resp.Success = true
	resp.Data["start_address"] = fmt.Sprintf("0x%08X", addr)
	resp.Data["total_packets"] = fmt.Sprintf("%d", total)
	return resp
}
func (c *SendBinSize) Successors() []Command { return c.Next }

// SendBinInPackets streams the image in MaxPayload-byte frames. It iterates
// its own exchange loop; the device acknowledges each frame with the flash
// start address and the packet counter it has verified.
type SendBinInPackets struct {
	Ctx *UpdateContext
}

func (c *SendBinInPackets) Info() Info {
	return Info{ID: IDSendBinInPackets, Mnemonic: "FW Send Binary In Packets"}
}
func (c *SendBinInPackets) GatherInput() error {
	if c.Ctx == nil {
		return fmt.Errorf("no firmware image loaded")
	}
	return nil
}
func (c *SendBinInPackets) BuildPacket() (packet.Packet, error) {
	chunk, ok := c.Ctx.NextChunk()
	if !ok {
		return packet.Packet{}, fmt.Errorf("firmware stream exhausted after %d packets", c.Ctx.Sent())
	}
	return packet.New(IDSendBinInPackets, chunk), nil
}
func (c *SendBinInPackets) HandleResponse(p packet.Packet) ExecutionResponse {
	resp := NewResponse()
	if len(p.Payload) < 8 {
		resp.Data["error"] = fmt.Sprintf("expected 8-byte stream reply, got %d", p.Length)
		return resp
	}
	addr := binary.LittleEndian.Uint32(p.Payload[0:4])
	current := binary.LittleEndian.Uint32(p.Payload[4:8])
	resp.Success = true
	resp.Data["start_address"] = fmt.Sprintf("0x%08X", addr)
	resp.Data["current_packet"] = fmt.Sprintf("%d", current)
	return resp
}
func (c *SendBinInPackets) Successors() []Command { return nil }
func (c *SendBinInPackets) More() bool            { return c.Ctx.Sent() < c.Ctx.TotalPackets }
func (c *SendBinInPackets) Progress() (int, int)  { return c.Ctx.Sent(), c.Ctx.TotalPackets }

// NewUpdateChain wires the full update handshake:
// SYNC → VERIFY_DEVICE_ID → SEND_BIN_SIZE → SEND_BIN_IN_PACKETS.
func NewUpdateChain(deviceID uint16, ctx *UpdateContext) *Sync {
	stream := &SendBinInPackets{Ctx: ctx}
	size := &SendBinSize{Ctx: ctx, Next: []Command{stream}}
	verify := &VerifyDeviceID{DeviceID: deviceID, Next: []Command{size}}
	return &Sync{Next: []Command{verify}}
}
