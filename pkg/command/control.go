package command

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"github.com/fotakit/bootmon/pkg/packet"
)

// JumpToAddr tells the bootloader to transfer control to an address. The ACK
// payload contract is unspecified upstream; any payload is surfaced raw.
type JumpToAddr struct {
	Address uint32
}

func (c *JumpToAddr) Info() Info {
	return Info{ID: IDJumpToAddr, Mnemonic: fmt.Sprintf("Jump to 0x%08X", c.Address)}
}
func (c *JumpToAddr) GatherInput() error { return nil }
func (c *JumpToAddr) BuildPacket() (packet.Packet, error) {
	payload := make([]byte, 4)
	binary.LittleEndian.PutUint32(payload, c.Address)
	return packet.New(IDJumpToAddr, payload), nil
}
func (c *JumpToAddr) HandleResponse(p packet.Packet) ExecutionResponse {
	resp := NewResponse()
	resp.Success = true
	resp.Data["address"] = fmt.Sprintf("0x%08X", c.Address)
	if len(p.Payload) > 0 {
		resp.Data["payload"] = hex.EncodeToString(p.Payload)
	}
	return resp
}
func (c *JumpToAddr) Successors() []Command { return nil }

// EraseFlash erases the listed sectors, or the whole flash when MassErase is
// set (payload 0xFF 0xFF).
type EraseFlash struct {
	Sectors   []byte
	MassErase bool
}

func (c *EraseFlash) Info() Info {
	if c.MassErase {
		return Info{ID: IDEraseFlash, Mnemonic: "Mass Erase"}
	}
	return Info{ID: IDEraseFlash, Mnemonic: fmt.Sprintf("Erase Sectors %v", c.Sectors)}
}
func (c *EraseFlash) GatherInput() error {
	if !c.MassErase && len(c.Sectors) == 0 {
		return fmt.Errorf("no sectors selected and mass erase not requested")
	}
	return nil
}
func (c *EraseFlash) BuildPacket() (packet.Packet, error) {
	if c.MassErase {
		return packet.New(IDEraseFlash, []byte{0xFF, 0xFF}), nil
	}
	payload := make([]byte, 0, 1+len(c.Sectors))
	payload = append(payload, byte(len(c.Sectors)))
	payload = append(payload, c.Sectors...)
	return packet.New(IDEraseFlash, payload), nil
}
func (c *EraseFlash) HandleResponse(p packet.Packet) ExecutionResponse {
	resp := NewResponse()
	resp.Success = true
	if len(p.Payload) > 0 {
		resp.Data["payload"] = hex.EncodeToString(p.Payload)
	}
	return resp
}
func (c *EraseFlash) Successors() []Command { return nil }
