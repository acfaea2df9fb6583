package command

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/fotakit/bootmon/pkg/packet"
)

// Version is a 3-byte semantic version as reported by the device.
type Version struct {
	Major byte
	Minor byte
	Patch byte
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// parseVersion fills a response from a 3-byte {major, minor, patch} payload.
func parseVersion(p packet.Packet) ExecutionResponse {
	resp := NewResponse()
	if p.Length != 3 || len(p.Payload) < 3 {
		resp.Data["error"] = fmt.Sprintf("expected 3-byte version payload, got %d", p.Length)
		return resp
	}
	v := Version{Major: p.Payload[0], Minor: p.Payload[1], Patch: p.Payload[2]}
	resp.Success = true
	resp.Data["version"] = v.String()
	resp.Data["major"] = fmt.Sprintf("%d", v.Major)
	resp.Data["minor"] = fmt.Sprintf("%d", v.Minor)
	resp.Data["patch"] = fmt.Sprintf("%d", v.Patch)
	return resp
}

// GetBootloaderVersion reads the running bootloader's version.
type GetBootloaderVersion struct{}

func (GetBootloaderVersion) Info() Info {
	return Info{ID: IDGetBootloaderVersion, Mnemonic: "Get Bootloader Version"}
}
func (GetBootloaderVersion) GatherInput() error { return nil }
func (GetBootloaderVersion) BuildPacket() (packet.Packet, error) {
	return packet.New(IDGetBootloaderVersion, nil), nil
}
func (GetBootloaderVersion) HandleResponse(p packet.Packet) ExecutionResponse {
	return parseVersion(p)
}
func (GetBootloaderVersion) Successors() []Command { return nil }

// GetAppVersion reads the installed application's version.
type GetAppVersion struct{}

func (GetAppVersion) Info() Info {
	return Info{ID: IDGetAppVersion, Mnemonic: "Get App Version"}
}
func (GetAppVersion) GatherInput() error { return nil }
func (GetAppVersion) BuildPacket() (packet.Packet, error) {
	return packet.New(IDGetAppVersion, nil), nil
}
func (GetAppVersion) HandleResponse(p packet.Packet) ExecutionResponse {
	return parseVersion(p)
}
func (GetAppVersion) Successors() []Command { return nil }

// GetChipID reads the 16-bit chip identity.
type GetChipID struct{}

func (GetChipID) Info() Info {
	return Info{ID: IDGetChipID, Mnemonic: "Get Chip ID"}
}
func (GetChipID) GatherInput() error { return nil }
func (GetChipID) BuildPacket() (packet.Packet, error) {
	return packet.New(IDGetChipID, nil), nil
}
func (GetChipID) HandleResponse(p packet.Packet) ExecutionResponse {
	resp := NewResponse()
	if len(p.Payload) < 2 {
		resp.Data["error"] = fmt.Sprintf("expected 2-byte chip id payload, got %d", p.Length)
		return resp
	}
	resp.Success = true
	resp.Data["chip_id"] = fmt.Sprintf("0x%04X", binary.LittleEndian.Uint16(p.Payload[:2]))
	return resp
}
func (GetChipID) Successors() []Command { return nil }

// GetRDPLevel reads the flash read-protection level byte.
type GetRDPLevel struct{}

func (GetRDPLevel) Info() Info {
	return Info{ID: IDGetRDPLevel, Mnemonic: "Get Read Protection Level"}
}
func (GetRDPLevel) GatherInput() error { return nil }
func (GetRDPLevel) BuildPacket() (packet.Packet, error) {
	return packet.New(IDGetRDPLevel, nil), nil
}
func (GetRDPLevel) HandleResponse(p packet.Packet) ExecutionResponse {
	resp := NewResponse()
	if len(p.Payload) < 1 {
		resp.Data["error"] = "expected 1-byte RDP payload"
		return resp
	}
	resp.Success = true
	resp.Data["rdp_level"] = fmt.Sprintf("0x%02X", p.Payload[0])
	return resp
}
func (GetRDPLevel) Successors() []Command { return nil }

// GetHelp asks the bootloader which commands it supports. The ACK payload is
// a count followed by that many command ids.
type GetHelp struct{}

func (GetHelp) Info() Info {
	return Info{ID: IDGetHelp, Mnemonic: "Get Supported Commands"}
}
func (GetHelp) GatherInput() error { return nil }
func (GetHelp) BuildPacket() (packet.Packet, error) {
	return packet.New(IDGetHelp, nil), nil
}
func (GetHelp) HandleResponse(p packet.Packet) ExecutionResponse {
	resp := NewResponse()
	if len(p.Payload) < 1 {
		resp.Data["error"] = "empty GET_HELP payload"
		return resp
	}
	count := int(p.Payload[0])
	ids := p.Payload[1:]
	if len(ids) < count {
		resp.Data["error"] = fmt.Sprintf("payload declares %d command ids, carries %d", count, len(ids))
		return resp
	}
	names := make([]string, 0, count)
	for _, id := range ids[:count] {
		names = append(names, fmt.Sprintf("0x%02X %s", id, Mnemonic(id)))
	}
	resp.Success = true
	resp.Data["count"] = fmt.Sprintf("%d", count)
	resp.Data["commands"] = strings.Join(names, ", ")
	return resp
}
func (GetHelp) Successors() []Command { return nil }

// Retransmit asks the device to resend its last frame after a CRC failure on
// the host side.
type Retransmit struct{}

func (Retransmit) Info() Info {
	return Info{ID: IDRetransmit, Mnemonic: "Retransmit"}
}
func (Retransmit) GatherInput() error { return nil }
func (Retransmit) BuildPacket() (packet.Packet, error) {
	return packet.New(IDRetransmit, nil), nil
}
func (Retransmit) HandleResponse(p packet.Packet) ExecutionResponse {
	resp := NewResponse()
	resp.Success = true
	if len(p.Payload) > 0 {
		resp.Data["payload"] = hex.EncodeToString(p.Payload)
	}
	return resp
}
func (Retransmit) Successors() []Command { return nil }
