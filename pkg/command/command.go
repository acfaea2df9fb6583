// Package command declares the bootloader command set: the wire ids, the
// outbound payload of each command, how its ACK payload parses, and which
// command follows it on success. The firmware update handshake is a directed
// chain of these commands.
package command

import (
	"fmt"

	"github.com/fotakit/bootmon/pkg/packet"
)

// ExecutionResponse is the host-side outcome of one command exchange:
// a success flag plus the fields the response handler parsed.
type ExecutionResponse struct {
	Success bool
	Data    map[string]string
}

// NewResponse returns an empty failure response ready to be filled in.
func NewResponse() ExecutionResponse {
	return ExecutionResponse{Data: make(map[string]string)}
}

// Info identifies a command for menus and logs.
type Info struct {
	ID       byte
	Mnemonic string
}

func (i Info) String() string {
	return fmt.Sprintf("0x%02X %s", i.ID, i.Mnemonic)
}

// Command is one bootloader request the host can issue.
type Command interface {
	Info() Info
	// GatherInput acquires any operator-supplied operand before BuildPacket
	// runs. Unattended flows configure operands up front and make this a
	// no-op.
	GatherInput() error
	// BuildPacket constructs the outbound packet for the next exchange.
	BuildPacket() (packet.Packet, error)
	// HandleResponse parses a validated ACK packet into named fields.
	HandleResponse(p packet.Packet) ExecutionResponse
	// Successors returns the commands that continue the chain on success.
	Successors() []Command
}

// Iterative is implemented by commands that stream multiple frames by
// repeating their own exchange instead of recursing through successors.
type Iterative interface {
	Command
	// More reports whether another frame remains after a successful exchange.
	More() bool
	// Progress returns frames sent so far and the total frame count.
	Progress() (sent, total int)
}
