// Package session drives commands over the serial link: one outstanding
// exchange at a time, a successor walk on success, and hard stops on any
// failure. It also tracks the per-session update state machine.
package session

import (
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/fotakit/bootmon/pkg/command"
	"github.com/fotakit/bootmon/pkg/packet"
)

// Transport is the byte-level serial contract the engine drives. The session
// owns the port for its lifetime; nothing else may touch it concurrently.
type Transport interface {
	packet.ByteReader
	WriteAll(data []byte) error
	ResetInput() error
	ResetOutput() error
}

// Reporter receives update-flow progress. Implementations must tolerate
// being called from the exchange path.
type Reporter interface {
	ReportState(state string)
	ReportProgress(sent, total int)
}

// ErrRetransmitRequested is returned when the device answers 0xE2: the last
// host frame failed its CRC check on the device. The engine never resends
// automatically; the caller decides.
var ErrRetransmitRequested = errors.New("session: device requested retransmit")

// NackError is a device NACK reply with its decoded error code.
type NackError struct {
	Code byte
}

func (e *NackError) Error() string {
	return fmt.Sprintf("session: device NACK: %s (0x%02X)", command.ErrorCodeName(e.Code), e.Code)
}

// UnexpectedIDError is a valid frame whose id is none of ACK, NACK or
// RETRANSMIT.
type UnexpectedIDError struct {
	ID byte
}

func (e *UnexpectedIDError) Error() string {
	return fmt.Sprintf("session: unexpected response id 0x%02X", e.ID)
}

// State is the per-session update flow position.
type State int

const (
	StateIdle State = iota
	StateSynced
	StateVerified
	StateSized
	StateStreaming
	StateDone
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSynced:
		return "synced"
	case StateVerified:
		return "verified"
	case StateSized:
		return "sized"
	case StateStreaming:
		return "streaming"
	case StateDone:
		return "done"
	}
	return "unknown"
}

// Session executes commands against one open port.
type Session struct {
	port     Transport
	timeout  time.Duration
	reporter Reporter
	state    State
}

// New wraps an open transport. timeout is the per-byte receive deadline.
func New(t Transport, timeout time.Duration) *Session {
	return &Session{port: t, timeout: timeout, state: StateIdle}
}

// SetReporter attaches an optional progress reporter.
func (s *Session) SetReporter(r Reporter) {
	s.reporter = r
}

// State returns the current update-flow state.
func (s *Session) State() State {
	return s.state
}

// Execute runs cmd and then walks its successor chain. Iterative commands
// repeat their own exchange until drained before the walk continues. The
// first failure of any kind stops everything and resets the flow to idle;
// in particular no further streaming frame is sent after a failed exchange.
func (s *Session) Execute(cmd command.Command) (command.ExecutionResponse, error) {
	queue := []command.Command{cmd}
	var resp command.ExecutionResponse
	for len(queue) > 0 {
		c := queue[0]
		queue = queue[1:]
		log.Printf("Executing %s", c.Info())

		var err error
		resp, err = s.exchange(c)
		if err != nil || !resp.Success {
			s.setState(StateIdle)
			return resp, err
		}
		it, iterative := c.(command.Iterative)
		s.advance(c, iterative)

		if iterative {
			start := time.Now()
			for it.More() {
				resp, err = s.exchange(c)
				if err != nil || !resp.Success {
					s.setState(StateIdle)
					return resp, err
				}
				s.advance(c, true)
			}
			sent, total := it.Progress()
			log.Printf("Streamed %d/%d packets in %s", sent, total, time.Since(start).Round(time.Millisecond))
		}
		queue = append(queue, c.Successors()...)
	}
	return resp, nil
}

// exchange performs one request/response round trip: build, encode, reset
// both buffers, write, decode, dispatch.
func (s *Session) exchange(cmd command.Command) (command.ExecutionResponse, error) {
	resp := command.NewResponse()
	if err := cmd.GatherInput(); err != nil {
		return resp, fmt.Errorf("gathering input for %s: %w", cmd.Info().Mnemonic, err)
	}
	pkt, err := cmd.BuildPacket()
	if err != nil {
		return resp, fmt.Errorf("building %s packet: %w", cmd.Info().Mnemonic, err)
	}
	frame := pkt.Encode()

	if err := s.port.ResetInput(); err != nil {
		return resp, fmt.Errorf("resetting input buffer: %w", err)
	}
	if err := s.port.ResetOutput(); err != nil {
		return resp, fmt.Errorf("resetting output buffer: %w", err)
	}

	log.Printf("TX %s: %s", pkt, hex.EncodeToString(frame))
	if err := s.port.WriteAll(frame); err != nil {
		return resp, fmt.Errorf("writing frame: %w", err)
	}

	reply, err := packet.Decode(s.port, s.timeout)
	if err != nil {
		// Timeout, malformed or CRC failure: the exchange fails with no
		// retry at this layer.
		log.Printf("RX error: %v", err)
		return resp, err
	}
	log.Printf("RX %s: payload %s", reply, hex.EncodeToString(reply.Payload))

	switch reply.ID {
	case packet.ACK:
		return cmd.HandleResponse(reply), nil
	case packet.NACK:
		code := byte(0xFF)
		if len(reply.Payload) > 0 {
			code = reply.Payload[0]
		}
		log.Printf("NACK received: %s (0x%02X)", command.ErrorCodeName(code), code)
		return resp, &NackError{Code: code}
	case packet.Retransmit:
		return resp, ErrRetransmitRequested
	default:
		return resp, &UnexpectedIDError{ID: reply.ID}
	}
}

// advance moves the update state machine after a successful exchange.
// Commands outside the update flow leave the state untouched.
func (s *Session) advance(cmd command.Command, iterative bool) {
	switch cmd.Info().ID {
	case command.IDSync:
		s.setState(StateSynced)
	case command.IDVerifyDeviceID:
		s.setState(StateVerified)
	case command.IDSendBinSize:
		s.setState(StateSized)
	case command.IDSendBinInPackets:
		if it, ok := cmd.(command.Iterative); ok && iterative {
			sent, total := it.Progress()
			if s.reporter != nil {
				s.reporter.ReportProgress(sent, total)
			}
			if sent >= total {
				s.setState(StateDone)
			} else {
				s.setState(StateStreaming)
			}
		}
	}
}

func (s *Session) setState(next State) {
	if s.state == next {
		return
	}
	s.state = next
	log.Printf("Update state: %s", next)
	if s.reporter != nil {
		s.reporter.ReportState(next.String())
	}
}
