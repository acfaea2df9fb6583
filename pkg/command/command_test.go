package command

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fotakit/bootmon/pkg/packet"
)

func ack(payload []byte) packet.Packet {
	return packet.New(packet.ACK, payload)
}

func TestBuildPacketPayloads(t *testing.T) {
	ctx := NewUpdateContextFromBytes(make([]byte, 40))

	testCases := []struct {
		name        string
		cmd         Command
		wantID      byte
		wantPayload []byte
	}{
		{"retransmit", Retransmit{}, IDRetransmit, nil},
		{"bootloader version", GetBootloaderVersion{}, IDGetBootloaderVersion, nil},
		{"app version", GetAppVersion{}, IDGetAppVersion, nil},
		{"chip id", GetChipID{}, IDGetChipID, nil},
		{"rdp level", GetRDPLevel{}, IDGetRDPLevel, nil},
		{"help", GetHelp{}, IDGetHelp, nil},
		{"sync", &Sync{}, IDSync, nil},
		{"verify device id", &VerifyDeviceID{DeviceID: 0x6415}, IDVerifyDeviceID, []byte{0x15, 0x64}},
		{"bin size", &SendBinSize{Ctx: ctx}, IDSendBinSize, []byte{0x28, 0x00, 0x00, 0x00}},
		{"jump", &JumpToAddr{Address: 0x08008000}, IDJumpToAddr, []byte{0x00, 0x80, 0x00, 0x08}},
		{"mass erase", &EraseFlash{MassErase: true}, IDEraseFlash, []byte{0xFF, 0xFF}},
		{"sector erase", &EraseFlash{Sectors: []byte{1, 2, 5}}, IDEraseFlash, []byte{0x03, 0x01, 0x02, 0x05}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			require.NoError(t, tc.cmd.GatherInput())
			pkt, err := tc.cmd.BuildPacket()
			require.NoError(t, err)
			assert.Equal(t, tc.wantID, pkt.ID)
			assert.Equal(t, byte(len(tc.wantPayload)), pkt.Length)
			assert.Equal(t, tc.wantPayload, pkt.Payload)
		})
	}
}

func TestGatherInputDefaultsDeviceID(t *testing.T) {
	c := &VerifyDeviceID{}
	require.NoError(t, c.GatherInput())
	assert.Equal(t, DefaultDeviceID, c.DeviceID)
}

func TestVersionResponses(t *testing.T) {
	for _, cmd := range []Command{GetBootloaderVersion{}, GetAppVersion{}} {
		resp := cmd.HandleResponse(ack([]byte{1, 2, 3}))
		assert.True(t, resp.Success)
		assert.Equal(t, "1.2.3", resp.Data["version"])
		assert.Equal(t, "1", resp.Data["major"])

		short := cmd.HandleResponse(ack([]byte{1, 2}))
		assert.False(t, short.Success)
		assert.Contains(t, short.Data["error"], "3-byte")
	}
}

func TestChipIDResponse(t *testing.T) {
	resp := GetChipID{}.HandleResponse(ack([]byte{0x15, 0x64}))
	assert.True(t, resp.Success)
	assert.Equal(t, "0x6415", resp.Data["chip_id"])

	assert.False(t, GetChipID{}.HandleResponse(ack(nil)).Success)
}

func TestRDPResponse(t *testing.T) {
	resp := GetRDPLevel{}.HandleResponse(ack([]byte{0xAA}))
	assert.True(t, resp.Success)
	assert.Equal(t, "0xAA", resp.Data["rdp_level"])
}

func TestHelpResponse(t *testing.T) {
	resp := GetHelp{}.HandleResponse(ack([]byte{0x03, 0xB1, 0xB4, 0xBC}))
	assert.True(t, resp.Success)
	assert.Equal(t, "3", resp.Data["count"])
	assert.Contains(t, resp.Data["commands"], "0xB1 GET_BOOTLOADER_VERSION")
	assert.Contains(t, resp.Data["commands"], "0xBC ERASE_FLASH")

	undersized := GetHelp{}.HandleResponse(ack([]byte{0x05, 0xB1}))
	assert.False(t, undersized.Success)
}

func TestSendBinSizeResponse(t *testing.T) {
	resp := (&SendBinSize{}).HandleResponse(ack([]byte{0x00, 0x80, 0x00, 0x08, 0x03, 0x00, 0x00, 0x00}))
	assert.True(t, resp.Success)
	assert.Equal(t, "0x08008000", resp.Data["start_address"])
	assert.Equal(t, "3", resp.Data["total_packets"])

	assert.False(t, (&SendBinSize{}).HandleResponse(ack([]byte{0x01})).Success)
}

func TestSendBinInPacketsResponse(t *testing.T) {
	resp := (&SendBinInPackets{}).HandleResponse(ack([]byte{0x00, 0x80, 0x00, 0x08, 0x02, 0x00, 0x00, 0x00}))
	assert.True(t, resp.Success)
	assert.Equal(t, "0x08008000", resp.Data["start_address"])
	assert.Equal(t, "2", resp.Data["current_packet"])
}

func TestUpdateContextChunking(t *testing.T) {
	raw := make([]byte, 40)
	for i := range raw {
		raw[i] = byte(i)
	}
	ctx := NewUpdateContextFromBytes(raw)
	assert.Equal(t, 40, ctx.Size)
	assert.Equal(t, 3, ctx.TotalPackets)

	var sizes []int
	for {
		chunk, ok := ctx.NextChunk()
		if !ok {
			break
		}
		sizes = append(sizes, len(chunk))
	}
	assert.Equal(t, []int{16, 16, 8}, sizes)
	assert.Equal(t, 3, ctx.Sent())

	// The sequence is finite and non-restartable.
	_, ok := ctx.NextChunk()
	assert.False(t, ok)
}

func TestUpdateContextExactMultiple(t *testing.T) {
	ctx := NewUpdateContextFromBytes(make([]byte, 32))
	assert.Equal(t, 2, ctx.TotalPackets)
}

func TestSendBinInPacketsIteration(t *testing.T) {
	ctx := NewUpdateContextFromBytes(make([]byte, 40))
	stream := &SendBinInPackets{Ctx: ctx}

	assert.True(t, stream.More())
	for i := 0; i < 3; i++ {
		pkt, err := stream.BuildPacket()
		require.NoError(t, err)
		assert.Equal(t, IDSendBinInPackets, pkt.ID)
	}
	assert.False(t, stream.More())
	sent, total := stream.Progress()
	assert.Equal(t, 3, sent)
	assert.Equal(t, 3, total)

	_, err := stream.BuildPacket()
	assert.Error(t, err)
}

func TestUpdateChainWiring(t *testing.T) {
	ctx := NewUpdateContextFromBytes(make([]byte, 40))
	var ids []byte
	queue := []Command{NewUpdateChain(0x6415, ctx)}
	for len(queue) > 0 {
		c := queue[0]
		queue = queue[1:]
		ids = append(ids, c.Info().ID)
		queue = append(queue, c.Successors()...)
	}
	assert.Equal(t, []byte{IDSync, IDVerifyDeviceID, IDSendBinSize, IDSendBinInPackets}, ids)
}

func TestEraseFlashGatherInput(t *testing.T) {
	assert.Error(t, (&EraseFlash{}).GatherInput())
	assert.NoError(t, (&EraseFlash{MassErase: true}).GatherInput())
	assert.NoError(t, (&EraseFlash{Sectors: []byte{1}}).GatherInput())
}

func TestErrorCodeName(t *testing.T) {
	assert.Equal(t, "INVALID_CMD", ErrorCodeName(0x01))
	assert.Equal(t, "INVALID_PARAMS", ErrorCodeName(0x02))
	assert.Equal(t, "EXECUTION_FAILED", ErrorCodeName(0x03))
	assert.Equal(t, "FLASH_ERROR", ErrorCodeName(0x04))
	assert.Equal(t, "ADDRESS_ERROR", ErrorCodeName(0x05))
	assert.Equal(t, "INVALID_COMMAND", ErrorCodeName(0x11))
	assert.Equal(t, "UNKNOWN", ErrorCodeName(0x7F))
}

func TestMnemonics(t *testing.T) {
	assert.Equal(t, "SYNC", Mnemonic(IDSync))
	assert.Equal(t, "GET_CID", Mnemonic(IDGetCID))
	assert.Equal(t, "UNKNOWN", Mnemonic(0x00))
}
