package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatch(t *testing.T) {
	ports := []PortInfo{
		{Device: "/dev/ttyS0"},
		{Device: "/dev/ttyUSB0", Description: "FTDI FT232R"},
		{Device: "/dev/ttyACM0", Description: "STMicroelectronics STLink Virtual COM Port"},
	}

	info, ok := Match(ports, "stm")
	assert.True(t, ok)
	assert.Equal(t, "/dev/ttyACM0", info.Device)

	info, ok = Match(ports, AutoSelectKeyword)
	assert.True(t, ok)
	assert.Equal(t, "/dev/ttyACM0", info.Device)

	_, ok = Match(ports, "CP210")
	assert.False(t, ok)

	// An empty keyword never auto-selects.
	_, ok = Match(ports, "")
	assert.False(t, ok)
}

func TestPortInfoString(t *testing.T) {
	assert.Equal(t, "/dev/ttyS0", PortInfo{Device: "/dev/ttyS0"}.String())
	assert.Equal(t, "/dev/ttyACM0 (STLink)", PortInfo{Device: "/dev/ttyACM0", Description: "STLink"}.String())
}
