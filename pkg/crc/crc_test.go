package crc

import (
	"strconv"
	"testing"
)

func TestChecksum(t *testing.T) {
	// Values computed with the STM32 CRC peripheral algorithm; the
	// "123456789" entry is the canonical CRC-32/MPEG-2 check value.
	testCases := []struct {
		data []byte
		want uint32
	}{
		{nil, 0xFFFFFFFF},
		{[]byte{}, 0xFFFFFFFF},
		{[]byte{0x00}, 0x4E08BFB4},
		{[]byte("123456789"), 0x0376E6E7},
		{[]byte{0xB1, 0x00}, 0x60D0D00C},
		{[]byte{0xB3, 0x00}, 0xC0224E03},
		{[]byte{0xB5, 0x02, 0x15, 0x64}, 0xE7FBCFA5},
		{[]byte{0xB6, 0x04, 0x28, 0x00, 0x00, 0x00}, 0x28B5B727},
		{[]byte{0xE0, 0x03, 0x01, 0x02, 0x03}, 0x833519EE},
		{[]byte{0xE0, 0x08, 0x00, 0x80, 0x00, 0x08, 0x03, 0x00, 0x00, 0x00}, 0x8D3DCD47},
	}
	for i, tc := range testCases {
		t.Run(strconv.Itoa(i), func(t *testing.T) {
			if got := Checksum(tc.data); got != tc.want {
				t.Errorf("Checksum(%#v) = 0x%08X; want 0x%08X", tc.data, got, tc.want)
			}
		})
	}
}

func TestChecksumIncrementalIndependence(t *testing.T) {
	// The checksum is a pure function of its input.
	data := []byte{0xB7, 0x10, 0xDE, 0xAD, 0xBE, 0xEF}
	first := Checksum(data)
	for i := 0; i < 3; i++ {
		if got := Checksum(data); got != first {
			t.Fatalf("Checksum not deterministic: 0x%08X vs 0x%08X", got, first)
		}
	}
}
