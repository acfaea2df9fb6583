package transport

import (
	"fmt"
	"strings"

	"go.bug.st/serial/enumerator"
)

// AutoSelectKeyword auto-selects a port whose USB description contains it,
// case-insensitive. ST-Link virtual COM ports enumerate with "STM" in the
// product string.
const AutoSelectKeyword = "STM"

// PortInfo describes one discovered serial port.
type PortInfo struct {
	Device      string
	Description string
}

func (p PortInfo) String() string {
	if p.Description == "" {
		return p.Device
	}
	return fmt.Sprintf("%s (%s)", p.Device, p.Description)
}

// ListPorts enumerates the serial ports visible to the host, with USB
// product strings where available.
func ListPorts() ([]PortInfo, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, fmt.Errorf("enumerating serial ports: %w", err)
	}
	infos := make([]PortInfo, 0, len(details))
	for _, d := range details {
		info := PortInfo{Device: d.Name}
		if d.IsUSB {
			info.Description = d.Product
		}
		infos = append(infos, info)
	}
	return infos, nil
}

// Match returns the first port whose description contains keyword,
// case-insensitive.
func Match(infos []PortInfo, keyword string) (PortInfo, bool) {
	for _, info := range infos {
		if keyword != "" && strings.Contains(strings.ToLower(info.Description), strings.ToLower(keyword)) {
			return info, true
		}
	}
	return PortInfo{}, false
}
