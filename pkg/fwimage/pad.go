package fwimage

import (
	"bytes"
	"fmt"
	"log"
	"os"
)

// DefaultPadSize is the flash slot size images are padded to.
const DefaultPadSize = 0x10000

// Pad extends the file at path with 0xFF bytes up to target. 0xFF is the
// erased-flash fill value. Files already at or beyond target are left
// untouched; Pad never truncates.
func Pad(path string, target int) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	if len(raw) >= target {
		log.Printf("%s is already %d bytes (target %d), no padding applied", path, len(raw), target)
		return nil
	}
	padding := bytes.Repeat([]byte{0xFF}, target-len(raw))
	if err := os.WriteFile(path, append(raw, padding...), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	log.Printf("Padded %s: %d -> %d bytes (+%d)", path, len(raw), target, len(padding))
	return nil
}
