// Package fwimage prepares raw application binaries for the bootloader: it
// stamps the header fields, computes the AES-128-CBC-MAC signature tag and
// the application CRC, and rewrites the image in place.
package fwimage

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/fotakit/bootmon/pkg/crc"
)

// Image layout, little-endian fields. The first AppStart bytes are the
// bootloader header slot; the application region follows.
const (
	AppStart = 0x800

	offAppSize   = 0x0C
	offSignature = 0x10
	sigSize      = 16
	offAppCRC    = 0x20

	infoFieldSize = 0x10
)

// signingKey is the shared AES-128 provisioning key the device verifies the
// signature tag against.
var signingKey = []byte{
	0x00, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07,
	0x08, 0x09, 0x0A, 0x0B, 0x0C, 0x0D, 0x0E, 0x0F,
}

// Sidecar artifact names, written next to the input image.
const (
	toSignName    = "app_to_sign.bin"
	encryptedName = "app_encrypted.bin"
)

// Sign processes the image at path in place:
//
//  1. app_size = len(image) - AppStart, written LE at 0x0C
//  2. the signing buffer header[0x00:0x10] ‖ image[AppStart:] is written to
//     app_to_sign.bin
//  3. the buffer is AES-128-CBC encrypted (zero IV, PKCS#7 padded exactly as
//     the openssl enc default) into app_encrypted.bin
//  4. the last 16 ciphertext bytes — the CBC-MAC tag — land at 0x10
//  5. the CRC-32/MPEG-2 of the application region lands LE at 0x20
//
// Signing is idempotent: a second pass reproduces the same bytes, because
// neither the signing buffer nor the CRC region covers [0x10:0x24].
func Sign(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading image: %w", err)
	}
	if len(raw) < AppStart {
		return fmt.Errorf("image %s is %d bytes, smaller than the %d-byte header slot", path, len(raw), AppStart)
	}
	app := raw[AppStart:]
	log.Printf("Image %s: %d bytes, application region %d bytes", path, len(raw), len(app))

	binary.LittleEndian.PutUint32(raw[offAppSize:offAppSize+4], uint32(len(app)))

	toSign := make([]byte, 0, infoFieldSize+len(app))
	toSign = append(toSign, raw[:infoFieldSize]...)
	toSign = append(toSign, app...)
	dir := filepath.Dir(path)
	if err := os.WriteFile(filepath.Join(dir, toSignName), toSign, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", toSignName, err)
	}

	ciphertext, err := encryptCBC(toSign)
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, encryptedName), ciphertext, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", encryptedName, err)
	}

	tag := ciphertext[len(ciphertext)-sigSize:]
	copy(raw[offSignature:offSignature+sigSize], tag)

	appCRC := crc.Checksum(app)
	binary.LittleEndian.PutUint32(raw[offAppCRC:offAppCRC+4], appCRC)

	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("rewriting image: %w", err)
	}
	log.Printf("CBC-MAC %s, app CRC 0x%08X stamped into %s", hex.EncodeToString(tag), appCRC, path)
	return nil
}

// encryptCBC mirrors `openssl enc -aes-128-cbc -nosalt` with a zero IV,
// including its default PKCS#7 padding: a full pad block is appended when
// the input is already block-aligned. Byte-identical output to the reference
// tool is contractual; the tag is the last ciphertext block.
func encryptCBC(plain []byte) ([]byte, error) {
	block, err := aes.NewCipher(signingKey)
	if err != nil {
		return nil, fmt.Errorf("initializing cipher: %w", err)
	}
	pad := aes.BlockSize - len(plain)%aes.BlockSize
	padded := make([]byte, len(plain)+pad)
	copy(padded, plain)
	for i := len(plain); i < len(padded); i++ {
		padded[i] = byte(pad)
	}
	iv := make([]byte, aes.BlockSize)
	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)
	return ciphertext, nil
}
