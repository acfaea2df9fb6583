package fwimage

import (
	"encoding/binary"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testImage builds a deterministic image: a patterned header slot with a
// known version field, followed by a 32-byte application region.
func testImage() []byte {
	img := make([]byte, AppStart+32)
	for i := 0; i < AppStart; i++ {
		img[i] = byte(i % 251)
	}
	copy(img[0:4], []byte{0x03, 0x02, 0x01, 0x00})
	for i := 0; i < 32; i++ {
		img[AppStart+i] = byte(0xA0 + i)
	}
	return img
}

func writeTestImage(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "app.bin")
	require.NoError(t, os.WriteFile(path, testImage(), 0o644))
	return path
}

func TestEncryptCBCMatchesReferenceTool(t *testing.T) {
	// FIPS-197 appendix C.1 block under the signing key, run through the
	// same pipeline as `openssl enc -aes-128-cbc -nosalt` with a zero IV:
	// one data block plus the default PKCS#7 pad block.
	plain, _ := hex.DecodeString("00112233445566778899aabbccddeeff")
	ciphertext, err := encryptCBC(plain)
	require.NoError(t, err)
	assert.Equal(t,
		"69c4e0d86a7b0430d8cdb78070b4c55a9e978e6d16b086570ef794ef97984232",
		hex.EncodeToString(ciphertext))
}

func TestEncryptCBCPadsUnalignedInput(t *testing.T) {
	ciphertext, err := encryptCBC(make([]byte, 20))
	require.NoError(t, err)
	// 20 bytes pad to two blocks.
	assert.Equal(t, 32, len(ciphertext))
}

func TestSignGolden(t *testing.T) {
	// Golden values produced with the reference openssl invocation over
	// this exact image.
	path := writeTestImage(t)
	require.NoError(t, Sign(path))

	signed, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, AppStart+32, len(signed))

	// app_size at 0x0C.
	assert.Equal(t, uint32(32), binary.LittleEndian.Uint32(signed[offAppSize:offAppSize+4]))
	// CBC-MAC tag at 0x10.
	assert.Equal(t, "6bae970b2cdc1493341083973c0f485c",
		hex.EncodeToString(signed[offSignature:offSignature+sigSize]))
	// Application CRC at 0x20.
	assert.Equal(t, uint32(0xAA263C62), binary.LittleEndian.Uint32(signed[offAppCRC:offAppCRC+4]))

	// Everything outside the stamped fields is untouched.
	original := testImage()
	assert.Equal(t, original[0:offAppSize], signed[0:offAppSize])
	assert.Equal(t, original[offAppCRC+4:AppStart], signed[offAppCRC+4:AppStart])
	assert.Equal(t, original[AppStart:], signed[AppStart:])
}

func TestSignWritesSidecars(t *testing.T) {
	path := writeTestImage(t)
	require.NoError(t, Sign(path))
	dir := filepath.Dir(path)

	toSign, err := os.ReadFile(filepath.Join(dir, toSignName))
	require.NoError(t, err)
	// header info field (16 B) + application (32 B).
	assert.Equal(t, 48, len(toSign))

	encrypted, err := os.ReadFile(filepath.Join(dir, encryptedName))
	require.NoError(t, err)
	// 48 bytes plus the PKCS#7 pad block.
	assert.Equal(t, 64, len(encrypted))
}

func TestSignIdempotent(t *testing.T) {
	path := writeTestImage(t)
	require.NoError(t, Sign(path))
	first, err := os.ReadFile(path)
	require.NoError(t, err)

	require.NoError(t, Sign(path))
	second, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestSignRejectsShortImage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "short.bin")
	require.NoError(t, os.WriteFile(path, make([]byte, 0x200), 0o644))
	err := Sign(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "header slot")
}

func TestSignMissingFile(t *testing.T) {
	assert.Error(t, Sign(filepath.Join(t.TempDir(), "absent.bin")))
}
