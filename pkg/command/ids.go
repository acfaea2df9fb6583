package command

// Wire command ids. The device dispatches on the numeric values, so they
// must be preserved bit-exactly.
const (
	IDRetransmit           byte = 0xB0
	IDGetBootloaderVersion byte = 0xB1
	IDGetAppVersion        byte = 0xB2
	IDGetChipID            byte = 0xB3
	IDSync                 byte = 0xB4
	IDVerifyDeviceID       byte = 0xB5
	IDSendBinSize          byte = 0xB6
	IDSendBinInPackets     byte = 0xB7
	IDGetHelp              byte = 0xB8
	IDGetCID               byte = 0xB9
	IDGetRDPLevel          byte = 0xBA
	IDJumpToAddr           byte = 0xBB
	IDEraseFlash           byte = 0xBC
)

var mnemonics = map[byte]string{
	IDRetransmit:           "RETRANSMIT",
	IDGetBootloaderVersion: "GET_BOOTLOADER_VERSION",
	IDGetAppVersion:        "GET_APP_VERSION",
	IDGetChipID:            "GET_CHIP_ID",
	IDSync:                 "SYNC",
	IDVerifyDeviceID:       "VERIFY_DEVICE_ID",
	IDSendBinSize:          "SEND_BIN_SIZE",
	IDSendBinInPackets:     "SEND_BIN_IN_PACKETS",
	IDGetHelp:              "GET_HELP",
	IDGetCID:               "GET_CID",
	IDGetRDPLevel:          "GET_RDP_LVL",
	IDJumpToAddr:           "JMP_TO_ADDR",
	IDEraseFlash:           "ERASE_FLASH",
}

// Mnemonic returns the human-readable name of a wire command id.
func Mnemonic(id byte) string {
	if m, ok := mnemonics[id]; ok {
		return m
	}
	return "UNKNOWN"
}

// NACK error codes, carried in the first payload byte of a 0xE1 reply.
// 0x11 is INVALID_COMMAND from a second, alternate error-code enum; both
// sets are decoded and the device remains authoritative for the mapping.
const (
	ErrCodeInvalidCmd      byte = 0x01
	ErrCodeInvalidParams   byte = 0x02
	ErrCodeExecutionFailed byte = 0x03
	ErrCodeFlashError      byte = 0x04
	ErrCodeAddressError    byte = 0x05
	ErrCodeInvalidCommand  byte = 0x11
)

// ErrorCodeName renders a NACK error code for logs and operator output.
func ErrorCodeName(code byte) string {
	switch code {
	case ErrCodeInvalidCmd:
		return "INVALID_CMD"
	case ErrCodeInvalidParams:
		return "INVALID_PARAMS"
	case ErrCodeExecutionFailed:
		return "EXECUTION_FAILED"
	case ErrCodeFlashError:
		return "FLASH_ERROR"
	case ErrCodeAddressError:
		return "ADDRESS_ERROR"
	case ErrCodeInvalidCommand:
		return "INVALID_COMMAND"
	}
	return "UNKNOWN"
}
