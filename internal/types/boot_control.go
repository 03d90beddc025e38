package types

// Android A/B bootloader control block (bootloader_control in the Android
// boot_control HAL). The record is 32 bytes, little-endian, packed, and lives
// at BootCtrlOffset inside the misc partition.

const (
	// BootCtrlMagic is "BCAB" read as a little-endian uint32.
	BootCtrlMagic uint32 = 0x42414342
	// BootCtrlVersion is the newest layout version this code understands.
	BootCtrlVersion uint8 = 1

	// BootCtrlSize is the encoded size of the control block.
	BootCtrlSize = 32
	// BootCtrlCRCOffset is the offset of crc32_le; the CRC covers the bytes
	// before it.
	BootCtrlCRCOffset = 28

	// BootCtrlOffset is offsetof(bootloader_message_ab, slot_suffix): the
	// control block follows the 2048-byte bootloader_message.
	BootCtrlOffset = 2048

	// BootCtrlMaxSlots is the size of the on-disk slot_info array.
	BootCtrlMaxSlots = 4
	// BootCtrlDefaultSlots is nb_slot of a freshly reset record.
	BootCtrlDefaultSlots = 2

	// MaxSlotPriority and MaxTriesRemaining are the largest values that fit
	// the priority:4 and tries_remaining:3 bitfields.
	MaxSlotPriority   = 15
	MaxTriesRemaining = 7

	// MiscPartition is the conventional name of the partition holding the
	// control block.
	MiscPartition = "misc"
)

// SlotMetadata is one entry of slot_info.
type SlotMetadata struct {
	Priority        uint8 `json:"priority" yaml:"priority"`
	TriesRemaining  uint8 `json:"tries_remaining" yaml:"tries_remaining"`
	SuccessfulBoot  bool  `json:"successful_boot" yaml:"successful_boot"`
	VerityCorrupted bool  `json:"verity_corrupted" yaml:"verity_corrupted"`
	Reserved        uint8 `json:"-" yaml:"-"`
}

// Bootable reports whether the slot may be selected at all.
func (s SlotMetadata) Bootable() bool {
	return s.TriesRemaining > 0 && !s.VerityCorrupted
}

// BootloaderControl is the decoded control block.
type BootloaderControl struct {
	SlotSuffix             [4]byte                        `json:"-" yaml:"-"`
	Magic                  uint32                         `json:"magic" yaml:"magic"`
	Version                uint8                          `json:"version" yaml:"version"`
	NbSlot                 uint8                          `json:"nb_slot" yaml:"nb_slot"`
	RecoveryTriesRemaining uint8                          `json:"recovery_tries_remaining" yaml:"recovery_tries_remaining"`
	MergeStatus            uint8                          `json:"merge_status" yaml:"merge_status"`
	Padding                uint8                          `json:"-" yaml:"-"` // bits 1-7 of byte 10
	Reserved0              [1]byte                        `json:"-" yaml:"-"`
	SlotInfo               [BootCtrlMaxSlots]SlotMetadata `json:"slot_info" yaml:"slot_info"`
	Reserved1              [8]byte                        `json:"-" yaml:"-"`
	CRC32LE                uint32                         `json:"crc32_le" yaml:"crc32_le"`
}

// SlotName returns the letter used for slot index i ('a', 'b', ...).
func SlotName(i int) byte {
	return byte('a' + i)
}

// SlotIndex converts a slot letter or suffix ("b", "_b") to its index.
func SlotIndex(name string) (int, error) {
	if len(name) == 2 && name[0] == '_' {
		name = name[1:]
	}
	if len(name) != 1 || name[0] < 'a' || name[0] >= 'a'+BootCtrlMaxSlots {
		return -1, ErrInvalid
	}
	return int(name[0] - 'a'), nil
}
