// Package bootctrl encodes and decodes the Android A/B bootloader control
// block.
package bootctrl

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"

	"github.com/deploymenttheory/go-bootstd/internal/types"
)

// Decode parses a 32-byte control block. The CRC is not checked; see
// VerifyCRC.
func Decode(data []byte) (*types.BootloaderControl, error) {
	if len(data) < types.BootCtrlSize {
		return nil, fmt.Errorf("data too small for control block: %d bytes: %w", len(data), types.ErrInvalid)
	}
	le := binary.LittleEndian
	c := &types.BootloaderControl{}

	copy(c.SlotSuffix[:], data[0:4])
	c.Magic = le.Uint32(data[4:8])
	c.Version = data[8]

	// packed bitfields nb_slot:3 recovery_tries_remaining:3 merge_status:3;
	// merge_status straddles bits 6-7 of byte 9 and bit 0 of byte 10
	c.NbSlot = data[9] & 0x07
	c.RecoveryTriesRemaining = (data[9] >> 3) & 0x07
	c.MergeStatus = data[9]>>6 | (data[10]&0x01)<<2
	c.Padding = data[10] >> 1
	c.Reserved0[0] = data[11]

	for i := 0; i < types.BootCtrlMaxSlots; i++ {
		c.SlotInfo[i] = decodeSlot(data[12+2*i : 14+2*i])
	}
	copy(c.Reserved1[:], data[20:28])
	c.CRC32LE = le.Uint32(data[types.BootCtrlCRCOffset:types.BootCtrlSize])
	return c, nil
}

func decodeSlot(b []byte) types.SlotMetadata {
	return types.SlotMetadata{
		Priority:        b[0] & 0x0f,
		TriesRemaining:  (b[0] >> 4) & 0x07,
		SuccessfulBoot:  b[0]&0x80 != 0,
		VerityCorrupted: b[1]&0x01 != 0,
		Reserved:        b[1] >> 1,
	}
}

// Encode serialises c, including its CRC32LE field as stored.
func Encode(c *types.BootloaderControl) []byte {
	le := binary.LittleEndian
	data := make([]byte, types.BootCtrlSize)

	copy(data[0:4], c.SlotSuffix[:])
	le.PutUint32(data[4:8], c.Magic)
	data[8] = c.Version
	data[9] = c.NbSlot&0x07 | (c.RecoveryTriesRemaining&0x07)<<3 | (c.MergeStatus&0x03)<<6
	data[10] = (c.MergeStatus>>2)&0x01 | c.Padding<<1
	data[11] = c.Reserved0[0]

	for i, s := range c.SlotInfo {
		encodeSlot(data[12+2*i:14+2*i], s)
	}
	copy(data[20:28], c.Reserved1[:])
	le.PutUint32(data[types.BootCtrlCRCOffset:], c.CRC32LE)
	return data
}

func encodeSlot(b []byte, s types.SlotMetadata) {
	b[0] = s.Priority&0x0f | (s.TriesRemaining&0x07)<<4
	if s.SuccessfulBoot {
		b[0] |= 0x80
	}
	b[1] = s.Reserved << 1
	if s.VerityCorrupted {
		b[1] |= 0x01
	}
}

// ComputeCRC returns the CRC32 (IEEE, as crc32_le) of the bytes preceding
// the CRC field
func ComputeCRC(data []byte) uint32 {
	return crc32.ChecksumIEEE(data[:types.BootCtrlCRCOffset])
}

// VerifyCRC reports whether the stored CRC of an encoded block matches its
// contents
func VerifyCRC(data []byte) bool {
	if len(data) < types.BootCtrlSize {
		return false
	}
	return ComputeCRC(data) == binary.LittleEndian.Uint32(data[types.BootCtrlCRCOffset:types.BootCtrlSize])
}

// Seal recomputes c.CRC32LE and returns the encoded block
func Seal(c *types.BootloaderControl) []byte {
	data := Encode(c)
	c.CRC32LE = ComputeCRC(data)
	binary.LittleEndian.PutUint32(data[types.BootCtrlCRCOffset:], c.CRC32LE)
	return data
}

// Validate checks magic and version
func Validate(c *types.BootloaderControl) error {
	if c.Magic != types.BootCtrlMagic {
		return fmt.Errorf("bad control block magic 0x%08X, want 0x%08X: %w", c.Magic, types.BootCtrlMagic, types.ErrNoData)
	}
	if c.Version > types.BootCtrlVersion {
		return fmt.Errorf("unsupported control block version %d: %w", c.Version, types.ErrNoData)
	}
	return nil
}

// Default returns the record a corrupted block is reset to: slot "a"
// bootable with full priority and tries, every other slot zero. The CRC is
// not set.
func Default() *types.BootloaderControl {
	c := &types.BootloaderControl{
		Magic:   types.BootCtrlMagic,
		Version: types.BootCtrlVersion,
		NbSlot:  types.BootCtrlDefaultSlots,
	}
	c.SlotSuffix[0] = types.SlotName(0)
	c.SlotInfo[0] = types.SlotMetadata{
		Priority:       types.MaxSlotPriority,
		TriesRemaining: types.MaxTriesRemaining,
	}
	return c
}
