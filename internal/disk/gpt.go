// Package disk reads and writes GUID partition tables on block devices.
package disk

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strings"
	"unicode/utf16"

	"github.com/google/uuid"
	"github.com/u-root/u-root/pkg/mount/gpt"

	"github.com/deploymenttheory/go-bootstd/internal/interfaces"
	"github.com/deploymenttheory/go-bootstd/internal/types"
)

const (
	gptEntrySize     = 128
	gptNameLen       = 36 // UTF-16 code units
	mbrSignatureOff  = 510
	mbrPartEntryOff  = 446
	mbrProtectiveGPT = 0xEE

	// AttrLegacyBootable is the "legacy BIOS bootable" attribute bit
	AttrLegacyBootable uint64 = 1 << 2
)

// entryBlocks is the size of one copy of the entry array, in sectors
const entryBlocks = gpt.MaxNPart * gptEntrySize / gpt.BlockSize

// LinuxFilesystemType is the GPT type GUID for Linux filesystem data
var LinuxFilesystemType = uuid.MustParse("0FC63DAF-8483-4772-8E79-3D69D8477DE4")

// Partition describes one GPT entry. Start and Size are in device blocks.
type Partition struct {
	Number     int       `json:"number" yaml:"number"`
	Name       string    `json:"name" yaml:"name"`
	TypeGUID   uuid.UUID `json:"type_guid" yaml:"type_guid"`
	UniqueGUID uuid.UUID `json:"unique_guid" yaml:"unique_guid"`
	Start      uint64    `json:"start" yaml:"start"`
	Size       uint64    `json:"size" yaml:"size"`
	Attributes uint64    `json:"attributes" yaml:"attributes"`
}

// Bootable reports whether the legacy bootable attribute is set
func (p Partition) Bootable() bool {
	return p.Attributes&AttrLegacyBootable != 0
}

// Table is a parsed partition table
type Table struct {
	DiskGUID   uuid.UUID
	BlockSize  uint32
	Partitions []Partition
	// Backup is set when the primary header was unusable and the table was
	// recovered from the copy at the end of the disk
	Backup bool
}

// MaxPart returns the highest partition number in use
func (t *Table) MaxPart() int {
	maxPart := 0
	for _, p := range t.Partitions {
		if p.Number > maxPart {
			maxPart = p.Number
		}
	}
	return maxPart
}

// Get returns partition number n (1-based)
func (t *Table) Get(n int) (Partition, error) {
	for _, p := range t.Partitions {
		if p.Number == n {
			return p, nil
		}
	}
	return Partition{}, fmt.Errorf("partition %d: %w", n, types.ErrNotFound)
}

// Find returns the partition labelled name
func (t *Table) Find(name string) (Partition, error) {
	for _, p := range t.Partitions {
		if p.Name == name {
			return p, nil
		}
	}
	return Partition{}, fmt.Errorf("partition %q: %w", name, types.ErrNotFound)
}

// ReadTable parses the GPT of dev, falling back to the backup header in the
// last sector when the primary is damaged. A device without a GPT returns
// ErrNotFound, a damaged one ErrNoData.
func ReadTable(dev interfaces.BlockDevice) (*Table, error) {
	if dev.BlockSize() != gpt.BlockSize {
		return nil, fmt.Errorf("%s: GPT on %d-byte sectors: %w", dev.Name(), dev.BlockSize(), types.ErrNotSupported)
	}
	if dev.BlockCount() < 3 {
		return nil, fmt.Errorf("%s too small for a partition table: %w", dev.Name(), types.ErrNotFound)
	}

	r := NewPartitionReaderFor(dev, Partition{Size: dev.BlockCount()})
	backup := false
	g, err := gpt.Table(r, gpt.HeaderOff)
	if err != nil {
		bg, berr := gpt.Table(r, int64(dev.BlockCount()-1)*gpt.BlockSize)
		if berr != nil {
			if !hasSignature(r, gpt.HeaderOff) {
				return nil, fmt.Errorf("no GPT on %s: %w", dev.Name(), types.ErrNotFound)
			}
			return nil, fmt.Errorf("GPT on %s: %v: %w", dev.Name(), err, types.ErrNoData)
		}
		g, backup = bg, true
	}

	t := &Table{
		DiskGUID:  fromGUID(g.DiskGUID),
		BlockSize: gpt.BlockSize,
		Backup:    backup,
	}
	for i, e := range g.Parts {
		if e.PartGUID == (gpt.GUID{}) || e.LastLBA < e.FirstLBA {
			continue
		}
		t.Partitions = append(t.Partitions, Partition{
			Number:     i + 1,
			Name:       decodeName(e.Name[:]),
			TypeGUID:   fromGUID(e.PartGUID),
			UniqueGUID: fromGUID(e.UniqueGUID),
			Start:      e.FirstLBA,
			Size:       e.LastLBA - e.FirstLBA + 1,
			Attributes: uint64(e.Attribute),
		})
	}
	return t, nil
}

// WriteTable writes a protective MBR plus primary and backup GPTs
// describing parts to dev. Partition numbers follow slice order; Number
// fields are ignored.
func WriteTable(dev interfaces.BlockDevice, diskGUID uuid.UUID, parts []Partition) error {
	if dev.BlockSize() != gpt.BlockSize {
		return fmt.Errorf("%s: GPT on %d-byte sectors: %w", dev.Name(), dev.BlockSize(), types.ErrNotSupported)
	}
	if len(parts) > gpt.MaxNPart {
		return fmt.Errorf("too many partitions (%d): %w", len(parts), types.ErrTooBig)
	}
	last := dev.BlockCount() - 1
	firstUsable := uint64(2 + entryBlocks)
	if last < 2*firstUsable {
		return fmt.Errorf("%s too small for a partition table: %w", dev.Name(), types.ErrNoSpace)
	}
	lastUsable := last - entryBlocks - 1

	entries := make([]gpt.Part, gpt.MaxNPart)
	for i, p := range parts {
		if p.Start < firstUsable || p.Size == 0 || p.Start+p.Size-1 > lastUsable {
			return fmt.Errorf("partition %q does not fit the usable area: %w", p.Name, types.ErrNoSpace)
		}
		typeGUID := p.TypeGUID
		if typeGUID == uuid.Nil {
			typeGUID = LinuxFilesystemType
		}
		unique := p.UniqueGUID
		if unique == uuid.Nil {
			unique = uuid.New()
		}
		e := &entries[i]
		e.PartGUID = toGUID(typeGUID)
		e.UniqueGUID = toGUID(unique)
		e.FirstLBA = p.Start
		e.LastLBA = p.Start + p.Size - 1
		e.Attribute = gpt.PartAttr(p.Attributes)
		encodeName(e.Name[:], p.Name)
	}

	primary := gpt.Header{
		Signature:  gpt.Signature,
		Revision:   gpt.Revision,
		HeaderSize: gpt.HeaderSize,
		CurrentLBA: 1,
		BackupLBA:  last,
		FirstLBA:   firstUsable,
		LastLBA:    lastUsable,
		DiskGUID:   toGUID(diskGUID),
		PartStart:  2,
		NPart:      gpt.MaxNPart,
		PartSize:   gptEntrySize,
	}
	backup := primary
	backup.CurrentLBA, backup.BackupLBA = last, 1
	backup.PartStart = lastUsable + 1

	pt := &gpt.PartitionTable{
		MasterBootRecord: protectiveMBR(dev.BlockCount()),
		Primary:          &gpt.GPT{Header: primary, Parts: entries},
		Backup:           &gpt.GPT{Header: backup, Parts: entries},
	}
	w := NewPartitionReaderFor(dev, Partition{Size: dev.BlockCount()})
	if err := gpt.Write(w, pt); err != nil {
		return fmt.Errorf("failed to write GPT to %s: %w", dev.Name(), err)
	}
	return nil
}

func protectiveMBR(blocks uint64) *gpt.MBR {
	mbr := &gpt.MBR{}
	pe := mbr[mbrPartEntryOff : mbrPartEntryOff+16]
	pe[4] = mbrProtectiveGPT
	binary.LittleEndian.PutUint32(pe[8:12], 1)
	total := blocks - 1
	if total > 0xffffffff {
		total = 0xffffffff
	}
	binary.LittleEndian.PutUint32(pe[12:16], uint32(total))
	mbr[mbrSignatureOff] = 0x55
	mbr[mbrSignatureOff+1] = 0xAA
	return mbr
}

func hasSignature(r *PartitionReader, off int64) bool {
	sig, err := r.ReadBytes(off, 8)
	return err == nil && binary.LittleEndian.Uint64(sig) == gpt.Signature
}

// fromGUID converts the mixed-endian on-disk GUID to RFC 4122 byte order
func fromGUID(g gpt.GUID) uuid.UUID {
	var u uuid.UUID
	binary.BigEndian.PutUint32(u[0:4], g.L)
	binary.BigEndian.PutUint16(u[4:6], g.W1)
	binary.BigEndian.PutUint16(u[6:8], g.W2)
	copy(u[8:], g.B[:])
	return u
}

func toGUID(u uuid.UUID) gpt.GUID {
	g := gpt.GUID{
		L:  binary.BigEndian.Uint32(u[0:4]),
		W1: binary.BigEndian.Uint16(u[4:6]),
		W2: binary.BigEndian.Uint16(u[6:8]),
	}
	copy(g.B[:], u[8:])
	return g
}

func decodeName(b []byte) string {
	units := make([]uint16, 0, gptNameLen)
	for i := 0; i+1 < len(b); i += 2 {
		u := binary.LittleEndian.Uint16(b[i:])
		if u == 0 {
			break
		}
		units = append(units, u)
	}
	return strings.TrimSpace(string(utf16.Decode(units)))
}

func encodeName(b []byte, name string) {
	units := utf16.Encode([]rune(name))
	if len(units) > gptNameLen {
		units = units[:gptNameLen]
	}
	var buf bytes.Buffer
	for _, u := range units {
		binary.Write(&buf, binary.LittleEndian, u)
	}
	copy(b, buf.Bytes())
}
