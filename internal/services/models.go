package services

import (
	"github.com/deploymenttheory/go-bootstd/internal/bootstd"
	"github.com/deploymenttheory/go-bootstd/internal/types"
)

// StorageDevice is one device found by a storage sweep
type StorageDevice struct {
	Label      string             `json:"label" yaml:"label"`
	Class      string             `json:"class" yaml:"class"`
	Slot       int                `json:"slot" yaml:"slot"`
	Type       types.ExternalType `json:"type" yaml:"type"`
	BlockCount uint64             `json:"block_count" yaml:"block_count"`
	BlockSize  uint32             `json:"block_size" yaml:"block_size"`
	// Bootdev names the bootdev bound to the device, if any
	Bootdev string `json:"bootdev,omitempty" yaml:"bootdev,omitempty"`
}

// Size returns the device capacity in bytes
func (d StorageDevice) Size() uint64 {
	return d.BlockCount * uint64(d.BlockSize)
}

// BootdevInfo describes a bound bootdev
type BootdevInfo struct {
	Seq      int    `json:"seq" yaml:"seq"`
	Name     string `json:"name" yaml:"name"`
	UClass   string `json:"uclass" yaml:"uclass"`
	Priority string `json:"priority" yaml:"priority"`
}

// HunterInfo describes a registered hunter
type HunterInfo struct {
	UClass   string `json:"uclass" yaml:"uclass"`
	Priority string `json:"priority" yaml:"priority"`
	Hunted   bool   `json:"hunted" yaml:"hunted"`
}

// BootmethInfo describes a registered bootmeth. Order is its position in
// the effective scan order, -1 when an explicit order leaves it out.
type BootmethInfo struct {
	Order  int    `json:"order" yaml:"order"`
	Name   string `json:"name" yaml:"name"`
	Global bool   `json:"global" yaml:"global"`
}

// SlotReport is the decoded A/B control block of a device
type SlotReport struct {
	Bootdev string                   `json:"bootdev" yaml:"bootdev"`
	CRCOK   bool                     `json:"crc_ok" yaml:"crc_ok"`
	Control *types.BootloaderControl `json:"control" yaml:"control"`
}

// ScanResult is the outcome of a bootflow scan
type ScanResult struct {
	Bootflows []bootstd.Summary `json:"bootflows" yaml:"bootflows"`
	Found     int               `json:"found" yaml:"found"`
	Failed    int               `json:"failed" yaml:"failed"`
}

// NewScanResult summarises flows
func NewScanResult(flows []*bootstd.Bootflow) *ScanResult {
	r := &ScanResult{Bootflows: make([]bootstd.Summary, 0, len(flows))}
	for _, b := range flows {
		r.Bootflows = append(r.Bootflows, b.Summarize())
		if b.Err != nil {
			r.Failed++
		} else {
			r.Found++
		}
	}
	return r
}
