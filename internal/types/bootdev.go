package types

import "fmt"

// BootdevPriority orders bootdevs for scanning. A smaller value scans first.
type BootdevPriority int

const (
	PrioInternalFast BootdevPriority = iota
	PrioInternalSlow
	PrioScanFast
	PrioScanSlow
	PrioNetBase
	PrioNetFallback
	PrioSystem

	// NumBootdevPriorities is the number of priority tiers.
	NumBootdevPriorities
)

var prioNames = [NumBootdevPriorities]string{
	"internal-fast",
	"internal-slow",
	"scan-fast",
	"scan-slow",
	"net-base",
	"net-fallback",
	"system",
}

func (p BootdevPriority) String() string {
	if p < 0 || p >= NumBootdevPriorities {
		return fmt.Sprintf("prio(%d)", int(p))
	}
	return fmt.Sprintf("%d_%s", int(p), prioNames[p])
}

// ClassPriority returns the scan tier used for block bootdevs of class c.
func ClassPriority(c StorageClass) BootdevPriority {
	switch c {
	case ClassMMC:
		return PrioInternalFast
	case ClassIDE, ClassSCSI, ClassSATA:
		return PrioInternalSlow
	case ClassUSB:
		return PrioScanSlow
	}
	return PrioSystem
}
