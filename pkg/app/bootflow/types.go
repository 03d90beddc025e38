package bootflow

import (
	"time"

	"github.com/deploymenttheory/go-bootstd/internal/bootstd"
	"github.com/deploymenttheory/go-bootstd/internal/services"
)

// Request represents a bootflow scan or boot request
type Request struct {
	// Label restricts the scan to a bootdev ("mmc1") or uclass ("usb")
	Label      string
	All        bool
	SkipGlobal bool
	NoHunt     bool
	// Boot boots the first bootflow that works instead of listing them
	Boot bool
	// Bootmeths overrides the bootmeth order for this request
	Bootmeths []string
}

// Options converts the request to iterator options
func (r *Request) Options() bootstd.Options {
	return bootstd.Options{
		Label:      r.Label,
		SkipGlobal: r.SkipGlobal,
		All:        r.All && !r.Boot,
		Hunt:       !r.NoHunt,
	}
}

// Response represents scan results
type Response struct {
	Result   *services.ScanResult `json:"result,omitempty" yaml:"result,omitempty"`
	Booted   *bootstd.Summary     `json:"booted,omitempty" yaml:"booted,omitempty"`
	ScanTime time.Duration        `json:"scan_time" yaml:"scan_time"`
}
