// Package bootstd finds something to boot. Bootdevs supply media, bootmeths
// know how to recognise an OS on them, and an Iter walks every combination
// in a fixed order producing Bootflows.
package bootstd

import (
	"fmt"

	"github.com/deploymenttheory/go-bootstd/internal/fs"
	"github.com/deploymenttheory/go-bootstd/internal/interfaces"
)

// BootflowState tracks how far a bootflow has been resolved
type BootflowState int

const (
	// StateBase is a freshly reset bootflow
	StateBase BootflowState = iota
	// StateMedia means the bootdev found its media
	StateMedia
	// StatePart means a partition was located
	StatePart
	// StateFS means a filesystem was mounted on the partition
	StateFS
	// StateFile means a candidate file was found and its size is known
	StateFile
	// StateReady means the file content is loaded in Buf
	StateReady

	numStates
)

var stateNames = [numStates]string{"base", "media", "part", "fs", "file", "ready"}

func (s BootflowState) String() string {
	if s < 0 || s >= numStates {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

// MarshalText renders the state by name in JSON and YAML output
func (s BootflowState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Bootflow is one way of booting: a bootmeth applied to a bootdev, or a
// global bootmeth on its own
type Bootflow struct {
	Dev    Bootdev
	Method Bootmeth
	State  BootflowState
	// Part is the partition number, 0 for the whole device
	Part int
	Name string
	// Subdir is the directory prefix the bootmeth file was found under
	Subdir string
	FName  string
	// Buf holds Size bytes of file content followed by a NUL
	Buf    []byte
	Size   int64
	FSType string
	BlkDev interfaces.BlockDevice
	Source fs.Source
	// Slot is the A/B slot letter for Android bootflows
	Slot   string
	OSName string
	Err    error
}

// Content returns the loaded file without the trailing NUL
func (b *Bootflow) Content() []byte {
	if int64(len(b.Buf)) < b.Size {
		return b.Buf
	}
	return b.Buf[:b.Size]
}

// Summary is the printable form of a bootflow
type Summary struct {
	Name     string `json:"name" yaml:"name"`
	Bootdev  string `json:"bootdev,omitempty" yaml:"bootdev,omitempty"`
	Bootmeth string `json:"bootmeth" yaml:"bootmeth"`
	State    string `json:"state" yaml:"state"`
	Part     int    `json:"part" yaml:"part"`
	FSType   string `json:"fs_type,omitempty" yaml:"fs_type,omitempty"`
	File     string `json:"file,omitempty" yaml:"file,omitempty"`
	Size     int64  `json:"size" yaml:"size"`
	Slot     string `json:"slot,omitempty" yaml:"slot,omitempty"`
	OS       string `json:"os,omitempty" yaml:"os,omitempty"`
	Error    string `json:"error,omitempty" yaml:"error,omitempty"`
}

// Summarize returns the printable form of b
func (b *Bootflow) Summarize() Summary {
	s := Summary{
		Name:   b.Name,
		State:  b.State.String(),
		Part:   b.Part,
		FSType: b.FSType,
		File:   b.FName,
		Size:   b.Size,
		Slot:   b.Slot,
		OS:     b.OSName,
	}
	if b.Dev != nil {
		s.Bootdev = b.Dev.Name()
	}
	if b.Method != nil {
		s.Bootmeth = b.Method.Name()
	}
	if b.Err != nil {
		s.Error = b.Err.Error()
	}
	return s
}
