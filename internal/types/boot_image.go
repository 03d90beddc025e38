// File: internal/types/boot_image.go
package types

// Android boot image header constants. The version 0 header occupies
// BootImageHeaderSize bytes and opens with BootImageMagic.
const (
	BootImageMagic         = "ANDROID!"
	BootImageMagicSize     = 8
	BootImageNameSize      = 16
	BootImageArgsSize      = 512
	BootImageIDSize        = 32
	BootImageExtraArgsSize = 1024
	BootImageHeaderSize    = 1632
)

// AndroidBootImgHdr is the version 0 Android boot image header, little
// endian on disk. The kernel starts at the first page after the header and
// the ramdisk at the first page after the kernel.
type AndroidBootImgHdr struct {
	Magic       [BootImageMagicSize]byte
	KernelSize  uint32
	KernelAddr  uint32
	RamdiskSize uint32
	RamdiskAddr uint32
	SecondSize  uint32
	SecondAddr  uint32
	TagsAddr    uint32
	PageSize    uint32
	// HeaderVersion was unused before version 1 and reads as zero there
	HeaderVersion uint32
	OSVersion     uint32
	Name          [BootImageNameSize]byte
	Cmdline       [BootImageArgsSize]byte
	ID            [BootImageIDSize]byte
	ExtraCmdline  [BootImageExtraArgsSize]byte
}

// ExtlinuxLabel is one boot entry of an extlinux.conf
type ExtlinuxLabel struct {
	Name      string `json:"name" yaml:"name"`
	Menu      string `json:"menu,omitempty" yaml:"menu,omitempty"`
	Kernel    string `json:"kernel" yaml:"kernel"`
	Initrd    string `json:"initrd,omitempty" yaml:"initrd,omitempty"`
	FDT       string `json:"fdt,omitempty" yaml:"fdt,omitempty"`
	FDTDir    string `json:"fdtdir,omitempty" yaml:"fdtdir,omitempty"`
	Append    string `json:"append,omitempty" yaml:"append,omitempty"`
	Localboot bool   `json:"localboot,omitempty" yaml:"localboot,omitempty"`
}

// ExtlinuxConfig is a parsed extlinux.conf. Timeout is in tenths of a
// second, as written in the file.
type ExtlinuxConfig struct {
	Default string          `json:"default,omitempty" yaml:"default,omitempty"`
	Title   string          `json:"title,omitempty" yaml:"title,omitempty"`
	Timeout int             `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	Labels  []ExtlinuxLabel `json:"labels" yaml:"labels"`
}
