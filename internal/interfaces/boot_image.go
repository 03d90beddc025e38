// File: internal/interfaces/boot_image.go
package interfaces

// BootImageReader provides access to an Android boot image
type BootImageReader interface {
	// Name returns the product name recorded in the header
	Name() string

	// Cmdline returns the kernel command line, including the extra part
	Cmdline() string

	// PageSize returns the flash page size the image is laid out in
	PageSize() uint32

	// KernelSize returns the size of the kernel in bytes
	KernelSize() uint32

	// RamdiskSize returns the size of the ramdisk in bytes
	RamdiskSize() uint32

	// HeaderVersion returns the header version, 0 for the original layout
	HeaderVersion() uint32

	// ImageSize returns the number of bytes from the header to the end of
	// the ramdisk
	ImageSize() int64

	// Kernel returns the kernel taken from the full image
	Kernel(image []byte) ([]byte, error)

	// Ramdisk returns the ramdisk taken from the full image
	Ramdisk(image []byte) ([]byte, error)
}

// ExtlinuxConfigReader provides access to a parsed extlinux.conf
type ExtlinuxConfigReader interface {
	// DefaultLabel returns the label booted when nothing is chosen
	DefaultLabel() (string, error)

	// LabelNames lists the labels in file order
	LabelNames() []string
}
