package main

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/deploymenttheory/go-bootstd/internal/device"
	"github.com/deploymenttheory/go-bootstd/internal/disk"
	"github.com/deploymenttheory/go-bootstd/internal/parsers/bootimg"
)

const (
	blockSize  = 512
	diskBlocks = 16384 // 8 MiB
	rootfsSize = "4M"
)

// layout of mmc0.img, in blocks
var partitions = []disk.Partition{
	{Name: "misc", Start: 34, Size: 16},
	{Name: "boot_a", Start: 64, Size: 2048},
	{Name: "boot_b", Start: 2112, Size: 2048},
	{Name: "rootfs", Start: 4160, Size: 8192, TypeGUID: disk.LinuxFilesystemType},
}

const extlinuxConf = `menu title Test board
default linux
timeout 30
label linux
	menu label Test Linux
	kernel /vmlinuz
	append console=ttyS0 root=/dev/mmcblk0p4 rw
`

// writeTree creates the /boot tree shared by the host directory and the
// ext4 root filesystem
func writeTree(root string) error {
	if err := os.MkdirAll(filepath.Join(root, "boot", "extlinux"), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(root, "boot", "extlinux", "extlinux.conf"), []byte(extlinuxConf), 0o644); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(root, "boot", "vmlinuz"), []byte("not really a kernel\n"), 0o644)
}

// makeExt4 builds an ext4 image of tree with mke2fs. It returns nil data
// when the tool is not installed.
func makeExt4(tree, out string) ([]byte, error) {
	if _, err := exec.LookPath("mkfs.ext4"); err != nil {
		return nil, nil
	}
	cmd := exec.Command("mkfs.ext4", "-q", "-F", "-d", tree, out, rootfsSize)
	if output, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("mkfs.ext4 failed: %w\nOutput: %s", err, string(output))
	}
	return os.ReadFile(out)
}

func makeDisk(dir, tree string) (string, error) {
	path := filepath.Join(dir, "mmc0.img")
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	if err := f.Truncate(diskBlocks * blockSize); err != nil {
		f.Close()
		return "", err
	}
	f.Close()

	dev, err := device.OpenImage("mmc0", device.ImageConfig{Path: path, BlockSize: blockSize})
	if err != nil {
		return "", err
	}
	defer dev.Close()

	if err := disk.WriteTable(dev, uuid.New(), partitions); err != nil {
		return "", fmt.Errorf("failed to write GPT: %w", err)
	}
	fmt.Printf("✓ GPT written: %d partitions\n", len(partitions))

	for i, slot := range []string{"a", "b"} {
		img := bootimg.Build("test-"+slot, "console=ttyS0", 2048,
			[]byte(strings.Repeat("K", 64<<10)), []byte("ramdisk-"+slot))
		r, err := disk.NewPartitionReader(dev, i+2)
		if err != nil {
			return "", err
		}
		if _, err := r.WriteAt(img, 0); err != nil {
			return "", fmt.Errorf("failed to write boot_%s: %w", slot, err)
		}
		fmt.Printf("✓ boot_%s: %d byte boot image\n", slot, len(img))
	}

	fsImage, err := makeExt4(tree, filepath.Join(dir, "rootfs.ext4"))
	if err != nil {
		return "", err
	}
	if fsImage == nil {
		fmt.Println("- mkfs.ext4 not found, rootfs left empty")
		return path, nil
	}
	r, err := disk.NewPartitionReader(dev, 4)
	if err != nil {
		return "", err
	}
	if _, err := r.WriteAt(fsImage, 0); err != nil {
		return "", fmt.Errorf("failed to write rootfs: %w", err)
	}
	os.Remove(filepath.Join(dir, "rootfs.ext4"))
	fmt.Printf("✓ rootfs: ext4 with /boot/extlinux\n")
	return path, nil
}

func main() {
	fmt.Println("╔════════════════════════════════════════════════════════╗")
	fmt.Println("║              bootstd test board generator              ║")
	fmt.Println("╚════════════════════════════════════════════════════════╝")
	fmt.Println()

	dir := "testboard"
	if len(os.Args) > 1 {
		dir = os.Args[1]
	}
	if abs, err := filepath.Abs(dir); err == nil {
		dir = abs
	}

	hostRoot := filepath.Join(dir, "host")
	if err := writeTree(hostRoot); err != nil {
		fmt.Printf("ERROR: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("✓ host directory: %s\n", hostRoot)

	imgPath, err := makeDisk(dir, hostRoot)
	if err != nil {
		fmt.Printf("ERROR: %v\n", err)
		os.Exit(1)
	}

	config := device.BoardConfig{
		Storage: map[string]device.StorageGroupConfig{
			"mmc": {MaxDevices: 2, Devices: []device.ImageConfig{{Slot: 0, Path: imgPath, BlockSize: blockSize}}},
		},
		Host:     []device.HostConfig{{Name: "host0", Root: hostRoot}},
		EFIArch:  "x64",
		Executor: "dry-run",
	}
	data, err := yaml.Marshal(&config)
	if err != nil {
		fmt.Printf("ERROR: %v\n", err)
		os.Exit(1)
	}
	configPath := filepath.Join(dir, "bootstd.yaml")
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		fmt.Printf("ERROR: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("✓ config: %s\n", configPath)

	fmt.Println()
	fmt.Printf("Try: bootstd -c %s bootflow scan -a\n", configPath)
}
