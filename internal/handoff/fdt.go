package handoff

import (
	"bytes"
	"fmt"

	"github.com/u-root/u-root/pkg/dt"

	"github.com/deploymenttheory/go-bootstd/internal/types"
)

// FixupBootargs sets /chosen/bootargs of the flattened device tree dtb to
// cmdline, creating the chosen node when the tree has none
func FixupBootargs(dtb []byte, cmdline string) ([]byte, error) {
	fdt, err := dt.ReadFDT(bytes.NewReader(dtb))
	if err != nil {
		return nil, fmt.Errorf("failed to read device tree: %w", err)
	}
	if fdt.RootNode == nil {
		return nil, fmt.Errorf("device tree has no root node: %w", types.ErrNoData)
	}

	bootargs := dt.Property{
		Name:  "bootargs",
		Value: []byte(cmdline + "\x00"),
	}

	var chosen *dt.Node
	for _, node := range fdt.RootNode.Children {
		if node.Name == "chosen" {
			chosen = node
			break
		}
	}
	if chosen == nil {
		chosen = &dt.Node{Name: "chosen"}
		fdt.RootNode.Children = append(fdt.RootNode.Children, chosen)
	}

	replaced := false
	for i := range chosen.Properties {
		if chosen.Properties[i].Name == bootargs.Name {
			chosen.Properties[i] = bootargs
			replaced = true
		}
	}
	if !replaced {
		chosen.Properties = append(chosen.Properties, bootargs)
	}

	var out bytes.Buffer
	if _, err := fdt.Write(&out); err != nil {
		return nil, fmt.Errorf("failed to write device tree: %w", err)
	}
	return out.Bytes(), nil
}

// Bootargs returns /chosen/bootargs of dtb
func Bootargs(dtb []byte) (string, error) {
	fdt, err := dt.ReadFDT(bytes.NewReader(dtb))
	if err != nil {
		return "", fmt.Errorf("failed to read device tree: %w", err)
	}
	if fdt.RootNode != nil {
		for _, node := range fdt.RootNode.Children {
			if node.Name != "chosen" {
				continue
			}
			for _, p := range node.Properties {
				if p.Name == "bootargs" {
					return string(bytes.TrimRight(p.Value, "\x00")), nil
				}
			}
		}
	}
	return "", fmt.Errorf("no /chosen/bootargs: %w", types.ErrNotFound)
}
