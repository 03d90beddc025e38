// File: internal/parsers/extlinux/extlinux_config_parser.go
package extlinux

import (
	"bufio"
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/deploymenttheory/go-bootstd/internal/interfaces"
	"github.com/deploymenttheory/go-bootstd/internal/types"
)

// ConfigReader holds a parsed extlinux.conf
type ConfigReader struct {
	conf types.ExtlinuxConfig
}

// Compile-time check to ensure ConfigReader implements ExtlinuxConfigReader
var _ interfaces.ExtlinuxConfigReader = (*ConfigReader)(nil)

// Parse reads an extlinux.conf. Keywords are case-insensitive; unknown
// keywords are ignored so menus written for other loaders still parse.
func Parse(data []byte) (*ConfigReader, error) {
	var conf types.ExtlinuxConfig
	var cur *types.ExtlinuxLabel

	sc := bufio.NewScanner(bytes.NewReader(bytes.TrimRight(data, "\x00")))
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, arg := splitKeyword(line)

		switch key {
		case "label":
			conf.Labels = append(conf.Labels, types.ExtlinuxLabel{Name: arg})
			cur = &conf.Labels[len(conf.Labels)-1]
			continue
		case "default":
			conf.Default = arg
			continue
		case "timeout":
			n, err := strconv.Atoi(arg)
			if err != nil {
				return nil, fmt.Errorf("line %d: timeout %q: %w", lineNo, arg, types.ErrInvalid)
			}
			conf.Timeout = n
			continue
		case "menu":
			sub, rest := splitKeyword(arg)
			switch {
			case sub == "title":
				conf.Title = rest
			case sub == "label" && cur != nil:
				cur.Menu = rest
			}
			continue
		}

		if cur == nil {
			continue
		}
		switch key {
		case "kernel", "linux":
			cur.Kernel = arg
		case "initrd":
			cur.Initrd = arg
		case "fdt", "devicetree":
			cur.FDT = arg
		case "fdtdir", "devicetreedir":
			cur.FDTDir = arg
		case "append":
			cur.Append = arg
		case "localboot":
			cur.Localboot = true
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read extlinux config: %w", err)
	}

	for _, l := range conf.Labels {
		if l.Kernel == "" && !l.Localboot {
			return nil, fmt.Errorf("label %q has no kernel: %w", l.Name, types.ErrInvalid)
		}
	}
	return &ConfigReader{conf: conf}, nil
}

func splitKeyword(line string) (string, string) {
	i := strings.IndexAny(line, " \t")
	if i < 0 {
		return strings.ToLower(line), ""
	}
	return strings.ToLower(line[:i]), strings.TrimSpace(line[i+1:])
}

// Config returns the parsed file
func (r *ConfigReader) Config() types.ExtlinuxConfig {
	return r.conf
}

// DefaultLabel returns the default label, or the first label when the
// default is missing or names no label
func (r *ConfigReader) DefaultLabel() (string, error) {
	if len(r.conf.Labels) == 0 {
		return "", fmt.Errorf("no labels: %w", types.ErrNotFound)
	}
	for _, l := range r.conf.Labels {
		if l.Name == r.conf.Default {
			return l.Name, nil
		}
	}
	return r.conf.Labels[0].Name, nil
}

// LabelNames lists the labels in file order
func (r *ConfigReader) LabelNames() []string {
	names := make([]string, len(r.conf.Labels))
	for i, l := range r.conf.Labels {
		names[i] = l.Name
	}
	return names
}

// Label returns the named label
func (r *ConfigReader) Label(name string) (types.ExtlinuxLabel, error) {
	for _, l := range r.conf.Labels {
		if l.Name == name {
			return l, nil
		}
	}
	return types.ExtlinuxLabel{}, fmt.Errorf("label %q: %w", name, types.ErrNotFound)
}
