package device

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/deploymenttheory/go-bootstd/internal/types"
)

// BoardConfig describes the storage, network and host resources of a board,
// plus the initial boot environment
type BoardConfig struct {
	Storage         map[string]StorageGroupConfig `mapstructure:"storage" json:"storage" yaml:"storage"`
	Net             NetConfig                     `mapstructure:"net" json:"net" yaml:"net"`
	Host            []HostConfig                  `mapstructure:"host" json:"host" yaml:"host"`
	Env             map[string]string             `mapstructure:"env" json:"env" yaml:"env"`
	EFIArch         string                        `mapstructure:"efi_arch" json:"efi_arch" yaml:"efi_arch"`
	ScriptSizeLimit int64                         `mapstructure:"script_size_limit" json:"script_size_limit" yaml:"script_size_limit"`
	FileSizeLimit   int64                         `mapstructure:"file_size_limit" json:"file_size_limit" yaml:"file_size_limit"`
	Executor        string                        `mapstructure:"executor" json:"executor" yaml:"executor"`
	MetricsFile     string                        `mapstructure:"metrics_file" json:"metrics_file" yaml:"metrics_file"`
}

// StorageGroupConfig configures one storage class
type StorageGroupConfig struct {
	MaxDevices    int           `mapstructure:"max_devices" json:"max_devices" yaml:"max_devices"`
	ProbeRequired bool          `mapstructure:"probe_required" json:"probe_required" yaml:"probe_required"`
	Devices       []ImageConfig `mapstructure:"devices" json:"devices" yaml:"devices"`
}

// ImageConfig describes an image-backed block device
type ImageConfig struct {
	Slot      int    `mapstructure:"slot" json:"slot" yaml:"slot"`
	Path      string `mapstructure:"path" json:"path" yaml:"path"`
	BlockSize uint32 `mapstructure:"block_size" json:"block_size" yaml:"block_size"`
	Offset    int64  `mapstructure:"offset" json:"offset" yaml:"offset"`
	ReadOnly  bool   `mapstructure:"read_only" json:"read_only" yaml:"read_only"`
	Inactive  bool   `mapstructure:"inactive" json:"inactive" yaml:"inactive"`
}

// NetConfig configures the network bootdev
type NetConfig struct {
	Enabled bool          `mapstructure:"enabled" json:"enabled" yaml:"enabled"`
	Server  string        `mapstructure:"server" json:"server" yaml:"server"`
	Timeout time.Duration `mapstructure:"timeout" json:"timeout" yaml:"timeout"`
	Retries int           `mapstructure:"retries" json:"retries" yaml:"retries"`
}

// HostConfig configures a host-directory bootdev
type HostConfig struct {
	Name string `mapstructure:"name" json:"name" yaml:"name"`
	Root string `mapstructure:"root" json:"root" yaml:"root"`
}

// LoadBoardConfig loads the board configuration using Viper. An empty path
// searches the usual locations; a missing file yields the defaults.
func LoadBoardConfig(path string) (*BoardConfig, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("bootstd")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("$HOME/.bootstd")
		v.AddConfigPath("/etc/bootstd")
	}
	setDefaults(v)

	// Allow environment variables
	v.SetEnvPrefix("BOOTSTD")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, we'll use defaults
	}
	return unmarshalBoardConfig(v)
}

// ReadBoardConfig parses YAML configuration from r
func ReadBoardConfig(r io.Reader) (*BoardConfig, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v)
	if err := v.ReadConfig(r); err != nil {
		return nil, fmt.Errorf("error reading config: %w", err)
	}
	return unmarshalBoardConfig(v)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("efi_arch", "x64")
	v.SetDefault("script_size_limit", 64<<10)
	v.SetDefault("file_size_limit", 256<<20)
	v.SetDefault("executor", "dry-run")
	v.SetDefault("net.timeout", "5s")
	v.SetDefault("net.retries", 3)
}

func unmarshalBoardConfig(v *viper.Viper) (*BoardConfig, error) {
	var config BoardConfig
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	for name, group := range config.Storage {
		if _, err := types.ParseStorageClass(name); err != nil {
			return nil, fmt.Errorf("storage group %q: %w", name, err)
		}
		for _, dev := range group.Devices {
			if dev.Slot < 0 || (group.MaxDevices > 0 && dev.Slot >= group.MaxDevices) {
				return nil, fmt.Errorf("storage group %q: slot %d out of range: %w", name, dev.Slot, types.ErrInvalid)
			}
		}
	}
	return &config, nil
}

// BuildDriver opens every configured image and attaches it to a new Driver.
// The returned closers must be closed by the caller.
func (c *BoardConfig) BuildDriver(logger zerolog.Logger) (*Driver, []io.Closer, error) {
	drv := NewDriver(logger)
	var closers []io.Closer
	fail := func(err error) (*Driver, []io.Closer, error) {
		for _, cl := range closers {
			cl.Close()
		}
		return nil, nil, err
	}

	for name, group := range c.Storage {
		class, err := types.ParseStorageClass(name)
		if err != nil {
			return fail(err)
		}
		maxDev := group.MaxDevices
		for _, dev := range group.Devices {
			if dev.Slot >= maxDev {
				maxDev = dev.Slot + 1
			}
		}
		drv.SetMaxDevices(class, maxDev)
		if group.ProbeRequired {
			drv.RequireProbe(class)
		}
		for _, devCfg := range group.Devices {
			img, err := OpenImage(fmt.Sprintf("%s%d", class, devCfg.Slot), devCfg)
			if err != nil {
				return fail(err)
			}
			closers = append(closers, img)
			if err := drv.Attach(class, devCfg.Slot, img); err != nil {
				return fail(err)
			}
		}
	}
	return drv, closers, nil
}
