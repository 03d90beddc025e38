package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/deploymenttheory/go-bootstd/internal/device"
	"github.com/deploymenttheory/go-bootstd/internal/services"
	"github.com/deploymenttheory/go-bootstd/pkg/app"
)

var (
	// Global output flags
	verbose      bool
	quiet        bool
	outputFormat string

	// Board selection
	configPath  string
	metricsFile string
	envVars     []string
)

var rootCmd = &cobra.Command{
	Use:   "bootstd",
	Short: "Standard boot: find and boot an OS from the devices of a board",
	Long: `bootstd walks the storage, network and host devices of a board in
priority order, asks each boot method whether it recognises an OS there,
and boots the first one that works.

Commands:
  storage     List block devices found by the storage sweep
  bootdev     List boot devices and run hunters
  bootmeth    List boot methods and their order
  bootflow    Scan for bootflows or boot one
  ab          Inspect and update Android A/B slot metadata
  config      Show the effective board configuration`,
	Version:       "0.1.0-dev",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return app.ValidateFormat(outputFormat)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(app.ExitCode(err))
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress output except errors")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "table", "output format (table, json, yaml)")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "board configuration file (default: search for bootstd.yaml)")
	rootCmd.PersistentFlags().StringVar(&metricsFile, "metrics-file", "", "write Prometheus metrics to this file on exit")
	rootCmd.PersistentFlags().StringArrayVarP(&envVars, "env", "e", nil, "set an environment variable (name=value) before running")
}

// GetVerbose returns the verbose flag value
func GetVerbose() bool {
	return verbose
}

// GetQuiet returns the quiet flag value
func GetQuiet() bool {
	return quiet
}

// GetOutputFormat returns the output format
func GetOutputFormat() string {
	return outputFormat
}

// newAppContext creates the application context from the global flags
func newAppContext(cmd *cobra.Command) *app.Context {
	ctx := app.NewContext(cmd.OutOrStdout(), GetVerbose(), GetQuiet())
	ctx.Context = cmd.Context()
	ctx.OutputFormat = GetOutputFormat()
	return ctx
}

// loadConfig loads the board configuration named by --config and applies
// the flag overrides
func loadConfig() (*device.BoardConfig, error) {
	config, err := device.LoadBoardConfig(configPath)
	if err != nil {
		return nil, app.NewError(app.ErrCodeInvalidInput, "cannot load board configuration", err)
	}
	if metricsFile != "" {
		config.MetricsFile = metricsFile
	}
	if config.Env == nil {
		config.Env = make(map[string]string)
	}
	for _, kv := range envVars {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || name == "" {
			return nil, app.NewError(app.ErrCodeInvalidInput, fmt.Sprintf("invalid --env %q, want name=value", kv), nil)
		}
		config.Env[name] = value
	}
	return config, nil
}

// withService opens the boot service for the board, runs fn and closes it
func withService(cmd *cobra.Command, fn func(ctx *app.Context, svc *services.BootService) error) error {
	ctx := newAppContext(cmd)
	config, err := loadConfig()
	if err != nil {
		return err
	}
	svc, err := services.NewBootService(ctx, config, ctx.Logger)
	if err != nil {
		return app.Wrap("cannot set up board", err)
	}
	err = fn(ctx, svc)
	if cerr := svc.Close(); cerr != nil {
		ctx.Logger.Warn().Err(cerr).Msg("close failed")
	}
	return err
}
