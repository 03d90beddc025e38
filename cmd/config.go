package cmd

import (
	"fmt"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/deploymenttheory/go-bootstd/pkg/app"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show the effective board configuration",
	Long: `Show the board configuration after defaults, the config file,
BOOTSTD_* environment variables and command-line overrides are applied.

Examples:
  # Show the configuration found in the usual locations
  bootstd config

  # Show a specific file as YAML
  bootstd config -c board.yaml -o yaml`,

	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		config, err := loadConfig()
		if err != nil {
			return err
		}
		return app.Render(cmd.OutOrStdout(), GetOutputFormat(), config, func(tw *tabwriter.Writer) {
			fmt.Fprintf(tw, "efi arch\t%s\n", config.EFIArch)
			fmt.Fprintf(tw, "executor\t%s\n", config.Executor)
			fmt.Fprintf(tw, "script size limit\t%s\n", app.FormatBytes(uint64(config.ScriptSizeLimit)))
			fmt.Fprintf(tw, "file size limit\t%s\n", app.FormatBytes(uint64(config.FileSizeLimit)))

			classes := make([]string, 0, len(config.Storage))
			for name := range config.Storage {
				classes = append(classes, name)
			}
			sort.Strings(classes)
			for _, name := range classes {
				group := config.Storage[name]
				fmt.Fprintf(tw, "storage %s\t%d devices, %d slots, probe %v\n",
					name, len(group.Devices), group.MaxDevices, group.ProbeRequired)
			}
			if config.Net.Enabled {
				fmt.Fprintf(tw, "net\ttftp %s (timeout %v, %d retries)\n", config.Net.Server, config.Net.Timeout, config.Net.Retries)
			}
			for _, h := range config.Host {
				fmt.Fprintf(tw, "host %s\t%s\n", h.Name, h.Root)
			}
		})
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
}
