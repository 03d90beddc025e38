package cmd

import (
	"github.com/spf13/cobra"

	"github.com/deploymenttheory/go-bootstd/internal/services"
	"github.com/deploymenttheory/go-bootstd/pkg/app"
	"github.com/deploymenttheory/go-bootstd/pkg/app/bootflow"
)

var (
	// Scan behaviour
	scanAll        bool
	scanSkipGlobal bool
	scanNoHunt     bool
	scanBoot       bool
	scanBootmeths  []string
)

var bootflowCmd = &cobra.Command{
	Use:   "bootflow",
	Short: "Scan for bootflows or boot one",
}

var bootflowScanCmd = &cobra.Command{
	Use:   "scan [label]",
	Short: "Scan bootdevs for bootflows",
	Long: `Scan bootdevs in priority order, or only those named by a label
(a bootdev such as mmc1 or a uclass such as usb), and list every bootflow
a bootmeth recognised.

Examples:
  # Scan everything
  bootstd bootflow scan

  # Show failed candidates too
  bootstd bootflow scan -a

  # Scan MMC devices with extlinux only, then boot
  bootstd bootflow scan mmc --bootmeths extlinux -b`,

	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req := &bootflow.Request{
			All:        scanAll,
			SkipGlobal: scanSkipGlobal,
			NoHunt:     scanNoHunt,
			Boot:       scanBoot,
			Bootmeths:  scanBootmeths,
		}
		if len(args) == 1 {
			req.Label = args[0]
		}
		return runBootflow(cmd, req)
	},
}

var bootflowBootCmd = &cobra.Command{
	Use:   "boot [label]",
	Short: "Boot the first bootflow that works",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req := &bootflow.Request{
			SkipGlobal: scanSkipGlobal,
			NoHunt:     scanNoHunt,
			Boot:       true,
			Bootmeths:  scanBootmeths,
		}
		if len(args) == 1 {
			req.Label = args[0]
		}
		return runBootflow(cmd, req)
	},
}

func runBootflow(cmd *cobra.Command, req *bootflow.Request) error {
	return withService(cmd, func(ctx *app.Context, svc *services.BootService) error {
		response, err := bootflow.Handle(ctx, svc, req)
		if err != nil {
			return err
		}
		return bootflow.FormatOutput(ctx.Out, response, ctx.OutputFormat)
	})
}

func init() {
	rootCmd.AddCommand(bootflowCmd)
	bootflowCmd.AddCommand(bootflowScanCmd, bootflowBootCmd)

	bootflowCmd.PersistentFlags().BoolVarP(&scanSkipGlobal, "skip-global", "G", false, "leave out global bootmeths")
	bootflowCmd.PersistentFlags().BoolVarP(&scanNoHunt, "no-hunt", "H", false, "do not run hunters")
	bootflowCmd.PersistentFlags().StringSliceVar(&scanBootmeths, "bootmeths", nil, "explicit bootmeth order")

	bootflowScanCmd.Flags().BoolVarP(&scanAll, "all", "a", false, "list failed candidates too")
	bootflowScanCmd.Flags().BoolVarP(&scanBoot, "boot", "b", false, "boot the first bootflow found")
	bootflowScanCmd.MarkFlagsMutuallyExclusive("all", "boot")
}
