package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/deploymenttheory/go-bootstd/internal/services"
	"github.com/deploymenttheory/go-bootstd/pkg/app"
)

var bootdevCmd = &cobra.Command{
	Use:   "bootdev",
	Short: "List boot devices and run hunters",
}

var bootdevListCmd = &cobra.Command{
	Use:   "list",
	Short: "List bound bootdevs in scan order",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(cmd, func(ctx *app.Context, svc *services.BootService) error {
			return printBootdevs(ctx, svc.Bootdevs())
		})
	},
}

var bootdevHuntList bool

var bootdevHuntCmd = &cobra.Command{
	Use:   "hunt [uclass]",
	Short: "Run hunters to bind bootdevs",
	Long: `Run the hunter for a uclass (mmc, usb, eth, ...), or every hunter
when none is given, then list the bootdevs.

Examples:
  # Bring up USB storage
  bootstd bootdev hunt usb

  # Show the hunters without running them
  bootstd bootdev hunt -l`,

	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(cmd, func(ctx *app.Context, svc *services.BootService) error {
			if bootdevHuntList {
				hunters := svc.Hunters()
				return app.Render(ctx.Out, ctx.OutputFormat, hunters, func(tw *tabwriter.Writer) {
					fmt.Fprintf(tw, "UCLASS\tPRIORITY\tHUNTED\n")
					for _, h := range hunters {
						fmt.Fprintf(tw, "%s\t%s\t%v\n", h.UClass, h.Priority, h.Hunted)
					}
				})
			}
			uclass := ""
			if len(args) == 1 {
				uclass = args[0]
			}
			if err := svc.Hunt(ctx, uclass); err != nil {
				return app.Wrap("hunt failed", err)
			}
			return printBootdevs(ctx, svc.Bootdevs())
		})
	},
}

func printBootdevs(ctx *app.Context, devs []services.BootdevInfo) error {
	return app.Render(ctx.Out, ctx.OutputFormat, devs, func(tw *tabwriter.Writer) {
		if len(devs) == 0 {
			fmt.Fprintln(tw, "No bootdevs bound.")
			return
		}
		fmt.Fprintf(tw, "SEQ\tNAME\tUCLASS\tPRIORITY\n")
		fmt.Fprintf(tw, "---\t----\t------\t--------\n")
		for _, d := range devs {
			fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", d.Seq, d.Name, d.UClass, d.Priority)
		}
	})
}

func init() {
	rootCmd.AddCommand(bootdevCmd)
	bootdevCmd.AddCommand(bootdevListCmd, bootdevHuntCmd)
	bootdevHuntCmd.Flags().BoolVarP(&bootdevHuntList, "list", "l", false, "list hunters instead of running them")
}
