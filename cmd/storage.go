package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/deploymenttheory/go-bootstd/internal/services"
	"github.com/deploymenttheory/go-bootstd/pkg/app"
)

var storageHunt bool

var storageCmd = &cobra.Command{
	Use:   "storage",
	Short: "List block devices found by the storage sweep",
	Long: `Sweep every storage class in the order IDE, USB, SCSI, MMC, SATA
and list the active devices.

Examples:
  # List devices that need no bus probe
  bootstd storage

  # Probe every bus first
  bootstd storage --hunt`,

	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(cmd, func(ctx *app.Context, svc *services.BootService) error {
			if storageHunt {
				if err := svc.Hunt(ctx, ""); err != nil {
					return app.Wrap("hunt failed", err)
				}
			}
			devs, err := svc.Storage(ctx)
			if err != nil {
				return app.Wrap("storage sweep failed", err)
			}
			return app.Render(ctx.Out, ctx.OutputFormat, devs, func(tw *tabwriter.Writer) {
				if len(devs) == 0 {
					fmt.Fprintln(tw, "No storage devices found.")
					return
				}
				fmt.Fprintf(tw, "LABEL\tTYPE\tBLOCKS\tBLKSZ\tSIZE\tBOOTDEV\n")
				fmt.Fprintf(tw, "-----\t----\t------\t-----\t----\t-------\n")
				for _, d := range devs {
					fmt.Fprintf(tw, "%s\t%#x\t%d\t%d\t%s\t%s\n",
						d.Label, uint32(d.Type), d.BlockCount, d.BlockSize, app.FormatBytes(d.Size()), d.Bootdev)
				}
			})
		})
	},
}

func init() {
	rootCmd.AddCommand(storageCmd)
	storageCmd.Flags().BoolVar(&storageHunt, "hunt", false, "probe every bus before the sweep")
}
