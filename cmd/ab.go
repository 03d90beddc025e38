package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/deploymenttheory/go-bootstd/internal/services"
	"github.com/deploymenttheory/go-bootstd/internal/types"
	"github.com/deploymenttheory/go-bootstd/pkg/app"
)

var abDecTries bool

var abCmd = &cobra.Command{
	Use:   "ab",
	Short: "Inspect and update Android A/B slot metadata",
	Long: `Read and write the bootloader control block kept in the misc
partition of a block bootdev.

Examples:
  bootstd ab dump mmc0
  bootstd ab select mmc0 --dec-tries
  bootstd ab set-active mmc0 b
  bootstd ab mark-successful mmc0 _b`,
}

var abSelectCmd = &cobra.Command{
	Use:   "select <bootdev>",
	Short: "Select the slot to boot",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(cmd, func(ctx *app.Context, svc *services.BootService) error {
			slot, err := svc.SelectSlot(args[0], abDecTries)
			if err != nil {
				return app.Wrap("slot selection failed", err)
			}
			result := struct {
				Bootdev string `json:"bootdev" yaml:"bootdev"`
				Slot    string `json:"slot" yaml:"slot"`
			}{args[0], slot}
			return app.Render(ctx.Out, ctx.OutputFormat, result, func(tw *tabwriter.Writer) {
				fmt.Fprintf(tw, "%s: slot %s\n", args[0], slot)
			})
		})
	},
}

var abSetActiveCmd = &cobra.Command{
	Use:   "set-active <bootdev> <slot>",
	Short: "Make a slot the preferred one",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(cmd, func(ctx *app.Context, svc *services.BootService) error {
			if err := svc.SetActive(args[0], args[1]); err != nil {
				return app.Wrap("set-active failed", err)
			}
			ctx.Logger.Info().Str("bootdev", args[0]).Str("slot", args[1]).Msg("slot set active")
			return nil
		})
	},
}

var abMarkSuccessfulCmd = &cobra.Command{
	Use:   "mark-successful <bootdev> <slot>",
	Short: "Record a successful boot of a slot",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(cmd, func(ctx *app.Context, svc *services.BootService) error {
			if err := svc.MarkSuccessful(args[0], args[1]); err != nil {
				return app.Wrap("mark-successful failed", err)
			}
			ctx.Logger.Info().Str("bootdev", args[0]).Str("slot", args[1]).Msg("slot marked successful")
			return nil
		})
	},
}

var abDumpCmd = &cobra.Command{
	Use:   "dump <bootdev>",
	Short: "Show the control block without changing it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(cmd, func(ctx *app.Context, svc *services.BootService) error {
			report, err := svc.DumpSlots(args[0])
			if err != nil {
				return app.Wrap("cannot read control block", err)
			}
			return app.Render(ctx.Out, ctx.OutputFormat, report, func(tw *tabwriter.Writer) {
				printControl(tw, report)
			})
		})
	},
}

func printControl(tw *tabwriter.Writer, report *services.SlotReport) {
	c := report.Control
	fmt.Fprintf(tw, "bootdev\t%s\n", report.Bootdev)
	fmt.Fprintf(tw, "magic\t%#x\n", c.Magic)
	fmt.Fprintf(tw, "version\t%d\n", c.Version)
	fmt.Fprintf(tw, "slots\t%d\n", c.NbSlot)
	fmt.Fprintf(tw, "recovery tries\t%d\n", c.RecoveryTriesRemaining)
	fmt.Fprintf(tw, "crc\t%#08x (valid %v)\n", c.CRC32LE, report.CRCOK)
	fmt.Fprintln(tw)
	fmt.Fprintf(tw, "SLOT\tPRIORITY\tTRIES\tSUCCESSFUL\tVERITY CORRUPTED\n")
	for i := 0; i < int(c.NbSlot) && i < types.BootCtrlMaxSlots; i++ {
		s := c.SlotInfo[i]
		fmt.Fprintf(tw, "%c\t%d\t%d\t%v\t%v\n", types.SlotName(i), s.Priority, s.TriesRemaining, s.SuccessfulBoot, s.VerityCorrupted)
	}
}

func init() {
	rootCmd.AddCommand(abCmd)
	abCmd.AddCommand(abSelectCmd, abSetActiveCmd, abMarkSuccessfulCmd, abDumpCmd)
	abSelectCmd.Flags().BoolVar(&abDecTries, "dec-tries", false, "spend one boot try of the selected slot")
}
