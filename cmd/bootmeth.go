package cmd

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/deploymenttheory/go-bootstd/internal/env"
	"github.com/deploymenttheory/go-bootstd/internal/services"
	"github.com/deploymenttheory/go-bootstd/pkg/app"
)

var bootmethOrder []string

var bootmethCmd = &cobra.Command{
	Use:   "bootmeth",
	Short: "List boot methods and their order",
}

var bootmethListCmd = &cobra.Command{
	Use:   "list",
	Short: "List bootmeths with their position in the scan order",
	Long: `List the registered bootmeths. The order follows the bootmeths
environment variable when it is set, otherwise the registration order with
global bootmeths last.

Examples:
  bootstd bootmeth list
  bootstd bootmeth list --order android,extlinux`,

	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(cmd, func(ctx *app.Context, svc *services.BootService) error {
			if len(bootmethOrder) > 0 {
				if err := svc.SetEnv(env.VarBootmeths, strings.Join(bootmethOrder, " ")); err != nil {
					return app.Wrap("cannot set bootmeth order", err)
				}
			}
			meths := svc.Bootmeths()
			return app.Render(ctx.Out, ctx.OutputFormat, meths, func(tw *tabwriter.Writer) {
				fmt.Fprintf(tw, "ORDER\tNAME\tGLOBAL\n")
				fmt.Fprintf(tw, "-----\t----\t------\n")
				for _, m := range meths {
					order := "-"
					if m.Order >= 0 {
						order = fmt.Sprint(m.Order)
					}
					fmt.Fprintf(tw, "%s\t%s\t%v\n", order, m.Name, m.Global)
				}
			})
		})
	},
}

func init() {
	rootCmd.AddCommand(bootmethCmd)
	bootmethCmd.AddCommand(bootmethListCmd)
	bootmethListCmd.Flags().StringSliceVar(&bootmethOrder, "order", nil, "explicit bootmeth order")
}
