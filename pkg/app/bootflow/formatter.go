package bootflow

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/deploymenttheory/go-bootstd/internal/bootstd"
	"github.com/deploymenttheory/go-bootstd/pkg/app"
)

// FormatOutput writes the response in format
func FormatOutput(w io.Writer, response *Response, format string) error {
	return app.Render(w, format, response, func(tw *tabwriter.Writer) {
		formatTable(tw, response)
	})
}

func formatTable(tw *tabwriter.Writer, response *Response) {
	if response.Booted != nil {
		fmt.Fprintf(tw, "Booted %s with %s\n", response.Booted.Name, response.Booted.Bootmeth)
		return
	}
	if response.Result == nil || len(response.Result.Bootflows) == 0 {
		fmt.Fprintln(tw, "No bootflows found.")
		return
	}

	fmt.Fprintf(tw, "SEQ\tMETHOD\tSTATE\tPART\tNAME\tFILENAME\tOS\n")
	fmt.Fprintf(tw, "---\t------\t-----\t----\t----\t--------\t--\n")
	for i, b := range response.Result.Bootflows {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%x\t%s\t%s\t%s\n",
			i, b.Bootmeth, b.State, b.Part, b.Name, b.File, describe(b))
	}
	fmt.Fprintf(tw, "\n%s\n", FormatSummary(response))
}

func describe(b bootstd.Summary) string {
	if b.Error != "" {
		return "error: " + b.Error
	}
	if b.Slot != "" {
		return b.OS + " slot " + b.Slot
	}
	return b.OS
}

// FormatSummary provides a brief summary for verbose output
func FormatSummary(response *Response) string {
	if response.Result == nil || len(response.Result.Bootflows) == 0 {
		return "No bootflows found"
	}
	summary := fmt.Sprintf("%d bootflow", response.Result.Found)
	if response.Result.Found != 1 {
		summary += "s"
	}
	if response.Result.Failed > 0 {
		summary += fmt.Sprintf(", %d failed", response.Result.Failed)
	}
	return summary + fmt.Sprintf(" in %v", response.ScanTime)
}
