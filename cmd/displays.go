package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/smazurov/screenrec/internal/capture"
	"github.com/spf13/cobra"
)

// CreateDisplaysCmd creates the displays command.
func CreateDisplaysCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "displays",
		Short: "List displays that can be recorded",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			printDisplays(cmd.OutOrStdout(), capture.ListDisplays())
		},
	}
}

func printDisplays(out io.Writer, displays []*capture.Display) {
	if len(displays) == 0 {
		fmt.Fprintln(out, "No active displays found")
		return
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "INDEX\tNAME\tSIZE\tPOSITION\tPRIMARY")
	for _, d := range displays {
		fmt.Fprintf(w, "%d\t%s\t%dx%d\t%d,%d\t%t\n", d.Index, d.Name, d.Width, d.Height, d.X, d.Y, d.Primary)
	}
	w.Flush()
}
