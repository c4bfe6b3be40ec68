package cmd

import (
	"fmt"
	"io"

	"github.com/smazurov/screenrec/internal/encoder"
	"github.com/spf13/cobra"
)

// CreatePresetsCmd creates the presets command.
func CreatePresetsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "presets",
		Short: "Print the numeric recording presets",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			printPresets(cmd.OutOrStdout())
		},
	}
}

func printPresets(out io.Writer) {
	fmt.Fprintln(out, "Resolutions:")
	for _, r := range encoder.Resolutions {
		fmt.Fprintf(out, "  %dx%d\n", r.Width, r.Height)
	}
	fmt.Fprintln(out, "Bitrates:")
	for _, b := range encoder.Bitrates {
		fmt.Fprintf(out, "  %d (%d Mbps)\n", b, b/1_000_000)
	}
	fmt.Fprintln(out, "Frame rates:")
	for _, f := range encoder.FrameRates {
		fmt.Fprintf(out, "  %d\n", f)
	}
	d := encoder.DefaultOptions()
	fmt.Fprintf(out, "Defaults: native size, %d bps, %d fps, cursor %t\n", d.Bitrate, d.FrameRate, d.IncludeCursor)
}
