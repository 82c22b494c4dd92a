package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/tidwall/sjson"

	"github.com/luma/vici/internal/meta"
)

var VersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version of vici",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		info := meta.GetInfo()

		if outputFormat != formatJSON {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), info)
			return err
		}

		doc, err := sjson.SetBytes([]byte(`{}`), "vici", info)
		if err != nil {
			return err
		}

		return (&printer{out: cmd.OutOrStdout(), path: outputPath}).write(pretty(doc))
	},
}
