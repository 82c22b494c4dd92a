package gen

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var RootCmd = &cobra.Command{
	Use:   "gen",
	Short: "Generate documentation",
	Long:  `Generate man pages or markdown reference for the vici command line`,
}

func init() {
	RootCmd.AddCommand(ManPagesCmd, MarkdownCmd)
}

// dirFlag registers --dir on cmd, completing to directories in the shell.
func dirFlag(cmd *cobra.Command, dir *string, def string) {
	flags := cmd.Flags()
	flags.StringVar(dir, "dir", def, "The directory to write the files to")

	if err := flags.SetAnnotation("dir", cobra.BashCompSubdirsInDir, []string{}); err != nil {
		panic(err)
	}
}

// generate creates dir when missing and lets write fill it from the root command.
func generate(cmd *cobra.Command, kind, dir string, write func(root *cobra.Command, dir string) error) error {
	out := cmd.OutOrStdout()

	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}

	root := cmd.Root()
	root.DisableAutoGenTag = true

	fmt.Fprintf(out, "Generating %s for %s in %s\n", kind, root.Name(), dir)

	if err := write(root, dir); err != nil {
		return fmt.Errorf("generate %s: %w", kind, err)
	}

	fmt.Fprintln(out, "Done.")
	return nil
}
