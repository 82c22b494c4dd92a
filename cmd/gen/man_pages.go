package gen

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/cobra/doc"

	"github.com/luma/vici/internal/meta"
)

var (
	manDir     string
	manSection string
)

var ManPagesCmd = &cobra.Command{
	Use:   "man",
	Short: "Generate man pages for the vici client",
	Long: `Writes one man page per vici command, vici-call.1, vici-monitor.1 and so on.
By default the pages go to the "man" directory under the current directory.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		header := &doc.GenManHeader{
			Title:   "VICI",
			Section: manSection,
			Manual:  "strongSwan VICI client",
			Source:  fmt.Sprintf("vici %s", meta.GetInfo().Version),
		}

		return generate(cmd, "man pages", manDir, func(root *cobra.Command, dir string) error {
			return doc.GenManTree(root, header, dir)
		})
	},
}

var (
	markdownDir string
)

var MarkdownCmd = &cobra.Command{
	Use:   "markdown",
	Short: "Generate a markdown command reference",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return generate(cmd, "markdown", markdownDir, doc.GenMarkdownTree)
	},
}

func init() {
	dirFlag(ManPagesCmd, &manDir, "man")
	ManPagesCmd.Flags().StringVar(&manSection, "section", "1", "The manual section of the pages")

	dirFlag(MarkdownCmd, &markdownDir, "docs")
}
