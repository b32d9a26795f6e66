package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"gradecard/internal/layout"
)

var layoutCmd = &cobra.Command{
	Use:   "layout",
	Short: "Print the effective layout descriptor",
	Long: `Load and validate the layout descriptor (--layout, LAYOUT_FILE or the
embedded default) and print it as YAML. Use the output as a starting point for
a custom report-card family.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		l, err := layout.Load(layoutPath(cmd))
		if err != nil {
			return err
		}
		out, err := l.Marshal()
		if err != nil {
			return err
		}
		_, err = os.Stdout.Write(out)
		return err
	},
}

func init() {
	rootCmd.AddCommand(layoutCmd)
}
