package cli

import (
	"io"

	"github.com/spf13/cobra"
)

var categoriesCmd = &cobra.Command{
	Use:   "categories",
	Short: "Book categories",
}

var categoriesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all categories",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cats, err := st.shelf.Categories.List(cmd.Context())
		if err != nil {
			return err
		}
		return render(cmd.OutOrStdout(), st.cfg.Output, cats, func(w io.Writer) {
			printCategoryTable(w, cats)
		})
	},
}

func init() {
	categoriesCmd.AddCommand(categoriesListCmd)
	rootCmd.AddCommand(categoriesCmd)
}
