package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var uploadCmd = &cobra.Command{
	Use:   "upload <path>",
	Short: "Upload a file and print its URL",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireSession(cmd.Context()); err != nil {
			return err
		}
		res, err := st.shelf.Files.UploadPath(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		loc, ok := res.Location()
		if !ok {
			return errors.New("server did not return a file URL")
		}
		fmt.Fprintln(cmd.OutOrStdout(), loc)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(uploadCmd)
}
