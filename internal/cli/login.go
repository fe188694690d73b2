package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

var loginCmd = &cobra.Command{
	Use:   "login [identifier]",
	Short: "Sign in with a username or email",
	Long: `Sign in and store the session locally.

The password is always read from the terminal with masking. If the
identifier is not given as an argument it is prompted for.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var identifier string
		if len(args) == 1 {
			identifier = args[0]
		}
		p := newPrompter(cmd.InOrStdin(), cmd.OutOrStdout())
		return runLogin(cmd.Context(), cmd.OutOrStdout(), p, identifier)
	},
}

func init() {
	rootCmd.AddCommand(loginCmd)
}

var errEmptyCredentials = errors.New("identifier and password cannot be empty")

func runLogin(ctx context.Context, w io.Writer, p *prompter, identifier string) error {
	identifier, err := p.orAsk(identifier, "Username or email: ")
	if err != nil {
		return err
	}
	password, err := p.password("Password: ")
	if err != nil {
		return fmt.Errorf("failed to read password: %w", err)
	}
	if identifier == "" || password == "" {
		return errEmptyCredentials
	}

	res, err := st.shelf.Auth.Login(ctx, identifier, password)
	if err != nil {
		return err
	}
	if !res.Success {
		return fmt.Errorf("login failed: %s", res.Error)
	}

	name := res.Profile.DisplayName()
	if name == "" {
		name = "User"
	}
	fmt.Fprintf(w, "Welcome back, %s! (role: %s)\n", name, res.Role)
	return nil
}
