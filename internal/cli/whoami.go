package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/cobra"
)

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the signed-in user",
	Long: `Re-validate the stored session against the server and show who is
signed in. An invalid or expired session is cleared.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWhoami(cmd.Context(), cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(whoamiCmd)
}

func runWhoami(ctx context.Context, w io.Writer) error {
	if err := requireSession(ctx); err != nil {
		if errors.Is(err, errNotSignedIn) {
			fmt.Fprintln(w, "Not signed in.")
			return nil
		}
		return err
	}
	sess := st.shelf.Session()
	fmt.Fprintf(w, "Signed in as %s (role: %s)\n", sess.DisplayName, sess.Role)
	if exp, ok := tokenExpiry(sess.Token); ok {
		fmt.Fprintf(w, "Session expires %s (in %s)\n",
			exp.Local().Format("2006-01-02 15:04"),
			time.Until(exp).Round(time.Minute))
	}
	return nil
}

// tokenExpiry reads the exp claim without verifying the signature. Tokens that
// are not JWTs report false.
func tokenExpiry(token string) (time.Time, bool) {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}
