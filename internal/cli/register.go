package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/cobra"

	"libreshelf/library"
)

// registerForm holds what the sign-up prompts collect.
type registerForm struct {
	Username string `validate:"required"`
	FullName string
	Email    string `validate:"required,email"`
	Password string `validate:"required"`
	Confirm  string `validate:"eqfield=Password"`
}

var registerFlags registerForm

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Create a student account",
	Long: `Create a new account. Self-service accounts always get the student role.

Fields not given as flags are prompted for. The password is always
prompted for and must be typed twice.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		p := newPrompter(cmd.InOrStdin(), cmd.OutOrStdout())
		return runRegister(cmd.Context(), cmd.OutOrStdout(), p, registerFlags)
	},
}

func init() {
	f := registerCmd.Flags()
	f.StringVar(&registerFlags.Username, "username", "", "username")
	f.StringVar(&registerFlags.FullName, "full-name", "", "full name")
	f.StringVar(&registerFlags.Email, "email", "", "email address")
	rootCmd.AddCommand(registerCmd)
}

var formValidator = validator.New(validator.WithRequiredStructEnabled())

func (f registerForm) validate() error {
	err := formValidator.Struct(f)
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, e := range verrs {
		switch {
		case e.Tag() == "eqfield":
			msgs = append(msgs, "Passwords do not match!")
		case e.Tag() == "email":
			msgs = append(msgs, "Email address is not valid.")
		default:
			msgs = append(msgs, fmt.Sprintf("%s is required.", strings.ToLower(e.Field())))
		}
	}
	return errors.New(strings.Join(msgs, " "))
}

func runRegister(ctx context.Context, w io.Writer, p *prompter, form registerForm) error {
	var err error
	if form.Username, err = p.orAsk(form.Username, "Username: "); err != nil {
		return err
	}
	if form.FullName, err = p.orAsk(form.FullName, "Full name: "); err != nil {
		return err
	}
	if form.Email, err = p.orAsk(form.Email, "Email: "); err != nil {
		return err
	}
	if form.Password, err = p.password("Password: "); err != nil {
		return fmt.Errorf("failed to read password: %w", err)
	}
	if form.Confirm, err = p.password("Confirm password: "); err != nil {
		return fmt.Errorf("failed to read password: %w", err)
	}
	if err := form.validate(); err != nil {
		return err
	}

	reg := library.NewStudentRegistration(form.Username, form.FullName, form.Email, form.Password)
	resp, err := st.shelf.Auth.Register(ctx, reg)
	if err != nil {
		return err
	}
	if _, ok := resp.Identifier(); ok {
		fmt.Fprintln(w, "Account created successfully! Please log in.")
		return nil
	}
	if msg, ok := resp.Detail(); ok {
		return fmt.Errorf("registration failed: %s", msg)
	}
	return errors.New("registration failed, please try again")
}
