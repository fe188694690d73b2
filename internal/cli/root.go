// Package cli provides the commands of the libreshelf binary.
package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"libreshelf/internal/config"
	"libreshelf/library"
)

var (
	cfgFile      string
	baseURL      string
	sessionPath  string
	logLevel     string
	outputFormat string
)

// sessionCloser is the session store kept open for one invocation.
type sessionCloser interface {
	library.SessionStore
	Close() error
}

// state is built once per invocation by the root pre-run hook.
type state struct {
	cfg    *config.Config
	logger *slog.Logger
	db     sessionCloser
	shelf  *library.Shelf
}

var st *state

var rootCmd = &cobra.Command{
	Use:   "libreshelf",
	Short: "LibreShelf - command line client for the LibreShelf library",
	Long: `libreshelf talks to the LibreShelf REST API: browse and search books,
sign in, and publish books if your account is a teacher or admin.

Configuration:
  Config is loaded from libreshelf.yaml in the current directory or
  $HOME/.libreshelf/. A .env file in the current directory is read first.

  Environment variables override config values with the LIBRESHELF_ prefix.
  Example: LIBRESHELF_API_BASE_URL=http://localhost:8000

The session (token, role, display name) is kept in a SQLite file so that
a login survives between invocations.`,
	SilenceUsage:       true,
	SilenceErrors:      true,
	PersistentPreRunE:  setup,
	PersistentPostRunE: teardown,
}

// Execute runs the root command.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	// Post-run hooks are skipped when a command fails.
	closeSession()
	if err != nil {
		fmt.Fprintln(os.Stderr, errorText(err))
		stop()
		os.Exit(1)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default: ./libreshelf.yaml)")
	pf.StringVar(&baseURL, "base-url", "", "API origin (default: "+config.DefaultBaseURL+")")
	pf.StringVar(&sessionPath, "session", "", "session database path (default: ~/.libreshelf/session.db)")
	pf.StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
	pf.StringVarP(&outputFormat, "output", "o", "", "output format: table, json, yaml")
}

func bindFlags(cmd *cobra.Command) error {
	pf := cmd.Root().PersistentFlags()
	for key, name := range map[string]string{
		"api.base_url": "base-url",
		"session.path": "session",
		"log.level":    "log-level",
		"output":       "output",
	} {
		if err := viper.BindPFlag(key, pf.Lookup(name)); err != nil {
			return fmt.Errorf("bind --%s: %w", name, err)
		}
	}
	return nil
}

func setup(cmd *cobra.Command, _ []string) error {
	config.InitViper(cfgFile)
	if err := bindFlags(cmd); err != nil {
		return err
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := newLogger(cmd.ErrOrStderr(), cfg.Log)
	slog.SetDefault(logger)
	logger.Debug("configuration loaded",
		"file", config.ConfigFileUsed(),
		"base_url", cfg.API.BaseURL,
		"session", cfg.Session.Path,
	)

	dbOpts := []library.SessionDBOption{library.WithStoreLogger(logger)}
	if cfg.Session.SealEnabled() {
		key, err := library.LoadOrCreateKey(cfg.Session.KeyFile)
		if err != nil {
			return fmt.Errorf("load session key: %w", err)
		}
		sealer, err := library.NewSealer(key)
		if err != nil {
			return err
		}
		dbOpts = append(dbOpts, library.WithSealer(sealer))
	}

	db, err := library.OpenSessionDB(cfg.Session.Path, dbOpts...)
	if err != nil {
		return fmt.Errorf("open session: %w", err)
	}

	st = &state{
		cfg:    cfg,
		logger: logger,
		db:     db,
		shelf: library.NewShelf(db,
			library.WithBaseURL(cfg.API.BaseURL),
			library.WithTimeout(cfg.API.Timeout),
			library.WithLogger(logger),
		),
	}
	return nil
}

// closeSession runs teardown outside the cobra hooks, where there is no
// caller to hand the error to.
func closeSession() {
	var logger *slog.Logger
	if st != nil {
		logger = st.logger
	}
	if err := teardown(nil, nil); err != nil && logger != nil {
		logger.Warn("close session database", "error", err)
	}
}

func teardown(*cobra.Command, []string) error {
	if st == nil || st.db == nil {
		return nil
	}
	err := st.db.Close()
	st = nil
	return err
}

var errNotSignedIn = fmt.Errorf("%w (run 'libreshelf login')", library.ErrUnauthenticated)

// requireSession re-validates the stored session. Connectivity and
// cancellation errors are returned as they are so that errorText can report
// them; every other failure means the user has to sign in again.
func requireSession(ctx context.Context) error {
	err := st.shelf.Auth.ValidateSession(ctx)
	switch {
	case err == nil:
		return nil
	case library.IsNetworkError(err), ctx.Err() != nil:
		return err
	default:
		return errNotSignedIn
	}
}

// requireRole re-validates the stored session and checks it against role.
// A stored role alone is never trusted.
func requireRole(ctx context.Context, role library.Role) error {
	if err := requireSession(ctx); err != nil {
		return err
	}
	if !st.shelf.Auth.IsAllowed(role) {
		return fmt.Errorf("%w (requires %s)", library.ErrForbidden, role)
	}
	return nil
}

// errorText renders err for the terminal, preferring the server's detail.
func errorText(err error) string {
	var rf *library.RequestFailedError
	switch {
	case errors.As(err, &rf):
		return fmt.Sprintf("Error: %s (HTTP %d)", rf.DetailMessage(), rf.Status)
	case library.IsNetworkError(err):
		return "Error: An error occurred. Please check your connection."
	default:
		return "Error: " + err.Error()
	}
}
