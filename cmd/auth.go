package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"github.com/giantswarm/tandem/internal/api"
	"github.com/giantswarm/tandem/internal/shell"
)

var (
	authQuiet  bool
	authNoWait bool
	tokenJSON  bool
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage Google sign-in per user",
	Long: `Sign users in and out of Google and inspect their stored tokens.

Each user has its own token record. A user argument is optional; without it
the active user is used.

Examples:
  tandem auth login
  tandem auth login <id>
  tandem auth status <id>
  tandem auth token <id>
  tandem auth logout <id>`,
}

var authLoginCmd = &cobra.Command{
	Use:   "login [id]",
	Short: "Sign a user in through the system browser",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		a, err := openApp(ctx, false)
		if err != nil {
			return err
		}
		defer a.Close()

		return runLogin(ctx, cmd.OutOrStdout(), a.shell, firstArg(args), authQuiet, authNoWait)
	},
}

// runLogin starts a sign-in and, unless noWait is set, blocks until its
// outcome event arrives.
func runLogin(ctx context.Context, out io.Writer, sh *shell.Shell, id string, quiet, noWait bool) error {
	// Subscribe first so a fast callback cannot be missed.
	ch, unsubscribe := sh.Subscribe()
	defer unsubscribe()

	status, err := sh.BeginLogin(ctx, id)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, status.Message)
	fmt.Fprintf(out, "If the browser did not open, visit:\n  %s\n", status.AuthURL)
	if noWait {
		return nil
	}

	done := startSpinner(out, quiet, "Waiting for sign-in...")
	for {
		select {
		case <-ctx.Done():
			done("")
			return ctx.Err()
		case ev, ok := <-ch:
			if !ok {
				done("")
				return errors.New("event stream closed before sign-in completed")
			}
			if ev.UserID != status.UserID {
				continue
			}
			switch ev.Type {
			case api.EventAuthSucceeded:
				done(text.FgGreen.Sprintf("%s\n", sh.Message(ev)))
				return nil
			case api.EventAuthFailed, api.EventAuthTimedOut:
				done(text.FgRed.Sprintf("%s\n", sh.Message(ev)))
				return loginError(ev)
			}
		}
	}
}

func loginError(ev api.Event) error {
	code := ev.Code
	if code == "" {
		code = api.CodeExchangeFailed
		if ev.Type == api.EventAuthTimedOut {
			code = api.CodeTimedOut
		}
	}
	var cause error
	if ev.Message != "" {
		cause = errors.New(ev.Message)
	}
	return api.NewError(code, "login", ev.UserID, cause)
}

var authLogoutCmd = &cobra.Command{
	Use:   "logout [id]",
	Short: "Sign a user out and delete its stored token",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.shell.EndSession(cmd.Context(), firstArg(args)); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Signed out")
		return nil
	},
}

var authTokenCmd = &cobra.Command{
	Use:   "token [id]",
	Short: "Print a valid access token, refreshing it if needed",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer a.Close()

		tok, ok, err := a.shell.CurrentAccessToken(cmd.Context(), firstArg(args))
		if err != nil {
			return err
		}
		if !ok {
			return &authRequiredError{userID: firstArg(args)}
		}
		if tokenJSON {
			return printJSON(cmd.OutOrStdout(), map[string]any{
				"accessToken": tok.AccessToken,
				"tokenType":   tok.Type(),
				"expiry":      tok.Expiry,
			})
		}
		fmt.Fprintln(cmd.OutOrStdout(), tok.AccessToken)
		return nil
	},
}

var authStatusCmd = &cobra.Command{
	Use:   "status [id]",
	Short: "Show a user's sign-in state",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer a.Close()

		st, err := a.shell.AuthStatus(firstArg(args))
		if err != nil {
			return err
		}
		if outputFormat == "json" {
			return printJSON(cmd.OutOrStdout(), st)
		}
		renderAuthStatus(cmd.OutOrStdout(), st, a.shell.OAuthConfigured())
		return nil
	},
}

func renderAuthStatus(w io.Writer, st *shell.AuthStatus, configured bool) {
	t := newTable(w)
	t.AppendRow([]any{"User", st.UserID})
	signedIn := text.FgHiBlack.Sprint("no")
	if st.Authenticated {
		signedIn = text.FgGreen.Sprint("yes")
	}
	t.AppendRow([]any{"Signed in", signedIn})
	if st.Email != "" {
		t.AppendRow([]any{"Email", st.Email})
	}
	token := "none"
	if st.Token.Present {
		token = fmt.Sprintf("stored (%s)", st.Token.Mode)
		if !st.Token.UpdatedAt.IsZero() {
			token += ", updated " + formatAge(st.Token.UpdatedAt)
		}
	}
	t.AppendRow([]any{"Token", token})
	if !configured {
		t.AppendRow([]any{"OAuth", text.FgYellow.Sprint("not configured")})
	} else if st.LoginPending {
		t.AppendRow([]any{"Login", st.LoginState})
	}
	t.Render()
}

func firstArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}

func init() {
	rootCmd.AddCommand(authCmd)
	authCmd.AddCommand(authLoginCmd, authLogoutCmd, authTokenCmd, authStatusCmd)

	authLoginCmd.Flags().BoolVarP(&authQuiet, "quiet", "q", false, "Suppress the progress spinner")
	authLoginCmd.Flags().BoolVar(&authNoWait, "no-wait", false, "Return once the browser was opened")
	authTokenCmd.Flags().BoolVar(&tokenJSON, "json", false, "Print the token with its type and expiry as JSON")
	authStatusCmd.Flags().StringVarP(&outputFormat, "output", "o", "table", "Output format: table or json")
}
