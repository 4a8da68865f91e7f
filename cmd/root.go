package cmd

import (
	"errors"
	"os"

	"github.com/spf13/cobra"

	"github.com/giantswarm/tandem/internal/api"
)

// Exit codes for CLI commands.
const (
	// ExitCodeSuccess indicates successful execution.
	ExitCodeSuccess = 0
	// ExitCodeError indicates a general error (command failed, invalid arguments).
	ExitCodeError = 1
	// ExitCodeAuthRequired indicates sign-in is not configured or not done.
	ExitCodeAuthRequired = 2
	// ExitCodeAuthFailed indicates the OAuth flow failed.
	ExitCodeAuthFailed = 3
	// ExitCodeUnknownUser indicates a malformed or unknown user id.
	ExitCodeUnknownUser = 4
	// ExitCodeUnauthorized indicates the authorization gate denied the request.
	ExitCodeUnauthorized = 5
)

var (
	configPath string
	dataDir    string
	logLevel   string
	logFormat  string
)

// rootCmd represents the base command for the tandem application.
var rootCmd = &cobra.Command{
	Use:   "tandem",
	Short: "Run several isolated Google identities side by side",
	Long: `tandem keeps several users of one web application apart. Each user has
its own cookie and storage partition, its own optional Google sign-in and its
own region of the window, alone or split side by side with another user.`,
	SilenceUsage: true,
}

// SetVersion sets the version for the root command.
func SetVersion(v string) {
	rootCmd.Version = v
}

// GetVersion returns the current version of the application.
func GetVersion() string {
	return rootCmd.Version
}

// Execute is the main entry point for the CLI application.
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "tandem version %s\n" .Version}}`)

	err := rootCmd.Execute()
	if err != nil {
		os.Exit(getExitCode(err))
	}
}

// getExitCode maps error codes to semantic exit codes for scripting.
func getExitCode(err error) int {
	if err == nil {
		return ExitCodeSuccess
	}

	var authRequired *authRequiredError
	if errors.As(err, &authRequired) {
		return ExitCodeAuthRequired
	}

	switch api.CodeOf(err) {
	case api.CodeNotConfigured:
		return ExitCodeAuthRequired
	case api.CodeExchangeFailed, api.CodeBindFailed, api.CodeTimedOut, api.CodeMissingVerifier:
		return ExitCodeAuthFailed
	case api.CodeInvalidIdentity, api.CodeUnknownUser:
		return ExitCodeUnknownUser
	case api.CodeUnauthorized:
		return ExitCodeUnauthorized
	default:
		return ExitCodeError
	}
}

// authRequiredError is returned when a command needs a signed-in user.
type authRequiredError struct {
	userID string
}

func (e *authRequiredError) Error() string {
	if e.userID == "" {
		return "the active user is not signed in; run 'tandem auth login'"
	}
	return "user " + e.userID + " is not signed in; run 'tandem auth login " + e.userID + "'"
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config-path", "", "Configuration directory (default: ~/.config/tandem)")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "Data directory (overrides the configuration)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn or error")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "Log format: text or json")

	rootCmd.AddCommand(newVersionCmd())
}
