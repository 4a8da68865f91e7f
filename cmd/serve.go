package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/giantswarm/tandem/internal/ipc"
	"github.com/giantswarm/tandem/pkg/logging"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the tandem control surface over stdio",
	Long: `Serve runs the tandem core for a presentation layer. Requests arrive as
MCP tool calls on stdin and replies and auth notifications leave on stdout.
Logs go to stderr. The identity file is watched for external edits.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		a, err := openApp(ctx, true)
		if err != nil {
			return err
		}
		defer a.Close()

		logging.Info("Serve", "Serving tandem %s on stdio", GetVersion())
		return ipc.NewServer(a.shell, GetVersion()).Serve(ctx, os.Stdin, os.Stdout)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
