package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/giantswarm/tandem/internal/api"
)

var activateCmd = &cobra.Command{
	Use:   "activate <id>",
	Short: "Show a single user and make it the active one",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.shell.ActivateUser(cmd.Context(), args[0]); err != nil {
			return err
		}
		state, regions := a.shell.Layout()
		renderRegions(cmd.OutOrStdout(), state, regions)
		return nil
	},
}

var splitCmd = &cobra.Command{
	Use:   "split <primary-id> <secondary-id>",
	Short: "Show two users side by side",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.shell.ActivateSplit(cmd.Context(), args[0], args[1]); err != nil {
			return err
		}
		state, regions := a.shell.Layout()
		renderRegions(cmd.OutOrStdout(), state, regions)
		return nil
	},
}

var (
	layoutWidth  int
	layoutHeight int
)

var layoutCmd = &cobra.Command{
	Use:   "layout",
	Short: "Show the regions the active users occupy",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer a.Close()

		if layoutWidth > 0 || layoutHeight > 0 {
			b := api.Bounds{Width: a.cfg.Window.Width, Height: a.cfg.Window.Height}
			if layoutWidth > 0 {
				b.Width = layoutWidth
			}
			if layoutHeight > 0 {
				b.Height = layoutHeight
			}
			if err := a.shell.Resize(cmd.Context(), b); err != nil {
				return err
			}
		}

		state, regions := a.shell.Layout()
		if outputFormat == "json" {
			return printJSON(cmd.OutOrStdout(), map[string]any{"state": state, "regions": regions})
		}
		renderRegions(cmd.OutOrStdout(), state, regions)
		return nil
	},
}

var clearCmd = &cobra.Command{
	Use:   "clear <id>",
	Short: "Wipe a user's cookies and storage",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.shell.ClearUserData(cmd.Context(), api.ControlSurface(), args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Cleared browsing data for user %s\n", args[0])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(activateCmd, splitCmd, layoutCmd, clearCmd)
	layoutCmd.Flags().IntVar(&layoutWidth, "width", 0, "Window width to lay out for")
	layoutCmd.Flags().IntVar(&layoutHeight, "height", 0, "Window height to lay out for")
	layoutCmd.Flags().StringVarP(&outputFormat, "output", "o", "table", "Output format: table or json")
}
