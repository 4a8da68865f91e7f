package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/chzyer/readline"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"github.com/giantswarm/tandem/internal/api"
	"github.com/giantswarm/tandem/internal/shell"
)

// historyFileName is kept in the data directory.
const historyFileName = "history"

var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Start an interactive session",
	Long: `Shell keeps the tandem core running and reads commands from the terminal.
Auth events are printed as they arrive. Type 'help' for the command list.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context(), true)
		if err != nil {
			return err
		}
		defer a.Close()

		r := &repl{shell: a.shell, history: filepath.Join(a.cfg.DataDir, historyFileName)}
		return r.Run(cmd.Context())
	},
}

// replCommand is a single interactive command.
type replCommand struct {
	usage string
	help  string
	run   func(ctx context.Context, w io.Writer, args []string) error
}

// repl is the interactive loop over a running shell.
type repl struct {
	shell    *shell.Shell
	history  string
	commands map[string]replCommand
}

func (r *repl) register() {
	sh := r.shell
	r.commands = map[string]replCommand{
		"users": {"users", "List users", func(ctx context.Context, w io.Writer, args []string) error {
			users, err := sh.ListUsers()
			if err != nil {
				return err
			}
			state, _ := sh.Layout()
			renderUsers(w, users, state)
			return nil
		}},
		"add": {"add <name>", "Add a user", func(ctx context.Context, w io.Writer, args []string) error {
			if len(args) == 0 {
				return errors.New("a name is required")
			}
			u, err := sh.CreateUser(strings.Join(args, " "))
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "Added user %s (%s)\n", u.Name, u.ID)
			return nil
		}},
		"rename": {"rename <id> <name>", "Rename a user", func(ctx context.Context, w io.Writer, args []string) error {
			if len(args) < 2 {
				return errors.New("an id and a name are required")
			}
			u, err := sh.RenameUser(args[0], strings.Join(args[1:], " "))
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "Renamed user %s to %s\n", u.ID, u.Name)
			return nil
		}},
		"remove": {"remove <id>", "Remove a user with its data and token", func(ctx context.Context, w io.Writer, args []string) error {
			if len(args) != 1 {
				return errors.New("an id is required")
			}
			return sh.RemoveUser(ctx, args[0])
		}},
		"use": {"use <id>", "Show a single user", func(ctx context.Context, w io.Writer, args []string) error {
			if len(args) != 1 {
				return errors.New("an id is required")
			}
			if err := sh.ActivateUser(ctx, args[0]); err != nil {
				return err
			}
			renderLayout(w, sh)
			return nil
		}},
		"split": {"split <primary> <secondary>", "Show two users side by side", func(ctx context.Context, w io.Writer, args []string) error {
			if len(args) != 2 {
				return errors.New("two ids are required")
			}
			if err := sh.ActivateSplit(ctx, args[0], args[1]); err != nil {
				return err
			}
			renderLayout(w, sh)
			return nil
		}},
		"layout": {"layout", "Show the current regions", func(ctx context.Context, w io.Writer, args []string) error {
			renderLayout(w, sh)
			return nil
		}},
		"resize": {"resize <width> <height>", "Lay out for a new window size", func(ctx context.Context, w io.Writer, args []string) error {
			if len(args) != 2 {
				return errors.New("a width and a height are required")
			}
			width, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid width: %w", err)
			}
			height, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid height: %w", err)
			}
			if err := sh.Resize(ctx, api.Bounds{Width: width, Height: height}); err != nil {
				return err
			}
			renderLayout(w, sh)
			return nil
		}},
		"clear": {"clear <id>", "Wipe a user's cookies and storage", func(ctx context.Context, w io.Writer, args []string) error {
			if len(args) != 1 {
				return errors.New("an id is required")
			}
			return sh.ClearUserData(ctx, api.ControlSurface(), args[0])
		}},
		"login": {"login [id]", "Sign a user in", func(ctx context.Context, w io.Writer, args []string) error {
			// Completion is reported by the event printer.
			status, err := sh.BeginLogin(ctx, firstArg(args))
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "%s\n  %s\n", status.Message, status.AuthURL)
			return nil
		}},
		"logout": {"logout [id]", "Sign a user out", func(ctx context.Context, w io.Writer, args []string) error {
			return sh.EndSession(ctx, firstArg(args))
		}},
		"token": {"token [id]", "Print a valid access token", func(ctx context.Context, w io.Writer, args []string) error {
			tok, ok, err := sh.CurrentAccessToken(ctx, firstArg(args))
			if err != nil {
				return err
			}
			if !ok {
				return &authRequiredError{userID: firstArg(args)}
			}
			fmt.Fprintln(w, tok.AccessToken)
			return nil
		}},
		"status": {"status [id]", "Show a user's sign-in state", func(ctx context.Context, w io.Writer, args []string) error {
			st, err := sh.AuthStatus(firstArg(args))
			if err != nil {
				return err
			}
			renderAuthStatus(w, st, sh.OAuthConfigured())
			return nil
		}},
	}
}

func renderLayout(w io.Writer, sh *shell.Shell) {
	state, regions := sh.Layout()
	renderRegions(w, state, regions)
}

func (r *repl) names() []string {
	names := make([]string, 0, len(r.commands)+2)
	for name := range r.commands {
		names = append(names, name)
	}
	names = append(names, "help", "exit")
	sort.Strings(names)
	return names
}

func (r *repl) completer() *readline.PrefixCompleter {
	items := make([]readline.PrefixCompleterInterface, 0, len(r.commands))
	for _, name := range r.names() {
		items = append(items, readline.PcItem(name))
	}
	return readline.NewPrefixCompleter(items...)
}

func (r *repl) printHelp(w io.Writer) {
	t := newTable(w)
	for _, name := range r.names() {
		switch name {
		case "help":
			t.AppendRow([]any{"help", "Show this list"})
		case "exit":
			t.AppendRow([]any{"exit", "Leave the shell"})
		default:
			c := r.commands[name]
			t.AppendRow([]any{c.usage, c.help})
		}
	}
	t.Render()
}

// Run reads and executes commands until exit, EOF or ctx is done.
func (r *repl) Run(ctx context.Context) error {
	r.register()

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          text.FgHiCyan.Sprint("tandem") + " > ",
		HistoryFile:     r.history,
		AutoComplete:    r.completer(),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("failed to create readline instance: %w", err)
	}
	defer rl.Close()

	ch, unsubscribe := r.shell.Subscribe()
	defer unsubscribe()
	go r.printEvents(ctx, rl.Stdout(), ch)

	fmt.Fprintln(rl.Stdout(), "Type 'help' for available commands.")

	for {
		if ctx.Err() != nil {
			return nil
		}
		line, err := rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) {
				if len(line) == 0 {
					return nil
				}
				continue
			}
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}

		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "exit", "quit":
			return nil
		case "help", "?":
			r.printHelp(rl.Stdout())
			continue
		}

		c, ok := r.commands[fields[0]]
		if !ok {
			fmt.Fprintf(rl.Stderr(), "Unknown command %q. Type 'help' for available commands.\n", fields[0])
			continue
		}
		if err := c.run(ctx, rl.Stdout(), fields[1:]); err != nil {
			fmt.Fprintln(rl.Stderr(), text.FgRed.Sprintf("Error: %v", err))
		}
	}
}

// printEvents writes auth events as they arrive.
func (r *repl) printEvents(ctx context.Context, w io.Writer, ch <-chan api.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			switch ev.Type {
			case api.EventAuthSucceeded:
				fmt.Fprintln(w, text.FgGreen.Sprint(r.shell.Message(ev)))
			case api.EventAuthFailed, api.EventAuthTimedOut:
				fmt.Fprintln(w, text.FgRed.Sprint(r.shell.Message(ev)))
			}
		}
	}
}

func init() {
	rootCmd.AddCommand(shellCmd)
}
