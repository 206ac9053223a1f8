package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mmcdole/mediasync/internal/adapter"
	"github.com/mmcdole/mediasync/internal/client"
	"github.com/mmcdole/mediasync/internal/tui"
)

// Version is set at build time via -ldflags
var Version = "dev"

const usage = `usage: mediasync [flags] <command> [args]

commands:
  register <username>        create an account
  login <username>           log in and load the collection
  logout                     end the session
  status                     show the session state
  list [query]               print the collection, optionally filtered
  add <name> [key=value...]  add a record
  rename <name> <new name>   rename the closest matching record
  delete <name>              delete the closest matching record
  watch                      browse the collection interactively
`

func main() {
	var showVersion bool
	flag.BoolVar(&showVersion, "v", false, "print version")
	flag.BoolVar(&showVersion, "version", false, "print version")
	flag.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	if showVersion {
		fmt.Printf("mediasync %s\n", Version)
		return
	}

	if err := run(flag.Args()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	cfg, err := adapter.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := adapter.SetupLogger(&cfg.Logging)
	if err != nil {
		logger = adapter.NullLogger()
	}
	slog.SetDefault(logger)

	logger.Info("starting mediasync", "version", Version)

	if !cfg.IsConfigured() {
		return runSetupFlow(cfg, os.Stdin, os.Stdout)
	}

	if len(args) == 0 {
		flag.Usage()
		return nil
	}

	c, err := client.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to create client: %w", err)
	}
	defer c.Close()

	cmd := &command{
		client:       c,
		in:           os.Stdin,
		out:          os.Stdout,
		readPassword: readPassword,
		watch:        func() error { return runWatch(c) },
	}
	return cmd.dispatch(context.Background(), args)
}

// runSetupFlow prompts for the server URL and writes the initial config
func runSetupFlow(cfg *adapter.Config, in io.Reader, out io.Writer) error {
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Welcome to mediasync!")
	fmt.Fprintln(out)

	reader := bufio.NewReader(in)
	var serverURL string
	for serverURL == "" {
		fmt.Fprint(out, "Enter your server URL (e.g., http://localhost:8080): ")
		input, err := reader.ReadString('\n')
		serverURL = strings.TrimSpace(input)
		if err != nil && serverURL == "" {
			return fmt.Errorf("failed to read input: %w", err)
		}
		if serverURL == "" {
			fmt.Fprintln(out, "Server URL cannot be empty. Please try again.")
		}
	}

	cfg.Server.URL = strings.TrimRight(serverURL, "/")
	path, err := adapter.SaveConfig(cfg, "")
	if err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	fmt.Fprintln(out)
	fmt.Fprintf(out, "✓ Configuration saved to %s\n", path)
	fmt.Fprintln(out, "Run `mediasync register <username>` or `mediasync login <username>` to continue.")
	return nil
}

// runWatch runs the interactive viewer until the user quits
func runWatch(c *client.Client) error {
	model := tui.NewModel(c)
	defer model.Close()

	p := tea.NewProgram(model, tea.WithAltScreen())

	slog.Info("starting TUI")
	if _, err := p.Run(); err != nil {
		slog.Error("TUI error", "error", err)
		return fmt.Errorf("TUI error: %w", err)
	}
	slog.Info("shutting down")
	return nil
}
