// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// workbench runs sandboxed interactive agent sessions from the
// terminal. It is a thin console front end over the session managers:
// each stdin line becomes session input, delivered output is printed
// to stdout.
//
// Usage:
//
//	workbench run [flags]
//	workbench check [flags]
//	workbench login [flags]
//	workbench logout [flags]
//	workbench reset [flags]
//
// Built-in commands while a session is running: /info prints the
// session snapshot, /cancel interrupts in-flight work, /quit exits.
// Any other line is sent to the session verbatim.
package main

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/bureau-foundation/workbench/config"
	"github.com/bureau-foundation/workbench/lib/credential"
	"github.com/bureau-foundation/workbench/lib/version"
	"github.com/bureau-foundation/workbench/lib/workspace"
	"github.com/bureau-foundation/workbench/sandbox"
	"github.com/bureau-foundation/workbench/session"
	"github.com/bureau-foundation/workbench/stream"
	termparse "github.com/bureau-foundation/workbench/term"
)

func main() {
	command := "run"
	arguments := os.Args[1:]
	if len(arguments) > 0 && !strings.HasPrefix(arguments[0], "-") {
		command = arguments[0]
		arguments = arguments[1:]
	}

	var err error
	switch command {
	case "run":
		err = runCmd(arguments)
	case "check":
		err = checkCmd(arguments)
	case "login":
		err = loginCmd(arguments)
	case "logout":
		err = logoutCmd(arguments)
	case "reset":
		err = resetCmd(arguments)
	case "version", "--version", "-v":
		fmt.Printf("workbench %s\n", version.Info())
		return
	case "help", "--help", "-h":
		printUsage()
		return
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Print(`workbench - sandboxed interactive agent sessions

USAGE
    workbench <command> [flags]

COMMANDS
    run       Start a session and bridge it to the terminal (default)
    check     Probe sandbox requirements
    login     Store OAuth credentials for a user
    logout    Delete a user's stored credentials
    reset     Remove a user's workspace entirely
    version   Print version information
`)
}

// commonFlags carries the flags every subcommand shares.
type commonFlags struct {
	configPath string
	userID     string
	debug      bool
}

func (f *commonFlags) register(flagSet *pflag.FlagSet) {
	flagSet.StringVar(&f.configPath, "config", "", "path to workbench.yaml (default: $WORKBENCH_CONFIG)")
	flagSet.StringVar(&f.userID, "user", "local", "user identity")
	flagSet.BoolVar(&f.debug, "debug", false, "enable debug logging")
}

func (f *commonFlags) load() (*config.Config, error) {
	var cfg *config.Config
	var err error
	if f.configPath != "" {
		cfg, err = config.LoadFile(f.configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func runCmd(arguments []string) error {
	var common commonFlags
	var transport string
	var resumeID string

	flagSet := pflag.NewFlagSet("workbench run", pflag.ContinueOnError)
	common.register(flagSet)
	flagSet.StringVar(&transport, "transport", "pty", "session transport: pty or stream")
	flagSet.StringVar(&resumeID, "resume", "", "continuation id of a previous conversation")
	if err := flagSet.Parse(arguments); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}

	logger := newLogger(common.debug)
	cfg, err := common.load()
	if err != nil {
		return err
	}

	workspaces := workspace.NewProvider(cfg.Workspace.Root)
	builder := &sandbox.Builder{
		BwrapPath:  cfg.Sandbox.BwrapPath,
		AgentPath:  cfg.Sandbox.AgentPath,
		APIKey:     cfg.APIKey(),
		Workspaces: workspaces,
		Logger:     logger,
	}
	credentials := &credential.Resolver{
		Workspaces: workspaces,
		APIKey:     cfg.APIKey(),
	}

	var manager session.Manager
	switch transport {
	case "pty":
		manager = session.NewPTYManager(session.PTYManagerConfig{
			Builder:          builder,
			Credentials:      credentials,
			Observer:         session.OutputObserverFunc(printOutput),
			Cols:             cfg.PTY.Cols,
			Rows:             cfg.PTY.Rows,
			SessionTimeout:   cfg.Session.IdleTimeout.Std(),
			ReadChunkTimeout: cfg.PTY.ReadChunkTimeout.Std(),
			ReadIdleTimeout:  cfg.PTY.ReadIdleTimeout.Std(),
			SweepInterval:    cfg.Session.SweepInterval.Std(),
			Logger:           logger,
		})
	case "stream":
		manager = session.NewStreamManager(session.StreamManagerConfig{
			Builder:        builder,
			Credentials:    credentials,
			Observer:       session.ChunkObserverFunc(printChunks),
			MessageLimit:   cfg.Session.MessageLimit,
			FlushThreshold: cfg.Stream.FlushThreshold,
			SessionTimeout: cfg.Session.IdleTimeout.Std(),
			SweepInterval:  cfg.Session.SweepInterval.Std(),
			CancelGrace:    cfg.Stream.CancelGrace.Std(),
			Logger:         logger,
		})
	default:
		return fmt.Errorf("unknown transport %q (want pty or stream)", transport)
	}
	defer manager.Close()

	if err := manager.StartSession(common.userID, resumeID); err != nil {
		return fmt.Errorf("starting session: %w", err)
	}
	logger.Info("session ready", "user", common.userID, "transport", transport)

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		received := <-signals
		logger.Info("shutting down", "signal", received.String())
		manager.Close()
		os.Exit(0)
	}()

	return inputLoop(manager, common.userID)
}

// inputLoop forwards stdin lines to the session until EOF or /quit.
func inputLoop(manager session.Manager, userID string) error {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		switch line {
		case "/quit":
			return nil
		case "/info":
			printInfo(manager, userID)
			continue
		case "/cancel":
			if err := manager.CancelRequest(userID); err != nil {
				fmt.Fprintf(os.Stderr, "cancel: %v\n", err)
			}
			continue
		}

		var err error
		if strings.HasPrefix(line, "/") {
			err = manager.SendSlashCommand(userID, line)
		} else {
			err = manager.SendMessage(userID, line)
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "send: %v\n", err)
		}
	}
	return scanner.Err()
}

func printOutput(userID string, output termparse.ParsedOutput) error {
	if output.Content != "" {
		fmt.Println(output.Content)
	}
	if output.Statusbar != "" {
		fmt.Fprintf(os.Stderr, "[%s]\n", output.Statusbar)
	}
	return nil
}

func printChunks(userID string, chunks []string, status *stream.Status) error {
	for _, piece := range chunks {
		fmt.Println(piece)
	}
	if status != nil {
		if line := status.Statusline(); line != "" {
			fmt.Fprintf(os.Stderr, "[%s]\n", line)
		}
	}
	return nil
}

func printInfo(manager session.Manager, userID string) {
	info, ok := manager.Info(userID)
	if !ok {
		fmt.Fprintln(os.Stderr, "no active session")
		return
	}
	fmt.Fprintf(os.Stderr, "workspace: %s\nuptime: %s\nidle: %s\n",
		info.Workspace, info.Uptime.Round(time.Second), info.Idle.Round(time.Second))
	if info.Statusbar != "" {
		fmt.Fprintf(os.Stderr, "status: %s\n", info.Statusbar)
	}
	if line := info.Usage.Statusline(); line != "" {
		fmt.Fprintf(os.Stderr, "usage: %s\n", line)
	}
}

func checkCmd(arguments []string) error {
	var common commonFlags
	flagSet := pflag.NewFlagSet("workbench check", pflag.ContinueOnError)
	common.register(flagSet)
	if err := flagSet.Parse(arguments); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}
	cfg, err := common.load()
	if err != nil {
		return err
	}

	builder := &sandbox.Builder{
		BwrapPath: cfg.Sandbox.BwrapPath,
		AgentPath: cfg.Sandbox.AgentPath,
	}
	requirements := builder.CheckRequirements()
	if !requirements.Satisfied() {
		for _, problem := range requirements.Problems {
			fmt.Fprintf(os.Stderr, "missing: %s\n", problem)
		}
		return fmt.Errorf("sandbox requirements not satisfied")
	}
	fmt.Println("sandbox requirements satisfied")
	if !requirements.Node {
		fmt.Println("warning: node runtime not found on PATH")
	}
	return nil
}

// loginCmd stores an OAuth credential bundle for a user. The bundle is
// read from --file, or stdin when no file is given.
func loginCmd(arguments []string) error {
	var common commonFlags
	var filePath string
	flagSet := pflag.NewFlagSet("workbench login", pflag.ContinueOnError)
	common.register(flagSet)
	flagSet.StringVar(&filePath, "file", "", "credential bundle file (default: read from stdin)")
	if err := flagSet.Parse(arguments); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}
	cfg, err := common.load()
	if err != nil {
		return err
	}

	var data []byte
	if filePath != "" {
		data, err = os.ReadFile(filePath)
	} else {
		data, err = io.ReadAll(os.Stdin)
	}
	if err != nil {
		return fmt.Errorf("reading credential bundle: %w", err)
	}

	resolver := &credential.Resolver{
		Workspaces: workspace.NewProvider(cfg.Workspace.Root),
	}
	path, err := resolver.Store(common.userID, data)
	if err != nil {
		return err
	}
	fmt.Printf("credentials stored for %s at %s\n", common.userID, path)
	return nil
}

func logoutCmd(arguments []string) error {
	var common commonFlags
	flagSet := pflag.NewFlagSet("workbench logout", pflag.ContinueOnError)
	common.register(flagSet)
	if err := flagSet.Parse(arguments); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}
	cfg, err := common.load()
	if err != nil {
		return err
	}

	resolver := &credential.Resolver{
		Workspaces: workspace.NewProvider(cfg.Workspace.Root),
	}
	removed, err := resolver.Delete(common.userID)
	if err != nil {
		return err
	}
	if removed {
		fmt.Printf("credentials deleted for %s\n", common.userID)
	} else {
		fmt.Printf("no stored credentials for %s\n", common.userID)
	}
	return nil
}

// resetCmd removes a user's workspace entirely, including the
// sandboxed tool's persisted conversation and credential state.
func resetCmd(arguments []string) error {
	var common commonFlags
	flagSet := pflag.NewFlagSet("workbench reset", pflag.ContinueOnError)
	common.register(flagSet)
	if err := flagSet.Parse(arguments); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}
	cfg, err := common.load()
	if err != nil {
		return err
	}

	workspaces := workspace.NewProvider(cfg.Workspace.Root)
	if err := workspaces.Remove(common.userID); err != nil {
		return err
	}
	fmt.Printf("workspace removed for %s\n", common.userID)
	return nil
}

// newLogger writes text records on a terminal, JSON otherwise.
func newLogger(debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug || os.Getenv("WORKBENCH_DEBUG") != "" {
		level = slog.LevelDebug
	}
	options := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if term.IsTerminal(int(os.Stderr.Fd())) {
		handler = slog.NewTextHandler(os.Stderr, options)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, options)
	}
	return slog.New(handler)
}
