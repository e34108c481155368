// Package main provides a CLI tool that reactivates user accounts listed in a
// CSV file, in Microsoft 365 (Entra ID and Exchange Online) or Google
// Workspace. For every account it can enable sign-in, reset the password,
// clear mailbox restrictions, restore group memberships and licences, and
// revoke stale sessions.
//
// Tenant settings are read from a JSON configuration file; the command line
// selects the action and run mode. Every step is written to an audit file in
// the system temp directory and to a local SQLite history.
//
// Example usage:
//
//	reactivatetool -config config.json -whatif
//	reactivatetool -config config.json -action groups -email jane@example.com
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"reactivatetool/internal/common/logger"
	"reactivatetool/internal/common/version"
)

// Exit codes.
const (
	exitOK       = 0
	exitError    = 1
	exitFailures = 2
)

func main() {
	// -completion is handled before flag parsing so nothing else is printed.
	for i, arg := range os.Args {
		if arg == "-completion" && i+1 < len(os.Args) {
			script, err := completionScript(os.Args[i+1])
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				fmt.Fprintf(os.Stderr, "Usage:\n")
				fmt.Fprintf(os.Stderr, "  %s -completion bash > %s-completion.bash\n", os.Args[0], toolName)
				fmt.Fprintf(os.Stderr, "  %s -completion powershell > %s-completion.ps1\n", os.Args[0], toolName)
				os.Exit(exitError)
			}
			fmt.Print(script)
			os.Exit(exitOK)
		}
	}

	os.Exit(run())
}

// setupSignalHandling returns a context that is cancelled on Ctrl+C or SIGTERM.
func setupSignalHandling() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		select {
		case <-sigChan:
			fmt.Fprintln(os.Stderr, "\nReceived interrupt signal. Finishing the current step and stopping...")
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}

// run parses the configuration, executes the action and returns the exit code.
func run() int {
	ctx, cancel := setupSignalHandling()
	defer cancel()

	config, err := parseAndConfigureFlags()
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitError
	}

	if config.ShowVersion {
		fmt.Printf("%s version %s\n", toolName, version.Get())
		return exitOK
	}

	if err := validateConfiguration(config); err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		fmt.Fprintf(os.Stderr, "Use -help for usage information\n")
		return exitError
	}

	slogger := logger.SetupLogger(config.VerboseMode, config.LogLevel)
	slogger.Info("Application starting", "version", version.Get(), "action", config.Action, "whatIf", config.WhatIf)
	logger.LogVerbose(config.VerboseMode, "Configuration file: %s", config.ConfigPath)

	code, err := executeAction(ctx, config, slogger, os.Stdout)
	if err != nil {
		slogger.Error("Action failed", "action", config.Action, "error", err)
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitError
	}
	return code
}
