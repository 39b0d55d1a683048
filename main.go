// devchat - a streaming chat client for development questions.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/term"

	"devchat/internal/chat"
	"devchat/internal/config"
	"devchat/internal/gateway"
	"devchat/internal/server"
	"devchat/internal/store"
	"devchat/internal/ui/chatui"
)

// Version information (set at build time)
var (
	Version   = "0.3.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "devchat: %v\n", err)
		os.Exit(1)
	}

	cmd := ""
	if len(os.Args) > 1 {
		cmd = os.Args[1]
	}

	switch cmd {
	case "serve":
		os.Exit(runServer(cfg))
	case "version", "--version", "-v":
		fmt.Printf("devchat %s (%s, built %s)\n", Version, GitCommit, BuildDate)
	case "", "chat":
		os.Exit(runTUI(cfg))
	default:
		fmt.Fprintf(os.Stderr, "devchat: unknown command %q\n\nusage: devchat [serve|chat|version]\n", cmd)
		os.Exit(2)
	}
}

// runServer starts the HTTP API and blocks until interrupted.
func runServer(cfg *config.Config) int {
	provider, err := gateway.New(gateway.Config{
		Provider:     cfg.Gateway.Provider,
		APIKey:       cfg.Gateway.APIKey,
		Model:        cfg.Gateway.Model,
		BaseURL:      cfg.Gateway.BaseURL,
		SystemPrompt: gateway.SystemPrompt(cfg.Gateway.SystemPromptPath),
	})
	if err != nil {
		// The server still comes up; chat requests report the problem.
		log.Printf("GATEWAY_UNAVAILABLE | error=%v", err)
	}

	srv := server.New(cfg.Server.Addr, provider).
		WithRateLimit(cfg.Server.RateLimitPerMin).
		WithVersion(Version)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Start()
	}()

	select {
	case err := <-errChan:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			fmt.Fprintf(os.Stderr, "devchat: server failed: %v\n", err)
			return 1
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("SHUTDOWN_ERROR | error=%v", err)
			return 1
		}
	}
	return 0
}

// runTUI starts the interactive chat interface.
func runTUI(cfg *config.Config) int {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		fmt.Fprintln(os.Stderr, "devchat: interactive chat requires a terminal (use 'devchat serve' for the API)")
		return 1
	}

	snapshotPath := cfg.Storage.SnapshotPath
	if snapshotPath == "" {
		var err error
		snapshotPath, err = config.DefaultSnapshotPath()
		if err != nil {
			fmt.Fprintf(os.Stderr, "devchat: %v\n", err)
			return 1
		}
	}
	if err := os.MkdirAll(filepath.Dir(snapshotPath), 0o700); err != nil {
		fmt.Fprintf(os.Stderr, "devchat: create state directory: %v\n", err)
		return 1
	}

	st, err := store.Open(snapshotPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "devchat: open conversation store: %v\n", err)
		return 1
	}

	// TUI logs go to a file so they do not tear the alternate screen.
	if f, err := tea.LogToFile(snapshotPath+".log", "devchat"); err == nil {
		defer f.Close()
	}

	orch := chat.NewOrchestrator(st, chat.NewClient(cfg.Client.ServerURL))
	program := tea.NewProgram(chatui.New(st, orch), tea.WithAltScreen())

	if _, err := program.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "devchat: %v\n", err)
		return 1
	}
	return 0
}
