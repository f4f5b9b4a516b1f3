// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// serve_cmd.go - Status API server command for taca.
//
// Command: serve
// Short:   Start the localhost status HTTP API
//
// Examples:
//   taca serve                  Serve on the configured port (default 8890)
//   taca serve --port 9000      Override the port
//
// The server binds to 127.0.0.1 only and stops cleanly on SIGINT/SIGTERM.

package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jeranaias/taca/internal/server"
)

// HandleServe handles the "serve" command.
func HandleServe(args Args) error {
	parser := NewArgParser(args.Raw)

	cfg, err := loadConfig(args)
	if err != nil {
		return err
	}
	closeLogs, err := setupLogging(cfg, args.Quiet)
	if err != nil {
		return err
	}
	defer closeLogs()

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	port := parser.FlagIntOrDefault("port", cfg.Server.Port)
	srv := server.NewServer(port, store, cfg.Monitor.DataDirs)

	ctx, cancel := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err

	case <-ctx.Done():
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		return srv.Shutdown(shutdownCtx)
	}
}
