// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// monitor_cmd.go - Run discovery commands for taca.
//
// Command: monitor [subcommand]
// Short:   Discover sequencing runs and drive transfers
//
// Subcommands:
//   scan (default)   One pass over the data directories
//   daemon           Keep scanning and transferring until interrupted
//
// Examples:
//   taca monitor scan            Discover runs, transfer finished ones
//   taca monitor daemon          Long-running mode for a systemd unit
//   taca monitor scan --json     Summary in JSON format

package cli

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/jeranaias/taca/internal/monitor"
)

// HandleMonitor handles the "monitor" command.
func HandleMonitor(args Args) error {
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

	var notifier monitor.Notifier
	if mailer := newMailer(cfg); mailer != nil {
		notifier = mailer
	}

	mon, err := monitor.New(cfg, store, notifier)
	if err != nil {
		return err
	}

	switch parser.Subcommand() {
	case "", "scan":
		return runScan(args, mon)

	case "daemon":
		return runDaemon(mon)

	default:
		return fmt.Errorf("unknown monitor subcommand: %s", parser.Subcommand())
	}
}

// runScan performs a single discovery pass and executes any queued
// transfers in the foreground.
func runScan(args Args, mon *monitor.Monitor) error {
	ctx := context.Background()
	if err := mon.Scan(ctx); err != nil {
		return err
	}
	mon.RunQueued(ctx)

	summary := mon.Queue().Summary()
	if args.JSON {
		return NewJSONResponse("monitor scan", map[string]any{
			"tasks": summary,
		}).Print()
	}
	if !args.Quiet {
		fmt.Printf("%s scan complete (%s)\n", RenderStatus("ok"), summary)
	}
	return nil
}

// runDaemon runs the monitor until SIGINT/SIGTERM.
func runDaemon(mon *monitor.Monitor) error {
	ctx, cancel := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer cancel()

	log.Printf("monitor: daemon started")
	err := mon.Daemon(ctx)
	if ctx.Err() != nil {
		// Normal shutdown via signal.
		log.Printf("monitor: daemon stopped")
		return nil
	}
	return err
}
