// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// transfer_cmd.go - Manual transfer command for taca.
//
// Command: transfer <run-dir>
// Short:   Transfer a single run folder to destination storage
//
// Examples:
//   taca transfer /data/20240101_1205_2A_PAK12345_deadbeef
//   taca transfer /data/run --dest host:/srv/runs     Override destination
//   taca transfer /data/run --dry-run                 Show the rsync only
//
// Flags:
//   --dest DEST     Override the configured destination
//   --dry-run       Log the intended rsync without running it

package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jeranaias/taca/internal/runs"
	"github.com/jeranaias/taca/internal/transfer"
)

// HandleTransfer handles the "transfer" command.
func HandleTransfer(args Args) error {
	parser := NewArgParser(args.Raw)

	runPath := parser.Positional(0)
	if runPath == "" {
		return errors.New("usage: taca transfer <run-dir>")
	}

	cfg, err := loadConfig(args)
	if err != nil {
		return err
	}
	closeLogs, err := setupLogging(cfg, args.Quiet)
	if err != nil {
		return err
	}
	defer closeLogs()

	run, err := runs.New(runPath)
	if err != nil {
		return err
	}
	if !run.SequencingDone() {
		return fmt.Errorf("%s is still sequencing (no completion marker)", run.Name)
	}

	tr, err := transfer.New(transfer.Options{
		Destination:  parser.FlagOrDefault("dest", cfg.Transfer.Destination),
		ArchiveDir:   cfg.Transfer.ArchiveDir,
		TransferLog:  cfg.Transfer.TransferLog,
		RsyncOptions: cfg.Transfer.RsyncOptions,
		LogDir:       cfg.LogDir(),
		Checksum:     cfg.Transfer.Checksum,
		DryRun:       parser.BoolFlag("dry-run"),
	})
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := tr.Sync(ctx, run); err != nil {
		return err
	}

	// Record the state when the run is tracked; a manual transfer of an
	// untracked run stays untracked.
	if store, serr := openStore(cfg); serr == nil {
		defer store.Close()
		if _, gerr := store.Get(ctx, run.Name); gerr == nil {
			// Runs still marked sequencing pass through transferring first.
			store.SetState(ctx, run.Name, runs.StateTransferring)
			if terr := store.SetState(ctx, run.Name, runs.StateTransferred); terr != nil {
				fmt.Fprintf(os.Stderr, "warning: %v\n", terr)
			}
		}
	}

	if args.JSON {
		return NewJSONResponse("transfer", map[string]any{
			"run":         run.Name,
			"destination": parser.FlagOrDefault("dest", cfg.Transfer.Destination),
			"dry_run":     parser.BoolFlag("dry-run"),
		}).Print()
	}
	if !args.Quiet {
		fmt.Printf("%s transferred %s\n", RenderStatus("ok"), run.Name)
	}
	return nil
}
