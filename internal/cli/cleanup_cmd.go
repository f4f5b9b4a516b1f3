// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// cleanup_cmd.go - Archive cleanup command for taca.
//
// Command: cleanup
// Short:   Remove aged runs from the archive
//
// Examples:
//   taca cleanup --days 90            Remove archived runs older than 90 days
//   taca cleanup --hours 12           ... or older than 12 hours (not both)
//   taca cleanup --days 90 --dry-run  Report without removing
//   taca cleanup --days 90 --confirm  Non-interactive (cron)
//
// Flags:
//   --days N        Age threshold in days
//   --hours N       Age threshold in hours (exclusive with --days)
//   --dry-run       Report what would be removed
//   --confirm       Skip the interactive prompt
//
// Only runs the status database knows to be archived are candidates.

package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/jeranaias/taca/internal/cleanup"
	"github.com/jeranaias/taca/internal/transfer"
)

// HandleCleanup handles the "cleanup" command.
func HandleCleanup(args Args) error {
	parser := NewArgParser(args.Raw)

	days := parser.FlagIntOrDefault("days", 0)
	hours := parser.FlagIntOrDefault("hours", 0)

	cfg, err := loadConfig(args)
	if err != nil {
		return err
	}
	if days == 0 && hours == 0 {
		days = cfg.Cleanup.MaxDays
	}

	maxAge, err := cleanup.Threshold(days, hours)
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

	dryRun := parser.BoolFlag("dry-run")
	if !dryRun {
		action := fmt.Sprintf("remove archived runs older than %s", maxAge)
		confirmed, err := RequireConfirmation(parser.BoolFlag("confirm"), action, args.JSON)
		if err != nil {
			return err
		}
		if !confirmed {
			fmt.Println("Cancelled.")
			return nil
		}
	}

	// Local destinations can be read back, so removal is verified against
	// the destination copy. Remote destinations cannot be checked.
	var remover cleanup.Remover
	if cfg.Transfer.Destination != "" && !transfer.IsRemote(cfg.Transfer.Destination) {
		tr, err := transfer.New(transfer.Options{
			Destination: cfg.Transfer.Destination,
			DryRun:      dryRun,
		})
		if err != nil {
			return err
		}
		remover = tr
	}

	cleaner, err := cleanup.New(store, cleanup.Options{
		ArchiveDir: cfg.Transfer.ArchiveDir,
		Remover:    remover,
		DryRun:     dryRun,
	})
	if err != nil {
		return err
	}

	removed, err := cleaner.Run(context.Background(), maxAge, time.Now())
	if err != nil {
		return err
	}

	if args.JSON {
		return NewJSONResponse("cleanup", CleanupData{
			Removed:   removed,
			DryRun:    dryRun,
			Threshold: maxAge.String(),
		}).Print()
	}

	if len(removed) == 0 {
		fmt.Printf("%s nothing to clean up\n", RenderStatus("ok"))
		return nil
	}
	verb := "removed"
	if dryRun {
		verb = "would remove"
	}
	fmt.Printf("%s %s %d run(s):\n", RenderStatus("ok"), verb, len(removed))
	for _, name := range removed {
		fmt.Printf("  %s\n", ValueStyle.Render(name))
	}
	return nil
}
