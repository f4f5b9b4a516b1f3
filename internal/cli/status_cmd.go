// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// status_cmd.go - Run status display for taca.
//
// Command: status (alias: s)
// Short:   Show tracked run states
//
// Examples:
//   taca status                       All tracked runs
//   taca status --state transferred   Only transferred runs
//   taca status --platform ont        Only ONT runs
//   taca status --json                Machine output
//
// Flags:
//   --state STATE         Filter by lifecycle state
//   --platform PLATFORM   Filter by platform (illumina, ont, element)

package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/jeranaias/taca/internal/runs"
	"github.com/jeranaias/taca/internal/statusdb"
	"github.com/jeranaias/taca/internal/util"
)

// HandleStatus handles the "status" command.
func HandleStatus(args Args) error {
	parser := NewArgParser(args.Raw)

	cfg, err := loadConfig(args)
	if err != nil {
		return err
	}
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	filter := statusdb.Filter{
		State:    runs.State(parser.Flag("state")),
		Platform: runs.Platform(parser.Flag("platform")),
	}
	if filter.State != "" && !filter.State.Valid() {
		return fmt.Errorf("unknown state %q", filter.State)
	}

	ctx := context.Background()
	docs, err := store.List(ctx, filter)
	if err != nil {
		return err
	}
	counts, err := store.CountByState(ctx)
	if err != nil {
		return err
	}

	if args.JSON {
		countsByName := make(map[string]int, len(counts))
		for state, n := range counts {
			countsByName[state.String()] = n
		}
		return NewJSONResponse("status", map[string]any{
			"runs":   docs,
			"counts": countsByName,
		}).Print()
	}

	fmt.Println(TitleStyle.Render("Tracked Runs"))
	if len(docs) == 0 {
		fmt.Println(DimStyle.Render("  no runs match"))
		return nil
	}

	for _, doc := range docs {
		fmt.Printf("  %s  %-12s %-9s %s\n",
			ValueStyle.Render(fmt.Sprintf("%-42s", util.TruncateRunes(doc.Name, 42))),
			RenderState(doc.State.String()),
			DimStyle.Render(string(doc.Platform)),
			DimStyle.Render(doc.UpdatedAt.Format(time.DateTime)),
		)
		if doc.Note != "" {
			fmt.Printf("      %s\n", WarningStyle.Render(util.TruncateRunes(doc.Note, 70)))
		}
	}

	fmt.Println()
	fmt.Println(SectionStyle.Render("Totals"))
	for _, state := range []runs.State{
		runs.StateSequencing, runs.StateTransferring, runs.StateTransferred,
		runs.StateProcessing, runs.StateArchived, runs.StateFailed,
	} {
		if n := counts[state]; n > 0 {
			fmt.Printf("  %s%d\n", RenderLabel(state.String()+":", 16), n)
		}
	}
	return nil
}
