// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// confirm.go - Unified confirmation handling for destructive commands.
//
// One pattern for every command:
//  1. If --confirm flag is present, proceed without prompting
//  2. If --json mode, require --confirm (no interactive prompts in JSON mode)
//  3. If stdin is not a TTY, require --confirm (can't prompt from cron/CI)
//  4. Otherwise, show an interactive yes/no prompt

package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// RequireConfirmation checks if the user has confirmed a destructive action.
//
// Parameters:
//
//	confirmFlag - true if --confirm flag was passed
//	action      - description of the action (e.g., "remove 3 archived runs")
//	jsonMode    - true if --json flag was passed
//
// Returns:
//
//	bool  - true if confirmed, false if cancelled
//	error - non-nil if confirmation is required but cannot be obtained
func RequireConfirmation(confirmFlag bool, action string, jsonMode bool) (bool, error) {
	if confirmFlag {
		return true, nil
	}

	// In JSON mode, --confirm flag is required (no interactive prompts)
	if jsonMode {
		return false, fmt.Errorf("confirmation required: use --confirm flag for destructive actions in JSON mode")
	}

	// Can't prompt if stdin is not a TTY (e.g., piped input, cron jobs, CI)
	if !IsTTY() {
		return false, fmt.Errorf("confirmation required but stdin is not a terminal; use --confirm flag")
	}

	fmt.Println()
	fmt.Printf("Are you sure you want to %s? [y/N]: ", action)

	reader := bufio.NewReader(os.Stdin)
	input, err := reader.ReadString('\n')
	if err != nil {
		return false, fmt.Errorf("failed to read confirmation: %w", err)
	}

	response := strings.ToLower(strings.TrimSpace(input))
	return response == "y" || response == "yes", nil
}
