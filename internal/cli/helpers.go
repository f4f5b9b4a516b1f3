// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// helpers.go - Shared plumbing for the taca command handlers.

package cli

import (
	"fmt"
	"io"
	"log"
	"os"

	"github.com/jeranaias/taca/internal/config"
	"github.com/jeranaias/taca/internal/notify"
	"github.com/jeranaias/taca/internal/statusdb"
)

// loadConfig loads the configuration honoring --config, environment
// overrides and validation.
func loadConfig(args Args) (*config.Config, error) {
	var cfg *config.Config
	var err error
	if args.ConfigPath != "" {
		cfg, err = config.LoadFromPath(args.ConfigPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}

	cfg.ApplyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// openStore opens the status database at the configured path.
func openStore(cfg *config.Config) (*statusdb.Store, error) {
	path, err := cfg.StatusDBPath()
	if err != nil {
		return nil, err
	}
	return statusdb.Open(path)
}

// newMailer builds the failure mailer from config. A missing recipient
// disables mail rather than failing the command.
func newMailer(cfg *config.Config) *notify.Mailer {
	mailer, err := notify.New(cfg.Mail.Host, cfg.Mail.From, cfg.Mail.To)
	if err != nil {
		return nil
	}
	return mailer
}

// setupLogging routes log output to the configured log file in addition
// to stderr. Returns a closer for the file ("" path is a no-op).
func setupLogging(cfg *config.Config, quiet bool) (func(), error) {
	if cfg.LogFile == "" {
		return func() {}, nil
	}

	f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	if quiet {
		log.SetOutput(f)
	} else {
		log.SetOutput(io.MultiWriter(os.Stderr, f))
	}
	return func() { f.Close() }, nil
}
