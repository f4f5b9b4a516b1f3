// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// version_cmd.go - Version command for taca.
//
// Command: version
// Short:   Show version and build information

package cli

import ver "github.com/jeranaias/taca/internal/version"

// version returns the release version string shown by help and
// version output.
func version() string {
	return ver.Version
}

// HandleVersion handles the "version" command.
func HandleVersion(args Args) error {
	if args.JSON {
		data := VersionData{
			Version:   version(),
			GitCommit: GitCommit,
			BuildDate: BuildDate,
		}
		return NewJSONResponse("version", data).Print()
	}
	PrintVersion()
	return nil
}
