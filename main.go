// rigrun-transcript - Streaming chat transcripts with branch navigation.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"os"

	"github.com/joho/godotenv"

	"github.com/jeranaias/rigrun-transcript/internal/cli"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

func init() {
	cli.Version = Version
	cli.GitCommit = GitCommit
	cli.BuildDate = BuildDate
}

func main() {
	// .env supplies TRANSCRIPT_* overrides; a missing file is fine.
	_ = godotenv.Load()

	os.Exit(cli.Execute())
}
