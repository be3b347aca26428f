// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli implements the rigrun-transcript command line.
//
// # Commands
//
//	replay <file>              stream recorded events into a chat
//	show <chat>                print the latest thread (or --leaf)
//	siblings <chat> <message>  list the versions of a message
//	export <chat>              write a thread as markdown, HTML, JSON or YAML
//	view <chat>                interactive viewer with branch navigation
//	serve                      read-only HTTP API over public chats
//	chats list|search|share|unshare|rename|delete
//	config show|get|set|keys|path
//
// Every command accepts --config, --db, --log-level and --json. Output to a
// pipe is plain text; a color terminal gets styled, glamour-rendered
// markdown.
//
// # Usage
//
//	os.Exit(cli.Execute())
package cli
