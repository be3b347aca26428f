// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package styles provides the colors and styles used to draw transcripts.

All colors use Lip Gloss AdaptiveColor for automatic light/dark terminal
detection. State is always shown with an ASCII indicator as well as a color:

	[OK] ready / tool output available
	[*]  streaming
	[X]  error
	[ ]  pending tool call

PlainTheme renders everything unstyled and is used when output is not a
terminal.
*/
package styles
