// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat provides the terminal transcript viewer.
//
// The viewer subscribes to a transcript.Store through a Bridge and redraws
// from the throttled snapshot it delivers. Text parts are rendered from the
// store's cached markdown blocks when they are still current.
//
// # Key Bindings
//
//   - up/k, down/j: select the previous or next message
//   - left/h, right/l: switch the selected message to a sibling branch
//   - pgup, pgdown: scroll half a page
//   - home/g, end/G: first or last message
//   - ?: toggle full help
//   - q, ctrl+c: quit
//
// # Usage
//
//	m := chat.New(sess, "My chat", renderer, styles.NewTheme())
//	if err := chat.Run(ctx, m); err != nil {
//	    return err
//	}
//
// View is usable on its own for non-interactive output:
//
//	v := &chat.View{Store: sess.Store(), Siblings: sess.SiblingInfo}
//	content, _ := v.Thread(sess.Store().ThrottledMessages(), "")
package chat
