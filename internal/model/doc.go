// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
//
// A Conversation is an ordered list of user and assistant messages. It is
// append-only except for the trailing assistant entry, which is overwritten
// while a reply streams in and then frozen. At most one assistant entry is
// unfrozen at any time and it is always the last element.
//
// Conversation is not safe for concurrent use; the session controller owns
// one and serialises access. Readers receive value copies from Snapshot.
//
// # Key Types
//
//   - Conversation: ordered messages plus identity
//   - Message: role, content, freeze/failure flags and timing stats
//   - Stats: timing collected while a reply streamed
package model
