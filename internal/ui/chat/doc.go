// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package chat is the Bubble Tea front-end for rigchat.

The model holds no conversation state of its own. Every change in the core
(progress tick, streamed chunk, final message, reset) arrives as a ChangedMsg
through a Notifier; Update then takes a fresh Snapshot from the Controller
and re-renders. Key presses become intents on the Controller.

# Screens

  - chat: transcript viewport, prompt input, model status
  - picker: model selection (ctrl+o)
  - system: instruction set editor (ctrl+s)

# Slash Commands

	/model <id>   select a model
	/models       open the picker
	/system [txt] edit or set the system prompt
	/reset        clear the conversation
	/quit         exit

Frozen assistant replies are rendered as markdown with glamour; the text of
an in-flight reply is shown raw so partial markdown does not jump around.
*/
package chat
