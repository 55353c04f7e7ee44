// Package cli implements the interactive console harness for the chat core.
// It embeds the server in-process, opens one session through the hub, and
// exposes the command catalog as a small REPL: account management, sending
// and editing messages, file attachment via chunked upload, avatars and
// voice rooms. Replicated row events for the subscribed tables are printed
// as they arrive.
package cli
