// Package events delivers core events (auth.succeeded, auth.failed,
// auth.timed_out, users.changed) to the presentation layer.
//
// Bus is a fan-out publisher: each subscriber gets its own buffered channel,
// and a slow subscriber loses events rather than blocking the auth flow.
// MessageTemplateEngine turns an event into the one-line status message
// shown by the CLI and sent with MCP notifications.
package events
