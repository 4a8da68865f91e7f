// Package ipc exposes the control surface to other processes.
//
// Server speaks MCP over stdio (github.com/mark3labs/mcp-go): every control
// surface operation is a tool, and auth outcomes are pushed to connected
// clients as "notifications/tandem/auth". Requests arriving over this
// transport act as the control-surface principal.
//
// ContextBridge is the endpoint a single browsing context talks to. Its
// principal is fixed when it is attached to the context, so whatever the
// page sends, it can only clear its own owner's data.
package ipc
