// Package gate decides whether a caller may run a destructive operation
// against a user's browsing data.
//
// Every request reaching the gate carries an explicit api.Principal that was
// attached at the transport boundary. Identity is never derived from the
// request payload. The control surface may act on any user; a browsing
// context may only act on its own owner.
package gate
