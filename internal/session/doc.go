// Package session maps users to isolated browsing contexts.
//
// Each known user gets at most one BrowsingContext, created lazily on first
// activation and backed by a storage partition named user_<id>. The
// Registry is the sole owner of the user-to-context map; the layout manager
// and the authorization gate only read from it.
package session
