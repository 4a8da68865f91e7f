// Package shell is the control surface of tandem.
//
// Shell composes the identity store, session registry, layout manager,
// authorization gate, token vault and auth flow controller into the
// operations a presentation layer calls: list/create/rename/remove users,
// activate one user or a split, clear a user's data, sign in and out, and
// read the current access token. Every operation returns a typed api.Error
// for identity and authorization problems. Login outcomes arrive later as
// events on the bus, which Shell handles synchronously to keep each user's
// authentication flag and profile current.
package shell
