// Package vault persists one OAuth refresh token per user and turns it into
// fresh access tokens on demand.
//
// SECURITY: The vault handles long-lived credentials.
//   - When the injected Sealer is available the refresh token is encrypted
//     before it reaches disk and the record is tagged ModePlatformSealed.
//     Otherwise it is stored as-is and tagged ModeFallback.
//   - Files are written 0600 inside a 0700 directory and are named by a hash
//     of the user id, never the id itself.
//   - Token values are never logged. Audit lines carry only user ids and modes.
//
// Every failure on the read path (missing record, decryption failure,
// sealer no longer available, refresh rejected by the provider) collapses to
// "no token". Callers treat that as "not authenticated" and ask the user to
// log in again.
package vault
