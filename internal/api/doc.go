// Package api is the contract layer shared by every tandem component.
//
// It holds the types that cross package boundaries (users, principals,
// layout state, auth events) and the error taxonomy returned by the control
// surface. It imports no other tandem package, so identity, session, layout,
// gate, vault and authflow can all depend on it without cycles.
//
// # Error taxonomy
//
// Every failure that a control-surface caller can act on is an *Error with
// one of the following codes:
//
//   - InvalidIdentity: malformed or empty user id
//   - UnknownUser: the operation targets a user that does not exist
//   - Unauthorized: the authorization gate denied the request
//   - NotConfigured: no OAuth client id is configured
//   - MissingVerifier: a callback arrived with no live PKCE challenge
//   - ExchangeFailed: the provider rejected a code or refresh exchange
//   - BindFailed: the loopback listener could not bind, even on the fallback port
//   - TimedOut: the login exceeded its deadline
//
// Callers test for a code with errors.Is against the sentinel values
// (ErrUnknownUser, ...) or with IsCode.
//
// # Principals
//
// Every inbound request is tagged with a Principal at the transport boundary:
// either the privileged control surface or a specific user's browsing
// context. The authorization gate is a pure function of (principal, target).
package api
