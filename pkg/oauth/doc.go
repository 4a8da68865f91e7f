// Package oauth holds the protocol helpers shared by tandem's login flow:
// PKCE verifier/challenge generation (RFC 7636) and the random state
// parameter used to tie an authorization response to its request.
//
// Verifiers are produced by golang.org/x/oauth2 so that the challenge method
// is always S256.
package oauth
