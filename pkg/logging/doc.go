// Package logging provides the subsystem-tagged structured logger used across
// tandem.
//
// It is a thin layer over log/slog. Every record carries a "subsystem"
// attribute so that output from the auth flow, the token vault and the
// session registry can be told apart:
//
//	logging.Init(logging.LevelInfo, logging.FormatText, os.Stderr)
//
//	logging.Info("Session", "created browsing context for %s", userID)
//	logging.Error("AuthFlow", err, "code exchange failed")
//
// Security-relevant events (token stored, token deleted, data cleared,
// authorization denied) go through Audit, which prefixes the message with
// SECURITY_AUDIT so the lines can be filtered. Token values are never logged.
package logging
