// Package logging provides the structured logging used across deskauth.
//
// It is a thin layer over log/slog that tags every record with a subsystem
// and keeps credentials out of the output:
//
//	logging.InitForCLI(logging.LevelInfo, os.Stderr)
//
//	logging.Info("Callback", "Listening on %s", addr)
//	logging.Error("OAuth", err, "Token refresh failed")
//
// # Subsystems
//
//   - Callback: loopback redirect listener
//   - OAuth: token endpoint, userinfo and revocation calls
//   - TokenStore: encrypted persistence
//   - Session: the sign-in state machine and refresh scheduling
//   - Config: configuration loading
//   - CLI: the host command surface
//
// # Credentials
//
// Values of type secret.Value render as [REDACTED] on their own. As a second
// line, attributes whose key names a credential (access_token, refresh_token,
// id_token, code, code_verifier, client_secret, authorization) are replaced
// by the handler before they reach the writer.
//
// # Audit Logging
//
//	logging.Audit(logging.AuditEvent{
//	    Action:    "token_stored",
//	    Outcome:   "success",
//	    AttemptID: attempt.ID,
//	})
//
// Audit events are logged at INFO level with an [AUDIT] prefix for easy
// filtering.
package logging
