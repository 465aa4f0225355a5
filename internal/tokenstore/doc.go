// Package tokenstore persists the session's TokenSet as one encrypted record.
//
// SECURITY: the record holds refresh tokens. The following measures apply:
//   - the record is sealed with XChaCha20-Poly1305 under a key derived by
//     HKDF-SHA256 from the configured key material, with the app id bound
//     as additional data
//   - files are written 0600 in a 0700 directory, through a temporary file
//     renamed into place, so a crash never leaves a partial record
//   - a TokenSet that is already expired is never written
//   - token values are never logged; audit lines carry only outcomes
//
// Key material comes from the DESKAUTH_STORAGE_KEY override or a key file
// created on first use next to the record.
package tokenstore
