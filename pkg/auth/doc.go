// Package auth provides the status types shared between the session
// controller and the host application.
//
// A Status is emitted on every session transition; hosts render it and may
// serialize it as JSON for a UI process.
package auth
