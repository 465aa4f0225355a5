// Package secret holds credential material (tokens, PKCE verifiers, client
// secrets) in a type that refuses to print itself.
//
// Every formatting path renders the placeholder instead of the value:
// fmt verbs, %#v, JSON and text marshalling, and slog attributes. Code that
// must send the credential over the wire calls Reveal explicitly, which keeps
// the places that touch raw secrets greppable.
package secret

import (
	"fmt"
	"log/slog"
)

// Redacted is what a Value prints as.
const Redacted = "[REDACTED]"

// Value wraps a sensitive string.
type Value struct {
	value string
}

// New wraps s.
func New(s string) Value {
	return Value{value: s}
}

// Reveal returns the raw secret. Never log the result.
func (v Value) Reveal() string {
	return v.value
}

// IsEmpty reports whether no secret is held.
func (v Value) IsEmpty() bool {
	return v.value == ""
}

// Equal compares two secrets without revealing either.
func (v Value) Equal(other Value) bool {
	return v.value == other.value
}

func (v Value) String() string {
	return Redacted
}

func (v Value) GoString() string {
	return "secret.Value{" + Redacted + "}"
}

// Format covers verbs that bypass String, such as %q and %x.
func (v Value) Format(f fmt.State, verb rune) {
	if verb == 'v' && f.Flag('#') {
		_, _ = f.Write([]byte(v.GoString()))
		return
	}
	_, _ = f.Write([]byte(Redacted))
}

// LogValue implements slog.LogValuer.
func (v Value) LogValue() slog.Value {
	return slog.StringValue(Redacted)
}

func (v Value) MarshalText() ([]byte, error) {
	return []byte(Redacted), nil
}

func (v Value) MarshalJSON() ([]byte, error) {
	return []byte(`"` + Redacted + `"`), nil
}
