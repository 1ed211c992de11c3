package clustermanager

import (
	"fmt"
	"strings"
)

const redacted = "[REDACTED]"

// Secret holds secret-bearing command output such as a join token or a
// kubeconfig. Every formatting path renders it redacted; the value is only
// available through Reveal.
type Secret string

// Reveal returns the cleartext value
func (s Secret) Reveal() string {
	return string(s)
}

// TrimSpace returns the secret without surrounding whitespace
func (s Secret) TrimSpace() Secret {
	return Secret(strings.TrimSpace(string(s)))
}

// IsEmpty reports whether the secret holds no value
func (s Secret) IsEmpty() bool {
	return strings.TrimSpace(string(s)) == ""
}

func (s Secret) String() string {
	return redacted
}

// GoString keeps %#v from printing the value
func (s Secret) GoString() string {
	return redacted
}

// Format keeps every verb, including %s, %q and %x, from printing the value
func (s Secret) Format(f fmt.State, verb rune) {
	fmt.Fprint(f, redacted)
}

// MarshalText keeps encoders from writing the value
func (s Secret) MarshalText() ([]byte, error) {
	return []byte(redacted), nil
}
