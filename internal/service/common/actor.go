//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common

import (
	"os"

	"github.com/oshokin/ruls-install/internal/identity"
)

// unknownHostname is used when the kernel does not report a hostname.
const unknownHostname = "unknown"

// Actor identifies who ran a transition, for the audit log.
type Actor struct {
	// Hostname is the machine name.
	Hostname string
	// Username is the invoking user.
	Username string
	// Elevated reports whether the run had root privileges.
	Elevated bool
}

// DetectActor gathers host and user information for the audit trail.
func DetectActor(id *identity.Identity) Actor {
	hostname, err := os.Hostname()
	if err != nil || hostname == "" {
		hostname = unknownHostname
	}

	return Actor{
		Hostname: hostname,
		Username: id.Invoking.Username,
		Elevated: id.Elevated,
	}
}

// KV returns the actor as logger key-value pairs.
func (a Actor) KV() []any {
	return []any{"hostname", a.Hostname, "user", a.Username, "elevated", a.Elevated}
}
