// Package identity resolves the invoking user: the unprivileged account that
// build and toolchain commands must run as, even when the installer itself
// was started through sudo.
package identity
