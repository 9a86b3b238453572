// Package failure defines the error taxonomy of the installer.
//
// Every hard gate returns an *Error wrapping one of the sentinel errors
// together with the command an operator can run next.
package failure
