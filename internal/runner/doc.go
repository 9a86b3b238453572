// Package runner spawns external commands on behalf of the invoking user.
//
// When the installer runs elevated, children are started with the invoking
// user's credentials and an explicit environment built from that user's home
// directory, so toolchain files they create are owned by the user and never
// by root. No login shell is involved.
package runner
