// Package installer runs the full install sequence: preflight checks and the
// release build as the invoking user, then the privileged install transition.
// With SkipBuild it only applies an existing artifact.
package installer
