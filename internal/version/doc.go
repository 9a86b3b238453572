// Package version exposes build metadata for ruls-install.
//
// Version, Commit and BuildTime are injected via -ldflags at release time.
package version
