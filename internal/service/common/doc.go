// Package common holds the collaborators shared by the installer, uninstaller
// and status services, and detects the actor a transition is logged under.
//
//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common
