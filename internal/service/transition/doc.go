// Package transition executes install and uninstall plans against a
// filesystem while holding the installer lock.
//
// Both transitions observe the target and backup paths, ask the slot planner
// for the ordered actions and run them. Nothing is rolled back when a step
// fails; every write is staged and renamed, so the target and the backup are
// always whole files and the state can be observed and repaired afterwards.
package transition
