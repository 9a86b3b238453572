// Package slot models the InstallTarget/BackupSlot pair as a state machine.
//
// The state is whatever the filesystem holds; nothing is carried between
// runs. PlanInstall and PlanUninstall are pure functions from an observed
// State to a Plan listing the filesystem actions that lead to the next
// State, so transition logic can be checked without touching a disk.
package slot
