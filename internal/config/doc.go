// Package config defines the installer settings: the fixed InstallTarget,
// BackupSlot and lock paths, the build project location, and the external
// toolchain commands. Settings are loaded from YAML on top of built-in
// defaults and validated before use.
package config
