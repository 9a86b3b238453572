package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the fixed paths and toolchain settings of the installer.
type Config struct {
	// TargetPath is the InstallTarget: where the active executable lives.
	TargetPath string `yaml:"target_path"`
	// BackupPath is the single BackupSlot holding the previous target content.
	BackupPath string `yaml:"backup_path"`
	// LockPath is the advisory lock file guarding transitions.
	LockPath string `yaml:"lock_path"`
	// ProjectDir is the directory the build tool runs in.
	ProjectDir string `yaml:"project_dir"`
	// BinaryName is the file name of the produced executable.
	BinaryName string `yaml:"binary_name"`
	// TargetTriple is the compilation target identifier.
	TargetTriple string `yaml:"target_triple"`
	// BuildTimeout bounds the build step; zero means no limit.
	BuildTimeout time.Duration `yaml:"build_timeout"`
	// SystemPath lists system-wide (not user-scoped) executable directories.
	SystemPath []string `yaml:"system_path"`
	// Toolchain names the external collaborators.
	Toolchain Toolchain `yaml:"toolchain"`
}

// Toolchain describes the external build tooling and how to install it.
type Toolchain struct {
	// BuildTool is the compiler/build entry point (cargo).
	BuildTool string `yaml:"build_tool"`
	// TargetManager lists and installs compilation targets (rustup).
	TargetManager string `yaml:"target_manager"`
	// SystemCompiler is the static-linking system compiler (musl-gcc).
	SystemCompiler string `yaml:"system_compiler"`
	// UserPath lists toolchain directories relative to the invoking user's home.
	UserPath []string `yaml:"user_path"`
	// ToolchainHint is the remediation command for a missing build tool.
	ToolchainHint string `yaml:"toolchain_hint"`
	// SystemCompilerHint is the remediation command for a missing system compiler.
	SystemCompilerHint string `yaml:"system_compiler_hint"`
}

const (
	// DefaultConfigFilename is the default filename for installer settings.
	DefaultConfigFilename = "ruls-install.yaml"

	// DefaultTargetPath is where the replacement executable is installed.
	DefaultTargetPath = "/usr/local/bin/ls"

	// DefaultBackupPath is where the previous executable is kept.
	DefaultBackupPath = "/usr/local/bin/ls.ruls-backup"

	// DefaultBinaryName is the name of the executable the build produces.
	DefaultBinaryName = "ruls"

	// DefaultTargetTriple is the statically linked Linux target.
	DefaultTargetTriple = "x86_64-unknown-linux-musl"

	// DefaultFilePermissions is the permission used when saving settings.
	DefaultFilePermissions = 0o600

	// lockSuffix is appended to the target base name to form the lock file name.
	lockSuffix = ".ruls-install.lock"
)

var (
	// errConfigIsNotSet is returned when a nil configuration is provided.
	errConfigIsNotSet = errors.New("configuration is not set")
	// errPathNotAbsolute is returned when a fixed path is relative.
	errPathNotAbsolute = errors.New("path must be absolute")
	// errSamePath is returned when the target and the backup share a path.
	errSamePath = errors.New("target and backup paths must differ")
	// errDifferentDirectories is returned when target and backup cannot be renamed onto each other.
	errDifferentDirectories = errors.New("target and backup must live in the same directory")
	// errLockCollides is returned when the lock path is the target or the backup.
	errLockCollides = errors.New("lock path must differ from target and backup paths")
	// errFieldRequired is returned when a mandatory field is empty.
	errFieldRequired = errors.New("field is required")
)

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		TargetPath:   DefaultTargetPath,
		BackupPath:   DefaultBackupPath,
		ProjectDir:   ".",
		BinaryName:   DefaultBinaryName,
		TargetTriple: DefaultTargetTriple,
		SystemPath: []string{
			"/usr/local/sbin",
			"/usr/local/bin",
			"/usr/sbin",
			"/usr/bin",
			"/sbin",
			"/bin",
		},
		Toolchain: Toolchain{
			BuildTool:          "cargo",
			TargetManager:      "rustup",
			SystemCompiler:     "musl-gcc",
			UserPath:           []string{".cargo/bin"},
			ToolchainHint:      "curl --proto '=https' --tlsv1.2 -sSf https://sh.rustup.rs | sh",
			SystemCompilerHint: "apt install musl-tools",
		},
	}
}

// Load reads configuration from the provided path and validates it.
// A missing file at the default location yields the built-in configuration.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigFilename
	}

	cfg := Default()

	contents, err := os.ReadFile(filepath.Clean(path))

	switch {
	case err == nil:
		if err = yaml.Unmarshal(contents, cfg); err != nil {
			return nil, fmt.Errorf("unmarshal settings: %w", err)
		}
	case errors.Is(err, os.ErrNotExist) && path == DefaultConfigFilename:
		// Defaults only.
	default:
		return nil, fmt.Errorf("read settings: %w", err)
	}

	if err = Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save writes the configuration to the provided path.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if path == "" {
		path = DefaultConfigFilename
	}

	if err := Validate(cfg); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	if err := os.WriteFile(filepath.Clean(path), data, DefaultFilePermissions); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}

	return nil
}

// Validate checks the settings and fills in derived defaults.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	defaults := Default()

	for name, value := range map[string]*string{
		"binary_name":               &cfg.BinaryName,
		"target_triple":             &cfg.TargetTriple,
		"toolchain.build_tool":      &cfg.Toolchain.BuildTool,
		"toolchain.target_manager":  &cfg.Toolchain.TargetManager,
		"toolchain.system_compiler": &cfg.Toolchain.SystemCompiler,
	} {
		if *value == "" {
			return fmt.Errorf("%s: %w", name, errFieldRequired)
		}
	}

	if cfg.ProjectDir == "" {
		cfg.ProjectDir = defaults.ProjectDir
	}

	projectDir, err := filepath.Abs(cfg.ProjectDir)
	if err != nil {
		return fmt.Errorf("resolve project directory: %w", err)
	}

	cfg.ProjectDir = projectDir

	if len(cfg.SystemPath) == 0 {
		cfg.SystemPath = defaults.SystemPath
	}

	if cfg.Toolchain.ToolchainHint == "" {
		cfg.Toolchain.ToolchainHint = defaults.Toolchain.ToolchainHint
	}

	if cfg.Toolchain.SystemCompilerHint == "" {
		cfg.Toolchain.SystemCompilerHint = defaults.Toolchain.SystemCompilerHint
	}

	return validatePaths(cfg)
}

// validatePaths checks the fixed target, backup and lock paths.
func validatePaths(cfg *Config) error {
	for name, value := range map[string]string{
		"target_path": cfg.TargetPath,
		"backup_path": cfg.BackupPath,
	} {
		if !filepath.IsAbs(value) {
			return fmt.Errorf("%s %q: %w", name, value, errPathNotAbsolute)
		}
	}

	cfg.TargetPath = filepath.Clean(cfg.TargetPath)
	cfg.BackupPath = filepath.Clean(cfg.BackupPath)

	if cfg.TargetPath == cfg.BackupPath {
		return errSamePath
	}

	if filepath.Dir(cfg.TargetPath) != filepath.Dir(cfg.BackupPath) {
		return errDifferentDirectories
	}

	if cfg.LockPath == "" {
		cfg.LockPath = filepath.Join(
			filepath.Dir(cfg.TargetPath),
			"."+filepath.Base(cfg.TargetPath)+lockSuffix,
		)
	}

	if !filepath.IsAbs(cfg.LockPath) {
		return fmt.Errorf("lock_path %q: %w", cfg.LockPath, errPathNotAbsolute)
	}

	cfg.LockPath = filepath.Clean(cfg.LockPath)

	if cfg.LockPath == cfg.TargetPath || cfg.LockPath == cfg.BackupPath {
		return fmt.Errorf("lock_path %q: %w", cfg.LockPath, errLockCollides)
	}

	return nil
}

// ArtifactPath returns where the build tool deposits the executable.
func (c *Config) ArtifactPath() string {
	return filepath.Join(c.ProjectDir, "target", c.TargetTriple, "release", c.BinaryName)
}
