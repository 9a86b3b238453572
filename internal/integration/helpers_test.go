package integration

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/gookit/color"
	"github.com/stretchr/testify/require"

	"github.com/oshokin/ruls-install/internal/config"
	"github.com/oshokin/ruls-install/internal/identity"
	"github.com/oshokin/ruls-install/internal/report"
	"github.com/oshokin/ruls-install/internal/repository/filesystem"
	"github.com/oshokin/ruls-install/internal/runner"
	"github.com/oshokin/ruls-install/internal/service/common"
)

const (
	// fakeCargo answers --version and writes an artifact on build.
	fakeCargo = `#!/bin/sh
case "$1" in
--version)
	echo "cargo 1.80.0 (integration)"
	;;
build)
	mkdir -p "target/$4/release"
	printf 'ruls release\n' > "target/$4/release/ruls"
	chmod 755 "target/$4/release/ruls"
	;;
*)
	exit 2
	;;
esac
`
	// fakeRustup lists the musl target as installed.
	fakeRustup = `#!/bin/sh
echo x86_64-unknown-linux-musl
`
)

var (
	originalLS = []byte("original ls\n")
	builtRuls  = []byte("ruls release\n")
)

func init() { //nolint:gochecknoinits // Plain text makes assertions readable.
	color.Disable()
}

// env is a sandboxed install root with a scripted toolchain on disk.
type env struct {
	dir  string
	cfg  *config.Config
	deps *common.Dependencies
	out  *bytes.Buffer
}

// writeExecutable creates an executable script.
func writeExecutable(t *testing.T, path, body string) {
	t.Helper()

	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o755))
}

// newEnv lays out bin/, project/, toolchain/ and system/ under a temp dir,
// saves a configuration pointing at them and loads it back.
func newEnv(t *testing.T, elevated bool) *env {
	t.Helper()

	dir := t.TempDir()
	toolchainDir := filepath.Join(dir, "toolchain")
	systemDir := filepath.Join(dir, "system")

	writeExecutable(t, filepath.Join(toolchainDir, "cargo"), fakeCargo)
	writeExecutable(t, filepath.Join(toolchainDir, "rustup"), fakeRustup)
	writeExecutable(t, filepath.Join(systemDir, "musl-gcc"), "#!/bin/sh\n")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "bin"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "project"), 0o755))

	cfg := config.Default()
	cfg.TargetPath = filepath.Join(dir, "bin", "ls")
	cfg.BackupPath = filepath.Join(dir, "bin", "ls.ruls-backup")
	cfg.ProjectDir = filepath.Join(dir, "project")
	cfg.SystemPath = []string{systemDir}
	cfg.Toolchain.UserPath = []string{toolchainDir}

	cfgPath := filepath.Join(dir, config.DefaultConfigFilename)
	require.NoError(t, config.Save(cfgPath, cfg))

	loaded, err := config.Load(cfgPath)
	require.NoError(t, err)

	// The runner never switches users here: the test may not be root.
	invoking := identity.Resolve(identity.SystemEnvironment()).Invoking

	var out bytes.Buffer

	return &env{
		dir: dir,
		cfg: loaded,
		deps: &common.Dependencies{
			Filesystem: filesystem.NewOS(),
			Identity:   &identity.Identity{Invoking: invoking, Elevated: elevated},
			Runner: runner.New(&identity.Identity{Invoking: invoking},
				runner.WithUserPath(loaded.Toolchain.UserPath...),
				runner.WithSystemPath(loaded.SystemPath...),
			),
			Reporter: report.New(&out, &out, common.CommandName),
		},
		out: &out,
	}
}

// read returns the content of path or nil when it does not exist.
func read(t *testing.T, path string) []byte {
	t.Helper()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}

	require.NoError(t, err)

	return data
}

// binEntries lists the names in the install directory.
func (e *env) binEntries(t *testing.T) []string {
	t.Helper()

	entries, err := os.ReadDir(filepath.Dir(e.cfg.TargetPath))
	require.NoError(t, err)

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		names = append(names, entry.Name())
	}

	return names
}
