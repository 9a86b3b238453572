package installer

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/gookit/color"
	"github.com/stretchr/testify/require"

	"github.com/oshokin/ruls-install/internal/config"
	"github.com/oshokin/ruls-install/internal/domain/failure"
	"github.com/oshokin/ruls-install/internal/identity"
	"github.com/oshokin/ruls-install/internal/report"
	"github.com/oshokin/ruls-install/internal/repository/filesystem"
	"github.com/oshokin/ruls-install/internal/runner/fake"
	"github.com/oshokin/ruls-install/internal/service/common"
)

const (
	cargoVersion = "cargo --version"
	listTargets  = "rustup target list --installed"
	cargoBuild   = "cargo build --release --target x86_64-unknown-linux-musl"
)

var (
	original = []byte("original ls")
	built    = []byte("ruls release")
	errExit  = errors.New("exit status 101")
)

func init() { //nolint:gochecknoinits // Plain text makes assertions readable.
	color.Disable()
}

// fixture is one installer run against memory.
type fixture struct {
	cfg    *config.Config
	fsys   *filesystem.Memory
	runner *fake.Runner
	deps   *common.Dependencies
	out    *bytes.Buffer
	errOut *bytes.Buffer
}

// newFixture prepares a slot holding the original tool and a toolchain that
// builds successfully. build decides what the build step does.
func newFixture(t *testing.T, elevated bool, build fake.Response) *fixture {
	t.Helper()

	// The system compiler is looked up on the real disk.
	systemDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(systemDir, "musl-gcc"), []byte("#!/bin/sh\n"), 0o755))

	cfg := config.Default()
	cfg.ProjectDir = "/src/ruls"
	cfg.SystemPath = []string{systemDir}
	require.NoError(t, config.Validate(cfg))

	fsys := filesystem.NewMemory()
	require.NoError(t, fsys.WriteFile(cfg.TargetPath, original, 0o755))

	r := fake.New().
		On(cargoVersion, fake.Response{Output: "cargo 1.80.0\n"}).
		On(listTargets, fake.Response{Output: cfg.TargetTriple + "\n"}).
		On(cargoBuild, build)

	var out, errOut bytes.Buffer

	return &fixture{
		cfg:    cfg,
		fsys:   fsys,
		runner: r,
		deps: &common.Dependencies{
			Filesystem: fsys,
			Identity: &identity.Identity{
				Invoking: identity.User{Username: "oleg", UID: 1000, GID: 1000, HomeDir: "/home/oleg"},
				Elevated: elevated,
			},
			Runner:   r,
			Reporter: report.New(&out, &errOut, common.CommandName),
		},
		out:    &out,
		errOut: &errOut,
	}
}

// files returns every file on the fixture's filesystem with its content.
func (f *fixture) files(t *testing.T) map[string]string {
	t.Helper()

	names, err := f.fsys.Files()
	require.NoError(t, err)

	contents := make(map[string]string, len(names))

	for _, name := range names {
		data, err := f.fsys.ReadFile(name)
		require.NoError(t, err)

		contents[name] = string(data)
	}

	return contents
}

// withBuildingFixture returns a fixture whose build writes the artifact.
func withBuildingFixture(t *testing.T, elevated bool) *fixture {
	t.Helper()

	f := newFixture(t, elevated, fake.Response{})
	f.runner.On(cargoBuild, fake.Response{Effect: func() {
		require.NoError(t, f.fsys.WriteFile(f.cfg.ArtifactPath(), built, 0o755))
	}})

	return f
}

// TestInstall builds as the invoking user and installs with a backup.
func TestInstall(t *testing.T) {
	t.Parallel()

	f := withBuildingFixture(t, true)

	require.NoError(t, Install(context.Background(), f.cfg, f.deps, &Options{}))

	require.Equal(t, []string{cargoVersion, listTargets, cargoBuild}, f.runner.Calls())

	target, err := f.fsys.ReadFile(f.cfg.TargetPath)
	require.NoError(t, err)
	require.Equal(t, built, target)

	backup, err := f.fsys.ReadFile(f.cfg.BackupPath)
	require.NoError(t, err)
	require.Equal(t, original, backup)

	require.Contains(t, f.out.String(), "Installed /usr/local/bin/ls.")
	require.Contains(t, f.out.String(), "sudo ruls-install uninstall")
}

// TestInstallRequiresElevationBeforeBuilding never starts the toolchain.
func TestInstallRequiresElevationBeforeBuilding(t *testing.T) {
	t.Parallel()

	f := withBuildingFixture(t, false)
	before := f.files(t)

	err := Install(context.Background(), f.cfg, f.deps, &Options{})

	require.ErrorIs(t, err, failure.ErrPrivilegeRequired)
	require.Empty(t, f.runner.Calls())
	require.Equal(t, before, f.files(t))
}

// TestApplyRequiresElevation rejects a direct apply without root.
func TestApplyRequiresElevation(t *testing.T) {
	t.Parallel()

	f := newFixture(t, false, fake.Response{})
	require.NoError(t, f.fsys.WriteFile(f.cfg.ArtifactPath(), built, 0o755))

	before := f.files(t)

	err := Install(context.Background(), f.cfg, f.deps, &Options{SkipBuild: true})

	require.ErrorIs(t, err, failure.ErrPrivilegeRequired)
	require.Equal(t, before, f.files(t))
}

// TestApplyArtifactOverride installs the given file without building.
func TestApplyArtifactOverride(t *testing.T) {
	t.Parallel()

	f := newFixture(t, true, fake.Response{})
	require.NoError(t, f.fsys.WriteFile("/tmp/ruls", built, 0o700))

	err := Install(context.Background(), f.cfg, f.deps, &Options{SkipBuild: true, Artifact: "/tmp/ruls"})
	require.NoError(t, err)
	require.Empty(t, f.runner.Calls())

	target, err := f.fsys.ReadFile(f.cfg.TargetPath)
	require.NoError(t, err)
	require.Equal(t, built, target)
}

// TestInstallBuildFailure leaves the slot untouched.
func TestInstallBuildFailure(t *testing.T) {
	t.Parallel()

	f := newFixture(t, true, fake.Response{Err: errExit})
	before := f.files(t)

	err := Install(context.Background(), f.cfg, f.deps, &Options{})

	require.ErrorIs(t, err, failure.ErrBuildFailed)
	require.Equal(t, before, f.files(t))
}

// TestInstallArtifactNotProduced fails closed after a successful build.
func TestInstallArtifactNotProduced(t *testing.T) {
	t.Parallel()

	f := newFixture(t, true, fake.Response{})
	before := f.files(t)

	err := Install(context.Background(), f.cfg, f.deps, &Options{})

	require.ErrorIs(t, err, failure.ErrArtifactMissing)
	require.True(t, failure.IsBuildFailure(err))
	require.Equal(t, before, f.files(t))
}

// TestInstallMissingToolchain stops before building.
func TestInstallMissingToolchain(t *testing.T) {
	t.Parallel()

	f := withBuildingFixture(t, true)
	f.runner.On(cargoVersion, fake.Response{Err: errExit})

	err := Install(context.Background(), f.cfg, f.deps, &Options{})

	require.ErrorIs(t, err, failure.ErrMissingToolchain)
	require.Equal(t, []string{cargoVersion}, f.runner.Calls())
}

// TestInstallDryRun works without root and changes nothing.
func TestInstallDryRun(t *testing.T) {
	t.Parallel()

	f := withBuildingFixture(t, false)

	require.NoError(t, Install(context.Background(), f.cfg, f.deps, &Options{DryRun: true}))

	target, err := f.fsys.ReadFile(f.cfg.TargetPath)
	require.NoError(t, err)
	require.Equal(t, original, target)

	exists, err := filesystem.Exists(f.fsys, f.cfg.BackupPath)
	require.NoError(t, err)
	require.False(t, exists)

	require.Contains(t, f.out.String(), "Dry run")
	require.Contains(t, f.out.String(), "backup /usr/local/bin/ls -> /usr/local/bin/ls.ruls-backup")
	require.Contains(t, f.out.String(), "resulting state: installed-with-backup")
}
