package supervisor

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

func TestWithDefaultsFillsUnsetFields(t *testing.T) {
	c := Config{}.withDefaults()
	require.Equal(t, defaultChromePath, c.ChromePath)
	require.Equal(t, defaultStartupTimeout, c.StartupTimeout)
	require.Equal(t, defaultTermGrace, c.TermGrace)
	require.Equal(t, defaultKillGrace, c.KillGrace)
	require.NotNil(t, c.Headless)
	require.True(t, *c.Headless, "Headless must default to true per spec §3")
	require.NotNil(t, c.CleanDataDir)
	require.True(t, *c.CleanDataDir, "CleanDataDir must default to true per spec §3")
}

func TestWithDefaultsPreservesExplicitFalseBooleans(t *testing.T) {
	c := Config{Headless: Bool(false), CleanDataDir: Bool(false)}.withDefaults()
	require.NotNil(t, c.Headless)
	require.False(t, *c.Headless)
	require.NotNil(t, c.CleanDataDir)
	require.False(t, *c.CleanDataDir)
}

func TestWithDefaultsPreservesExplicitFields(t *testing.T) {
	c := Config{ChromePath: "/opt/chrome"}.withDefaults()
	require.Equal(t, "/opt/chrome", c.ChromePath)
}

func TestBuildArgsIncludesRemoteDebuggingPipeAndUserDataDir(t *testing.T) {
	args := buildArgs(Config{Headless: Bool(true)}, "/tmp/profile")
	require.Contains(t, args, "--remote-debugging-pipe")
	require.Contains(t, args, "--user-data-dir=/tmp/profile")
	require.Contains(t, args, "--headless")
	require.Equal(t, "about:blank", args[len(args)-1])
}

func TestBuildArgsSuppressesDefaultFlag(t *testing.T) {
	args := buildArgs(Config{ExtraArgs: []string{"!disable-sync"}}, "/tmp/profile")
	require.NotContains(t, args, "--disable-sync")
}

func TestBuildArgsPassesThroughExtraArgs(t *testing.T) {
	args := buildArgs(Config{ExtraArgs: []string{"--window-size=800,600"}}, "/tmp/profile")
	require.Contains(t, args, "--window-size=800,600")
}

func TestBuildArgsOmitsHeadlessWhenDisabled(t *testing.T) {
	args := buildArgs(Config{Headless: Bool(false)}, "/tmp/profile")
	require.NotContains(t, args, "--headless")
}

func TestBuildArgsOmitsHeadlessWhenUnset(t *testing.T) {
	args := buildArgs(Config{}, "/tmp/profile")
	require.NotContains(t, args, "--headless", "buildArgs must not assume a default; callers pass a Config already run through withDefaults")
}

func TestNewDataDirAllocatesEphemeralTempDirWhenUnset(t *testing.T) {
	fs := afero.NewMemMapFs()
	d, err := newDataDir(fs, Config{CleanDataDir: Bool(true)})
	require.NoError(t, err)
	require.True(t, d.ephemeral)
	exists, err := afero.DirExists(fs, d.path)
	require.NoError(t, err)
	require.True(t, exists)
}

func TestNewDataDirWipesExistingDirWhenCleanRequested(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("/profile", 0o755))
	require.NoError(t, afero.WriteFile(fs, "/profile/stale.txt", []byte("x"), 0o644))

	_, err := newDataDir(fs, Config{UserDataDir: "/profile", CleanDataDir: Bool(true)})
	require.NoError(t, err)

	exists, err := afero.Exists(fs, "/profile/stale.txt")
	require.NoError(t, err)
	require.False(t, exists)
}

func TestNewDataDirKeepsExistingDirWhenCleanNotRequested(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("/profile", 0o755))
	require.NoError(t, afero.WriteFile(fs, "/profile/keep.txt", []byte("x"), 0o644))

	_, err := newDataDir(fs, Config{UserDataDir: "/profile", CleanDataDir: Bool(false)})
	require.NoError(t, err)

	exists, err := afero.Exists(fs, "/profile/keep.txt")
	require.NoError(t, err)
	require.True(t, exists)
}

func TestDataDirCleanupAlwaysRemovesEphemeralDir(t *testing.T) {
	fs := afero.NewMemMapFs()
	d, err := newDataDir(fs, Config{CleanDataDir: Bool(false)})
	require.NoError(t, err)

	require.NoError(t, d.cleanup())
	exists, err := afero.DirExists(fs, d.path)
	require.NoError(t, err)
	require.False(t, exists)
}

func TestDataDirCleanupKeepsConfiguredDirWhenCleanDataDirFalse(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("/profile", 0o755))

	d, err := newDataDir(fs, Config{UserDataDir: "/profile", CleanDataDir: Bool(false)})
	require.NoError(t, err)

	require.NoError(t, d.cleanup())
	exists, err := afero.DirExists(fs, "/profile")
	require.NoError(t, err)
	require.True(t, exists)
}
