package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Nomadcxx/embress/internal/config"
	"github.com/Nomadcxx/embress/internal/database"
)

type cliEnv struct {
	root    string
	cfgPath string
	dbPath  string
}

func newEnv(t *testing.T) *cliEnv {
	t.Helper()
	home := t.TempDir()
	t.Setenv("EMBRESS_HOME", home)

	env := &cliEnv{
		root:    filepath.Join(home, "library"),
		cfgPath: filepath.Join(home, "config.toml"),
		dbPath:  filepath.Join(home, "embress.db"),
	}
	require.NoError(t, os.MkdirAll(filepath.Join(env.root, "tv", "Show Name"), 0755))

	cfg := config.DefaultConfig()
	cfg.Library.Root = env.root
	cfg.Scan.Enabled = false
	cfg.Database.Path = env.dbPath
	cfg.Logging.File = filepath.Join(home, "embress.log")
	require.NoError(t, cfg.SaveTo(env.cfgPath))
	return env
}

func (e *cliEnv) file(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(e.root, "tv", "Show Name", name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(name), 0644))
	return path
}

func (e *cliEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--config", e.cfgPath, "--no-color"}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestScanDryRunThenApply(t *testing.T) {
	env := newEnv(t)
	src := env.file(t, "Show.Name.S01E02.mkv")

	out, err := env.run(t, "scan", "--dry-run")
	require.NoError(t, err)
	assert.Contains(t, out, "rename")
	assert.Contains(t, out, filepath.Join("tv", "Show Name", "Season 1", "Show Name - S01E02.mkv"))
	assert.FileExists(t, src)

	out, err = env.run(t, "scan")
	require.NoError(t, err)
	assert.Contains(t, out, "Scan Completed: 1 changes")
	assert.NoFileExists(t, src)

	out, err = env.run(t, "history")
	require.NoError(t, err)
	assert.Contains(t, out, "manual")
}

func TestRollbackSeasonCommand(t *testing.T) {
	env := newEnv(t)
	src := env.file(t, "Show.Name.S02E01.mkv")

	_, err := env.run(t, "scan")
	require.NoError(t, err)

	out, err := env.run(t, "rollback", "season", "Show Name", "2", "--yes")
	require.NoError(t, err)
	assert.Contains(t, out, "Rollback completed: 1 of 1 restored")
	assert.FileExists(t, src)

	out, err = env.run(t, "records", "--show", "Show Name", "--group", "type")
	require.NoError(t, err)
	assert.Contains(t, out, "rolled back")
}

func TestRollbackRunUnknown(t *testing.T) {
	env := newEnv(t)
	_, err := env.run(t, "rollback", "run", "nope", "--yes")
	assert.ErrorIs(t, err, database.ErrNotFound)
}

func TestWhitelistCommands(t *testing.T) {
	env := newEnv(t)
	src := env.file(t, "Show.Name.S01E03.mkv")

	_, err := env.run(t, "whitelist", "add", src)
	require.NoError(t, err)

	out, err := env.run(t, "whitelist", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "file")

	_, err = env.run(t, "scan")
	require.NoError(t, err)
	assert.FileExists(t, src)

	out, err = env.run(t, "whitelist", "remove", src)
	require.NoError(t, err)
	assert.Contains(t, out, "Removed")
}

func TestWhitelistAddBatchFromFile(t *testing.T) {
	env := newEnv(t)
	list := filepath.Join(t.TempDir(), "paths.txt")
	content := strings.Join([]string{"# keep these", env.root + "/tv/Show Name", "", env.root + "/tv/Other.mkv"}, "\n")
	require.NoError(t, os.WriteFile(list, []byte(content), 0644))

	out, err := env.run(t, "whitelist", "add-batch", list)
	require.NoError(t, err)
	assert.Contains(t, out, "Whitelisted 2 paths")

	_, err = env.run(t, "whitelist", "add", "--type", "folder", env.root)
	assert.Error(t, err)
}

func TestRulesSetRejectsInvalidFile(t *testing.T) {
	env := newEnv(t)
	bad := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"season_episode": ["S(\\d+)E(\\d+)", "("]}`), 0644))

	_, err := env.run(t, "rules", "validate", bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pattern 1 in season_episode is invalid")

	_, err = env.run(t, "rules", "set", bad)
	require.Error(t, err)

	out, err := env.run(t, "rules", "show", "--json")
	require.NoError(t, err)
	assert.NotContains(t, out, `"("`)
}

func TestSchedulerAndStatus(t *testing.T) {
	env := newEnv(t)

	out, err := env.run(t, "scheduler", "on")
	require.NoError(t, err)
	assert.Contains(t, out, "Scheduler on, every 1h0m0s")

	out, err = env.run(t, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Scheduler: on, every 1h0m0s")
	assert.Contains(t, out, "Last run:  never")

	_, err = env.run(t, "scheduler", "maybe")
	assert.Error(t, err)
}

func TestReviewListPrintsQueue(t *testing.T) {
	env := newEnv(t)
	env.file(t, "mystery.mkv")

	_, err := env.run(t, "scan")
	require.NoError(t, err)

	out, err := env.run(t, "review", "--list")
	require.NoError(t, err)
	assert.Contains(t, out, "Pending Review: 1 items")
	assert.Contains(t, out, "no pattern matched")
}

func TestConfigInitAndShowMasksSecrets(t *testing.T) {
	t.Setenv("EMBRESS_HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "config.toml")

	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--config", path, "config", "init", "--root", "/srv/media"})
	require.NoError(t, cmd.Execute())

	cfg, err := config.LoadFrom(path)
	require.NoError(t, err)
	assert.Equal(t, "/srv/media", cfg.Library.Root)
	assert.Len(t, cfg.API.AccessKey, 64)

	cmd = newRootCmd()
	out.Reset()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--config", path, "config", "show"})
	require.NoError(t, cmd.Execute())
	assert.NotContains(t, out.String(), cfg.API.AccessKey)
	assert.Contains(t, out.String(), cfg.API.AccessKey[:4]+"****")
}

func TestMaskSecret(t *testing.T) {
	assert.Equal(t, "", maskSecret(""))
	assert.Equal(t, "*****", maskSecret("short"))
	assert.Equal(t, "abcd****mnop", maskSecret("abcdefghmnop"))
}
