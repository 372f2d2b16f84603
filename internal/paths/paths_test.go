package paths

import (
	"os"
	"os/user"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserHomeDir_NoSudo(t *testing.T) {
	t.Setenv("SUDO_USER", "")

	got, err := UserHomeDir()
	require.NoError(t, err)

	expected, _ := os.UserHomeDir()
	assert.Equal(t, expected, got)
}

func TestUserHomeDir_WithSudoUser(t *testing.T) {
	currentUser, err := user.Current()
	if err != nil {
		t.Skip("Cannot get current user")
	}
	t.Setenv("SUDO_USER", currentUser.Username)

	got, err := UserHomeDir()
	require.NoError(t, err)
	assert.Equal(t, currentUser.HomeDir, got)
}

func TestUserHomeDir_SudoUserRootIgnored(t *testing.T) {
	t.Setenv("SUDO_USER", "root")

	got, err := UserHomeDir()
	require.NoError(t, err)

	expected, _ := os.UserHomeDir()
	assert.Equal(t, expected, got)
}

func TestUserHomeDir_NonexistentUser(t *testing.T) {
	t.Setenv("SUDO_USER", "nonexistent_user_12345")

	got, err := UserHomeDir()
	require.NoError(t, err)

	expected, _ := os.UserHomeDir()
	assert.Equal(t, expected, got)
}

func TestAppDirOverride(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("EMBRESS_HOME", dir)

	db, err := DatabasePath()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "embress.db"), db)

	cfg, err := ConfigPath()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "config.toml"), cfg)

	act, err := ActivityDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "activity"), act)
}
