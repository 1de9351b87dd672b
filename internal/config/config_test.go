package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg, err := Load("", nil)
	require.NoError(t, err)

	assert.False(t, cfg.Advanced)
	assert.False(t, cfg.Verbose)
	assert.Equal(t, time.Second, cfg.PollInterval)
	assert.Equal(t, 10*time.Second, cfg.ObservationWindow)
	assert.Equal(t, 5*time.Minute, cfg.AutostartWindow)
	assert.Equal(t, 30*time.Second, cfg.TerminalWindow)
	assert.Equal(t, 1, cfg.Workers)
	assert.Equal(t, "auto", cfg.Probe)
}

func TestFlagsOverrideEnv(t *testing.T) {
	t.Setenv("USB_AUDIT_OBSERVE", "3s")
	t.Setenv("USB_AUDIT_WORKERS", "2")
	t.Setenv("USB_AUDIT_VERBOSE", "yes")

	cfg, err := Load("", []string{"-advanced", "-observe", "5s"})
	require.NoError(t, err)

	assert.True(t, cfg.Advanced)
	assert.True(t, cfg.Verbose)
	assert.Equal(t, 5*time.Second, cfg.ObservationWindow)
	assert.Equal(t, 2, cfg.Workers)
}

func TestEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("USB_AUDIT_PROBE=command\nUSB_AUDIT_ADVANCED=true\n"), 0o644))
	// t.Setenv restores the previous state after the test; godotenv only
	// fills variables that are unset.
	t.Setenv("USB_AUDIT_PROBE", "")
	t.Setenv("USB_AUDIT_ADVANCED", "")
	require.NoError(t, os.Unsetenv("USB_AUDIT_PROBE"))
	require.NoError(t, os.Unsetenv("USB_AUDIT_ADVANCED"))

	cfg, err := Load(path, nil)
	require.NoError(t, err)
	assert.Equal(t, "command", cfg.Probe)
	assert.True(t, cfg.Advanced)
}

func TestMissingEnvFileIsFine(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.env"), nil)
	assert.NoError(t, err)
}

func TestInvalidValues(t *testing.T) {
	t.Setenv("USB_AUDIT_POLL_INTERVAL", "soon")
	_, err := Load("", nil)
	assert.Error(t, err)

	t.Setenv("USB_AUDIT_POLL_INTERVAL", "")
	_, err = Load("", []string{"-workers", "0"})
	assert.Error(t, err)

	_, err = Load("", []string{"-probe", "wmi"})
	assert.Error(t, err)
}
