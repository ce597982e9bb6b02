package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWithoutFileOrFlags(t *testing.T) {
	cfg, err := Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, "/dev/ttyS1", cfg.Port)
	assert.Equal(t, 57600, cfg.BaudRate)
	assert.Equal(t, 8, cfg.ByteSize)
	assert.Equal(t, 0, cfg.Parity)
	assert.Equal(t, 1, cfg.StopBits)
	assert.Equal(t, 20*time.Second, cfg.CommandTimeout)
	assert.Equal(t, "/opt/serclient", cfg.RootDir)
}

func TestLoadReadsIniFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "serclient.ini")
	content := "[serial]\nport = /dev/ttyUSB3\nbaudrate = 115200\n\n[agent]\ncommand_timeout_seconds = 5\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path, nil)
	require.NoError(t, err)
	assert.Equal(t, "/dev/ttyUSB3", cfg.Port)
	assert.Equal(t, 115200, cfg.BaudRate)
	assert.Equal(t, 5*time.Second, cfg.CommandTimeout)
	// unset-in-file keys still fall back to defaults
	assert.Equal(t, 8, cfg.ByteSize)
}

func TestFlagsOverrideFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "serclient.ini")
	require.NoError(t, os.WriteFile(path, []byte("[serial]\nport = /dev/ttyUSB3\n"), 0o644))

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("port", "/dev/ttyS1", "")
	require.NoError(t, flags.Parse([]string{"--port=/dev/ttyACM0"}))

	cfg, err := Load(path, flags)
	require.NoError(t, err)
	assert.Equal(t, "/dev/ttyACM0", cfg.Port)
}
