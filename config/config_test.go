package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ebpf-verifier.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
domain = "interval"
check_termination = true
widening_delay = 3
thresholds = [0, 64]
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.True(t, cfg.CheckTermination)
	assert.Equal(t, 3, cfg.WideningDelay)
	assert.Equal(t, []int64{0, 64}, cfg.Thresholds)
	// Keys absent from the file keep their defaults.
	assert.Equal(t, Default().NarrowingPasses, cfg.NarrowingPasses)
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ebpf-verifier.toml")
	require.NoError(t, os.WriteFile(path, []byte("no_such_key = 1\n"), 0o644))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ebpf-verifier.toml")
	require.NoError(t, os.WriteFile(path, []byte("domain = [unclosed\n"), 0o644))
	_, err := Load(path)
	assert.Error(t, err)
}
