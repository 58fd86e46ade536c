package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMergeMapsIdempotent(t *testing.T) {
	defaults := map[string]any{"a": 1, "b": map[string]any{"c": 2}}

	merged := MergeMaps(copyMap(defaults), nil)
	require.Equal(t, defaults, merged)

	overrides := map[string]any{"b": map[string]any{"c": 3, "d": 4}}
	once := MergeMaps(copyMap(defaults), overrides)
	twice := MergeMaps(copyMap(once), overrides)
	require.Equal(t, once, twice)
	require.Equal(t, 3, once["b"].(map[string]any)["c"])
	require.Equal(t, 4, once["b"].(map[string]any)["d"])
}

func copyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func TestLoadRawResolvesInclude(t *testing.T) {
	dir := t.TempDir()
	basePath := filepath.Join(dir, "base.yaml")
	mainPath := filepath.Join(dir, "main.yaml")

	require.NoError(t, os.WriteFile(basePath, []byte("workspace:\n  path: /data\n"), 0o600))
	require.NoError(t, os.WriteFile(mainPath, []byte("$include: base.yaml\nserver:\n  port: 9999\n"), 0o600))

	raw, err := LoadRaw(mainPath)
	require.NoError(t, err)
	require.Equal(t, "/data", raw["workspace"].(map[string]any)["path"])
	require.Equal(t, 9999, raw["server"].(map[string]any)["port"])
}

func TestLoadRawDetectsIncludeCycle(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.yaml")
	b := filepath.Join(dir, "b.yaml")
	require.NoError(t, os.WriteFile(a, []byte("$include: b.yaml\n"), 0o600))
	require.NoError(t, os.WriteFile(b, []byte("$include: a.yaml\n"), 0o600))

	_, err := LoadRaw(a)
	require.Error(t, err)
}

func TestDecodeRawConfigRejectsUnknownFields(t *testing.T) {
	raw := map[string]any{"not_a_real_field": true}
	_, err := DecodeRawConfig(raw)
	require.Error(t, err)
}

func TestLoadMissingOverrideReturnsDefault(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	require.Equal(t, Default().Server.Port, cfg.Server.Port)
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "override.yaml")
	cfg := Default()
	cfg.Server.Port = 1234

	require.NoError(t, Save(path, cfg))
	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 1234, loaded.Server.Port)
}
