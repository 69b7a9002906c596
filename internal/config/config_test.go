package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/imas/mcp-server/internal/config"
	"github.com/imas/mcp-server/internal/indexing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		config.EnvXMLPath, config.EnvIndexDir, config.EnvIDS, config.EnvBatchSize,
		config.EnvBackend, config.EnvRedisAddr, config.EnvAPIKey,
		config.EnvEmbeddingModel, config.EnvMetricsAddr, config.EnvConfigFile,
	} {
		t.Setenv(key, "")
	}
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	dir := filepath.Join(t.TempDir(), "nested", "index")

	cfg, err := config.Load("test", []string{"-dir", dir})
	require.NoError(t, err)

	assert.Equal(t, "", cfg.XMLPath)
	assert.Equal(t, dir, cfg.IndexDir)
	assert.Nil(t, cfg.IDS)
	assert.Equal(t, indexing.DefaultBatchSize, cfg.BatchSize)
	assert.Equal(t, indexing.PrefixLexicographic, cfg.Backend)
	assert.Equal(t, config.DefaultRedisAddr, cfg.RedisAddr)
	assert.Equal(t, config.DefaultEmbeddingModel, cfg.EmbeddingModel)

	info, err := os.Stat(dir)
	require.NoError(t, err, "index directory must be created")
	assert.True(t, info.IsDir())
}

func TestLoad_Precedence(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	file := writeFile(t, "config.json", `{
		"index_dir": "`+filepath.ToSlash(dir)+`",
		"ids": ["equilibrium", "core_profiles"],
		"batch_size": 100,
		"backend": "semantic",
		"redis_addr": "file:6379",
		"embedding_dimensions": 256
	}`)

	t.Setenv(config.EnvBatchSize, "200")
	t.Setenv(config.EnvRedisAddr, "env:6379")
	t.Setenv(config.EnvAPIKey, "secret")

	cfg, err := config.Load("test", []string{"-config", file, "-redis", "flag:6379"})
	require.NoError(t, err)

	assert.Equal(t, []string{"core_profiles", "equilibrium"}, cfg.IDS.Sorted())
	assert.Equal(t, 200, cfg.BatchSize, "env overrides file")
	assert.Equal(t, "flag:6379", cfg.RedisAddr, "flag overrides env")
	assert.Equal(t, indexing.PrefixSemantic, cfg.Backend)
	assert.Equal(t, 256, cfg.EmbeddingDimensions)
	assert.Equal(t, "secret", cfg.APIKey)
}

func TestLoad_IDSList(t *testing.T) {
	clearEnv(t)
	t.Setenv(config.EnvIDS, "equilibrium, ,core_profiles")

	cfg, err := config.Load("test", []string{"-dir", t.TempDir()})
	require.NoError(t, err)
	assert.Equal(t, []string{"core_profiles", "equilibrium"}, cfg.IDS.Sorted())
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		env     map[string]string
		args    []string
		invalid bool
	}{
		{
			name:    "unknown file property",
			file:    `{"colour": "red"}`,
			invalid: true,
		},
		{
			name:    "file batch size below one",
			file:    `{"batch_size": 0}`,
			invalid: true,
		},
		{
			name:    "file unknown backend",
			file:    `{"backend": "fulltext"}`,
			invalid: true,
		},
		{
			name:    "env batch size not a number",
			env:     map[string]string{config.EnvBatchSize: "many"},
			invalid: true,
		},
		{
			name:    "flag negative batch size",
			args:    []string{"-batch", "-1"},
			invalid: true,
		},
		{
			name:    "flag unknown backend",
			args:    []string{"-backend", "fulltext"},
			invalid: true,
		},
		{
			name: "unknown flag",
			args: []string{"-verbose"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			args := append([]string{"-dir", t.TempDir()}, tt.args...)
			if tt.file != "" {
				args = append(args, "-config", writeFile(t, "config.json", tt.file))
			}

			_, err := config.Load("test", args)
			require.Error(t, err)
			assert.Equal(t, tt.invalid, errors.Is(err, config.ErrInvalid), "error: %v", err)
		})
	}
}

func TestLoad_MissingConfigFile(t *testing.T) {
	clearEnv(t)
	_, err := config.Load("test", []string{"-dir", t.TempDir(), "-config", filepath.Join(t.TempDir(), "missing.json")})
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}
