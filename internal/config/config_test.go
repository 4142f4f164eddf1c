package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PERSISTENT_WORKSPACE_BASE_DIR", "/tmp/deployforge-ws")
	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "/tmp/deployforge-ws", cfg.WorkspaceBaseDir)
	require.Equal(t, ":8080", cfg.Addr)
	require.False(t, cfg.IntentExtraction)
}

func TestLoadMissingWorkspaceDir(t *testing.T) {
	t.Setenv("PERSISTENT_WORKSPACE_BASE_DIR", "")
	_, err := Load()
	require.Error(t, err)
}

func TestIntentExtractionEnabledWhenAzureConfigured(t *testing.T) {
	t.Setenv("PERSISTENT_WORKSPACE_BASE_DIR", "/tmp/deployforge-ws")
	t.Setenv("AZURE_OPENAI_ENDPOINT", "https://example.openai.azure.com")
	t.Setenv("AZURE_OPENAI_API_KEY", "secret")
	cfg, err := Load()
	require.NoError(t, err)
	require.True(t, cfg.IntentExtraction)
}

func TestHasDefaultCredentials(t *testing.T) {
	cfg := Config{AWSAccessKeyID: "ak", AWSSecretAccessKey: "sk"}
	require.True(t, cfg.HasDefaultCredentials())
	require.False(t, Config{}.HasDefaultCredentials())
}
