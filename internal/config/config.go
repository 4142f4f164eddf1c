// Package config loads orchestrator configuration from the environment.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the orchestrator's process-wide configuration, read once at
// startup. Nothing in it is mutated afterward.
type Config struct {
	Addr string

	WorkspaceBaseDir  string
	KeyBaseDir        string
	DefaultDomainName string

	AWSAccessKeyID     string
	AWSSecretAccessKey string
	AWSRegion          string

	AzureOpenAIEndpoint string
	AzureOpenAIAPIKey   string
	AzureOpenAIDeploy   string
	IntentExtraction    bool

	LogLevel string

	IaCApplyTimeout     time.Duration
	CloudHostedTimeout  time.Duration
	RolloutWaitTimeout  time.Duration
	SubprocessGraceTime time.Duration
}

// Load reads Config from the environment, applying the defaults documented in
// spec §6 and failing with a descriptive error for anything that is required
// but absent.
func Load() (Config, error) {
	cfg := Config{
		Addr:               env("ORCHESTRATOR_ADDR", ":8080"),
		WorkspaceBaseDir:    env("PERSISTENT_WORKSPACE_BASE_DIR", "/var/lib/deployforge/workspaces"),
		KeyBaseDir:          env("EC2_PRIVATE_KEY_BASE_PATH", ""),
		DefaultDomainName:   env("DEFAULT_DOMAIN_NAME_FOR_APPS", ""),
		AWSAccessKeyID:      env("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  env("AWS_SECRET_ACCESS_KEY", ""),
		AWSRegion:           env("AWS_REGION", ""),
		AzureOpenAIEndpoint: env("AZURE_OPENAI_ENDPOINT", ""),
		AzureOpenAIAPIKey:   env("AZURE_OPENAI_API_KEY", ""),
		AzureOpenAIDeploy:   env("AZURE_OPENAI_DEPLOYMENT", ""),
		LogLevel:            env("LOG_LEVEL", "info"),
		IaCApplyTimeout:     durationEnv("IAC_APPLY_TIMEOUT", 30*time.Minute),
		CloudHostedTimeout:  durationEnv("CLOUD_HOSTED_TIMEOUT", 60*time.Minute),
		RolloutWaitTimeout:  durationEnv("ROLLOUT_WAIT_TIMEOUT", 5*time.Minute),
		SubprocessGraceTime: durationEnv("SUBPROCESS_GRACE_TIME", 10*time.Second),
	}
	cfg.IntentExtraction = cfg.AzureOpenAIEndpoint != "" && cfg.AzureOpenAIAPIKey != ""

	if strings.TrimSpace(cfg.WorkspaceBaseDir) == "" {
		return Config{}, errors.New("missing PERSISTENT_WORKSPACE_BASE_DIR")
	}
	return cfg, nil
}

// HasDefaultCredentials reports whether server-default AWS credentials were
// configured (§4.12 Credential Scope priority: request body > server default
// > fail).
func (c Config) HasDefaultCredentials() bool {
	return c.AWSAccessKeyID != "" && c.AWSSecretAccessKey != ""
}

func env(key, def string) string {
	if v := os.Getenv(key); strings.TrimSpace(v) != "" {
		return v
	}
	return def
}

func durationEnv(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

func intEnv(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func boolEnv(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

