// Package credentials implements the Credential Scope (§4.12 / §3): cloud
// credentials bound to a single pipeline invocation, injected into
// subprocess environments, and never persisted or echoed back in Progress
// Event text.
package credentials

import (
	"strings"

	"deployforge/internal/config"
	"deployforge/internal/orcherrors"
)

// Scope is the {access key, secret key, region} bundle for one pipeline
// invocation. It is constructed fresh per request and discarded when the
// invocation returns — nothing here is ever written to disk.
type Scope struct {
	AccessKeyID     string
	SecretAccessKey string
	Region          string
}

// RequestCredentials is the subset of the chat request body carrying
// caller-supplied AWS credentials (§4.10 aws_credentials field).
type RequestCredentials struct {
	AccessKeyID     string `json:"access_key_id"`
	SecretAccessKey string `json:"secret_access_key"`
	Region          string `json:"region"`
}

// Acquire resolves a Scope in priority order: request body > server default
// environment > fail (§4.12). required is true for cloud-local/cloud-hosted
// deploys; for local deploys no credentials are ever required.
func Acquire(req *RequestCredentials, cfg config.Config, required bool) (Scope, error) {
	if req != nil && strings.TrimSpace(req.AccessKeyID) != "" && strings.TrimSpace(req.SecretAccessKey) != "" {
		region := strings.TrimSpace(req.Region)
		if region == "" {
			region = cfg.AWSRegion
		}
		return Scope{
			AccessKeyID:     req.AccessKeyID,
			SecretAccessKey: req.SecretAccessKey,
			Region:          region,
		}, nil
	}
	if cfg.HasDefaultCredentials() {
		return Scope{
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
			Region:          cfg.AWSRegion,
		}, nil
	}
	if !required {
		return Scope{}, nil
	}
	return Scope{}, orcherrors.Credential("no AWS credentials supplied in request or server defaults")
}

// Env returns the subprocess environment map entries carrying these
// credentials. Callers append this to a fuller environment (PATH, HOME,
// ...) before invoking the Subprocess Runner — credentials only ever flow
// this way, never via a file on disk (§9 Design Notes).
func (s Scope) Env() map[string]string {
	if s.AccessKeyID == "" {
		return nil
	}
	return map[string]string{
		"AWS_ACCESS_KEY_ID":     s.AccessKeyID,
		"AWS_SECRET_ACCESS_KEY": s.SecretAccessKey,
		"AWS_REGION":            s.Region,
	}
}

// Redact replaces any occurrence of the scope's secret material in text with
// a fixed placeholder. Every Progress Event produced while a Scope is live
// must be passed through this before reaching the chat stream (P3).
func (s Scope) Redact(text string) string {
	if s.AccessKeyID != "" {
		text = strings.ReplaceAll(text, s.AccessKeyID, "***")
	}
	if s.SecretAccessKey != "" {
		text = strings.ReplaceAll(text, s.SecretAccessKey, "***")
	}
	return text
}
