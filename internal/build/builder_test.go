package build

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"deployforge/internal/orcherrors"
)

func TestReferenceString(t *testing.T) {
	withHost := Reference{RegistryHost: "123.dkr.ecr.us-east-1.amazonaws.com", Repository: "demo", Tag: "abc"}
	require.Equal(t, "123.dkr.ecr.us-east-1.amazonaws.com/demo:abc", withHost.String())

	local := Reference{Repository: "demo", Tag: "abc"}
	require.Equal(t, "demo:abc", local.String())
}

func TestNewTagUsesShortCommitSuffix(t *testing.T) {
	tag := NewTag("dep-1", "0123456789abcdef")
	require.Equal(t, "dep-1-01234567", tag)
}

func TestNewTagFallsBackWhenCommitEmpty(t *testing.T) {
	tag1 := NewTag("dep-1", "")
	tag2 := NewTag("dep-1", "")
	require.NotEqual(t, tag1, tag2, "empty commit should still yield distinct tags across calls")
}

func TestDialFailsConfigurationErrorWhenKeyBaseDirEmpty(t *testing.T) {
	_, err := Dial(context.Background(), "10.0.0.1", "ec2-user", "mykey", "")
	require.Error(t, err)
	require.Equal(t, orcherrors.KindConfiguration, orcherrors.KindOf(err))
}

func TestDialFailsConfigurationErrorWhenKeyMissing(t *testing.T) {
	dir := t.TempDir()
	_, err := Dial(context.Background(), "10.0.0.1", "ec2-user", "missing-key", dir)
	require.Error(t, err)
	require.Equal(t, orcherrors.KindConfiguration, orcherrors.KindOf(err))
}

func TestDialResolvesPemSuffixBeforeFailingHandshake(t *testing.T) {
	dir := t.TempDir()
	// An invalid key body should still be found (by name) and rejected with a
	// ConfigurationError for being unparsable, not a "not found" error --
	// proves the <name>.pem resolution path is tried first.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "mykey.pem"), []byte("not a real key"), 0o600))

	_, err := Dial(context.Background(), "10.0.0.1", "ec2-user", "mykey", dir)
	require.Error(t, err)
	require.Equal(t, orcherrors.KindConfiguration, orcherrors.KindOf(err))
	require.Contains(t, err.Error(), "not a valid private key")
}
