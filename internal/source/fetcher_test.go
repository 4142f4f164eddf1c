package source

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"deployforge/internal/events"
	"deployforge/internal/subprocess"
)

func mustGitRepo(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	run := func(args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		cmd.Env = append(os.Environ(), "GIT_AUTHOR_NAME=t", "GIT_AUTHOR_EMAIL=t@t.com", "GIT_COMMITTER_NAME=t", "GIT_COMMITTER_EMAIL=t@t.com")
		require.NoError(t, cmd.Run())
	}
	run("init", "-q")
	run("add", "-A")
	run("commit", "-q", "-m", "init")
	return dir
}

func TestFetchDetectsRecipeAndHints(t *testing.T) {
	repo := mustGitRepo(t, map[string]string{
		"Dockerfile": "FROM scratch",
		"README.md":  "## Build\n\n`npm run build`\n\n## Run\n\n`npm start`\n\nListens on port 3000.\n",
	})

	fetcher := New(subprocess.New(2 * time.Second))
	dest := filepath.Join(t.TempDir(), "source")
	sink := make(events.ChannelSink, 64)
	snap, err := fetcher.Fetch(context.Background(), repo, dest, sink)
	require.NoError(t, err)
	require.True(t, snap.HasRecipe)
	require.True(t, snap.HasReadme)
	require.NotEmpty(t, snap.Commit)
	require.Contains(t, snap.DetectedPorts, 3000)
}

func TestFetchWarnsWhenNoRecipe(t *testing.T) {
	repo := mustGitRepo(t, map[string]string{"main.go": "package main"})

	fetcher := New(subprocess.New(2 * time.Second))
	dest := filepath.Join(t.TempDir(), "source")
	sink := make(events.ChannelSink, 64)
	snap, err := fetcher.Fetch(context.Background(), repo, dest, sink)
	require.NoError(t, err)
	require.False(t, snap.HasRecipe)

	var sawWarn bool
	for {
		select {
		case p := <-sink:
			if p.Severity == events.SeverityWarn {
				sawWarn = true
			}
		default:
			require.True(t, sawWarn, "expected a warning about missing recipe")
			return
		}
	}
}
