// Package source implements the Source Fetcher (§4.4): cloning a
// repository into a workspace and producing a best-effort Snapshot of its
// contents. Grounded on kindling-sh-kindling/cli/core/load.go's filesystem
// probing style (resolve context, stat for presence) and the Subprocess
// Runner for the actual `git clone`.
package source

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"deployforge/internal/events"
	"deployforge/internal/orcherrors"
	"deployforge/internal/subprocess"
)

// recipeFiles are checked, in order, for the presence of a container build
// recipe at the repository root.
var recipeFiles = []string{"Dockerfile", "Containerfile", "dockerfile"}

var readmeFiles = []string{"README.md", "readme.md", "README", "README.rst"}

// Snapshot is the immutable result of cloning a repository (§3).
type Snapshot struct {
	RepoURL          string
	Commit           string
	HasRecipe        bool
	HasReadme        bool
	BuildCommand     string
	RunCommand       string
	DetectedPorts    []int
}

// Fetcher clones repositories into workspace/source/ via the Subprocess
// Runner.
type Fetcher struct {
	Runner *subprocess.Runner
}

// New returns a Fetcher using runner for the underlying `git` invocation.
func New(runner *subprocess.Runner) *Fetcher {
	return &Fetcher{Runner: runner}
}

// Fetch clones repoURL into sourceDir and summarizes it (§4.4). A missing
// container recipe is reported via Snapshot.HasRecipe rather than failing
// outright — the pipeline decides whether to abort (current behavior: it
// does, per §4.4).
func (f *Fetcher) Fetch(ctx context.Context, repoURL, sourceDir string, sink events.Sink) (Snapshot, error) {
	events.Start(sink, "clone", "cloning "+repoURL)

	res, err := f.Runner.Run(ctx, "clone", "", "git", []string{"clone", "--depth", "1", repoURL, sourceDir}, nil, 5*time.Minute, sink)
	if err != nil {
		events.End(sink, "clone", err)
		return Snapshot{}, err
	}
	if res.ExitCode != 0 {
		err := orcherrors.Source("git clone failed", orcherrors.SubprocessExit("git", res.ExitCode, strings.Join(res.Tail, "\n")))
		events.End(sink, "clone", err)
		return Snapshot{}, err
	}

	commit, _ := f.Runner.RunCapture(ctx, sourceDir, "git", "rev-parse", "HEAD")

	snap := Snapshot{RepoURL: repoURL, Commit: strings.TrimSpace(commit)}
	snap.HasRecipe = hasAny(sourceDir, recipeFiles)
	snap.HasReadme = hasAny(sourceDir, readmeFiles)

	if !snap.HasRecipe {
		events.Warn(sink, "clone", "no container recipe found at repository root")
	}

	if snap.HasReadme {
		snap.BuildCommand, snap.RunCommand, snap.DetectedPorts = extractHints(sourceDir, readmeFiles)
	}

	events.End(sink, "clone", nil)
	return snap, nil
}

func hasAny(dir string, names []string) bool {
	for _, n := range names {
		if _, err := os.Stat(filepath.Join(dir, n)); err == nil {
			return true
		}
	}
	return false
}

var (
	buildRe = regexp.MustCompile(`(?im)^\s*(?:\x60\x60\x60)?\s*(?:\$\s*)?(?:npm|yarn|go|make|cargo|pip|mvn|gradle|docker)\s+(?:run\s+)?build\b.*$`)
	runRe   = regexp.MustCompile(`(?im)^\s*(?:\x60\x60\x60)?\s*(?:\$\s*)?(?:npm|yarn|go|make|python3?|node|java|cargo)\s+(?:run\s+)?(?:start|run)\b.*$`)
	portRe  = regexp.MustCompile(`(?i)\bport\D{0,5}(\d{2,5})\b`)
)

// extractHints is a single best-effort pass of heuristic keyword matching
// over the readme — build, run, start, port — per §4.4. Failure to extract
// anything is non-fatal; callers get zero values.
func extractHints(sourceDir string, candidates []string) (build, run string, ports []int) {
	for _, name := range candidates {
		b, err := os.ReadFile(filepath.Join(sourceDir, name))
		if err != nil {
			continue
		}
		text := string(b)
		if m := buildRe.FindString(text); m != "" {
			build = strings.TrimSpace(strings.Trim(m, "`$ "))
		}
		if m := runRe.FindString(text); m != "" {
			run = strings.TrimSpace(strings.Trim(m, "`$ "))
		}
		seen := map[int]bool{}
		for _, m := range portRe.FindAllStringSubmatch(text, -1) {
			if len(m) != 2 {
				continue
			}
			p := atoiSafe(m[1])
			if p == 0 || seen[p] {
				continue
			}
			seen[p] = true
			ports = append(ports, p)
		}
		break
	}
	return build, run, ports
}

func atoiSafe(s string) int {
	n := 0
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0
		}
		n = n*10 + int(c-'0')
	}
	return n
}
