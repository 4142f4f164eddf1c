// Package workspace implements the Workspace Store (§4.2): allocating,
// locating, and garbage-collecting per-deployment directories, with the
// advisory per-deployment lock spec §5 requires.
//
// Grounded on agents/manager/internal/state/store.go's mutex-guarded,
// JSON-persisted store shape, generalized from one shared state.json to one
// meta.json per deployment workspace directory.
package workspace

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"deployforge/internal/orcherrors"
)

const (
	dirSource    = "source"
	dirTF        = "tf"
	dirManifests = "manifests"
	dirLogs      = "logs"
	metaFileName = "meta.json"
	tfStateExists = "state.exists"
)

// Paths is the resolved directory layout for one deployment's workspace,
// per §6's stable layout.
type Paths struct {
	Root      string
	Source    string
	TF        string
	Manifests string
	Logs      string
	Meta      string
}

func pathsFor(base, id string) Paths {
	root := filepath.Join(base, id)
	return Paths{
		Root:      root,
		Source:    filepath.Join(root, dirSource),
		TF:        filepath.Join(root, dirTF),
		Manifests: filepath.Join(root, dirManifests),
		Logs:      filepath.Join(root, dirLogs),
		Meta:      filepath.Join(root, metaFileName),
	}
}

// Store allocates, locates, and releases workspaces rooted under BaseDir,
// and owns the per-deployment advisory locks that make P2 ("at most one
// pipeline invocation holds the workspace lock for d at any instant") hold.
type Store struct {
	BaseDir string

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New returns a Store rooted at baseDir, creating it if absent.
func New(baseDir string) (*Store, error) {
	if strings.TrimSpace(baseDir) == "" {
		return nil, orcherrors.Configuration("workspace base directory is empty")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create workspace base dir: %w", err)
	}
	return &Store{BaseDir: baseDir, locks: make(map[string]*sync.Mutex)}, nil
}

// Allocate creates the directory tree for id and writes an initial
// meta.json. It fails if the workspace already exists, unless resumable is
// true (redeploy/scale/resumed-deploy reuse an existing workspace).
func (s *Store) Allocate(id string, mode string, resumable bool) (Paths, error) {
	paths := pathsFor(s.BaseDir, id)
	if _, err := os.Stat(paths.Root); err == nil {
		if !resumable {
			return Paths{}, orcherrors.Validation(fmt.Sprintf("deployment %q already has a workspace", id))
		}
	} else if !os.IsNotExist(err) {
		return Paths{}, err
	}

	for _, d := range []string{paths.Source, paths.TF, paths.Manifests, paths.Logs} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return Paths{}, fmt.Errorf("create workspace subdir %s: %w", d, err)
		}
	}

	if _, err := os.Stat(paths.Meta); os.IsNotExist(err) {
		now := time.Now().UTC()
		m := Meta{ID: id, Mode: mode, Status: "init", CreatedAt: now, UpdatedAt: now}
		if err := writeMeta(paths.Meta, m); err != nil {
			return Paths{}, err
		}
	}
	return paths, nil
}

// Locate performs a read-only lookup of an existing workspace, failing if it
// does not exist.
func (s *Store) Locate(id string) (Paths, error) {
	paths := pathsFor(s.BaseDir, id)
	if _, err := os.Stat(paths.Root); err != nil {
		return Paths{}, orcherrors.Validation(fmt.Sprintf("no workspace for deployment %q", id))
	}
	return paths, nil
}

// Exists reports whether a workspace directory for id is present, without
// erroring when it is absent.
func (s *Store) Exists(id string) bool {
	_, err := os.Stat(pathsFor(s.BaseDir, id).Root)
	return err == nil
}

// Lock acquires the advisory exclusive lock for id, blocking until any
// concurrent pipeline for the same id releases it. The returned func
// releases the lock; callers must defer it.
func (s *Store) Lock(id string) func() {
	s.mu.Lock()
	l, ok := s.locks[id]
	if !ok {
		l = &sync.Mutex{}
		s.locks[id] = l
	}
	s.mu.Unlock()

	l.Lock()
	return l.Unlock
}

// Release recursively deletes the workspace for id. It refuses unless
// force is true or the tf/ state-exists marker is absent — a workspace with
// live IaC state must go through IaC destroy first (§4.2 invariant).
func (s *Store) Release(id string, force bool) error {
	paths := pathsFor(s.BaseDir, id)
	if !force {
		if _, err := os.Stat(filepath.Join(paths.TF, tfStateExists)); err == nil {
			return orcherrors.Decommission(fmt.Sprintf("workspace %q still has IaC state; destroy before release", id), nil)
		}
	}
	if err := os.RemoveAll(paths.Root); err != nil {
		return fmt.Errorf("release workspace %q: %w", id, err)
	}
	return nil
}

// MarkStateExists writes the tf/state.exists marker file, called by the
// pipeline immediately after a successful IaC apply so Release can enforce the
// "destroy before release" invariant even after a process restart.
func MarkStateExists(paths Paths) error {
	return os.WriteFile(filepath.Join(paths.TF, tfStateExists), []byte("1"), 0o644)
}

// ClearStateExists removes the marker after a successful destroy.
func ClearStateExists(paths Paths) error {
	err := os.Remove(filepath.Join(paths.TF, tfStateExists))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// ReadMeta loads meta.json for id.
func (s *Store) ReadMeta(id string) (Meta, error) {
	paths := pathsFor(s.BaseDir, id)
	return readMeta(paths.Meta)
}

// WriteMeta persists m to id's meta.json, stamping UpdatedAt.
func (s *Store) WriteMeta(id string, m Meta) error {
	paths := pathsFor(s.BaseDir, id)
	m.UpdatedAt = time.Now().UTC()
	return writeMeta(paths.Meta, m)
}

func readMeta(path string) (Meta, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Meta{}, err
	}
	var m Meta
	if err := json.Unmarshal(b, &m); err != nil {
		return Meta{}, err
	}
	return m, nil
}

func writeMeta(path string, m Meta) error {
	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
