package template

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidateAllParsesEmbeddedTemplates(t *testing.T) {
	require.NoError(t, ValidateAll())
}

func TestRenderDeploymentManifest(t *testing.T) {
	r := New()
	out := filepath.Join(t.TempDir(), "deployment.yaml")
	path, err := r.Render("deployment.yaml.tmpl", map[string]any{
		"Namespace": "ns-a",
		"AppName":   "demo",
		"Image":     "demo:abc123",
		"Port":      8080,
		"Replicas":  2,
	}, out)
	require.NoError(t, err)
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(b), "replicas: 2")
	require.Contains(t, string(b), "image: demo:abc123")
}

func TestRenderFailsFastOnMissingVariables(t *testing.T) {
	r := New()
	_, err := r.Render("deployment.yaml.tmpl", map[string]any{
		"Namespace": "ns-a",
	}, filepath.Join(t.TempDir(), "out.yaml"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "AppName")
	require.Contains(t, err.Error(), "Image")
}

func TestRenderUnknownTemplate(t *testing.T) {
	r := New()
	_, err := r.Render("nope.tmpl", nil, filepath.Join(t.TempDir(), "out.yaml"))
	require.Error(t, err)
}

func TestRenderIsReproducible(t *testing.T) {
	r := New()
	vars := map[string]any{"Namespace": "ns-a", "DeploymentID": "Dep One!"}
	out1 := filepath.Join(t.TempDir(), "a.yaml")
	out2 := filepath.Join(t.TempDir(), "b.yaml")
	_, err := r.Render("namespace.yaml.tmpl", vars, out1)
	require.NoError(t, err)
	_, err = r.Render("namespace.yaml.tmpl", vars, out2)
	require.NoError(t, err)
	b1, _ := os.ReadFile(out1)
	b2, _ := os.ReadFile(out2)
	require.Equal(t, string(b1), string(b2))
	require.Contains(t, string(b1), "dep-one")
}
