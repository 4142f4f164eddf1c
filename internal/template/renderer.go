// Package template implements the Template Renderer (§4.3): pure,
// reproducible substitution of a flat variable bag into a named,
// binary-embedded template, producing a file on disk.
package template

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"text/template"

	"deployforge/internal/orcherrors"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

// Spec names a bundled template and the variables it requires. Variable
// sets are part of the contract; Render checks them on every call, and
// ValidateAll parses every template body at startup (§9 Design Notes).
type Spec struct {
	Name     string
	Required []string
}

// Registry is the set of templates this binary knows how to render.
var Registry = []Spec{
	{Name: "pulumi-project.yaml.tmpl", Required: []string{"ProjectName", "StackName"}},
	{Name: "kind-cluster.yaml.tmpl", Required: []string{"ClusterName"}},
	{Name: "namespace.yaml.tmpl", Required: []string{"Namespace"}},
	{Name: "deployment.yaml.tmpl", Required: []string{"Namespace", "AppName", "Image", "Port", "Replicas"}},
	{Name: "service.yaml.tmpl", Required: []string{"Namespace", "AppName", "Port", "ServiceType"}},
	{Name: "ingress.yaml.tmpl", Required: []string{"Namespace", "AppName", "Host", "Port"}},
	{Name: "secret.yaml.tmpl", Required: []string{"Namespace", "AppName"}},
	{Name: "ingress-nginx-values.yaml.tmpl", Required: []string{"LoadBalancerClass"}},
}

func lookup(name string) (Spec, error) {
	for _, s := range Registry {
		if s.Name == name {
			return s, nil
		}
	}
	return Spec{}, orcherrors.Template(fmt.Sprintf("unknown template %q", name))
}

// ValidateAll parses every registered template at startup, failing fast if
// any embedded template body is malformed (§9: "Variable sets per template
// are part of the contract and should be validated at startup").
func ValidateAll() error {
	for _, s := range Registry {
		if _, err := template.New(s.Name).Funcs(funcMap).ParseFS(templateFS, "templates/"+s.Name); err != nil {
			return orcherrors.Template(fmt.Sprintf("template %q: %v", s.Name, err))
		}
	}
	return nil
}

// Renderer renders named templates to files under a workspace directory.
type Renderer struct{}

// New returns a Renderer.
func New() *Renderer { return &Renderer{} }

// Render substitutes variables into the named template and writes the
// result to outPath, creating parent directories as needed. Missing
// required variables fail fast with a listing of which ones (§4.3).
func (r *Renderer) Render(name string, variables map[string]any, outPath string) (string, error) {
	spec, err := lookup(name)
	if err != nil {
		return "", err
	}
	if missing := missingVars(spec.Required, variables); len(missing) > 0 {
		sort.Strings(missing)
		return "", orcherrors.Template(fmt.Sprintf("template %q missing variables: %s", name, strings.Join(missing, ", ")))
	}

	tmpl, err := template.New(name).Funcs(funcMap).ParseFS(templateFS, "templates/"+name)
	if err != nil {
		return "", orcherrors.Template(fmt.Sprintf("parse template %q: %v", name, err))
	}

	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return "", err
	}
	f, err := os.Create(outPath)
	if err != nil {
		return "", err
	}
	defer f.Close()

	if err := tmpl.Execute(f, variables); err != nil {
		return "", orcherrors.Template(fmt.Sprintf("render template %q: %v", name, err))
	}
	return outPath, nil
}

func missingVars(required []string, have map[string]any) []string {
	var missing []string
	for _, name := range required {
		v, ok := have[name]
		if !ok || isZeroish(v) {
			missing = append(missing, name)
		}
	}
	return missing
}

func isZeroish(v any) bool {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t) == ""
	case nil:
		return true
	default:
		return false
	}
}

var k8sNameRe = regexp.MustCompile(`[^a-z0-9-]+`)

var funcMap = template.FuncMap{
	"default": func(def, v any) any {
		if isZeroish(v) {
			return def
		}
		return v
	},
	"k8sName": func(s string) string {
		return strings.Trim(k8sNameRe.ReplaceAllString(strings.ToLower(s), "-"), "-")
	},
	"indentYAML": func(spaces int, s string) string {
		pad := strings.Repeat(" ", spaces)
		lines := strings.Split(s, "\n")
		for i, l := range lines {
			if l == "" {
				continue
			}
			lines[i] = pad + l
		}
		return strings.Join(lines, "\n")
	},
}
