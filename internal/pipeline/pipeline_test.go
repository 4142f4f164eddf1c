package pipeline

import "testing"

func TestReplicasOrDefault(t *testing.T) {
	cases := map[int]int{0: 1, -3: 1, 1: 1, 5: 5}
	for in, want := range cases {
		if got := replicasOrDefault(in); got != want {
			t.Errorf("replicasOrDefault(%d) = %d, want %d", in, got, want)
		}
	}
}

func TestNamespaceOrDefault(t *testing.T) {
	if got := namespaceOrDefault(""); got != "default" {
		t.Errorf("namespaceOrDefault(\"\") = %q, want %q", got, "default")
	}
	if got := namespaceOrDefault("  "); got != "default" {
		t.Errorf("namespaceOrDefault(whitespace) = %q, want %q", got, "default")
	}
	if got := namespaceOrDefault("staging"); got != "staging" {
		t.Errorf("namespaceOrDefault(staging) = %q, want %q", got, "staging")
	}
}

func TestK8sSafeName(t *testing.T) {
	cases := map[string]string{
		"My App_123":      "my-app-123",
		"already-safe":    "already-safe",
		"--leading-dash-": "leading-dash",
		"UPPER.CASE":      "upper-case",
	}
	for in, want := range cases {
		if got := k8sSafeName(in); got != want {
			t.Errorf("k8sSafeName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestRegistryHostFromECRURL(t *testing.T) {
	got := registryHostFromECRURL("123456789012.dkr.ecr.us-east-1.amazonaws.com/my-app")
	want := "123456789012.dkr.ecr.us-east-1.amazonaws.com"
	if got != want {
		t.Errorf("registryHostFromECRURL() = %q, want %q", got, want)
	}
}

func TestRegistryHostFromECRURLWithoutSlashReturnsInput(t *testing.T) {
	if got := registryHostFromECRURL("bare-host"); got != "bare-host" {
		t.Errorf("registryHostFromECRURL(bare-host) = %q, want %q", got, "bare-host")
	}
}

func TestToAnyMap(t *testing.T) {
	in := map[string]string{"a": "1", "b": "2"}
	out := toAnyMap(in)
	if len(out) != 2 || out["a"] != "1" || out["b"] != "2" {
		t.Errorf("toAnyMap(%v) = %v", in, out)
	}
}
