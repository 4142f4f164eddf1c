package cluster

import (
	"os"
	"path/filepath"
	"strings"

	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
)

// restConfigForKindContext builds a rest.Config for a named context inside
// the ambient kubeconfig (the file kind itself writes entries into),
// mirroring agents/manager/internal/beam/kube.go's KUBECONFIG-env-then-
// homedir-fallback resolution, generalized to select a specific context
// instead of always using the kubeconfig's current-context.
func restConfigForKindContext(contextName string) (*rest.Config, error) {
	kubeconfig := strings.TrimSpace(os.Getenv("KUBECONFIG"))
	if kubeconfig == "" {
		home, _ := os.UserHomeDir()
		if home != "" {
			kubeconfig = filepath.Join(home, ".kube", "config")
		}
	}

	loadingRules := &clientcmd.ClientConfigLoadingRules{ExplicitPath: kubeconfig}
	overrides := &clientcmd.ConfigOverrides{CurrentContext: contextName}
	return clientcmd.NewNonInteractiveDeferredLoadingClientConfig(loadingRules, overrides).ClientConfig()
}
