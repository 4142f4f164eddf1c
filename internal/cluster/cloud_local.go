package cluster

import (
	"context"
	"fmt"
	"time"

	"deployforge/internal/build"
	"deployforge/internal/events"
)

// CloudLocalHandle addresses a cluster that lives entirely on a cloud VM,
// reached through the same secure-shell transport the Image Builder uses
// (§4.7: "the cluster lives entirely on the VM and is addressed through
// secure shell for subsequent operations").
type CloudLocalHandle struct {
	Session *build.RemoteSession
}

// AwaitCloudLocal dials the VM and polls for its bootstrap sentinel file,
// per §4.7 cloud-local: "waits for VM bootstrap completion (by polling a
// sentinel file or readiness signal through secure shell)".
func AwaitCloudLocal(ctx context.Context, host, sshUser, keyName, sshKeyBaseDir, sentinelPath string, sink events.Sink) (CloudLocalHandle, error) {
	events.Start(sink, "cluster-bootstrap", "waiting for VM bootstrap on "+host)

	sess, err := build.Dial(ctx, host, sshUser, keyName, sshKeyBaseDir)
	if err != nil {
		events.End(sink, "cluster-bootstrap", err)
		return CloudLocalHandle{}, err
	}

	if err := sess.WaitForSentinel(ctx, sentinelPath, 5*time.Second, 15*time.Minute); err != nil {
		wrapped := fmt.Errorf("VM bootstrap did not complete: %w", err)
		events.End(sink, "cluster-bootstrap", wrapped)
		_ = sess.Close()
		return CloudLocalHandle{}, wrapped
	}

	events.End(sink, "cluster-bootstrap", nil)
	return CloudLocalHandle{Session: sess}, nil
}

// Apply applies rendered manifest text to the cluster living on the VM via
// `kubectl apply -f -` over the already-open secure shell.
func (h CloudLocalHandle) Apply(stage, manifestPath string, sink events.Sink) error {
	_, err := h.Session.Run(stage, "kubectl apply -f "+manifestPath, sink)
	return err
}

// LoadImage invokes the cluster's image-load command on the remote host
// (§4.5 remote build: "invoke the cluster's image-load command on the
// remote host"), e.g. `kind load docker-image` run locally on the VM
// against its own Docker daemon.
func (h CloudLocalHandle) LoadImage(loadCmd string, sink events.Sink) error {
	code, err := h.Session.Run("cluster-bootstrap", loadCmd, sink)
	if err != nil {
		return err
	}
	if code != 0 {
		return fmt.Errorf("image-load command exited %d", code)
	}
	return nil
}

// Close releases the underlying secure shell.
func (h CloudLocalHandle) Close() error {
	if h.Session == nil {
		return nil
	}
	return h.Session.Close()
}
