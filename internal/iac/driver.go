// Package iac implements the IaC Driver (§4.6): wrapping the provisioning
// tool with {init, plan, apply, output, destroy}, state kept local inside
// a workspace's tf/ directory, no remote backend.
//
// Grounded on the teacher's pulumi/infra stub (a bare pulumi.Run program),
// stretched from a one-file inline program into a driver that shells the
// real engine via the Automation API (github.com/pulumi/pulumi/sdk/v3/go/auto)
// against a rendered Pulumi.yaml project on disk — "adapt, don't delete."
package iac

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pulumi/pulumi/sdk/v3/go/auto"
	"github.com/pulumi/pulumi/sdk/v3/go/auto/optdestroy"
	"github.com/pulumi/pulumi/sdk/v3/go/auto/optpreview"
	"github.com/pulumi/pulumi/sdk/v3/go/auto/optup"

	"deployforge/internal/events"
	"deployforge/internal/orcherrors"
)

// PlanResult is the IaC Plan Result of §3.
type PlanResult struct {
	Added   int
	Changed int
	Removed int
	Summary string
}

// IsNoop reports whether the plan describes no infrastructure change,
// the condition Driver.Apply uses to detect a safe resumption.
func (p PlanResult) IsNoop() bool {
	return p.Added == 0 && p.Changed == 0 && p.Removed == 0
}

// OutputBag is the IaC Output Bag of §3: a flat string->string map whose
// recognized keys vary by pipeline mode (ecr_repository_url,
// eks_cluster_endpoint, public_ip, nlb_dns_name, acm_certificate_arn, ...).
type OutputBag map[string]string

// Driver drives one Pulumi project rooted at a workspace's tf/ directory.
type Driver struct {
	// Backend is the local state backend URL template; the workspace's tf/
	// directory is substituted in per call, keeping state local per §4.6
	// ("no remote state backend").
	Backend string
}

// New returns a Driver using a file:// backend rooted inside each
// workspace's tf/ directory.
func New() *Driver {
	return &Driver{Backend: "file://"}
}

const stackName = "deployforge"

func (d *Driver) workspace(ctx context.Context, tfDir string) (auto.Workspace, error) {
	stateDir := filepath.Join(tfDir, "state")
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return nil, fmt.Errorf("create local state dir: %w", err)
	}
	return auto.NewLocalWorkspace(ctx,
		auto.WorkDir(tfDir),
		auto.SecretsProvider("passphrase"),
		auto.EnvVars(map[string]string{
			"PULUMI_BACKEND_URL":          d.Backend + stateDir,
			"PULUMI_CONFIG_PASSPHRASE":    "deployforge-local",
			"PULUMI_SKIP_UPDATE_CHECK":    "true",
		}),
	)
}

// Init ensures the Pulumi project at tfDir has a selected stack and its
// plugins installed. Idempotent (§4.6: "init(workspace_tf_dir, env) —
// idempotent").
func (d *Driver) Init(ctx context.Context, tfDir string, vars map[string]string, sink events.Sink) error {
	events.Start(sink, "iac-init", "initializing IaC project at "+tfDir)

	ws, err := d.workspace(ctx, tfDir)
	if err != nil {
		events.End(sink, "iac-init", err)
		return err
	}

	stack, err := auto.UpsertStack(ctx, stackName, ws)
	if err != nil {
		wrapped := fmt.Errorf("upsert stack: %w", err)
		events.End(sink, "iac-init", wrapped)
		return wrapped
	}

	for k, v := range vars {
		if err := stack.SetConfig(ctx, k, auto.ConfigValue{Value: v}); err != nil {
			wrapped := fmt.Errorf("set config %s: %w", k, err)
			events.End(sink, "iac-init", wrapped)
			return wrapped
		}
	}

	if err := ws.Install(ctx, nil); err != nil {
		wrapped := fmt.Errorf("install plugins: %w", err)
		events.End(sink, "iac-init", wrapped)
		return wrapped
	}

	if _, err := stack.Refresh(ctx); err != nil {
		wrapped := fmt.Errorf("refresh stack: %w", err)
		events.End(sink, "iac-init", wrapped)
		return wrapped
	}

	events.End(sink, "iac-init", nil)
	return nil
}

// Plan previews the project's changes without applying them and emits the
// change counts as a Progress Event. No plan file is written; the preview
// result is returned only as a PlanResult.
func (d *Driver) Plan(ctx context.Context, tfDir string, sink events.Sink) (PlanResult, error) {
	events.Start(sink, "iac-plan", "planning IaC changes")

	ws, err := d.workspace(ctx, tfDir)
	if err != nil {
		events.End(sink, "iac-plan", err)
		return PlanResult{}, err
	}
	stack, err := auto.SelectStack(ctx, stackName, ws)
	if err != nil {
		events.End(sink, "iac-plan", err)
		return PlanResult{}, err
	}

	var lines []string
	streamer := optpreview.ProgressStreams(&lineSink{stage: "iac-plan", sink: sink, lines: &lines})
	res, err := stack.Preview(ctx, streamer)
	if err != nil {
		wrapped := fmt.Errorf("preview: %w", err)
		events.End(sink, "iac-plan", wrapped)
		return PlanResult{}, wrapped
	}

	plan := summarizePreview(res)
	events.Log(sink, "iac-plan", plan.Summary)
	events.End(sink, "iac-plan", nil)
	return plan, nil
}

func summarizePreview(res auto.PreviewResult) PlanResult {
	var p PlanResult
	for op, count := range res.ChangeSummary {
		switch op {
		case "create":
			p.Added += count
		case "update", "replace":
			p.Changed += count
		case "delete":
			p.Removed += count
		}
	}
	p.Summary = fmt.Sprintf("%d to add, %d to change, %d to destroy", p.Added, p.Changed, p.Removed)
	return p
}

// Apply runs stack.Up, which computes the changes afresh rather than
// replaying an earlier Plan, and returns the resulting Output Bag. If plan is a no-op on a resumed deployment, Apply is still
// safe to call (Pulumi's own apply is idempotent against unchanged state);
// callers that want strict "no re-provisioning" semantics should check
// plan.IsNoop() themselves and call Output instead.
func (d *Driver) Apply(ctx context.Context, tfDir string, sink events.Sink) (OutputBag, error) {
	events.Start(sink, "iac-apply", "applying IaC changes")

	ws, err := d.workspace(ctx, tfDir)
	if err != nil {
		events.End(sink, "iac-apply", err)
		return nil, err
	}
	stack, err := auto.SelectStack(ctx, stackName, ws)
	if err != nil {
		events.End(sink, "iac-apply", err)
		return nil, err
	}

	var lines []string
	streamer := optup.ProgressStreams(&lineSink{stage: "iac-apply", sink: sink, lines: &lines})
	res, err := stack.Up(ctx, streamer)
	if err != nil {
		wrapped := orcherrors.IaCPlanMismatch(fmt.Sprintf("apply failed: %v", err))
		events.End(sink, "iac-apply", wrapped)
		return nil, wrapped
	}

	bag := outputBagFrom(res.Outputs)
	events.End(sink, "iac-apply", nil)
	return bag, nil
}

// Output re-reads the stack's current outputs without applying, per
// "output(workspace_tf_dir) → IaC Output Bag — for resumed deployments."
func (d *Driver) Output(ctx context.Context, tfDir string) (OutputBag, error) {
	ws, err := d.workspace(ctx, tfDir)
	if err != nil {
		return nil, err
	}
	stack, err := auto.SelectStack(ctx, stackName, ws)
	if err != nil {
		return nil, err
	}
	outs, err := stack.Outputs(ctx)
	if err != nil {
		return nil, fmt.Errorf("read stack outputs: %w", err)
	}
	return outputBagFrom(outs), nil
}

func outputBagFrom(outs auto.OutputMap) OutputBag {
	bag := make(OutputBag, len(outs))
	for k, v := range outs {
		if s, ok := v.Value.(string); ok {
			bag[k] = s
			continue
		}
		bag[k] = fmt.Sprintf("%v", v.Value)
	}
	return bag
}

// Destroy removes all resources described by the project's state, per
// "destroy(workspace_tf_dir, env) — removes all resources described by
// state." The driver never rolls back automatically on its own failures;
// on error the caller (lifecycle dispatcher) marks the deployment failed
// and keeps its workspace.
func (d *Driver) Destroy(ctx context.Context, tfDir string, sink events.Sink) error {
	events.Start(sink, "iac-destroy", "destroying IaC resources")

	ws, err := d.workspace(ctx, tfDir)
	if err != nil {
		events.End(sink, "iac-destroy", err)
		return err
	}
	stack, err := auto.SelectStack(ctx, stackName, ws)
	if err != nil {
		events.End(sink, "iac-destroy", err)
		return err
	}

	var lines []string
	streamer := optdestroy.ProgressStreams(&lineSink{stage: "iac-destroy", sink: sink, lines: &lines})
	if _, err := stack.Destroy(ctx, streamer); err != nil {
		wrapped := orcherrors.Decommission("IaC destroy failed", err)
		events.End(sink, "iac-destroy", wrapped)
		return wrapped
	}
	events.End(sink, "iac-destroy", nil)
	return nil
}

// HasState reports whether tfDir carries a non-empty local state
// directory, the resumption signal §4.6 requires ("detect a non-empty
// state directory and treat subsequent deploy calls for the same id as
// resumption").
func HasState(tfDir string) bool {
	entries, err := os.ReadDir(filepath.Join(tfDir, "state"))
	if err != nil {
		return false
	}
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".json") {
			return true
		}
	}
	return false
}

// lineSink adapts Pulumi's io.Writer-shaped progress streams into Progress
// Events. Each Write becomes one event with its trailing newlines trimmed;
// partial lines are not buffered and a multi-line write is not split.
type lineSink struct {
	stage string
	sink  events.Sink
	lines *[]string
}

func (l *lineSink) Write(p []byte) (int, error) {
	line := strings.TrimRight(string(p), "\n")
	if line != "" {
		*l.lines = append(*l.lines, line)
		events.Log(l.sink, l.stage, line)
	}
	return len(p), nil
}
