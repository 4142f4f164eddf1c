package pipeline

import "testing"

func TestStateMachineHappyPath(t *testing.T) {
	sequence := []State{
		StateInit, StateCloning, StateRendering, StateIaCApplying,
		StateBuilding, StateClusterBootstrapping, StateApplyingManifests,
		StateWaitingRollout, StateSucceeded,
	}
	for i := 1; i < len(sequence); i++ {
		if !sequence[i-1].CanTransitionTo(sequence[i]) {
			t.Fatalf("%s -> %s should be permitted", sequence[i-1], sequence[i])
		}
	}
}

func TestStateMachineCloudHostedImagePublishingBranch(t *testing.T) {
	if !StateBuilding.CanTransitionTo(StateImagePublishing) {
		t.Fatal("building -> image-publishing should be permitted (cloud-hosted only)")
	}
	if !StateImagePublishing.CanTransitionTo(StateClusterBootstrapping) {
		t.Fatal("image-publishing -> cluster-bootstrapping should be permitted")
	}
	if StateImagePublishing.CanTransitionTo(StateApplyingManifests) {
		t.Fatal("image-publishing should only ever lead to cluster-bootstrapping")
	}
}

func TestStateMachineAnyNonTerminalStateCanFail(t *testing.T) {
	nonTerminal := []State{
		StateInit, StateCloning, StateRendering, StateIaCApplying, StateBuilding,
		StateImagePublishing, StateClusterBootstrapping, StateApplyingManifests,
		StateWaitingRollout, StateDecommissioning,
	}
	for _, s := range nonTerminal {
		if !s.CanTransitionTo(StateFailed) {
			t.Fatalf("%s -> failed should be permitted", s)
		}
	}
}

func TestStateMachineTerminalStatesCannotFailDirectly(t *testing.T) {
	for _, s := range []State{StateSucceeded, StateDecommissioned} {
		if s.CanTransitionTo(StateFailed) {
			t.Fatalf("%s is terminal and should not transition to failed", s)
		}
	}
}

func TestStateMachineLifecycleActionsFromTerminalStates(t *testing.T) {
	if !StateSucceeded.CanTransitionTo(StateDecommissioning) {
		t.Fatal("succeeded -> decommissioning should be permitted")
	}
	if !StateFailed.CanTransitionTo(StateDecommissioning) {
		t.Fatal("failed -> decommissioning should be permitted")
	}
	if !StateSucceeded.CanTransitionTo(StateCloning) {
		t.Fatal("succeeded -> cloning should be permitted (redeploy re-entry)")
	}
	if !StateDecommissioning.CanTransitionTo(StateDecommissioned) {
		t.Fatal("decommissioning -> decommissioned should be permitted")
	}
}

func TestStateMachineRejectsSkippingStages(t *testing.T) {
	if StateCloning.CanTransitionTo(StateIaCApplying) {
		t.Fatal("cloning should not be able to skip straight to iac-applying")
	}
	if StateInit.CanTransitionTo(StateSucceeded) {
		t.Fatal("init should not be able to skip straight to succeeded")
	}
}

func TestIsTerminal(t *testing.T) {
	terminal := map[State]bool{
		StateSucceeded: true, StateFailed: true, StateDecommissioned: true,
		StateInit: false, StateCloning: false, StateDecommissioning: false,
	}
	for s, want := range terminal {
		if got := s.IsTerminal(); got != want {
			t.Errorf("%s.IsTerminal() = %v, want %v", s, got, want)
		}
	}
}
