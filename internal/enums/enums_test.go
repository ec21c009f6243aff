package enums

import "testing"

func TestIdleModeSources(t *testing.T) {
	user := IdleModeUser.Sources()
	if len(user) != 5 {
		t.Fatalf("expected 5 sources for USER mode, got %d: %v", len(user), user)
	}
	io := IdleModeIO.Sources()
	if len(io) != 7 {
		t.Fatalf("expected 7 sources for IO mode, got %d: %v", len(io), io)
	}
	found := map[ActivitySource]bool{}
	for _, s := range io {
		found[s] = true
	}
	for _, want := range []ActivitySource{ActivityUser, ActivitySSH, ActivityCreate, ActivityStart, ActivityBoot, ActivityAgent, ActivityProcess} {
		if !found[want] {
			t.Errorf("IO mode missing source %s", want)
		}
	}
}

func TestAgentLifecycleStateIsValid(t *testing.T) {
	if !StateRunning.IsValid() {
		t.Error("RUNNING should be valid")
	}
	if AgentLifecycleState("BOGUS").IsValid() {
		t.Error("BOGUS should not be valid")
	}
}

func TestErrorBehaviorIsValid(t *testing.T) {
	if !ErrorBehaviorAbort.IsValid() || !ErrorBehaviorContinue.IsValid() {
		t.Error("expected both ABORT and CONTINUE to be valid")
	}
	if ErrorBehavior("RETRY").IsValid() {
		t.Error("RETRY should not be valid")
	}
}

func TestWorkDirPathValidate(t *testing.T) {
	if err := WorkDirPath("").Validate(); err == nil {
		t.Error("expected error for empty path")
	}
	if err := WorkDirPath("/abs/path").Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
