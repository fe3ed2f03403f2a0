package gateway

import (
	"context"
	"errors"
	"testing"
	"time"

	"safe-command-gateway/internal/config"
	"safe-command-gateway/internal/executor"
	"safe-command-gateway/internal/monitor"
	"safe-command-gateway/internal/ratelimit"
	"safe-command-gateway/internal/safety"
	"safe-command-gateway/internal/storage"
)

type recordingAudit struct {
	invocations []*storage.Invocation
}

func (r *recordingAudit) RecordInvocation(inv *storage.Invocation) {
	r.invocations = append(r.invocations, inv)
}

func newTestGateway(limiter *ratelimit.Limiter, audit InvocationRecorder) (*Gateway, *safety.Tracker) {
	cfg := config.DefaultConfig()
	tracker := safety.NewTracker(100, nil)
	sup := executor.New(executor.ShellFromPath("/bin/sh"), 2)
	gw := New(cfg, safety.NewClassifier(nil), tracker, limiter, sup, monitor.NewMetrics(), audit)
	return gw, tracker
}

func TestExecuteBlocked(t *testing.T) {
	gw, _ := newTestGateway(nil, nil)

	_, err := gw.Execute(context.Background(), Request{Command: "rm -rf /srv"})
	if !errors.Is(err, ErrBlocked) {
		t.Fatalf("err = %v, want ErrBlocked", err)
	}

	var ref *Refusal
	if !errors.As(err, &ref) || ref.Verdict == nil {
		t.Fatal("refusal should carry the verdict")
	}
	if !ref.Verdict.Blocked {
		t.Error("verdict should be blocked")
	}
}

func TestExecuteBlockedEvenWhenConfirmed(t *testing.T) {
	gw, _ := newTestGateway(nil, nil)

	_, err := gw.Execute(context.Background(), Request{Command: "git push --force origin main", Confirmed: true})
	if !errors.Is(err, ErrBlocked) {
		t.Fatalf("err = %v, want ErrBlocked regardless of confirmation", err)
	}
}

func TestExecuteUnknownRequiresConfirmation(t *testing.T) {
	gw, tracker := newTestGateway(nil, nil)

	_, err := gw.Execute(context.Background(), Request{Command: "widget-ctl reload", SessionID: "s9"})
	if !errors.Is(err, ErrConfirmationRequired) {
		t.Fatalf("err = %v, want ErrConfirmationRequired", err)
	}

	// The attempt is tracked even though nothing ran.
	entry, ok := tracker.Lookup("widget-ctl reload")
	if !ok || entry.Count != 1 || entry.SessionID != "s9" {
		t.Errorf("tracker entry = %+v, %v", entry, ok)
	}
}

func TestExecuteValidation(t *testing.T) {
	gw, _ := newTestGateway(nil, nil)

	tests := []struct {
		name string
		req  Request
	}{
		{"empty request", Request{}},
		{"command and script", Request{Command: "ls", Script: "ls"}},
		{"negative timeout", Request{Command: "ls", TimeoutSeconds: -1}},
		{"timeout over cap", Request{Command: "ls", TimeoutSeconds: 100000}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := gw.Execute(context.Background(), tt.req)
			if !errors.Is(err, ErrValidation) {
				t.Errorf("err = %v, want ErrValidation", err)
			}
		})
	}
}

func TestValidateDeprecatedTimeoutAlias(t *testing.T) {
	gw, _ := newTestGateway(nil, nil)

	command, timeout, warnings, err := gw.validate(Request{Command: "ls", DeprecatedTimeoutSeconds: 45})
	if err != nil {
		t.Fatal(err)
	}
	if command != "ls" || timeout != 45*time.Second {
		t.Errorf("command=%q timeout=%s", command, timeout)
	}
	if len(warnings) != 1 {
		t.Fatalf("warnings = %v, want deprecation notice", warnings)
	}

	// The canonical field wins when both are present, silently.
	_, timeout, warnings, err = gw.validate(Request{Command: "ls", TimeoutSeconds: 20, DeprecatedTimeoutSeconds: 45})
	if err != nil || timeout != 20*time.Second || len(warnings) != 0 {
		t.Errorf("timeout=%s warnings=%v err=%v", timeout, warnings, err)
	}
}

func TestValidateZeroTimeoutUsesDefault(t *testing.T) {
	gw, _ := newTestGateway(nil, nil)

	_, timeout, _, err := gw.validate(Request{Command: "ls"})
	if err != nil {
		t.Fatal(err)
	}
	if timeout != 30*time.Second {
		t.Errorf("timeout = %s, want configured default", timeout)
	}
}

func TestExecuteRateLimited(t *testing.T) {
	limiter := ratelimit.New(1, time.Minute, 1)
	gw, _ := newTestGateway(limiter, nil)

	// First request consumes the only token; it fails later (blocked),
	// which still counts against the budget.
	_, err := gw.Execute(context.Background(), Request{Command: "rm -rf /x", ClientID: "c1"})
	if !errors.Is(err, ErrBlocked) {
		t.Fatalf("first err = %v", err)
	}

	_, err = gw.Execute(context.Background(), Request{Command: "ls", ClientID: "c1"})
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("second err = %v, want ErrRateLimited", err)
	}

	var ref *Refusal
	if !errors.As(err, &ref) || ref.RetryAfterMS <= 0 {
		t.Errorf("rate limit refusal should carry retry hint: %+v", ref)
	}

	// A different client has its own bucket.
	_, err = gw.Execute(context.Background(), Request{Command: "rm -rf /x", ClientID: "c2"})
	if !errors.Is(err, ErrBlocked) {
		t.Errorf("other client err = %v", err)
	}
}

func TestExecuteRecordsRefusedInvocation(t *testing.T) {
	audit := &recordingAudit{}
	gw, _ := newTestGateway(nil, audit)

	gw.Execute(context.Background(), Request{Command: "rm -rf /data", ClientID: "agent-1"})

	if len(audit.invocations) != 1 {
		t.Fatalf("invocations = %d, want 1", len(audit.invocations))
	}
	inv := audit.invocations[0]
	if inv.Status != "refused" || !inv.Blocked {
		t.Errorf("record = %+v", inv)
	}
	if inv.Redacted == "" || inv.CommandHash == "" {
		t.Error("audit record should carry hash and redacted shape")
	}
	if inv.Redacted == "rm -rf /data" {
		t.Error("audit record must not carry the raw command")
	}
}

func TestExecutionStatus(t *testing.T) {
	code := 0
	tests := []struct {
		res  *executor.Result
		want string
	}{
		{&executor.Result{TimedOut: true}, "timeout"},
		{&executor.Result{Overflow: true}, "overflow"},
		{&executor.Result{Success: true, ExitCode: &code}, "success"},
		{&executor.Result{}, "failure"},
	}
	for _, tt := range tests {
		if got := executionStatus(tt.res); got != tt.want {
			t.Errorf("executionStatus(%+v) = %s, want %s", tt.res, got, tt.want)
		}
	}
}
