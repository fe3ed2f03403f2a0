package executor

import (
	"strings"
	"testing"
	"time"
)

func TestSelfTerminateBudget(t *testing.T) {
	tests := []struct {
		budget time.Duration
		want   time.Duration
	}{
		{30 * time.Second, 27 * time.Second},       // tenth of the budget
		{3 * time.Second, 2500 * time.Millisecond}, // minimum half-second margin
		{1 * time.Second, 1 * time.Second},         // floored at one second
		{10 * time.Minute, 9 * time.Minute},
	}
	for _, tt := range tests {
		if got := selfTerminateBudget(tt.budget); got != tt.want {
			t.Errorf("selfTerminateBudget(%s) = %s, want %s", tt.budget, got, tt.want)
		}
	}
}

func TestWrapSelfTerminatePOSIX(t *testing.T) {
	if timeoutBinary() == "" {
		t.Skip("coreutils timeout not available")
	}
	shell := Shell{Exe: "/bin/sh", Args: []string{"-c"}, Family: FamilyPOSIX}

	wrapped, ok := shell.wrapSelfTerminate("sleep 99", 30*time.Second)
	if !ok {
		t.Fatal("wrapping should be available")
	}
	// The injected timer must fire ahead of the 30s external deadline.
	if !strings.Contains(wrapped, " 27 ") {
		t.Errorf("wrapped = %q, want a 27s inner timer", wrapped)
	}
	if !strings.Contains(wrapped, "'sleep 99'") {
		t.Errorf("wrapped = %q, command not quoted", wrapped)
	}
}

func TestWrapSelfTerminatePowerShell(t *testing.T) {
	shell := Shell{Exe: "pwsh", Family: FamilyPowerShell}

	wrapped, ok := shell.wrapSelfTerminate("Start-Sleep 99", 30*time.Second)
	if !ok {
		t.Fatal("wrapping should be available")
	}
	if !strings.Contains(wrapped, "-Timeout 27") {
		t.Errorf("wrapped = %q, want a 27s inner timer", wrapped)
	}
	if !strings.Contains(wrapped, "exit 124") {
		t.Errorf("wrapped = %q, missing the synthetic exit", wrapped)
	}
}
