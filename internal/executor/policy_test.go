package executor

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestPolicyNormalizeDefaults(t *testing.T) {
	p := Policy{}.Normalize()

	if p.ConfiguredTimeout != DefaultTimeout {
		t.Errorf("timeout = %s", p.ConfiguredTimeout)
	}
	if p.MaxOutputBytes != DefaultMaxOutputBytes || p.MaxOutputLines != DefaultMaxOutputLines {
		t.Errorf("output ceilings = %d/%d", p.MaxOutputBytes, p.MaxOutputLines)
	}
	if p.Overflow != OverflowReturn {
		t.Errorf("overflow = %s", p.Overflow)
	}
	if p.AdaptiveMaxTotal != 3*DefaultTimeout {
		t.Errorf("adaptive max = %s, want 3x base", p.AdaptiveMaxTotal)
	}
	if len(p.Warnings) != 0 {
		t.Errorf("unexpected warnings: %v", p.Warnings)
	}
}

func TestPolicyNormalizeAdaptiveCeiling(t *testing.T) {
	p := Policy{ConfiguredTimeout: 15 * time.Minute}.Normalize()

	if p.AdaptiveMaxTotal != AbsoluteAdaptiveCeiling {
		t.Errorf("adaptive max = %s, want ceiling %s", p.AdaptiveMaxTotal, AbsoluteAdaptiveCeiling)
	}
	if len(p.Warnings) != 1 {
		t.Fatalf("long timeout should warn, got %v", p.Warnings)
	}
}

func TestPolicyNormalizeKeepsExplicitValues(t *testing.T) {
	p := Policy{
		ConfiguredTimeout: 5 * time.Second,
		AdaptiveMaxTotal:  90 * time.Second,
		MaxOutputBytes:    512,
	}.Normalize()

	if p.AdaptiveMaxTotal != 90*time.Second {
		t.Errorf("explicit adaptive max overridden: %s", p.AdaptiveMaxTotal)
	}
	if p.MaxOutputBytes != 512 {
		t.Errorf("explicit ceiling overridden: %d", p.MaxOutputBytes)
	}
}

func TestParseStrategy(t *testing.T) {
	tests := []struct {
		in   string
		want Strategy
	}{
		{"return", OverflowReturn},
		{"TRUNCATE", OverflowTruncate},
		{" terminate ", OverflowTerminate},
		{"", OverflowReturn},
		{"bogus", OverflowReturn},
	}
	for _, tt := range tests {
		if got := ParseStrategy(tt.in, OverflowReturn); got != tt.want {
			t.Errorf("ParseStrategy(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestStrategyFromEnv(t *testing.T) {
	t.Setenv(OverflowStrategyEnv, "terminate")
	if got := StrategyFromEnv(OverflowTruncate); got != OverflowTerminate {
		t.Errorf("env override ignored: %s", got)
	}

	t.Setenv(OverflowStrategyEnv, "nonsense")
	if got := StrategyFromEnv(OverflowTruncate); got != OverflowTruncate {
		t.Errorf("invalid env value should fall back to configured: %s", got)
	}

	t.Setenv(OverflowStrategyEnv, "")
	if got := StrategyFromEnv(""); got != OverflowReturn {
		t.Errorf("empty everything should default to return: %s", got)
	}
}

func TestWorkDirPolicyDisabled(t *testing.T) {
	dir := t.TempDir()
	p := WorkDirPolicy{}

	got, err := p.Check(dir)
	if err != nil {
		t.Fatalf("disabled policy rejected a valid dir: %v", err)
	}
	if got == "" {
		t.Fatal("resolved dir should be returned")
	}

	if _, err := p.Check(""); err != nil {
		t.Fatalf("empty dir always passes: %v", err)
	}
}

func TestWorkDirPolicyEnforced(t *testing.T) {
	root := t.TempDir()
	inside := filepath.Join(root, "project")
	if err := os.Mkdir(inside, 0o755); err != nil {
		t.Fatal(err)
	}
	outside := t.TempDir()

	resolvedRoot, err := filepath.EvalSymlinks(root)
	if err != nil {
		t.Fatal(err)
	}
	p := WorkDirPolicy{Enabled: true, AllowedRoots: []string{resolvedRoot}}

	if _, err := p.Check(inside); err != nil {
		t.Errorf("dir under an allowed root rejected: %v", err)
	}
	if _, err := p.Check(outside); !errors.Is(err, ErrWorkDirPolicy) {
		t.Errorf("dir outside roots should fail with ErrWorkDirPolicy, got %v", err)
	}
	if _, err := p.Check(filepath.Join(root, "missing")); !errors.Is(err, ErrWorkDirPolicy) {
		t.Errorf("nonexistent dir should fail with ErrWorkDirPolicy, got %v", err)
	}
}

func TestWorkDirPolicySymlinkedRoot(t *testing.T) {
	base := t.TempDir()
	target := filepath.Join(base, "real")
	if err := os.Mkdir(target, 0o755); err != nil {
		t.Fatal(err)
	}
	link := filepath.Join(base, "link")
	if err := os.Symlink(target, link); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}
	inside := filepath.Join(target, "project")
	if err := os.Mkdir(inside, 0o755); err != nil {
		t.Fatal(err)
	}

	// A root configured through a symlink must match directories that
	// resolve to its target.
	p := WorkDirPolicy{Enabled: true, AllowedRoots: []string{link}}
	if _, err := p.Check(target); err != nil {
		t.Errorf("root's own target rejected: %v", err)
	}
	if _, err := p.Check(inside); err != nil {
		t.Errorf("dir under a symlinked root rejected: %v", err)
	}
}

func TestWorkDirPolicyUncleanRoot(t *testing.T) {
	root := t.TempDir()
	inside := filepath.Join(root, "project")
	if err := os.Mkdir(inside, 0o755); err != nil {
		t.Fatal(err)
	}
	resolvedRoot, err := filepath.EvalSymlinks(root)
	if err != nil {
		t.Fatal(err)
	}

	p := WorkDirPolicy{Enabled: true, AllowedRoots: []string{resolvedRoot + string(os.PathSeparator)}}
	if _, err := p.Check(inside); err != nil {
		t.Errorf("trailing separator on a root rejected its subdirectory: %v", err)
	}
}
