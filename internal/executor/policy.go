package executor

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Strategy governs behavior when captured output crosses a ceiling.
type Strategy string

const (
	// OverflowReturn stops waiting immediately and returns the partial
	// buffers with a synthetic exit code.
	OverflowReturn Strategy = "return"
	// OverflowTruncate lets the process run to natural completion but stops
	// growing the captured buffer.
	OverflowTruncate Strategy = "truncate"
	// OverflowTerminate force-kills the process upon overflow.
	OverflowTerminate Strategy = "terminate"
)

// OverflowStrategyEnv overrides the configured default strategy at runtime.
const OverflowStrategyEnv = "GATEWAY_OVERFLOW_STRATEGY"

// ParseStrategy returns the strategy named by s, or fallback when s is empty
// or unrecognized.
func ParseStrategy(s string, fallback Strategy) Strategy {
	switch Strategy(strings.ToLower(strings.TrimSpace(s))) {
	case OverflowReturn, OverflowTruncate, OverflowTerminate:
		return Strategy(strings.ToLower(strings.TrimSpace(s)))
	default:
		return fallback
	}
}

// StrategyFromEnv resolves the overflow strategy, letting the environment
// override the configured default.
func StrategyFromEnv(configured Strategy) Strategy {
	if v := os.Getenv(OverflowStrategyEnv); v != "" {
		return ParseStrategy(v, configured)
	}
	if configured == "" {
		return OverflowReturn
	}
	return configured
}

// WorkDirPolicy restricts which working directories a command may use.
// AllowedRoots supports environment-variable expansion at config load time.
type WorkDirPolicy struct {
	Enabled      bool
	AllowedRoots []string
}

// Check validates dir against the policy, resolving symlinks first.
// An empty dir always passes.
func (p WorkDirPolicy) Check(dir string) (string, error) {
	if dir == "" {
		return "", nil
	}
	real, err := filepath.EvalSymlinks(dir)
	if err != nil {
		return "", fmt.Errorf("%w: %q does not resolve", ErrWorkDirPolicy, dir)
	}
	info, err := os.Stat(real)
	if err != nil || !info.IsDir() {
		return "", fmt.Errorf("%w: %q is not a directory", ErrWorkDirPolicy, dir)
	}
	if !p.Enabled {
		return real, nil
	}
	for _, root := range p.AllowedRoots {
		root = resolveRoot(root)
		if real == root || strings.HasPrefix(real, root+string(os.PathSeparator)) {
			return real, nil
		}
	}
	return "", fmt.Errorf("%w: %q is outside the allowed roots", ErrWorkDirPolicy, dir)
}

// resolveRoot canonicalizes an allowed root the same way the requested
// directory is resolved, so a root that is itself a symlink or carries a
// trailing separator still matches its resolved form.
func resolveRoot(root string) string {
	if real, err := filepath.EvalSymlinks(root); err == nil {
		return real
	}
	return filepath.Clean(root)
}

// Policy carries the resolved execution parameters for one invocation.
type Policy struct {
	ConfiguredTimeout time.Duration
	WatchdogGrace     time.Duration

	MaxOutputBytes int
	MaxOutputLines int
	Overflow       Strategy

	SelfTerminate bool

	Adaptive             bool
	AdaptiveExtendWindow time.Duration
	AdaptiveExtendStep   time.Duration
	AdaptiveMaxTotal     time.Duration

	MaxCommandLength int

	WorkDir       string
	WorkDirPolicy WorkDirPolicy

	// Warnings are carried through into the result without affecting
	// execution (deprecated parameter names, unusually long timeouts).
	Warnings []string
}

// Defaults for unset policy fields.
const (
	DefaultTimeout        = 30 * time.Second
	DefaultWatchdogGrace  = 2 * time.Second
	DefaultMaxOutputBytes = 1 << 20
	DefaultMaxOutputLines = 10000
	DefaultMaxCommandLen  = 8192
	DefaultExtendWindow   = 2 * time.Second
	DefaultExtendStep     = 10 * time.Second

	// AbsoluteAdaptiveCeiling bounds adaptive extension regardless of the
	// configured base timeout.
	AbsoluteAdaptiveCeiling = 30 * time.Minute

	// LongTimeoutWarning is the threshold past which a configured timeout
	// earns a warning.
	LongTimeoutWarning = 5 * time.Minute
)

// Normalize fills zero fields with defaults and derives the adaptive budget.
func (p Policy) Normalize() Policy {
	if p.ConfiguredTimeout <= 0 {
		p.ConfiguredTimeout = DefaultTimeout
	}
	if p.WatchdogGrace <= 0 {
		p.WatchdogGrace = DefaultWatchdogGrace
	}
	if p.MaxOutputBytes <= 0 {
		p.MaxOutputBytes = DefaultMaxOutputBytes
	}
	if p.MaxOutputLines <= 0 {
		p.MaxOutputLines = DefaultMaxOutputLines
	}
	if p.MaxCommandLength <= 0 {
		p.MaxCommandLength = DefaultMaxCommandLen
	}
	if p.Overflow == "" {
		p.Overflow = OverflowReturn
	}
	if p.AdaptiveExtendWindow <= 0 {
		p.AdaptiveExtendWindow = DefaultExtendWindow
	}
	if p.AdaptiveExtendStep <= 0 {
		p.AdaptiveExtendStep = DefaultExtendStep
	}
	if p.AdaptiveMaxTotal <= 0 {
		p.AdaptiveMaxTotal = 3 * p.ConfiguredTimeout
		if p.AdaptiveMaxTotal > AbsoluteAdaptiveCeiling {
			p.AdaptiveMaxTotal = AbsoluteAdaptiveCeiling
		}
	}
	if p.ConfiguredTimeout > LongTimeoutWarning {
		p.Warnings = append(p.Warnings,
			fmt.Sprintf("timeout %s is unusually long", p.ConfiguredTimeout))
	}
	return p
}
