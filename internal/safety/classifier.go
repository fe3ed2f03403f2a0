package safety

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
)

// blockedFamily couples a compiled rule group with the verdict category it
// produces when matched.
type blockedFamily struct {
	rules    []rule
	category string
}

// Classifier evaluates a command against an ordered set of rule groups and
// produces a single Verdict. Classification is deterministic and synchronous;
// the only I/O is a lazily-cached load of externally learned safe patterns.
type Classifier struct {
	osDestructive []rule
	osRisky       []rule
	osSafe        []rule
	blocked       []blockedFamily
	critical      []rule
	risky         []blockedFamily
	safe          []rule

	provider PatternProvider

	mu       sync.RWMutex
	learned  []rule
	loaded   bool
}

// NewClassifier builds a classifier with all rule groups compiled once.
// provider supplies externally approved safe patterns; it may be nil.
func NewClassifier(provider PatternProvider) *Classifier {
	return &Classifier{
		osDestructive: compileRules(CategoryOSDestructive, osDestructivePatterns),
		osRisky:       compileRules(CategoryOSRisky, osRiskyPatterns),
		osSafe:        compileRules(CategoryOSSafe, osSafePatterns),
		blocked: []blockedFamily{
			{compileRules(CategoryRegistry, registryBlockedPatterns), CategoryRegistry},
			{compileRules(CategoryProtectedPath, protectedPathPatterns), CategoryProtectedPath},
			{compileRules(CategoryOSDestructive, rootDrivePatterns), CategoryOSDestructive},
			{compileRules(CategorySecurityThreat, remoteMachinePatterns), CategorySecurityThreat},
			{compileRules(CategorySecurityThreat, criticalThreatPatterns), CategorySecurityThreat},
			{compileRules(CategoryOSDestructive, destructiveCommandPatterns), CategoryOSDestructive},
			{compileRules(CategoryVCSDestructive, vcsDestructivePatterns), CategoryVCSDestructive},
		},
		critical: compileRules(CategorySecurityThreat, criticalThreatPatterns),
		risky: []blockedFamily{
			{compileRules(CategoryFileMutation, fileMutationPatterns), CategoryFileMutation},
			{compileRules(CategoryVCSMutation, vcsMutationPatterns), CategoryVCSMutation},
			{compileRules(CategoryDiskOp, diskOperationPatterns), CategoryDiskOp},
			{compileRules(CategoryRegistry, registryWritePatterns), CategoryRegistry},
			{compileRules(CategoryServiceOp, serviceOperationPatterns), CategoryServiceOp},
			{compileRules(CategoryNetworkOp, networkOperationPatterns), CategoryNetworkOp},
		},
		safe:     compileRules(CategoryReadOnly, safeReadOnlyPatterns),
		provider: provider,
	}
}

// Classify evaluates command through the rule cascade. First match wins.
func (c *Classifier) Classify(command string) Verdict {
	// 1. OS-destructive fast patterns run before everything else so a
	// destructive cmd.exe invocation hosted in PowerShell never reaches a
	// softer rule.
	if r, ok := firstMatch(c.osDestructive, command); ok {
		return Verdict{
			Level:           LevelCritical,
			Risk:            RiskCritical,
			Category:        CategoryOSDestructive,
			Reason:          fmt.Sprintf("destructive OS command matched %q", r.pattern),
			Blocked:         true,
			MatchedPatterns: []string{r.pattern},
			Recommendations: []string{"this command category is permanently blocked"},
		}
	}

	// 2. Bare listing fast path.
	if listingFastPathPattern.MatchString(command) {
		return Verdict{
			Level:    LevelSafe,
			Risk:     RiskLow,
			Category: CategoryOSSafe,
			Reason:   "bare directory listing",
		}
	}

	// 3. Alias expansion. A shorthand masking a destructive property
	// operation is treated as obfuscation and blocked outright.
	if canonical, ok := highRiskAlias(command); ok {
		return Verdict{
			Level:           LevelCritical,
			Risk:            RiskCritical,
			Category:        CategoryAliasThreat,
			Reason:          fmt.Sprintf("alias masks destructive operation %s", canonical),
			Blocked:         true,
			MatchedPatterns: []string{canonical},
			Recommendations: []string{"aliases for destructive property operations are permanently blocked"},
		}
	}
	resolved := ResolveAlias(command)

	// 4. OS risky verbs.
	if r, ok := firstMatch(c.osRisky, resolved); ok {
		return riskyVerdict(CategoryOSRisky, r)
	}

	// 5. OS safe verbs.
	if r, ok := firstMatch(c.osSafe, resolved); ok {
		return Verdict{
			Level:           LevelSafe,
			Risk:            RiskLow,
			Category:        CategoryOSSafe,
			Reason:          fmt.Sprintf("read-only OS command matched %q", r.pattern),
			MatchedPatterns: []string{r.pattern},
		}
	}

	// 6. Merged blocked set. A secondary re-test against the security-threat
	// patterns distinguishes CRITICAL from plain BLOCKED.
	for _, fam := range c.blocked {
		r, ok := firstMatch(fam.rules, resolved)
		if !ok {
			continue
		}
		level := LevelBlocked
		risk := RiskHigh
		if _, threat := firstMatch(c.critical, resolved); threat {
			level = LevelCritical
			risk = RiskCritical
		}
		return Verdict{
			Level:           level,
			Risk:            risk,
			Category:        fam.category,
			Reason:          fmt.Sprintf("%s rule matched %q", fam.category, r.pattern),
			Blocked:         true,
			MatchedPatterns: []string{r.pattern},
			Recommendations: []string{"this command category is permanently blocked"},
		}
	}

	// 7. Merged risky set.
	for _, fam := range c.risky {
		if r, ok := firstMatch(fam.rules, resolved); ok {
			return riskyVerdict(fam.category, r)
		}
	}

	// 8. Merged safe set, including learned patterns.
	if r, ok := firstMatch(c.safe, resolved); ok {
		return Verdict{
			Level:           LevelSafe,
			Risk:            RiskLow,
			Category:        CategoryReadOnly,
			Reason:          fmt.Sprintf("read-only command matched %q", r.pattern),
			MatchedPatterns: []string{r.pattern},
		}
	}
	if r, ok := firstMatch(c.learnedSnapshot(), resolved); ok {
		return Verdict{
			Level:           LevelSafe,
			Risk:            RiskLow,
			Category:        CategoryLearned,
			Reason:          fmt.Sprintf("approved learned pattern %q", r.pattern),
			MatchedPatterns: []string{r.pattern},
		}
	}

	// 9. Fallback.
	return Verdict{
		Level:          LevelUnknown,
		Risk:           RiskMedium,
		Category:       CategoryUnknown,
		Reason:         "no rule matched; command is unrecognized",
		RequiresPrompt: true,
		Recommendations: []string{
			"re-run with confirmed=true to acknowledge the risk",
			"repeated safe use surfaces this command for safe-listing review",
		},
	}
}

func riskyVerdict(category string, r rule) Verdict {
	return Verdict{
		Level:           LevelRisky,
		Risk:            RiskMedium,
		Category:        category,
		Reason:          fmt.Sprintf("%s rule matched %q", category, r.pattern),
		RequiresPrompt:  true,
		MatchedPatterns: []string{r.pattern},
		Recommendations: []string{"re-run with confirmed=true to acknowledge the risk"},
	}
}

// learnedSnapshot returns the immutable learned-pattern set, loading it from
// the provider on first use. A load failure degrades to no extra patterns.
func (c *Classifier) learnedSnapshot() []rule {
	c.mu.RLock()
	if c.loaded {
		defer c.mu.RUnlock()
		return c.learned
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loaded {
		return c.learned
	}
	c.learned = c.loadLearned()
	c.loaded = true
	return c.learned
}

// ReloadLearned rebuilds the learned-pattern snapshot from the provider.
// Stale reads by in-flight classifications are acceptable.
func (c *Classifier) ReloadLearned() {
	snapshot := c.loadLearned()
	c.mu.Lock()
	c.learned = snapshot
	c.loaded = true
	c.mu.Unlock()
}

func (c *Classifier) loadLearned() []rule {
	if c.provider == nil {
		return nil
	}
	patterns, err := c.provider.SafePatterns()
	if err != nil {
		log.Warn().Err(err).Msg("learned pattern load failed, continuing without")
		return nil
	}
	out := make([]rule, 0, len(patterns))
	for _, p := range patterns {
		r, err := compileLearned(p)
		if err != nil {
			log.Warn().Str("pattern", p).Err(err).Msg("invalid learned pattern skipped")
			continue
		}
		out = append(out, r)
	}
	log.Info().Int("count", len(out)).Msg("learned safe patterns loaded")
	return out
}
