package safety

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"gopkg.in/yaml.v3"
)

// PatternProvider supplies additional safe-match patterns approved through an
// external review workflow. The classifier treats them purely as extra
// SAFE-set entries.
type PatternProvider interface {
	SafePatterns() ([]string, error)
}

func compileLearned(pattern string) (rule, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return rule{}, fmt.Errorf("compiling learned pattern: %w", err)
	}
	return rule{re: re, pattern: pattern, family: CategoryLearned}, nil
}

// FilePatternProvider reads approved patterns from a YAML file.
type FilePatternProvider struct {
	Path string
}

type learnedFile struct {
	Patterns []string `yaml:"patterns"`
}

// SafePatterns loads the pattern list. A missing file is not an error; it
// simply yields no extra patterns.
func (p *FilePatternProvider) SafePatterns() ([]string, error) {
	if p.Path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(filepath.Clean(p.Path))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading learned patterns: %w", err)
	}
	var f learnedFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing learned patterns: %w", err)
	}
	return f.Patterns, nil
}

// StaticPatternProvider serves a fixed pattern list. Used in tests and for
// config-inlined patterns.
type StaticPatternProvider []string

func (p StaticPatternProvider) SafePatterns() ([]string, error) {
	return p, nil
}
