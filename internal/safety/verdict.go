package safety

// Level represents the classification of a command.
type Level int

const (
	LevelSafe Level = iota
	LevelRisky
	LevelDangerous
	LevelCritical
	LevelBlocked
	LevelUnknown
)

func (l Level) String() string {
	switch l {
	case LevelSafe:
		return "safe"
	case LevelRisky:
		return "risky"
	case LevelDangerous:
		return "dangerous"
	case LevelCritical:
		return "critical"
	case LevelBlocked:
		return "blocked"
	case LevelUnknown:
		return "unknown"
	default:
		return "invalid"
	}
}

// Risk is the coarse risk tier attached to a verdict.
type Risk int

const (
	RiskLow Risk = iota
	RiskMedium
	RiskHigh
	RiskCritical
)

func (r Risk) String() string {
	switch r {
	case RiskLow:
		return "low"
	case RiskMedium:
		return "medium"
	case RiskHigh:
		return "high"
	case RiskCritical:
		return "critical"
	default:
		return "invalid"
	}
}

// Verdict is the classifier's decision for a single command. It is created
// fresh per request and never mutated afterwards.
type Verdict struct {
	Level           Level    `json:"level"`
	Risk            Risk     `json:"risk"`
	Category        string   `json:"category"`
	Reason          string   `json:"reason"`
	Blocked         bool     `json:"blocked"`
	RequiresPrompt  bool     `json:"requires_prompt"`
	MatchedPatterns []string `json:"matched_patterns,omitempty"`
	Recommendations []string `json:"recommendations,omitempty"`
}

// Categories used in verdicts. Free-form strings, kept stable for audit.
const (
	CategoryOSDestructive   = "OS_DESTRUCTIVE"
	CategoryOSRisky         = "OS_RISKY"
	CategoryOSSafe          = "OS_SAFE"
	CategoryAliasThreat     = "ALIAS_THREAT"
	CategoryRegistry        = "REGISTRY_OPERATION"
	CategoryProtectedPath   = "PROTECTED_PATH"
	CategorySecurityThreat  = "SECURITY_THREAT"
	CategoryVCSMutation     = "VCS_MUTATION"
	CategoryVCSDestructive  = "VCS_DESTRUCTIVE"
	CategoryFileMutation    = "FILE_MUTATION"
	CategoryServiceOp       = "SERVICE_OPERATION"
	CategoryNetworkOp       = "NETWORK_OPERATION"
	CategoryDiskOp          = "DISK_OPERATION"
	CategoryReadOnly        = "READ_ONLY"
	CategoryLearned         = "LEARNED_SAFE"
	CategoryUnknown         = "UNKNOWN_COMMAND"
)
