package safety

import "strings"

// aliasTable maps shell shorthand verbs to their canonical verb-noun form.
// Only the first whitespace-delimited token of a command is ever expanded, so
// rules written against canonical verbs still see the original argument tail.
var aliasTable = map[string]string{
	"ls":      "Get-ChildItem",
	"dir":     "Get-ChildItem",
	"gci":     "Get-ChildItem",
	"cat":     "Get-Content",
	"gc":      "Get-Content",
	"type":    "Get-Content",
	"cp":      "Copy-Item",
	"copy":    "Copy-Item",
	"cpi":     "Copy-Item",
	"mv":      "Move-Item",
	"move":    "Move-Item",
	"mi":      "Move-Item",
	"rm":      "Remove-Item",
	"del":     "Remove-Item",
	"ri":      "Remove-Item",
	"erase":   "Remove-Item",
	"ren":     "Rename-Item",
	"rni":     "Rename-Item",
	"kill":    "Stop-Process",
	"spps":    "Stop-Process",
	"ps":      "Get-Process",
	"gps":     "Get-Process",
	"pwd":     "Get-Location",
	"gl":      "Get-Location",
	"cd":      "Set-Location",
	"sl":      "Set-Location",
	"echo":    "Write-Output",
	"write":   "Write-Output",
	"sls":     "Select-String",
	"cls":     "Clear-Host",
	"clear":   "Clear-Host",
	"gsv":     "Get-Service",
	"history": "Get-History",
	"h":       "Get-History",
	"sleep":   "Start-Sleep",
	"iwr":     "Invoke-WebRequest",
	"wget":    "Invoke-WebRequest",
	"curl":    "Invoke-WebRequest",
	"irm":     "Invoke-RestMethod",
	"iex":     "Invoke-Expression",
}

// highRiskAliases are shorthands whose expanded form destructively renames or
// removes item properties. A shorthand masking that intent is treated as
// higher-confidence obfuscation than the literal canonical text.
var highRiskAliases = map[string]string{
	"rnp": "Rename-ItemProperty",
	"rp":  "Remove-ItemProperty",
	"rdr": "Remove-PSDrive",
}

// ResolveAlias expands a known shorthand in the first token of command to its
// canonical form. Arguments, quoted strings and paths are untouched. Unknown
// first tokens pass through unchanged.
func ResolveAlias(command string) string {
	first, rest, found := splitFirstToken(command)
	if first == "" {
		return command
	}

	canonical, ok := aliasTable[strings.ToLower(first)]
	if !ok {
		if hr, hot := highRiskAliases[strings.ToLower(first)]; hot {
			canonical = hr
		} else {
			return command
		}
	}

	lead := command[:len(command)-len(strings.TrimLeft(command, " \t"))]
	if !found {
		return lead + canonical
	}
	return lead + canonical + rest
}

// highRiskAlias reports whether the first token of command is a shorthand for
// a destructive property operation, returning its canonical form.
func highRiskAlias(command string) (string, bool) {
	first, _, _ := splitFirstToken(command)
	canonical, ok := highRiskAliases[strings.ToLower(first)]
	return canonical, ok
}

// splitFirstToken returns the first whitespace-delimited token, the remainder
// (including its leading separator), and whether a remainder exists.
func splitFirstToken(command string) (string, string, bool) {
	trimmed := strings.TrimLeft(command, " \t")
	if trimmed == "" {
		return "", "", false
	}
	idx := strings.IndexAny(trimmed, " \t")
	if idx < 0 {
		return trimmed, "", false
	}
	return trimmed[:idx], trimmed[idx:], true
}
