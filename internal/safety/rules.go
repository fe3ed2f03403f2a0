package safety

import "regexp"

// rule pairs a compiled pattern with its source string so verdicts can name
// what matched.
type rule struct {
	re      *regexp.Regexp
	pattern string
	family  string
}

func compileRules(family string, patterns []string) []rule {
	out := make([]rule, 0, len(patterns))
	for _, p := range patterns {
		out = append(out, rule{re: regexp.MustCompile(p), pattern: p, family: family})
	}
	return out
}

// firstMatch returns the first rule in the group matching command. Within a
// group the first match wins; there is no scoring.
func firstMatch(rules []rule, command string) (rule, bool) {
	for _, r := range rules {
		if r.re.MatchString(command) {
			return r, true
		}
	}
	return rule{}, false
}

// Group 1: OS-destructive fast patterns. Checked before everything else so a
// destructive OS-shell invocation hosted inside a PowerShell session can never
// fall through to a softer rule.
var osDestructivePatterns = []string{
	`(?i)\brm\s+(-[a-z]*r[a-z]*f|-[a-z]*f[a-z]*r)[a-z]*\b`,
	`(?i)\bdel\s+(/[fsq]\s*)+`,
	`(?i)\brmdir\s+/s\b`,
	`(?i)\bformat(\.com)?\s+[a-z]:`,
	`(?i)\bmkfs(\.\w+)?\b`,
	`(?i)\bdd\s+if=`,
	`(?i)\bshutdown\b`,
	`(?i)\breboot\b`,
	`(?i)\breg(\.exe)?\s+(add|delete)\b`,
	`(?i)\bwmic\b`,
	`(?i)\bdiskpart\b`,
	`(?i)\bcipher\s+/w\b`,
}

// Group 2: bare listing fast path. Short-circuits to SAFE for the
// overwhelmingly common case without running the full cascade.
var listingFastPathPattern = regexp.MustCompile(`(?i)^\s*(ls|dir|gci|Get-ChildItem)\s*(-[a-z]+\s*)*$`)

// Group 4: raw OS-shell verbs that mutate state but are routinely legitimate.
var osRiskyPatterns = []string{
	`(?i)^\s*(copy|xcopy|robocopy)\b`,
	`(?i)^\s*move\b`,
	`(?i)^\s*ren(ame)?\s`,
	`(?i)^\s*del\s+[^/\s]`,
	`(?i)\bnet\s+stop\b`,
	`(?i)\btaskkill\b`,
	`(?i)\bsc(\.exe)?\s+(stop|start|config)\b`,
	`(?i)^\s*mkdir\b`,
	`(?i)^\s*rd\s`,
}

// Group 5: read-only OS-shell verbs.
var osSafePatterns = []string{
	`(?i)^\s*(dir|tree)\b`,
	`(?i)^\s*type\s`,
	`(?i)^\s*(ver|vol|date\s+/t|time\s+/t)\s*$`,
	`(?i)^\s*(whoami|hostname)\b`,
	`(?i)^\s*(ipconfig|systeminfo|tasklist)\b`,
	`(?i)^\s*where(\.exe)?\s`,
	`(?i)^\s*echo\b`,
}

// Group 6 families, merged into the blocked set in cascade order.
var registryBlockedPatterns = []string{
	`(?i)\b(Set|New|Remove)-ItemProperty\s+.*(HKLM|HKEY_LOCAL_MACHINE)`,
	`(?i)\b(New|Remove)-Item\s+.*(HKLM:|HKEY_LOCAL_MACHINE)`,
	`(?i)\bRemove-Item\s+.*HKCU:.*\\(Software|Run)`,
	`(?i)regedit(\.exe)?\s+/s\b`,
}

var protectedPathPatterns = []string{
	`(?i)\bRemove-Item\s+.*(C:\\Windows|C:\\Program Files|%SystemRoot%|\\System32)`,
	`(?i)\b(rm|Remove-Item)\s+.*(/etc/|/boot/|/usr/bin/|/bin/|/sbin/)`,
	`(?i)\bSet-Content\s+.*(C:\\Windows|\\System32)`,
	`(?i)>\s*(C:\\Windows|/etc/)`,
}

var rootDrivePatterns = []string{
	`(?i)\bRemove-Item\s+(-\w+\s+)*['"]?[a-z]:[\\/]['"]?\s+.*-Recurse`,
	`(?i)\bRemove-Item\s+(-\w+\s+)*-Recurse\s+.*['"]?[a-z]:[\\/]['"]?(\s|$)`,
	`(?i)\brm\s+(-[a-z]+\s+)*/(\s|$)`,
	`(?i)\bGet-ChildItem\s+[a-z]:[\\/]\s*\|\s*Remove-Item`,
}

var remoteMachinePatterns = []string{
	`(?i)\bInvoke-Command\s+.*-ComputerName\s+.*\b(Remove|Stop|Set|Format|Clear)-`,
	`(?i)\bEnter-PSSession\s+.*-ComputerName`,
	`(?i)\b(Stop|Restart)-Computer\s+.*-ComputerName`,
	`(?i)\bpsexec\b`,
}

// criticalThreatPatterns mark disguised-execution and download-and-run
// primitives. They are part of the blocked set and also serve as the
// secondary re-test that upgrades a plain BLOCKED verdict to CRITICAL.
var criticalThreatPatterns = []string{
	`(?i)-EncodedCommand\b`,
	`(?i)-enc\s+[A-Za-z0-9+/=]{8,}`,
	`(?i)-WindowStyle\s+Hidden`,
	`(?i)\bIEX\b.*\b(New-Object\s+Net\.WebClient|Invoke-WebRequest|Invoke-RestMethod|DownloadString)`,
	`(?i)\bInvoke-Expression\b.*\b(DownloadString|FromBase64String)`,
	`(?i)\b(curl|wget)\b.*\|\s*(sh|bash|pwsh|powershell)\b`,
	`(?i)\bFromBase64String\b`,
	`(?i)\bStart-Process\s+.*-Verb\s+RunAs`,
	`(?i)\bbash\s+-i\s+>&\s*/dev/tcp/`,
	`(?i)\b(nc|ncat|socat)\s+.*-e\s`,
}

var destructiveCommandPatterns = []string{
	`(?i)\bFormat-Volume\b`,
	`(?i)\bClear-Disk\b`,
	`(?i)\bInitialize-Disk\b`,
	`(?i)\bRemove-Partition\b`,
	`(?i)\bStop-Computer\b`,
	`(?i)\bRestart-Computer\b`,
	`(?i)\bRemove-Item\s+.*-Recurse\s+.*-Force`,
	`(?i)\bRemove-Item\s+.*-Force\s+.*-Recurse`,
	`(?i)\bDisable-ComputerRestore\b`,
	`(?i)\bvssadmin\s+delete\b`,
}

var vcsDestructivePatterns = []string{
	`(?i)\bgit\s+push\s+.*(--force\b|-f\b)`,
	`(?i)\bgit\s+reset\s+--hard`,
	`(?i)\bgit\s+(filter-branch|filter-repo)\b`,
	`(?i)\bgit\s+rebase\s+.*(-i\b|--interactive|--root)`,
	`(?i)\bgit\s+push\s+.*--delete`,
	`(?i)\bgit\s+push\s+.*\s:\S+`,
	`(?i)\bgit\s+branch\s+-D\b`,
	`(?i)\bgh\s+repo\s+delete\b`,
	`(?i)\bgh\s+secret\s+delete\b`,
	`(?i)\bgit\s+clean\s+.*-[a-z]*f`,
}

// Group 7 families, merged into the risky set.
var fileMutationPatterns = []string{
	`(?i)\b(Set|Add)-Content\b`,
	`(?i)\bOut-File\b`,
	`(?i)\bNew-Item\b`,
	`(?i)\bRemove-Item\b`,
	`(?i)\b(Copy|Move|Rename)-Item\b`,
	`(?i)\bClear-Content\b`,
	`(?i)\bSet-Acl\b`,
	`(?i)\b(chmod|chown|touch|ln)\s`,
}

var vcsMutationPatterns = []string{
	`(?i)\bgit\s+(commit|push|pull|merge|rebase|checkout|switch|stash|cherry-pick|revert|tag|fetch)\b`,
	`(?i)\bgit\s+(add|rm|mv|restore)\b`,
	`(?i)\bgh\s+(pr|issue|release)\s+(create|edit|close|merge)\b`,
}

var diskOperationPatterns = []string{
	`(?i)\bchkdsk\b`,
	`(?i)\bdefrag\b`,
	`(?i)\bOptimize-Volume\b`,
	`(?i)\b(Mount|Dismount)-DiskImage\b`,
	`(?i)\bNew-Partition\b`,
}

var registryWritePatterns = []string{
	`(?i)\b(Set|New)-ItemProperty\s+.*HKCU`,
	`(?i)\bNew-Item\s+.*HKCU:`,
	`(?i)\bNew-PSDrive\b`,
}

var serviceOperationPatterns = []string{
	`(?i)\b(Start|Stop|Restart|Suspend|Resume)-Service\b`,
	`(?i)\bSet-Service\b`,
	`(?i)\bStop-Process\b`,
	`(?i)\bsystemctl\s+(start|stop|restart|reload)\b`,
}

var networkOperationPatterns = []string{
	`(?i)\bInvoke-WebRequest\b`,
	`(?i)\bInvoke-RestMethod\b`,
	`(?i)\bStart-BitsTransfer\b`,
	`(?i)^\s*(curl|wget)\s`,
	`(?i)\bTest-(Net)?Connection\b`,
	`(?i)\bTest-WSMan\b`,
	`(?i)\bssh\s`,
	`(?i)\bscp\s`,
}

// Group 8: read-only informational verbs. Computer-targeting Test-* variants
// never reach this group; the network/remote groups above match them first.
var safeReadOnlyPatterns = []string{
	`(?i)^\s*Get-\w+`,
	`(?i)^\s*Show-\w+`,
	`(?i)^\s*Test-\w+`,
	`(?i)^\s*(Format|Select|Where|Sort|Group|Measure|Compare|Tee)-Object\b`,
	`(?i)^\s*(Format-(Table|List|Wide)|Select-String|Out-String)\b`,
	`(?i)^\s*Write-(Output|Host|Verbose)\b`,
	`(?i)^\s*ConvertTo-(Json|Csv|Html)\b`,
	`(?i)^\s*git\s+(status|log|diff|show|branch\s*(--list|-l)?|remote\s+-v|describe|shortlog|blame)\s*`,
	`(?i)^\s*(pwd|Get-Location|Start-Sleep|Clear-Host|Get-Date|Get-Help|Get-Command|Get-Member)\b`,
	`(?i)^\s*(uname|id|uptime|env|printenv)\b`,
}
