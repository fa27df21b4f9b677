package provision

import (
	"regexp"
	"strings"
)

// Capability tags no generated worker may declare. Checked against the
// declared spec before any code generation is attempted.
var deniedCapabilities = []string{
	"self-replication",
	"self-replicate",
	"delete",
	"drop",
	"destroy",
	"truncate",
	"wipe",
}

// Constructs the generated source must not contain, regardless of what the
// declared capabilities said. A match fails the whole provisioning attempt
// locally; it is never delegated to human judgment.
var deniedSourcePatterns = []*regexp.Regexp{
	regexp.MustCompile(`os\.system\s*\(`),
	regexp.MustCompile(`subprocess\.[A-Za-z_]+\([^)]*shell\s*=\s*True`),
	regexp.MustCompile(`\beval\s*\(`),
	regexp.MustCompile(`\bexec\s*\(`),
	regexp.MustCompile(`__import__\s*\(`),
	regexp.MustCompile(`(?i)\bdrop\s+(table|database|schema)\b`),
	regexp.MustCompile(`(?i)\btruncate\s+table\b`),
	regexp.MustCompile(`(?i)\bdelete\s+from\b`),
	regexp.MustCompile(`rm\s+-rf`),
}

// checkCapabilities returns the offending capability tag, if any.
func checkCapabilities(capabilities []string) (string, bool) {
	for _, capability := range capabilities {
		normalized := strings.ToLower(capability)

		for _, denied := range deniedCapabilities {
			if strings.Contains(normalized, denied) {
				return capability, true
			}
		}
	}

	return "", false
}

// scanSource returns the first dangerous construct found in the generated
// artifact text, if any.
func scanSource(source string) (string, bool) {
	for _, pattern := range deniedSourcePatterns {
		if match := pattern.FindString(source); match != "" {
			return match, true
		}
	}

	return "", false
}
