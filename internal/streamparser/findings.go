package streamparser

import (
	"regexp"

	"github.com/kandev/agentexec/internal/model"
)

type findingRule struct {
	pattern  *regexp.Regexp
	severity model.FindingSeverity
	kind     model.FindingType
}

// findingRules is ordered; the first matching rule wins (spec.md §4.7).
var findingRules = []findingRule{
	{regexp.MustCompile(`^CRITICAL:`), model.SeverityCritical, model.FindingSecurity},
	{regexp.MustCompile(`^VULNERABILITY:`), model.SeverityHigh, model.FindingSecurity},
	{regexp.MustCompile(`^SECRET (FOUND|DETECTED):`), model.SeverityCritical, model.FindingSecurity},
	{regexp.MustCompile(`CVE-\d{4}-\d+`), model.SeverityHigh, model.FindingSecurity},
	{regexp.MustCompile(`^FINDING:`), model.SeverityMedium, model.FindingSecurity},
	{regexp.MustCompile(`^WARNING:`), model.SeverityLow, model.FindingQuality},
}

// ParseFinding matches line against the ordered finding rules and
// returns a Finding (with TaskID/ID left for the caller to fill) if
// any rule matches, else ok=false.
func ParseFinding(line string, agentRole string) (f model.Finding, ok bool) {
	for _, rule := range findingRules {
		if rule.pattern.MatchString(line) {
			return model.Finding{
				Severity:    rule.severity,
				Type:        rule.kind,
				Title:       rule.pattern.FindString(line),
				Description: line,
				AgentRole:   agentRole,
				Status:      model.FindingOpen,
			}, true
		}
	}
	return model.Finding{}, false
}
