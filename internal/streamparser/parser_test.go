package streamparser

import (
	"testing"

	"github.com/kandev/agentexec/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMalformedLineIsOpaque(t *testing.T) {
	p := Parse(`not json at all`)
	assert.Equal(t, EventOpaque, p.Kind)
	assert.Equal(t, []string{"not json at all"}, p.Output)
}

func TestParseAssistantTextSplitsOnNewline(t *testing.T) {
	line := `{"type":"assistant","message":{"content":[{"type":"text","text":"line one\nline two"}]}}`
	p := Parse(line)
	assert.Equal(t, EventOutput, p.Kind)
	assert.Equal(t, []string{"line one", "line two"}, p.Output)
}

func TestParseAssistantToolUseEditIsFileAffecting(t *testing.T) {
	line := `{"type":"assistant","message":{"content":[{"type":"tool_use","name":"Edit","input":{"file_path":"main.go"}}]}}`
	p := Parse(line)
	require.Len(t, p.ToolUses, 1)
	action, ok := FileAffectingAction(p.ToolUses[0].Name)
	require.True(t, ok)
	assert.Equal(t, "edit", action)
	assert.Equal(t, "main.go", ToolFilePath(p.ToolUses[0].Input))
}

func TestParseAssistantSpawnAgentToolUseIsFlagged(t *testing.T) {
	line := `{"type":"assistant","message":{"content":[{"type":"tool_use","name":"mcp__agentexec__spawn_agent","input":{}}]}}`
	p := Parse(line)
	assert.Equal(t, EventSpawnUse, p.Kind)
}

func TestParseResultLine(t *testing.T) {
	line := `{"type":"result","result":"done\nall good"}`
	p := Parse(line)
	assert.True(t, p.IsResult)
	assert.Equal(t, []string{"done", "all good"}, p.Output)
}

func TestParseUnknownTypeIgnored(t *testing.T) {
	p := Parse(`{"type":"system"}`)
	assert.Equal(t, EventIgnored, p.Kind)
}

func TestFindingRulesFirstMatchWins(t *testing.T) {
	cases := []struct {
		line     string
		severity model.FindingSeverity
	}{
		{"CRITICAL: sql injection in login", model.SeverityCritical},
		{"VULNERABILITY: xss in comment form", model.SeverityHigh},
		{"SECRET FOUND: aws key in .env", model.SeverityCritical},
		{"reference CVE-2024-12345 affects dep", model.SeverityHigh},
		{"FINDING: missing index on users table", model.SeverityMedium},
		{"WARNING: deprecated API used", model.SeverityLow},
	}
	for _, c := range cases {
		f, ok := ParseFinding(c.line, "security-reviewer")
		require.True(t, ok, c.line)
		assert.Equal(t, c.severity, f.Severity, c.line)
	}
}

func TestFindingRulesNoMatch(t *testing.T) {
	_, ok := ParseFinding("just a normal line of output", "developer")
	assert.False(t, ok)
}
