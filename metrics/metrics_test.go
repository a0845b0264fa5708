package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordToolExecution(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.RecordToolExecution("search_concepts", "success", 0.2)
	m.RecordToolExecution("search_concepts", "success", 0.4)
	m.RecordToolExecution("save_note", "error", 0.1)

	expected := `
		# HELP pagesense_tool_executions_total Total number of tool executions by tool name and status
		# TYPE pagesense_tool_executions_total counter
		pagesense_tool_executions_total{status="error",tool_name="save_note"} 1
		pagesense_tool_executions_total{status="success",tool_name="search_concepts"} 2
	`
	err := testutil.CollectAndCompare(m.ToolExecutionCounter, strings.NewReader(expected))
	require.NoError(t, err)
}

func TestRecordTurn(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.RecordTurn("completed", 1.5, 3)
	m.RecordTurn("failed", 12, 8)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.TurnCounter.WithLabelValues("completed")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.TurnCounter.WithLabelValues("failed")))
	assert.Equal(t, float64(0), testutil.ToFloat64(m.TurnCounter.WithLabelValues("cancelled")))
}

func TestRecordLLMRequestTokens(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.RecordLLMRequest("planning", "success", 120, 40)
	m.RecordLLMRequest("reasoning", "success", 300, 0)

	assert.Equal(t, float64(420), testutil.ToFloat64(m.LLMTokensUsed.WithLabelValues("prompt")))
	assert.Equal(t, float64(40), testutil.ToFloat64(m.LLMTokensUsed.WithLabelValues("completion")))
}

func TestSessionGauge(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.SessionStarted()
	m.SessionStarted()
	m.SessionEnded()

	assert.Equal(t, float64(1), testutil.ToFloat64(m.ActiveSessions))
}

func TestNopIsIsolated(t *testing.T) {
	a := NewNop()
	b := NewNop()
	a.SessionStarted()
	assert.Equal(t, float64(0), testutil.ToFloat64(b.ActiveSessions))
}
