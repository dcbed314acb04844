package metricskey

import (
	"sort"
	"testing"

	"github.com/effective-security/metrics"
	"github.com/stretchr/testify/assert"
)

func TestMetricsDefinitions(t *testing.T) {
	for _, m := range Metrics {
		assert.NotEmpty(t, m.Name, "Metric name should not be empty")
		assert.NotEmpty(t, m.Help, "Metric help text should not be empty")
		assert.NotEmpty(t, m.RequiredTags, "Metric should have required tags")
		assert.Contains(t, m.Help, m.Name, "Help should start with the metric name: %s", m.Name)
	}

	isSorted := sort.SliceIsSorted(Metrics, func(i, j int) bool {
		return Metrics[i].Name < Metrics[j].Name
	})
	assert.True(t, isSorted, "Metrics slice should be sorted by name")

	seen := make(map[string]bool)
	for _, m := range Metrics {
		assert.False(t, seen[m.Name], "Metric name should be unique: %s", m.Name)
		seen[m.Name] = true
	}

	t.Run("server metrics have status tag", func(t *testing.T) {
		for _, m := range []*metrics.Describe{
			&StatsServerRequests,
			&StatsToolInvocations,
			&StatsClientCalls,
		} {
			assert.Contains(t, m.RequiredTags, "status", "metric should have status tag: %s", m.Name)
		}
	})

	t.Run("LLM metrics have agent tag", func(t *testing.T) {
		for _, m := range []*metrics.Describe{
			&StatsLLMMessagesSent,
			&StatsLLMBytesSent,
			&StatsLLMBytesReceived,
			&StatsLLMInputTokens,
			&StatsLLMOutputTokens,
			&StatsAssistantCallsSucceeded,
			&StatsAssistantCallsFailed,
		} {
			assert.Contains(t, m.RequiredTags, "agent", "LLM metric should have agent tag: %s", m.Name)
		}
	})

	t.Run("tool metrics have tool tag", func(t *testing.T) {
		for _, m := range []*metrics.Describe{
			&StatsToolCallsSucceeded,
			&StatsToolCallsFailed,
			&StatsToolCallsNotFound,
			&PerfToolCall,
			&PerfToolInvocation,
		} {
			assert.Contains(t, m.RequiredTags, "tool", "tool metric should have tool tag: %s", m.Name)
		}
	})
}
