package metricskey

import "github.com/effective-security/metrics"

// Stats
var (
	// StatsServerRequests is base for counter metric for JSON-RPC requests handled by the server
	StatsServerRequests = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_server_requests",
		Help:         "stats_server_requests provides total JSON-RPC requests handled by the server",
		RequiredTags: []string{"method", "status"},
	}

	StatsServerConnections = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_server_connections",
		Help:         "stats_server_connections provides total connections accepted by the server",
		RequiredTags: []string{"addr"},
	}

	StatsToolInvocations = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_tool_invocations",
		Help:         "stats_tool_invocations provides total tool invocations by status",
		RequiredTags: []string{"tool", "status"},
	}

	StatsClientCalls = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_client_calls",
		Help:         "stats_client_calls provides total requests sent by the client",
		RequiredTags: []string{"method", "status"},
	}

	// StatsLLMMessagesSent is base for counter metric for total messages sent to LLM
	StatsLLMMessagesSent = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_llm_messages_sent",
		Help:         "stats_llm_messages_sent provides total messages sent to LLM",
		RequiredTags: []string{"agent", "model"},
	}

	StatsLLMBytesSent = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_llm_bytes_sent",
		Help:         "stats_llm_bytes_sent provides total bytes sent to LLM",
		RequiredTags: []string{"agent", "model"},
	}

	StatsLLMBytesReceived = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_llm_bytes_received",
		Help:         "stats_llm_bytes_received provides total bytes received from LLM",
		RequiredTags: []string{"agent", "model"},
	}

	StatsLLMInputTokens = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_llm_input_tokens",
		Help:         "stats_llm_input_tokens provides total input tokens sent to LLM",
		RequiredTags: []string{"agent", "model"},
	}

	StatsLLMOutputTokens = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_llm_output_tokens",
		Help:         "stats_llm_output_tokens provides total output tokens received from LLM",
		RequiredTags: []string{"agent", "model"},
	}

	StatsAssistantCallsSucceeded = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_assistant_calls_succeeded",
		Help:         "stats_assistant_calls_succeeded provides total assistant calls succeeded",
		RequiredTags: []string{"agent"},
	}

	StatsAssistantCallsFailed = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_assistant_calls_failed",
		Help:         "stats_assistant_calls_failed provides total assistant calls failed",
		RequiredTags: []string{"agent"},
	}

	StatsToolCallsSucceeded = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_tool_calls_succeeded",
		Help:         "stats_tool_calls_succeeded provides total tool calls made by agents that succeeded",
		RequiredTags: []string{"tool"},
	}

	StatsToolCallsFailed = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_tool_calls_failed",
		Help:         "stats_tool_calls_failed provides total tool calls made by agents that failed",
		RequiredTags: []string{"tool"},
	}

	StatsToolCallsNotFound = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_tool_calls_not_found",
		Help:         "stats_tool_calls_not_found provides total tool calls requested by the model for unknown tools",
		RequiredTags: []string{"tool"},
	}
)

// Perf
var (
	PerfAssistantCall = metrics.Describe{
		Type:         metrics.TypeSample,
		Name:         "perf_assistant_call",
		Help:         "perf_assistant_call provides duration of assistant prompt",
		RequiredTags: []string{"agent"},
	}

	PerfToolCall = metrics.Describe{
		Type:         metrics.TypeSample,
		Name:         "perf_tool_call",
		Help:         "perf_tool_call provides duration of tool call made by agent",
		RequiredTags: []string{"tool"},
	}

	PerfToolInvocation = metrics.Describe{
		Type:         metrics.TypeSample,
		Name:         "perf_tool_invocation",
		Help:         "perf_tool_invocation provides duration of tool invocation on the server",
		RequiredTags: []string{"tool"},
	}
)

// Metrics returns slice of metrics from this repo
// keep sorted by name
var Metrics = []*metrics.Describe{
	&PerfAssistantCall,
	&PerfToolCall,
	&PerfToolInvocation,
	&StatsAssistantCallsFailed,
	&StatsAssistantCallsSucceeded,
	&StatsClientCalls,
	&StatsLLMBytesReceived,
	&StatsLLMBytesSent,
	&StatsLLMInputTokens,
	&StatsLLMMessagesSent,
	&StatsLLMOutputTokens,
	&StatsServerConnections,
	&StatsServerRequests,
	&StatsToolCallsFailed,
	&StatsToolCallsNotFound,
	&StatsToolCallsSucceeded,
	&StatsToolInvocations,
}
