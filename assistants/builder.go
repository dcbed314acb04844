package assistants

import (
	"slices"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpbridge/pkg/llms"
	"github.com/effective-security/mcpbridge/pkg/prompts"
	"github.com/effective-security/mcpbridge/tools"
	"github.com/effective-security/xlog"
)

// Defaults of the assistant
const (
	DefaultName        = "Generic Assistant"
	DefaultDescription = "An AI assistant that can perform various tasks."
	// DefaultSystemPrompt has the descriptions of the tools in {{.tools}}
	DefaultSystemPrompt = `You are a helpful AI assistant.
Use the tools to answer the question, and answer with the result of the tools.

# TOOLS
{{.tools}}`
)

// Builder collects the settings of the assistant.
// The With* methods return a new builder, the receiver is not modified.
type Builder struct {
	model       llms.Model
	name        string
	description string
	sysprompt   prompts.FormatPrompter
	tools       []tools.ITool
	opts        []Option
}

// NewBuilder returns a builder of the assistant on the model
func NewBuilder(model llms.Model) *Builder {
	return &Builder{
		model:       model,
		name:        DefaultName,
		description: DefaultDescription,
	}
}

func (b *Builder) clone() *Builder {
	c := *b
	c.tools = slices.Clone(b.tools)
	c.opts = slices.Clone(b.opts)
	return &c
}

// WithName sets the name of the Agent, when used in a prompt of another Agents or LLMs.
func (b *Builder) WithName(name string) *Builder {
	c := b.clone()
	c.name = name
	return c
}

// WithDescription sets the description of the Agent.
func (b *Builder) WithDescription(description string) *Builder {
	c := b.clone()
	c.description = description
	return c
}

// WithSystemPrompt sets the system prompt template.
// The "tools" input is set to the descriptions of the tools, unless provided.
func (b *Builder) WithSystemPrompt(sysprompt prompts.FormatPrompter) *Builder {
	c := b.clone()
	c.sysprompt = sysprompt
	return c
}

// WithTools adds the tools, a tool with the name of an existing tool
// is ignored. Names are case-sensitive, as the names of MCP tools.
func (b *Builder) WithTools(list ...tools.ITool) *Builder {
	c := b.clone()
	for _, tool := range list {
		name := tool.Name()
		if slices.ContainsFunc(c.tools, func(t tools.ITool) bool {
			return t.Name() == name
		}) {
			logger.KV(xlog.WARNING,
				"assistant", c.name,
				"status", "duplicate_tool",
				"tool", name,
			)
			continue
		}
		c.tools = append(c.tools, tool)
	}
	return c
}

// WithOptions adds the default options of the runs
func (b *Builder) WithOptions(opts ...Option) *Builder {
	c := b.clone()
	c.opts = append(c.opts, opts...)
	return c
}

// Tools returns the tools of the builder
func (b *Builder) Tools() []tools.ITool {
	return slices.Clone(b.tools)
}

// Build returns the assistant
func (b *Builder) Build() (*Assistant, error) {
	if b.model == nil {
		return nil, errors.New("assistant: model is required")
	}
	if len(b.tools) > 0 && !b.model.GetProviderType().Supports(llms.CapabilityFunctionCalling) {
		return nil, errors.Newf("assistant %s: the LLM does not support function calling", b.name)
	}

	sysprompt := b.sysprompt
	if sysprompt == nil {
		sysprompt = prompts.NewPromptTemplate(DefaultSystemPrompt, []string{"tools"})
	}

	a := &Assistant{
		LLM:         b.model,
		name:        b.name,
		description: b.description,
		sysprompt:   sysprompt,
		cfg:         NewConfig(b.opts...),
		tools:       slices.Clone(b.tools),
		toolsByName: make(map[string]tools.ITool, len(b.tools)),
	}
	for _, tool := range a.tools {
		name := tool.Name()
		a.toolsByName[name] = tool
		a.toolsNames = append(a.toolsNames, name)
		a.llmToolDefs = append(a.llmToolDefs, llms.Tool{
			Type: "function",
			Function: &llms.FunctionDefinition{
				Name:        name,
				Description: tool.Description(),
				Parameters:  tool.Parameters(),
			},
		})
	}
	return a, nil
}
