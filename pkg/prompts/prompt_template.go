package prompts

import (
	"slices"
	"strings"
	"text/template"

	"github.com/Masterminds/sprig/v3"
	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpbridge/pkg/llms"
	"github.com/effective-security/mcpbridge/pkg/llmutils"
)

// ErrMissingInputVariable is returned when a declared input variable
// is not provided to Format
var ErrMissingInputVariable = errors.New("missing input variable")

// FormatPrompter is an interface for formatting a map of values into a prompt value.
type FormatPrompter interface {
	FormatPrompt(values map[string]any) (llms.PromptValue, error)
	GetInputVariables() []string
}

var _ FormatPrompter = PromptTemplate{}

// PromptTemplate is a Go text/template with the sprig functions.
type PromptTemplate struct {
	// Template is the prompt template.
	Template string
	// InputVariables are the variables that must be provided on Format.
	InputVariables []string
	// PartialVariables are the defaults for the template variables.
	PartialVariables map[string]any
}

// NewPromptTemplate returns a new prompt template.
func NewPromptTemplate(tmpl string, inputVars []string) PromptTemplate {
	return PromptTemplate{
		Template:       tmpl,
		InputVariables: inputVars,
	}
}

// Format formats the prompt template and returns a string value.
func (p PromptTemplate) Format(values map[string]any) (string, error) {
	resolved := llmutils.MergeInputs(p.PartialVariables, values)
	for _, name := range p.InputVariables {
		if _, ok := resolved[name]; !ok {
			return "", errors.Wrapf(ErrMissingInputVariable, "%s", name)
		}
	}

	t, err := template.New("prompt").
		Option("missingkey=error").
		Funcs(sprig.TxtFuncMap()).
		Parse(p.Template)
	if err != nil {
		return "", errors.Wrap(err, "failed to parse prompt template")
	}

	var sb strings.Builder
	if err = t.Execute(&sb, resolved); err != nil {
		return "", errors.Wrap(err, "failed to execute prompt template")
	}
	return sb.String(), nil
}

// FormatPrompt formats the prompt template and returns a string prompt value.
func (p PromptTemplate) FormatPrompt(values map[string]any) (llms.PromptValue, error) {
	f, err := p.Format(values)
	if err != nil {
		return nil, err
	}
	return StringPromptValue(f), nil
}

// GetInputVariables returns the input variables the prompt expect.
func (p PromptTemplate) GetInputVariables() []string {
	return slices.Clone(p.InputVariables)
}

var _ llms.PromptValue = StringPromptValue("")

// StringPromptValue is a prompt value that is a string.
type StringPromptValue string

func (v StringPromptValue) String() string {
	return string(v)
}

// Messages returns a single-element Message slice with the human role.
func (v StringPromptValue) Messages() []llms.Message {
	return []llms.Message{
		llms.MessageFromTextParts(llms.RoleHuman, string(v)),
	}
}
