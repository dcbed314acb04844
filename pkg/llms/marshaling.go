package llms

import (
	"encoding/json"

	"github.com/cockroachdb/errors"
)

// messageJSON is the wire form of a Message,
// a single text part is stored as `text`
type messageJSON struct {
	Role  Role              `json:"role"`
	Text  string            `json:"text,omitempty"`
	Parts []json.RawMessage `json:"parts,omitempty"`
}

// contentPartJSON is the wire form of any ContentPart
type contentPartJSON struct {
	Type         string            `json:"type"`
	Text         string            `json:"text,omitempty"`
	ToolCall     *toolCallJSON     `json:"tool_call,omitempty"`
	ToolResponse *ToolCallResponse `json:"tool_response,omitempty"`
}

// toolCallJSON keeps the field order: function, id, type
type toolCallJSON struct {
	FunctionCall *FunctionCall `json:"function"`
	ID           string        `json:"id"`
	Type         string        `json:"type"`
}

// MarshalJSON implements json.Marshaler for Message
func (m Message) MarshalJSON() ([]byte, error) {
	if len(m.Parts) == 1 {
		if tp, ok := m.Parts[0].(TextContent); ok && tp.Text != "" {
			return json.Marshal(messageJSON{Role: m.Role, Text: tp.Text})
		}
	}

	res := messageJSON{
		Role:  m.Role,
		Parts: make([]json.RawMessage, 0, len(m.Parts)),
	}
	for _, p := range m.Parts {
		js, err := json.Marshal(p)
		if err != nil {
			return nil, err
		}
		res.Parts = append(res.Parts, js)
	}
	return json.Marshal(res)
}

// UnmarshalJSON implements json.Unmarshaler for Message
func (m *Message) UnmarshalJSON(data []byte) error {
	var msg messageJSON
	if err := json.Unmarshal(data, &msg); err != nil {
		return errors.WithStack(err)
	}

	m.Role = msg.Role
	m.Parts = nil
	if msg.Text != "" {
		m.Parts = []ContentPart{TextContent{Text: msg.Text}}
		return nil
	}

	for _, raw := range msg.Parts {
		var part contentPartJSON
		if err := json.Unmarshal(raw, &part); err != nil {
			return errors.WithStack(err)
		}
		p, err := part.toPart()
		if err != nil {
			return err
		}
		m.Parts = append(m.Parts, p)
	}
	return nil
}

func (p *contentPartJSON) toPart() (ContentPart, error) {
	switch p.Type {
	case "text", "":
		return TextContent{Text: p.Text}, nil
	case "tool_call":
		if p.ToolCall == nil {
			return nil, errors.New("tool_call field is required for tool_call type")
		}
		if p.ToolCall.ID == "" {
			return nil, errors.New("missing id field in ToolCall")
		}
		fc := p.ToolCall.FunctionCall
		if fc == nil {
			fc = &FunctionCall{}
		}
		return ToolCall{
			ID:           p.ToolCall.ID,
			Type:         p.ToolCall.Type,
			FunctionCall: fc,
		}, nil
	case "tool_response":
		if p.ToolResponse == nil {
			return nil, errors.New("tool_response field is required for tool_response type")
		}
		if p.ToolResponse.ToolCallID == "" {
			return nil, errors.New("missing tool_call_id field in ToolCallResponse")
		}
		return *p.ToolResponse, nil
	default:
		return nil, errors.Newf("unknown content type: '%s'", p.Type)
	}
}

// MarshalJSON implements json.Marshaler for TextContent
func (tc TextContent) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Text string `json:"text"`
		Type string `json:"type"`
	}{
		Text: tc.Text,
		Type: "text",
	})
}

// MarshalJSON implements json.Marshaler for ToolCall
func (tc ToolCall) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type     string       `json:"type"`
		ToolCall toolCallJSON `json:"tool_call"`
	}{
		Type: "tool_call",
		ToolCall: toolCallJSON{
			FunctionCall: tc.FunctionCall,
			ID:           tc.ID,
			Type:         tc.Type,
		},
	})
}

// MarshalJSON implements json.Marshaler for ToolCallResponse
func (tc ToolCallResponse) MarshalJSON() ([]byte, error) {
	type plain ToolCallResponse
	return json.Marshal(struct {
		Type         string `json:"type"`
		ToolResponse plain  `json:"tool_response"`
	}{
		Type:         "tool_response",
		ToolResponse: plain(tc),
	})
}
