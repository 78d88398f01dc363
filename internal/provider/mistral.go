package provider

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/exedev/beeline/internal/conv"
)

// Mistral speaks its own chat/completions dialect: Bearer auth with an
// explicit Accept header, tool_choice pinned to auto, and tool results as
// role=tool messages keyed by tool_call_id.
type Mistral struct {
	apiKey  string
	model   string
	baseURL string
}

type mistralRequest struct {
	Model      string           `json:"model"`
	Messages   []mistralMessage `json:"messages"`
	Tools      []mistralTool    `json:"tools,omitempty"`
	ToolChoice string           `json:"tool_choice,omitempty"`
}

type mistralMessage struct {
	Role       string            `json:"role"`
	Content    any               `json:"content,omitempty"` // string or []mistralContentPart
	ToolCalls  []mistralToolCall `json:"tool_calls,omitempty"`
	ToolCallID string            `json:"tool_call_id,omitempty"`
}

type mistralContentPart struct {
	Type     string           `json:"type"` // "text" or "image_url"
	Text     string           `json:"text,omitempty"`
	ImageURL *mistralImageURL `json:"image_url,omitempty"`
}

type mistralImageURL struct {
	URL string `json:"url"`
}

type mistralTool struct {
	Type     string          `json:"type"` // "function"
	Function mistralFunction `json:"function"`
}

type mistralFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters"`
}

type mistralToolCall struct {
	ID       string              `json:"id"`
	Type     string              `json:"type"` // "function"
	Function mistralCallFunction `json:"function"`
}

type mistralCallFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"` // JSON string
}

type mistralResponse struct {
	Choices []mistralChoice `json:"choices"`
	Usage   *mistralUsage   `json:"usage,omitempty"`
}

type mistralChoice struct {
	Message mistralRespMessage `json:"message"`
}

type mistralRespMessage struct {
	Content   string            `json:"content"`
	ToolCalls []mistralToolCall `json:"tool_calls,omitempty"`
}

type mistralUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

// NewMistral creates the Mistral adapter. An empty baseURL selects the
// production endpoint.
func NewMistral(apiKey, model, baseURL string) *Mistral {
	if baseURL == "" {
		baseURL = "https://api.mistral.ai/v1"
	}
	return &Mistral{
		apiKey:  apiKey,
		model:   model,
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

func (m *Mistral) Provider() string { return "mistral" }

func (m *Mistral) BuildRequest(c *conv.Conversation, tools []Tool) (*Request, error) {
	var messages []mistralMessage
	for _, msg := range c.Messages {
		if msg.Role == conv.RoleTool {
			for _, part := range msg.Parts {
				res, ok := part.(conv.ResultPart)
				if !ok {
					return nil, fmt.Errorf("mistral: unknown part kind %q in tool message", part.Kind())
				}
				messages = append(messages, mistralMessage{
					Role:       "tool",
					Content:    res.Result,
					ToolCallID: res.ID,
				})
			}
			continue
		}

		out := mistralMessage{Role: string(msg.Role)}
		var content []mistralContentPart
		for _, part := range msg.Parts {
			switch p := part.(type) {
			case conv.TextPart:
				text, err := c.Expand(p.Text)
				if err != nil {
					return nil, err
				}
				content = append(content, mistralContentPart{Type: "text", Text: text})
			case conv.ImagePart:
				content = append(content, mistralContentPart{Type: "image_url", ImageURL: &mistralImageURL{
					URL: fmt.Sprintf("data:%s;base64,%s", p.MediaType, p.Data),
				}})
			case conv.CallPart:
				args, err := json.Marshal(p.Args)
				if err != nil {
					return nil, fmt.Errorf("mistral: marshal call arguments: %w", err)
				}
				out.ToolCalls = append(out.ToolCalls, mistralToolCall{
					ID:   p.ID,
					Type: "function",
					Function: mistralCallFunction{
						Name:      p.Name,
						Arguments: string(args),
					},
				})
			default:
				return nil, fmt.Errorf("mistral: unknown part kind %q", part.Kind())
			}
		}
		if len(content) == 1 && content[0].Type == "text" {
			out.Content = content[0].Text
		} else if len(content) > 0 {
			out.Content = content
		}
		messages = append(messages, out)
	}

	apiTools := make([]mistralTool, 0, len(tools))
	for _, t := range tools {
		apiTools = append(apiTools, mistralTool{
			Type: "function",
			Function: mistralFunction{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}

	req := mistralRequest{
		Model:    m.model,
		Messages: messages,
		Tools:    apiTools,
	}
	if len(apiTools) > 0 {
		req.ToolChoice = "auto"
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("mistral: marshal request: %w", err)
	}

	header := jsonHeader()
	header.Set("Authorization", "Bearer "+m.apiKey)
	header.Set("Accept", "application/json")

	return &Request{
		URL:    m.baseURL + "/chat/completions",
		Header: header,
		Body:   body,
	}, nil
}

func (m *Mistral) ParseResponse(body []byte) (*conv.Message, Usage, error) {
	var resp mistralResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, Usage{}, &MalformedResponse{Provider: "mistral", Reason: "undecodable body", Err: err}
	}
	if len(resp.Choices) == 0 {
		return nil, Usage{}, &MalformedResponse{Provider: "mistral", Reason: "no choices in response"}
	}

	choice := resp.Choices[0].Message
	msg := &conv.Message{Role: conv.RoleAssistant}
	if choice.Content != "" {
		msg.Parts = append(msg.Parts, conv.TextPart{Text: choice.Content})
	}
	for _, tc := range choice.ToolCalls {
		var args map[string]any
		if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
			return nil, Usage{}, &MalformedResponse{
				Provider: "mistral",
				Reason:   fmt.Sprintf("tool call %s: arguments are not a JSON object", tc.ID),
				Err:      err,
			}
		}
		msg.Parts = append(msg.Parts, conv.CallPart{ID: tc.ID, Name: tc.Function.Name, Args: args})
	}

	var usage Usage
	if resp.Usage != nil {
		usage = Usage{TokensIn: resp.Usage.PromptTokens, TokensOut: resp.Usage.CompletionTokens}
	}
	return msg, usage, nil
}
