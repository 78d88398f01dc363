package provider

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/exedev/beeline/internal/conv"
)

// XAI speaks the Grok chat/completions dialect: Bearer auth and
// tool_choice pinned to auto whenever tools are declared.
type XAI struct {
	apiKey  string
	model   string
	baseURL string
}

type xaiRequest struct {
	Model      string       `json:"model"`
	Messages   []xaiMessage `json:"messages"`
	Tools      []xaiTool    `json:"tools,omitempty"`
	ToolChoice string       `json:"tool_choice,omitempty"`
}

type xaiMessage struct {
	Role       string        `json:"role"`
	Content    any           `json:"content,omitempty"` // string or []xaiContentPart
	ToolCalls  []xaiToolCall `json:"tool_calls,omitempty"`
	ToolCallID string        `json:"tool_call_id,omitempty"`
}

type xaiContentPart struct {
	Type     string       `json:"type"` // "text" or "image_url"
	Text     string       `json:"text,omitempty"`
	ImageURL *xaiImageURL `json:"image_url,omitempty"`
}

type xaiImageURL struct {
	URL string `json:"url"`
}

type xaiTool struct {
	Type     string      `json:"type"` // "function"
	Function xaiFunction `json:"function"`
}

type xaiFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters"`
}

type xaiToolCall struct {
	ID       string          `json:"id"`
	Type     string          `json:"type"` // "function"
	Function xaiCallFunction `json:"function"`
}

type xaiCallFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"` // JSON string
}

type xaiResponse struct {
	Choices []xaiChoice `json:"choices"`
	Usage   *xaiUsage   `json:"usage,omitempty"`
}

type xaiChoice struct {
	Message xaiRespMessage `json:"message"`
}

type xaiRespMessage struct {
	Content   string        `json:"content"`
	ToolCalls []xaiToolCall `json:"tool_calls,omitempty"`
}

type xaiUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

// NewXAI creates the xAI adapter. An empty baseURL selects the production
// endpoint.
func NewXAI(apiKey, model, baseURL string) *XAI {
	if baseURL == "" {
		baseURL = "https://api.x.ai/v1"
	}
	return &XAI{
		apiKey:  apiKey,
		model:   model,
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

func (x *XAI) Provider() string { return "xai" }

func (x *XAI) BuildRequest(c *conv.Conversation, tools []Tool) (*Request, error) {
	var messages []xaiMessage
	for _, msg := range c.Messages {
		if msg.Role == conv.RoleTool {
			for _, part := range msg.Parts {
				res, ok := part.(conv.ResultPart)
				if !ok {
					return nil, fmt.Errorf("xai: unknown part kind %q in tool message", part.Kind())
				}
				messages = append(messages, xaiMessage{
					Role:       "tool",
					Content:    res.Result,
					ToolCallID: res.ID,
				})
			}
			continue
		}

		out := xaiMessage{Role: string(msg.Role)}
		var content []xaiContentPart
		for _, part := range msg.Parts {
			switch p := part.(type) {
			case conv.TextPart:
				text, err := c.Expand(p.Text)
				if err != nil {
					return nil, err
				}
				content = append(content, xaiContentPart{Type: "text", Text: text})
			case conv.ImagePart:
				content = append(content, xaiContentPart{Type: "image_url", ImageURL: &xaiImageURL{
					URL: fmt.Sprintf("data:%s;base64,%s", p.MediaType, p.Data),
				}})
			case conv.CallPart:
				args, err := json.Marshal(p.Args)
				if err != nil {
					return nil, fmt.Errorf("xai: marshal call arguments: %w", err)
				}
				out.ToolCalls = append(out.ToolCalls, xaiToolCall{
					ID:   p.ID,
					Type: "function",
					Function: xaiCallFunction{
						Name:      p.Name,
						Arguments: string(args),
					},
				})
			default:
				return nil, fmt.Errorf("xai: unknown part kind %q", part.Kind())
			}
		}
		if len(content) == 1 && content[0].Type == "text" {
			out.Content = content[0].Text
		} else if len(content) > 0 {
			out.Content = content
		}
		messages = append(messages, out)
	}

	apiTools := make([]xaiTool, 0, len(tools))
	for _, t := range tools {
		apiTools = append(apiTools, xaiTool{
			Type: "function",
			Function: xaiFunction{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}

	req := xaiRequest{
		Model:    x.model,
		Messages: messages,
		Tools:    apiTools,
	}
	if len(apiTools) > 0 {
		req.ToolChoice = "auto"
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("xai: marshal request: %w", err)
	}

	header := jsonHeader()
	header.Set("Authorization", "Bearer "+x.apiKey)

	return &Request{
		URL:    x.baseURL + "/chat/completions",
		Header: header,
		Body:   body,
	}, nil
}

func (x *XAI) ParseResponse(body []byte) (*conv.Message, Usage, error) {
	var resp xaiResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, Usage{}, &MalformedResponse{Provider: "xai", Reason: "undecodable body", Err: err}
	}
	if len(resp.Choices) == 0 {
		return nil, Usage{}, &MalformedResponse{Provider: "xai", Reason: "no choices in response"}
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
				Provider: "xai",
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
