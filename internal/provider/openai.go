package provider

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/exedev/beeline/internal/conv"
)

// OpenAI speaks the chat/completions shape: Bearer auth, tool_calls whose
// arguments are a JSON string, and tool results as separate role=tool
// messages. DeepSeek and Groq expose the same wire format, so the one
// adapter serves all three under their own provider ids and base URLs.
type OpenAI struct {
	provider string
	apiKey   string
	model    string
	baseURL  string
}

type openaiRequest struct {
	Model    string          `json:"model"`
	Messages []openaiMessage `json:"messages"`
	Tools    []openaiTool    `json:"tools,omitempty"`
}

type openaiMessage struct {
	Role       string           `json:"role"`
	Content    any              `json:"content,omitempty"` // string or []openaiContentPart
	ToolCalls  []openaiToolCall `json:"tool_calls,omitempty"`
	ToolCallID string           `json:"tool_call_id,omitempty"`
}

type openaiContentPart struct {
	Type     string          `json:"type"` // "text" or "image_url"
	Text     string          `json:"text,omitempty"`
	ImageURL *openaiImageURL `json:"image_url,omitempty"`
}

type openaiImageURL struct {
	URL string `json:"url"` // data: URL carrying the base64 payload
}

type openaiTool struct {
	Type     string         `json:"type"` // "function"
	Function openaiFunction `json:"function"`
}

type openaiFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters"`
}

type openaiToolCall struct {
	ID       string             `json:"id"`
	Type     string             `json:"type"` // "function"
	Function openaiCallFunction `json:"function"`
}

type openaiCallFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"` // JSON string
}

type openaiResponse struct {
	Choices []openaiChoice `json:"choices"`
	Usage   *openaiUsage   `json:"usage,omitempty"`
}

type openaiChoice struct {
	Message openaiRespMessage `json:"message"`
}

type openaiRespMessage struct {
	Content   string           `json:"content"`
	ToolCalls []openaiToolCall `json:"tool_calls,omitempty"`
}

type openaiUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

// NewOpenAI creates the adapter for OpenAI itself. An empty baseURL
// selects the production endpoint.
func NewOpenAI(apiKey, model, baseURL string) *OpenAI {
	return newOpenAICompatible("openai", apiKey, model, baseURL, "https://api.openai.com/v1")
}

// NewDeepSeek creates the adapter for DeepSeek's OpenAI-compatible API.
func NewDeepSeek(apiKey, model, baseURL string) *OpenAI {
	return newOpenAICompatible("deepseek", apiKey, model, baseURL, "https://api.deepseek.com/v1")
}

// NewGroq creates the adapter for Groq's OpenAI-compatible API.
func NewGroq(apiKey, model, baseURL string) *OpenAI {
	return newOpenAICompatible("groq", apiKey, model, baseURL, "https://api.groq.com/openai/v1")
}

func newOpenAICompatible(provider, apiKey, model, baseURL, defaultURL string) *OpenAI {
	if baseURL == "" {
		baseURL = defaultURL
	}
	return &OpenAI{
		provider: provider,
		apiKey:   apiKey,
		model:    model,
		baseURL:  strings.TrimRight(baseURL, "/"),
	}
}

func (o *OpenAI) Provider() string { return o.provider }

func (o *OpenAI) BuildRequest(c *conv.Conversation, tools []Tool) (*Request, error) {
	var messages []openaiMessage
	for _, msg := range c.Messages {
		if msg.Role == conv.RoleTool {
			// One role=tool message per result, keyed by the call id.
			for _, part := range msg.Parts {
				res, ok := part.(conv.ResultPart)
				if !ok {
					return nil, fmt.Errorf("%s: unknown part kind %q in tool message", o.provider, part.Kind())
				}
				messages = append(messages, openaiMessage{
					Role:       "tool",
					Content:    res.Result,
					ToolCallID: res.ID,
				})
			}
			continue
		}

		out := openaiMessage{Role: string(msg.Role)}
		var content []openaiContentPart
		for _, part := range msg.Parts {
			switch p := part.(type) {
			case conv.TextPart:
				text, err := c.Expand(p.Text)
				if err != nil {
					return nil, err
				}
				content = append(content, openaiContentPart{Type: "text", Text: text})
			case conv.ImagePart:
				content = append(content, openaiContentPart{Type: "image_url", ImageURL: &openaiImageURL{
					URL: fmt.Sprintf("data:%s;base64,%s", p.MediaType, p.Data),
				}})
			case conv.CallPart:
				args, err := json.Marshal(p.Args)
				if err != nil {
					return nil, fmt.Errorf("%s: marshal call arguments: %w", o.provider, err)
				}
				out.ToolCalls = append(out.ToolCalls, openaiToolCall{
					ID:   p.ID,
					Type: "function",
					Function: openaiCallFunction{
						Name:      p.Name,
						Arguments: string(args),
					},
				})
			default:
				return nil, fmt.Errorf("%s: unknown part kind %q", o.provider, part.Kind())
			}
		}
		if len(content) == 1 && content[0].Type == "text" {
			out.Content = content[0].Text
		} else if len(content) > 0 {
			out.Content = content
		}
		messages = append(messages, out)
	}

	apiTools := make([]openaiTool, 0, len(tools))
	for _, t := range tools {
		apiTools = append(apiTools, openaiTool{
			Type: "function",
			Function: openaiFunction{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}

	body, err := json.Marshal(openaiRequest{
		Model:    o.model,
		Messages: messages,
		Tools:    apiTools,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: marshal request: %w", o.provider, err)
	}

	header := jsonHeader()
	header.Set("Authorization", "Bearer "+o.apiKey)

	return &Request{
		URL:    o.baseURL + "/chat/completions",
		Header: header,
		Body:   body,
	}, nil
}

func (o *OpenAI) ParseResponse(body []byte) (*conv.Message, Usage, error) {
	var resp openaiResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, Usage{}, &MalformedResponse{Provider: o.provider, Reason: "undecodable body", Err: err}
	}
	if len(resp.Choices) == 0 {
		return nil, Usage{}, &MalformedResponse{Provider: o.provider, Reason: "no choices in response"}
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
				Provider: o.provider,
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
