package provider

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/exedev/beeline/internal/conv"
)

// Anthropic speaks the Messages API: API key in the x-api-key header plus
// a pinned anthropic-version, content blocks inside every message, and the
// system prompt as a top-level string.
type Anthropic struct {
	apiKey    string
	model     string
	baseURL   string
	maxTokens int
}

type anthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	System    string             `json:"system,omitempty"`
	Messages  []anthropicMessage `json:"messages"`
	Tools     []anthropicTool    `json:"tools,omitempty"`
}

type anthropicMessage struct {
	Role    string           `json:"role"`
	Content []anthropicBlock `json:"content"`
}

type anthropicBlock struct {
	Type string `json:"type"`

	// type "text"
	Text string `json:"text,omitempty"`

	// type "image"
	Source *anthropicImageSource `json:"source,omitempty"`

	// type "tool_use"
	ID    string         `json:"id,omitempty"`
	Name  string         `json:"name,omitempty"`
	Input map[string]any `json:"input,omitempty"`

	// type "tool_result"
	ToolUseID string `json:"tool_use_id,omitempty"`
	Content   string `json:"content,omitempty"`
}

type anthropicImageSource struct {
	Type      string `json:"type"` // "base64"
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

type anthropicTool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}

type anthropicResponse struct {
	Content []anthropicBlock `json:"content"`
	Usage   *anthropicUsage  `json:"usage,omitempty"`
}

type anthropicUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// NewAnthropic creates the Anthropic adapter. An empty baseURL selects the
// production endpoint; maxTokens <= 0 selects 4096.
func NewAnthropic(apiKey, model, baseURL string, maxTokens int) *Anthropic {
	if baseURL == "" {
		baseURL = "https://api.anthropic.com"
	}
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	return &Anthropic{
		apiKey:    apiKey,
		model:     model,
		baseURL:   strings.TrimRight(baseURL, "/"),
		maxTokens: maxTokens,
	}
}

func (a *Anthropic) Provider() string { return "anthropic" }

func (a *Anthropic) BuildRequest(c *conv.Conversation, tools []Tool) (*Request, error) {
	system, rest, err := splitSystem(c)
	if err != nil {
		return nil, err
	}

	var messages []anthropicMessage
	for _, msg := range rest {
		blocks := make([]anthropicBlock, 0, len(msg.Parts))
		for _, part := range msg.Parts {
			switch p := part.(type) {
			case conv.TextPart:
				text, err := c.Expand(p.Text)
				if err != nil {
					return nil, err
				}
				blocks = append(blocks, anthropicBlock{Type: "text", Text: text})
			case conv.ImagePart:
				blocks = append(blocks, anthropicBlock{Type: "image", Source: &anthropicImageSource{
					Type:      "base64",
					MediaType: p.MediaType,
					Data:      p.Data,
				}})
			case conv.CallPart:
				blocks = append(blocks, anthropicBlock{Type: "tool_use", ID: p.ID, Name: p.Name, Input: p.Args})
			case conv.ResultPart:
				blocks = append(blocks, anthropicBlock{Type: "tool_result", ToolUseID: p.ID, Content: p.Result})
			default:
				return nil, fmt.Errorf("anthropic: unknown part kind %q", part.Kind())
			}
		}

		// Tool results travel under the user role; everything that is not
		// an assistant turn does.
		role := "user"
		if msg.Role == conv.RoleAssistant {
			role = "assistant"
		}
		messages = append(messages, anthropicMessage{Role: role, Content: blocks})
	}

	apiTools := make([]anthropicTool, 0, len(tools))
	for _, t := range tools {
		apiTools = append(apiTools, anthropicTool{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: t.Parameters,
		})
	}

	body, err := json.Marshal(anthropicRequest{
		Model:     a.model,
		MaxTokens: a.maxTokens,
		System:    system,
		Messages:  messages,
		Tools:     apiTools,
	})
	if err != nil {
		return nil, fmt.Errorf("anthropic: marshal request: %w", err)
	}

	header := jsonHeader()
	header.Set("x-api-key", a.apiKey)
	header.Set("anthropic-version", "2023-06-01")

	return &Request{
		URL:    a.baseURL + "/v1/messages",
		Header: header,
		Body:   body,
	}, nil
}

func (a *Anthropic) ParseResponse(body []byte) (*conv.Message, Usage, error) {
	var resp anthropicResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, Usage{}, &MalformedResponse{Provider: "anthropic", Reason: "undecodable body", Err: err}
	}

	msg := &conv.Message{Role: conv.RoleAssistant}
	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			msg.Parts = append(msg.Parts, conv.TextPart{Text: block.Text})
		case "tool_use":
			msg.Parts = append(msg.Parts, conv.CallPart{ID: block.ID, Name: block.Name, Args: block.Input})
		default:
			return nil, Usage{}, &MalformedResponse{
				Provider: "anthropic",
				Reason:   fmt.Sprintf("unknown content type %q", block.Type),
			}
		}
	}

	var usage Usage
	if resp.Usage != nil {
		usage = Usage{TokensIn: resp.Usage.InputTokens, TokensOut: resp.Usage.OutputTokens}
	}
	return msg, usage, nil
}
