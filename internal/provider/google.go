package provider

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/exedev/beeline/internal/conv"
)

// Google speaks the Gemini generateContent API: the key rides in the
// query string, messages are contents with parts, the system prompt is a
// top-level system_instruction, and function calls carry no ids so the
// adapter synthesizes stable ones.
type Google struct {
	apiKey  string
	model   string
	baseURL string
}

type googleRequest struct {
	Contents          []googleContent `json:"contents"`
	Tools             []googleTool    `json:"tools,omitempty"`
	SystemInstruction *googleContent  `json:"system_instruction,omitempty"`
}

type googleContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []googlePart `json:"parts"`
}

type googlePart struct {
	Text             string              `json:"text,omitempty"`
	InlineData       *googleInlineData   `json:"inlineData,omitempty"`
	FunctionCall     *googleFunctionCall `json:"functionCall,omitempty"`
	FunctionResponse *googleFunctionResp `json:"functionResponse,omitempty"`

	// Set while decoding responses: whether a "text" key was present
	// (even empty), and the first key naming a part kind this adapter
	// does not model. Unexported so request marshaling is untouched.
	hasText bool
	unknown string
}

// UnmarshalJSON records which keys the vendor actually sent, so a part
// kind outside the modeled set surfaces as an error instead of decoding
// to a zero value and vanishing.
func (p *googlePart) UnmarshalJSON(data []byte) error {
	type plain googlePart
	var decoded plain
	if err := json.Unmarshal(data, &decoded); err != nil {
		return err
	}
	*p = googlePart(decoded)

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	for key := range fields {
		switch key {
		case "text":
			p.hasText = true
		case "inlineData", "functionCall", "functionResponse", "thought":
		default:
			if p.unknown == "" || key < p.unknown {
				p.unknown = key
			}
		}
	}
	return nil
}

type googleInlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type googleFunctionCall struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

type googleFunctionResp struct {
	Name     string         `json:"name"`
	Response map[string]any `json:"response"`
}

type googleTool struct {
	FunctionDeclarations []googleFuncDecl `json:"functionDeclarations"`
}

type googleFuncDecl struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

type googleResponse struct {
	Candidates    []googleCandidate `json:"candidates"`
	UsageMetadata *googleUsage      `json:"usageMetadata,omitempty"`
}

type googleCandidate struct {
	Content googleContent `json:"content"`
}

type googleUsage struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
}

// NewGoogle creates the Gemini adapter. An empty baseURL selects the
// production endpoint.
func NewGoogle(apiKey, model, baseURL string) *Google {
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com/v1beta"
	}
	return &Google{
		apiKey:  apiKey,
		model:   model,
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

func (g *Google) Provider() string { return "google" }

func (g *Google) BuildRequest(c *conv.Conversation, tools []Tool) (*Request, error) {
	system, rest, err := splitSystem(c)
	if err != nil {
		return nil, err
	}

	var contents []googleContent
	for _, msg := range rest {
		parts := make([]googlePart, 0, len(msg.Parts))
		for _, part := range msg.Parts {
			switch p := part.(type) {
			case conv.TextPart:
				text, err := c.Expand(p.Text)
				if err != nil {
					return nil, err
				}
				parts = append(parts, googlePart{Text: text})
			case conv.ImagePart:
				parts = append(parts, googlePart{InlineData: &googleInlineData{
					MimeType: p.MediaType,
					Data:     p.Data,
				}})
			case conv.CallPart:
				parts = append(parts, googlePart{FunctionCall: &googleFunctionCall{
					Name: p.Name,
					Args: p.Args,
				}})
			case conv.ResultPart:
				parts = append(parts, googlePart{FunctionResponse: &googleFunctionResp{
					Name:     p.Name,
					Response: map[string]any{"result": p.Result},
				}})
			default:
				return nil, fmt.Errorf("google: unknown part kind %q", part.Kind())
			}
		}

		role := "user"
		if msg.Role == conv.RoleAssistant {
			role = "model"
		}
		contents = append(contents, googleContent{Role: role, Parts: parts})
	}

	req := googleRequest{Contents: contents}
	if system != "" {
		req.SystemInstruction = &googleContent{Parts: []googlePart{{Text: system}}}
	}
	if len(tools) > 0 {
		decls := make([]googleFuncDecl, 0, len(tools))
		for _, t := range tools {
			params := t.Parameters
			if params == nil {
				params = map[string]any{"type": "object", "properties": map[string]any{}}
			}
			decls = append(decls, googleFuncDecl{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  params,
			})
		}
		req.Tools = []googleTool{{FunctionDeclarations: decls}}
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("google: marshal request: %w", err)
	}

	return &Request{
		URL:    fmt.Sprintf("%s/models/%s:generateContent?key=%s", g.baseURL, g.model, g.apiKey),
		Header: jsonHeader(),
		Body:   body,
	}, nil
}

func (g *Google) ParseResponse(body []byte) (*conv.Message, Usage, error) {
	var resp googleResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, Usage{}, &MalformedResponse{Provider: "google", Reason: "undecodable body", Err: err}
	}
	if len(resp.Candidates) == 0 {
		return nil, Usage{}, &MalformedResponse{Provider: "google", Reason: "no candidates in response"}
	}

	msg := &conv.Message{Role: conv.RoleAssistant}
	callID := 0
	for _, part := range resp.Candidates[0].Content.Parts {
		switch {
		case part.unknown != "":
			return nil, Usage{}, &MalformedResponse{
				Provider: "google",
				Reason:   fmt.Sprintf("unrecognized part kind %q in model turn", part.unknown),
			}
		case part.FunctionCall != nil:
			msg.Parts = append(msg.Parts, conv.CallPart{
				ID:   fmt.Sprintf("google-call-%d", callID),
				Name: part.FunctionCall.Name,
				Args: part.FunctionCall.Args,
			})
			callID++
		case part.InlineData != nil || part.FunctionResponse != nil:
			return nil, Usage{}, &MalformedResponse{Provider: "google", Reason: "unexpected part in model turn"}
		case part.hasText:
			msg.Parts = append(msg.Parts, conv.TextPart{Text: part.Text})
		default:
			return nil, Usage{}, &MalformedResponse{Provider: "google", Reason: "empty part in model turn"}
		}
	}

	var usage Usage
	if resp.UsageMetadata != nil {
		usage = Usage{
			TokensIn:  resp.UsageMetadata.PromptTokenCount,
			TokensOut: resp.UsageMetadata.CandidatesTokenCount,
		}
	}
	return msg, usage, nil
}
