// Package provider translates the universal conversation model to and
// from each vendor's wire format. One adapter per vendor; all of them
// speak plain JSON over net/http.
package provider

import (
	"net/http"

	"github.com/exedev/beeline/internal/conv"
)

// Tool is a vendor-agnostic tool declaration. Adapters translate it into
// the vendor's own tool-schema shape when building a request.
type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"` // JSON Schema object
}

// Usage holds the token counts a vendor reported for one turn.
type Usage struct {
	TokensIn  int
	TokensOut int
}

// Request is a fully prepared HTTP call for a vendor endpoint.
type Request struct {
	URL    string
	Header http.Header
	Body   []byte
}

// Adapter converts a conversation into one vendor's wire format and
// parses the vendor's raw response back into an assistant message.
type Adapter interface {
	// Provider returns the provider id this adapter serves.
	Provider() string

	// BuildRequest serializes the conversation and tool declarations into
	// a ready-to-send HTTP request. Variable placeholders in text parts
	// are expanded here, at serialization time. The conversation is never
	// mutated.
	BuildRequest(c *conv.Conversation, tools []Tool) (*Request, error)

	// ParseResponse parses a 2xx vendor body into the assistant message
	// and its token usage. Unrecognized content kinds are an error, never
	// a silent drop, and the returned message never contains result parts.
	ParseResponse(body []byte) (*conv.Message, Usage, error)
}

// splitSystem peels a leading system-role message off the conversation,
// returning its expanded text and the remaining messages. Several vendors
// want the system prompt as a top-level field rather than a message. The
// conversation itself is left untouched, so calling this twice is safe.
func splitSystem(c *conv.Conversation) (string, []*conv.Message, error) {
	msgs := c.Messages
	if len(msgs) > 0 && msgs[0].Role == conv.RoleSystem {
		sys, err := c.Expand(msgs[0].Text())
		if err != nil {
			return "", nil, err
		}
		return sys, msgs[1:], nil
	}
	return "", msgs, nil
}

func jsonHeader() http.Header {
	h := make(http.Header)
	h.Set("Content-Type", "application/json")
	return h
}
