// Package conv holds the provider-agnostic conversation model: messages,
// content parts, and the running token counters for one prompt run.
// Adapters in internal/provider translate this representation to and from
// each vendor's wire format.
package conv

import (
	"encoding/base64"
	"fmt"
	"mime"
	"os"
	"path/filepath"

	"github.com/exedev/beeline/internal/subst"
)

// Role identifies who produced a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// PartKind identifies the concrete type of a message part.
type PartKind string

const (
	KindText   PartKind = "text"
	KindImage  PartKind = "image"
	KindCall   PartKind = "call"
	KindResult PartKind = "result"
)

// Part is one piece of message content. The set of implementations is
// closed: TextPart, ImagePart, CallPart, ResultPart. Adapters switch on
// Kind() and must reject anything they do not recognize.
type Part interface {
	Kind() PartKind
}

// TextPart holds literal text. Variable placeholders are kept verbatim
// here and expanded only when an adapter serializes the conversation, so
// late-bound variables pick up their final value.
type TextPart struct {
	Text string `json:"text"`
}

func (TextPart) Kind() PartKind { return KindText }

// ImagePart holds a base64-encoded image loaded from disk.
type ImagePart struct {
	Filename  string `json:"filename"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"` // base64
}

func (ImagePart) Kind() PartKind { return KindImage }

// CallPart is a tool invocation requested by the model. Args is always a
// decoded object, even when the vendor wire format carried it as a JSON
// string.
type CallPart struct {
	ID   string         `json:"id"`
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

func (CallPart) Kind() PartKind { return KindCall }

// ResultPart is the outcome of executing a CallPart. ID must match the
// originating call so the vendor can correlate them.
type ResultPart struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Result string `json:"result"`
}

func (ResultPart) Kind() PartKind { return KindResult }

// NewImagePart reads and encodes an image file. The read happens eagerly;
// a missing or unreadable file is an error at statement time, not at
// serialization time.
func NewImagePart(filename string) (ImagePart, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return ImagePart{}, fmt.Errorf("read image %s: %w", filename, err)
	}
	mediaType := mime.TypeByExtension(filepath.Ext(filename))
	if mediaType == "" {
		mediaType = "application/octet-stream"
	}
	return ImagePart{
		Filename:  filename,
		MediaType: mediaType,
		Data:      base64.StdEncoding.EncodeToString(data),
	}, nil
}

// Message is one turn in a conversation.
type Message struct {
	Role  Role
	Parts []Part
}

// Calls returns the message's tool-call parts in emission order.
func (m *Message) Calls() []CallPart {
	var calls []CallPart
	for _, p := range m.Parts {
		if c, ok := p.(CallPart); ok {
			calls = append(calls, c)
		}
	}
	return calls
}

// Text concatenates the message's text parts.
func (m *Message) Text() string {
	var out string
	for _, p := range m.Parts {
		if t, ok := p.(TextPart); ok {
			out += t.Text
		}
	}
	return out
}

// Conversation is an ordered list of messages plus the running token
// counters and the active provider/model binding. A Conversation is owned
// by exactly one VM; it is never shared across concurrent runs.
type Conversation struct {
	Messages  []*Message
	TokensIn  int
	TokensOut int
	Provider  string
	Model     string

	// Vars backs placeholder expansion of text parts at serialization
	// time. Set by the VM before the first .exec.
	Vars subst.Vars
}

// New returns an empty conversation.
func New() *Conversation {
	return &Conversation{}
}

// Add appends parts under the given role. If the last message already has
// the same role, the parts are merged into it instead, so the conversation
// never contains two adjacent messages with the same role.
func (c *Conversation) Add(role Role, parts ...Part) {
	if n := len(c.Messages); n > 0 && c.Messages[n-1].Role == role {
		c.Messages[n-1].Parts = append(c.Messages[n-1].Parts, parts...)
		return
	}
	c.Messages = append(c.Messages, &Message{Role: role, Parts: parts})
}

// Append adds an already-built message (an assistant turn parsed from a
// vendor response) without merging.
func (c *Conversation) Append(m *Message) {
	c.Messages = append(c.Messages, m)
}

// Last returns the most recent message, or nil.
func (c *Conversation) Last() *Message {
	if len(c.Messages) == 0 {
		return nil
	}
	return c.Messages[len(c.Messages)-1]
}

// Expand resolves variable placeholders in s against the conversation's
// variable set.
func (c *Conversation) Expand(s string) (string, error) {
	return subst.Expand(s, c.Vars)
}
