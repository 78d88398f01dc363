package conv

import (
	"encoding/json"
	"fmt"
)

// wirePart is the persistence envelope for a Part. The kind tag selects
// which concrete type the remaining fields decode into.
type wirePart struct {
	Kind PartKind `json:"kind"`

	Text string `json:"text,omitempty"`

	Filename  string `json:"filename,omitempty"`
	MediaType string `json:"media_type,omitempty"`
	Data      string `json:"data,omitempty"`

	ID     string         `json:"id,omitempty"`
	Name   string         `json:"name,omitempty"`
	Args   map[string]any `json:"args,omitempty"`
	Result string         `json:"result,omitempty"`
}

type wireMessage struct {
	Role  Role       `json:"role"`
	Parts []wirePart `json:"parts"`
}

// MarshalJSON encodes each part with a kind tag so the conversation can be
// round-tripped through the session store.
func (m *Message) MarshalJSON() ([]byte, error) {
	w := wireMessage{Role: m.Role}
	for _, p := range m.Parts {
		switch v := p.(type) {
		case TextPart:
			w.Parts = append(w.Parts, wirePart{Kind: KindText, Text: v.Text})
		case ImagePart:
			w.Parts = append(w.Parts, wirePart{Kind: KindImage, Filename: v.Filename, MediaType: v.MediaType, Data: v.Data})
		case CallPart:
			w.Parts = append(w.Parts, wirePart{Kind: KindCall, ID: v.ID, Name: v.Name, Args: v.Args})
		case ResultPart:
			w.Parts = append(w.Parts, wirePart{Kind: KindResult, ID: v.ID, Name: v.Name, Result: v.Result})
		default:
			return nil, fmt.Errorf("conv: cannot marshal part kind %q", p.Kind())
		}
	}
	return json.Marshal(w)
}

func (m *Message) UnmarshalJSON(data []byte) error {
	var w wireMessage
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	m.Role = w.Role
	m.Parts = nil
	for _, p := range w.Parts {
		switch p.Kind {
		case KindText:
			m.Parts = append(m.Parts, TextPart{Text: p.Text})
		case KindImage:
			m.Parts = append(m.Parts, ImagePart{Filename: p.Filename, MediaType: p.MediaType, Data: p.Data})
		case KindCall:
			m.Parts = append(m.Parts, CallPart{ID: p.ID, Name: p.Name, Args: p.Args})
		case KindResult:
			m.Parts = append(m.Parts, ResultPart{ID: p.ID, Name: p.Name, Result: p.Result})
		default:
			return fmt.Errorf("conv: unknown part kind %q", p.Kind)
		}
	}
	return nil
}
