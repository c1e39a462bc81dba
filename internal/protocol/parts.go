package protocol

import (
	"encoding/json"
	"fmt"
)

// Part kind discriminators.
const (
	PartKindText = "text"
	PartKindFile = "file"
	PartKindData = "data"
)

// FileContent is the payload of a file part. Exactly one of Bytes
// (base64-encoded content) or URI is set.
type FileContent struct {
	Bytes    string `json:"bytes,omitempty"`
	URI      string `json:"uri,omitempty"`
	MIMEType string `json:"mimeType,omitempty"`
	Name     string `json:"name,omitempty"`
}

// Part is a tagged content fragment inside a message or artifact: text,
// file, or structured data. Exactly one payload field is meaningful,
// selected by Kind.
type Part struct {
	Kind     string
	Text     string
	File     *FileContent
	Data     map[string]any
	Metadata map[string]any
}

// NewTextPart returns a text part.
func NewTextPart(text string) Part {
	return Part{Kind: PartKindText, Text: text}
}

// NewFilePart returns a file part.
func NewFilePart(file FileContent) Part {
	return Part{Kind: PartKindFile, File: &file}
}

// NewDataPart returns a data part.
func NewDataPart(data map[string]any) Part {
	return Part{Kind: PartKindData, Data: data}
}

// textPartWire, filePartWire and dataPartWire are the serialized shapes of
// the three variants.
type textPartWire struct {
	Kind     string         `json:"kind"`
	Text     string         `json:"text"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

type filePartWire struct {
	Kind     string         `json:"kind"`
	File     *FileContent   `json:"file"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

type dataPartWire struct {
	Kind     string         `json:"kind"`
	Data     map[string]any `json:"data"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// MarshalJSON encodes the part as its tagged wire form.
func (p Part) MarshalJSON() ([]byte, error) {
	switch p.Kind {
	case PartKindText:
		return json.Marshal(textPartWire{Kind: p.Kind, Text: p.Text, Metadata: p.Metadata})
	case PartKindFile:
		if p.File == nil {
			return nil, fmt.Errorf("file part has no file content")
		}
		return json.Marshal(filePartWire{Kind: p.Kind, File: p.File, Metadata: p.Metadata})
	case PartKindData:
		return json.Marshal(dataPartWire{Kind: p.Kind, Data: p.Data, Metadata: p.Metadata})
	default:
		return nil, fmt.Errorf("unknown part kind %q", p.Kind)
	}
}

// UnmarshalJSON decodes a tagged part, dispatching on the kind field.
func (p *Part) UnmarshalJSON(data []byte) error {
	var probe struct {
		Kind     string         `json:"kind"`
		Text     string         `json:"text"`
		File     *FileContent   `json:"file"`
		Data     map[string]any `json:"data"`
		Metadata map[string]any `json:"metadata"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return err
	}
	switch probe.Kind {
	case PartKindText:
		*p = Part{Kind: probe.Kind, Text: probe.Text, Metadata: probe.Metadata}
	case PartKindFile:
		if probe.File == nil {
			return fmt.Errorf("file part has no file content")
		}
		*p = Part{Kind: probe.Kind, File: probe.File, Metadata: probe.Metadata}
	case PartKindData:
		*p = Part{Kind: probe.Kind, Data: probe.Data, Metadata: probe.Metadata}
	default:
		return fmt.Errorf("unknown part kind %q", probe.Kind)
	}
	return nil
}
