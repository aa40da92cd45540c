package types

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrPayloadNotObject is returned when a request body is not a JSON object.
var ErrPayloadNotObject = errors.New("request body must be a JSON object")

// field is one top-level member of a Payload, kept as raw JSON.
type field struct {
	Key   string
	Value json.RawMessage
}

// Payload is a chat-completion request body held as an ordered JSON object.
// Members the gateway does not understand are carried verbatim; only the
// model member is ever rewritten.
type Payload struct {
	fields []field
}

// ParsePayload decodes a JSON object, preserving member order and raw values.
func ParsePayload(data []byte) (*Payload, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("parse payload: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, ErrPayloadNotObject
	}

	p := &Payload{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("parse payload: %w", err)
		}
		key, ok := tok.(string)
		if !ok {
			return nil, ErrPayloadNotObject
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, fmt.Errorf("parse payload member %q: %w", key, err)
		}
		p.set(key, raw)
	}
	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("parse payload: %w", err)
	}
	return p, nil
}

// Model returns the requested model (the routing category), or "" if absent
// or not a string.
func (p *Payload) Model() string {
	raw, ok := p.Get("model")
	if !ok {
		return ""
	}
	var model string
	if err := json.Unmarshal(raw, &model); err != nil {
		return ""
	}
	return model
}

// Stream reports whether the client asked for a streamed response.
func (p *Payload) Stream() bool {
	raw, ok := p.Get("stream")
	if !ok {
		return false
	}
	var stream bool
	_ = json.Unmarshal(raw, &stream)
	return stream
}

// Get returns the raw value of a top-level member.
func (p *Payload) Get(key string) (json.RawMessage, bool) {
	for _, f := range p.fields {
		if f.Key == key {
			return f.Value, true
		}
	}
	return nil, false
}

// WithModel returns a copy of the payload whose model member is replaced.
// The receiver is left untouched so one payload can be sent to many backends.
func (p *Payload) WithModel(model string) *Payload {
	out := &Payload{fields: make([]field, len(p.fields))}
	copy(out.fields, p.fields)

	raw, _ := json.Marshal(model)
	out.set("model", raw)
	return out
}

// MarshalJSON writes the members back in their original order.
func (p *Payload) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range p.fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(f.Key)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(f.Value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (p *Payload) set(key string, value json.RawMessage) {
	for i := range p.fields {
		if p.fields[i].Key == key {
			p.fields[i].Value = value
			return
		}
	}
	p.fields = append(p.fields, field{Key: key, Value: value})
}
