// Package tokenizer estimates prompt sizes of chat-completion payloads.
// Estimates feed metrics only; they never influence routing.
package tokenizer

import (
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"

	"github.com/mandalnilabja/latchway/internal/types"
)

// Tokenizer estimates prompt tokens.
type Tokenizer interface {
	// CountTokens counts tokens in a text string for a given model.
	CountTokens(text string, model string) (int, error)

	// CountMessages counts tokens for a slice of messages.
	CountMessages(messages []types.Message, model string) (int, error)

	// CountPayload counts prompt tokens for a raw request body.
	CountPayload(p *types.Payload) (int, error)
}

// Encoding names used by tiktoken.
const (
	EncodingCL100kBase = "cl100k_base" // GPT-4, GPT-3.5-turbo
	EncodingO200kBase  = "o200k_base"  // GPT-4o, o1 models
)

// charsPerToken is the rough ratio used when no encoding can be loaded.
const charsPerToken = 4

// modelEncoding pairs a prefix with its encoding.
type modelEncoding struct {
	prefix   string
	encoding string
}

// modelEncodings lists model prefixes and their encodings, longest prefix
// first within a family. Categories and backend names that match nothing
// fall back to cl100k_base.
var modelEncodings = []modelEncoding{
	{"text-embedding", EncodingCL100kBase},
	{"gpt-4o", EncodingO200kBase},
	{"gpt-4.1", EncodingO200kBase},
	{"gpt-3.5", EncodingCL100kBase},
	{"gpt-4", EncodingCL100kBase},
	{"chatgpt", EncodingO200kBase},
	{"o1", EncodingO200kBase},
	{"o3", EncodingO200kBase},
	{"o4", EncodingO200kBase},
}

// TiktokenTokenizer implements Tokenizer using tiktoken-go. Encodings are
// loaded lazily; a failed load is remembered so an offline host does not
// retry the download on every request.
type TiktokenTokenizer struct {
	mu        sync.RWMutex
	encodings map[string]*tiktoken.Tiktoken
	failed    map[string]error
}

// New creates a new TiktokenTokenizer.
func New() *TiktokenTokenizer {
	return &TiktokenTokenizer{
		encodings: make(map[string]*tiktoken.Tiktoken),
		failed:    make(map[string]error),
	}
}

// getEncoding returns the cached encoding for a model, loading it once.
func (t *TiktokenTokenizer) getEncoding(model string) (*tiktoken.Tiktoken, error) {
	name := resolveEncoding(model)

	t.mu.RLock()
	enc, ok := t.encodings[name]
	err := t.failed[name]
	t.mu.RUnlock()
	if ok {
		return enc, nil
	}
	if err != nil {
		return nil, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if enc, ok = t.encodings[name]; ok {
		return enc, nil
	}
	if err = t.failed[name]; err != nil {
		return nil, err
	}

	enc, err = tiktoken.GetEncoding(name)
	if err != nil {
		t.failed[name] = err
		return nil, err
	}
	t.encodings[name] = enc
	return enc, nil
}

// resolveEncoding determines the encoding name for a model.
func resolveEncoding(model string) string {
	lower := strings.ToLower(model)
	for _, me := range modelEncodings {
		if strings.HasPrefix(lower, me.prefix) {
			return me.encoding
		}
	}
	return EncodingCL100kBase
}

// CountTokens counts tokens in a text string for a given model.
func (t *TiktokenTokenizer) CountTokens(text string, model string) (int, error) {
	if text == "" {
		return 0, nil
	}
	enc, err := t.getEncoding(model)
	if err != nil {
		return 0, err
	}
	return len(enc.Encode(text, nil, nil)), nil
}

// Estimate returns CountPayload's result, or a character-based guess when
// no encoding is available. Never fails.
func (t *TiktokenTokenizer) Estimate(p *types.Payload) int {
	if n, err := t.CountPayload(p); err == nil {
		return n
	}
	raw, err := p.MarshalJSON()
	if err != nil {
		return 0
	}
	return approximate(string(raw))
}

func approximate(text string) int {
	n := utf8.RuneCountInString(text)
	return (n + charsPerToken - 1) / charsPerToken
}
