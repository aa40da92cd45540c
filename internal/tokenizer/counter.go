package tokenizer

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mandalnilabja/latchway/internal/types"
)

// Message token overhead varies by model family.
// These values are based on OpenAI's documentation.
const (
	// Per-message overhead tokens
	messageOverheadGPT4  = 3 // <|start|>role<|end|>
	messageOverheadGPT35 = 4

	// Reply priming tokens (assistant response start)
	replyPrimingTokens = 3

	// Name field overhead (if present)
	nameOverhead = 1

	// Per-tool structural overhead for {"type":"function","function":{...}}
	toolOverhead = 7

	// Image token constants (OpenAI rules)
	imageBaseTokens     = 85  // Base cost for any image
	imageTileTokens     = 170 // Cost per 512x512 tile
	imageLowDetailTiles = 1
	imageHighDetailMax  = 4 // High detail max tiles (simplified)
)

// CountPayload counts the messages and tool definitions of a request body.
// The payload's model member selects the encoding.
func (t *TiktokenTokenizer) CountPayload(p *types.Payload) (int, error) {
	model := p.Model()

	var messages []types.Message
	if raw, ok := p.Get("messages"); ok {
		if err := json.Unmarshal(raw, &messages); err != nil {
			return 0, fmt.Errorf("decode messages: %w", err)
		}
	}

	total, err := t.CountMessages(messages, model)
	if err != nil {
		return 0, err
	}

	if raw, ok := p.Get("tools"); ok {
		var tools []json.RawMessage
		if err := json.Unmarshal(raw, &tools); err != nil {
			return 0, fmt.Errorf("decode tools: %w", err)
		}
		for _, tool := range tools {
			n, err := t.CountTokens(string(tool), model)
			if err != nil {
				return 0, err
			}
			total += n + toolOverhead
		}
	}

	return total, nil
}

// CountMessages counts tokens for a slice of messages.
func (t *TiktokenTokenizer) CountMessages(messages []types.Message, model string) (int, error) {
	total := 0
	overhead := messageOverhead(model)

	for _, msg := range messages {
		tokens, err := t.countMessage(msg, model)
		if err != nil {
			return 0, err
		}
		total += tokens + overhead
	}

	return total + replyPrimingTokens, nil
}

func (t *TiktokenTokenizer) countMessage(msg types.Message, model string) (int, error) {
	total, err := t.CountTokens(msg.Role, model)
	if err != nil {
		return 0, err
	}

	content, err := t.countContent(msg.Content, model)
	if err != nil {
		return 0, err
	}
	total += content

	if msg.Name != "" {
		n, err := t.CountTokens(msg.Name, model)
		if err != nil {
			return 0, err
		}
		total += n + nameOverhead
	}

	// Tool calls are counted as their serialized JSON.
	for _, text := range []string{string(msg.ToolCalls), msg.ToolCallID} {
		n, err := t.CountTokens(text, model)
		if err != nil {
			return 0, err
		}
		total += n
	}

	return total, nil
}

// countContent handles plain-string content and multi-part content.
func (t *TiktokenTokenizer) countContent(content any, model string) (int, error) {
	switch c := content.(type) {
	case string:
		return t.CountTokens(c, model)
	case []any:
		total := 0
		for _, part := range c {
			p, ok := part.(map[string]any)
			if !ok {
				continue
			}
			switch p["type"] {
			case "text":
				text, _ := p["text"].(string)
				n, err := t.CountTokens(text, model)
				if err != nil {
					return 0, err
				}
				total += n
			case "image_url":
				detail := ""
				if img, ok := p["image_url"].(map[string]any); ok {
					detail, _ = img["detail"].(string)
				}
				total += imageTokens(detail)
			}
		}
		return total, nil
	}
	return 0, nil
}

// imageTokens calculates token cost for an image based on OpenAI's rules.
func imageTokens(detail string) int {
	if strings.ToLower(detail) == "low" {
		return imageBaseTokens + imageLowDetailTiles*imageTileTokens
	}
	// "high", "auto" or unspecified
	return imageBaseTokens + imageHighDetailMax*imageTileTokens
}

func messageOverhead(model string) int {
	if strings.HasPrefix(strings.ToLower(model), "gpt-3.5") {
		return messageOverheadGPT35
	}
	return messageOverheadGPT4
}
