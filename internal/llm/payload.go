package llm

import (
	"encoding/json"
	"strings"
)

// PayloadKind tags the shape a provider response body was found in.
type PayloadKind int

const (
	PayloadMalformed PayloadKind = iota
	PayloadPlainText
	PayloadNestedContent
)

func (k PayloadKind) String() string {
	switch k {
	case PayloadPlainText:
		return "plain_text"
	case PayloadNestedContent:
		return "nested_content"
	default:
		return "malformed"
	}
}

// Payload is a parsed response body. Text is set for PlainText and
// NestedContent; Detail explains a Malformed payload.
type Payload struct {
	Kind   PayloadKind
	Text   string
	Detail string
}

type responsesBody struct {
	OutputText *string `json:"output_text"`
	Output     []struct {
		Type    string `json:"type"`
		Role    string `json:"role"`
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	} `json:"output"`
}

// ParsePayload classifies a Responses API body. A top-level output_text
// string wins; otherwise the text parts of the first message item that has
// any are joined. Anything else is Malformed.
func ParsePayload(body []byte) Payload {
	var rb responsesBody
	if err := json.Unmarshal(body, &rb); err != nil {
		return Payload{Kind: PayloadMalformed, Detail: "invalid JSON: " + truncate(err.Error(), 120)}
	}
	if rb.OutputText != nil && strings.TrimSpace(*rb.OutputText) != "" {
		return Payload{Kind: PayloadPlainText, Text: strings.TrimSpace(*rb.OutputText)}
	}
	for _, item := range rb.Output {
		if item.Type != "" && item.Type != "message" {
			continue
		}
		var parts []string
		for _, c := range item.Content {
			if c.Type != "" && c.Type != "output_text" && c.Type != "text" {
				continue
			}
			if t := strings.TrimSpace(c.Text); t != "" {
				parts = append(parts, t)
			}
		}
		if len(parts) > 0 {
			return Payload{Kind: PayloadNestedContent, Text: strings.Join(parts, "\n")}
		}
	}
	if rb.OutputText != nil || len(rb.Output) > 0 {
		return Payload{Kind: PayloadMalformed, Detail: "no text content"}
	}
	return Payload{Kind: PayloadMalformed, Detail: "missing output"}
}

// truncate limits a string to maxLen runes, appending "..." if truncated.
func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen]) + "..."
}
