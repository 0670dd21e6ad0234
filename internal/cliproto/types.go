// Package cliproto implements the wire formats the Assistant Handler
// understands on an assistant CLI's stdout, grounded in the stream-json
// dialect used by Claude Code style CLIs: newline-delimited JSON with a
// system message announcing the external session id, and a result
// message ending the turn.
package cliproto

import "encoding/json"

// Message types recognized on stdout in stream-json mode.
const (
	TypeSystem    = "system"
	TypeAssistant = "assistant"
	TypeResult    = "result"
)

// CLIMessage is one JSON object parsed from a stream-json line. The
// Type field determines which of the remaining fields are populated;
// unknown fields are preserved in Raw for callers that want them.
type CLIMessage struct {
	Type string `json:"type"`

	// system messages advertise (or re-advertise) the external session id.
	SessionID string `json:"session_id,omitempty"`

	// assistant messages carry incremental text.
	Message *AssistantMessage `json:"message,omitempty"`

	// result messages end a turn.
	Result  json.RawMessage `json:"result,omitempty"`
	IsError bool            `json:"is_error,omitempty"`

	Raw []byte `json:"-"`
}

// AssistantMessage carries the assistant's incremental content. Content
// may be a bare string or a list of content blocks depending on CLI
// version; both are supported via GetText.
type AssistantMessage struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content,omitempty"`
}

// GetText extracts plain text from Content regardless of whether the
// CLI emitted a bare string or a list of {"type":"text","text":...}
// blocks.
func (m *AssistantMessage) GetText() string {
	if m == nil || len(m.Content) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(m.Content, &s); err == nil {
		return s
	}
	var blocks []contentBlock
	if err := json.Unmarshal(m.Content, &blocks); err == nil {
		out := ""
		for _, b := range blocks {
			if b.Type == "text" {
				out += b.Text
			}
		}
		return out
	}
	return ""
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// ParseLine parses a single stream-json line. Parse failures are
// reported to the caller, who (per the Assistant Handler's execute
// contract) logs and falls back to treating the line as raw text.
func ParseLine(line []byte) (*CLIMessage, error) {
	var msg CLIMessage
	if err := json.Unmarshal(line, &msg); err != nil {
		return nil, err
	}
	msg.Raw = line
	return &msg, nil
}

// ResultText extracts the plain-text result payload, tolerating both a
// bare JSON string and an object with a "text" field.
func ResultText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var obj struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		return obj.Text
	}
	return ""
}
