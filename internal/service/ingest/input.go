package ingest

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/splax/livelog/internal/domain"
)

// Input is a decoded error report before the server stamps it.
type Input struct {
	ID           string
	Type         string
	Message      string
	Source       string
	Line         int
	Column       int
	Stack        string
	URL          string
	UserAgent    string
	Timestamp    string
	RemoteAddr   string
	SessionToken string
}

// rawInput decodes optional fields leniently: a report is only rejected for
// its message, never for the shape of an optional field.
type rawInput struct {
	ID            looseString     `json:"id"`
	Type          looseString     `json:"type"`
	Level         looseString     `json:"level"`
	Message       json.RawMessage `json:"message"`
	Source        looseString     `json:"source"`
	File          looseString     `json:"file"`
	Line          looseInt        `json:"line"`
	Column        looseInt        `json:"column"`
	Stack         looseString     `json:"stack"`
	URL           looseString     `json:"url"`
	UserAgent     looseString     `json:"userAgent"`
	Timestamp     looseString     `json:"timestamp"`
	RemoteAddress looseString     `json:"remoteAddress"`
	SessionToken  looseString     `json:"sessionToken"`
}

// ParseInput decodes a report body. The body must be a JSON object with a
// string message; every other field is optional. "level" is accepted in
// place of "type" and "file" in place of "source".
func ParseInput(body []byte) (Input, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return Input{}, &domain.ValidationError{Reason: "body must be a JSON object"}
	}
	var raw rawInput
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return Input{}, &domain.ValidationError{Reason: "invalid JSON body"}
	}
	if len(raw.Message) == 0 || string(raw.Message) == "null" {
		return Input{}, &domain.ValidationError{Field: "message", Reason: "is required"}
	}
	var message string
	if err := json.Unmarshal(raw.Message, &message); err != nil {
		return Input{}, &domain.ValidationError{Field: "message", Reason: "must be a string"}
	}
	typ := strings.TrimSpace(string(raw.Type))
	if typ == "" {
		typ = strings.TrimSpace(string(raw.Level))
	}
	source := string(raw.Source)
	if source == "" {
		source = string(raw.File)
	}
	return Input{
		ID:           strings.TrimSpace(string(raw.ID)),
		Type:         typ,
		Message:      message,
		Source:       source,
		Line:         int(raw.Line),
		Column:       int(raw.Column),
		Stack:        string(raw.Stack),
		URL:          string(raw.URL),
		UserAgent:    string(raw.UserAgent),
		Timestamp:    strings.TrimSpace(string(raw.Timestamp)),
		RemoteAddr:   strings.TrimSpace(string(raw.RemoteAddress)),
		SessionToken: strings.TrimSpace(string(raw.SessionToken)),
	}, nil
}

// looseString takes strings as-is. Any other JSON value keeps its compact
// JSON text, so 404 becomes "404" and {"f":"a.js"} stays {"f":"a.js"}.
type looseString string

func (s *looseString) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	switch {
	case len(trimmed) == 0 || string(trimmed) == "null":
		*s = ""
	case trimmed[0] == '"':
		var v string
		if err := json.Unmarshal(trimmed, &v); err != nil {
			return err
		}
		*s = looseString(v)
	default:
		var buf bytes.Buffer
		if err := json.Compact(&buf, trimmed); err != nil {
			*s = looseString(trimmed)
			return nil
		}
		*s = looseString(buf.String())
	}
	return nil
}

// looseInt accepts 12, 12.0 and "12". Anything else decodes as zero.
type looseInt int

func (n *looseInt) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		*n = 0
		return nil
	}
	if v, err := strconv.Atoi(s); err == nil {
		*n = looseInt(v)
		return nil
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		*n = looseInt(int(f))
		return nil
	}
	*n = 0
	return nil
}
